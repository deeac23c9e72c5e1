// Package auth provides identity handling for parley.
//
// # Client Side
//
// A Session carries the bearer token the sync engine is bound to, together
// with the user id, username and expiry decoded from the token's claims:
//
//	sess, err := auth.NewSession(token)
//	engine.BindSession(ctx, sess)
//
// Claims are decoded without signature verification; the server decides
// whether a token is valid.
//
// # Server Side
//
// The development backend signs HS256 tokens with JWTVerifier.Generate and
// checks them with HTTPAuthMiddleware:
//
//	verifier := auth.NewJWTVerifier(secret)
//	mux.Handle("/api/chats/", auth.HTTPAuthMiddleware(verifier, users)(handler))
//
// Handlers read the caller with FromContext / MustFromContext.
//
// Passwords are stored as bcrypt hashes (HashPassword / CheckPassword).
package auth

// Package devserver is a development backend for parley.
//
// It serves the conversation REST API the client expects so the sync engine
// can be exercised end to end without the production service:
//
//	POST   /api/auth/login/
//	GET    /api/chats/                 POST /api/chats/
//	GET    /api/chats/{id}/            PATCH /api/chats/{id}/    DELETE /api/chats/{id}/
//	POST   /api/chats/{id}/archive/
//	POST   /api/chats/{id}/send_message/
//	GET    /api/chats/statistics/
//	GET    /api/ai-models/
//
// Everything under /api except login requires a bearer token issued by the
// login endpoint. Assistant replies come from a Responder; the default
// EchoResponder is deterministic. send_message honours the Idempotency-Key
// header: a key replayed within the cache window is answered with 409.
//
// Error bodies follow two shapes. Validation failures are keyed by field:
//
//	{"content": ["This field may not be blank."]}
//
// Everything else carries a message under "error", except 404 which uses
// {"detail": "Not found."}.
package devserver

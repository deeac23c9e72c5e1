// Package conversation implements the client-side conversation sync engine.
//
// # Overview
//
// The engine keeps three pieces of client-held state consistent while
// talking to a slow, fallible remote store:
//
//   - the conversation list (summaries, newest first)
//   - the active conversation (the one open detail and its transcript)
//   - pending messages (sent by the user, not yet confirmed by the server)
//
// # Components
//
// Repository is a lock-free state container. Engine owns one Repository and
// a mutex; every commit happens under the mutex and every remote call happens
// outside it. Project and ProjectExchange mirror a detail into its list entry.
// Broadcaster fans out Change notifications so renderers know when to re-read.
//
//	engine := conversation.New(remote, logger)
//	changes, _ := engine.Subscribe(ctx)
//	err := engine.BindSession(ctx, session)
//	res, err := engine.SendMessage(ctx, 0, "hello", chat.LanguageEnglish, "")
//
// # Sending
//
// SendMessage appends a pending message to the open transcript, calls the
// remote store, then either re-fetches the conversation and replaces the
// transcript wholesale, or removes the pending message and returns a
// *SendError holding the original input. A send whose conversation is no
// longer open still updates the list entry.
//
// # Errors
//
// Caller mistakes (ErrInvalidID, ErrEmptyContent, ErrNoSession, ...) are
// returned immediately and never stored. Remote failures are returned as
// *OperationError and their message is kept in LastError until the next
// operation starts.
package conversation

// Package store provides persistence for the parley development backend.
//
// # Architecture
//
// Store is the single interface the backend handlers depend on. Two
// implementations exist:
//
//   - SQLiteStore: modernc.org/sqlite, used by parley-devserver
//   - MockStore: in-memory maps, used by handler tests
//
// Every conversation operation takes the owning user id. A conversation that
// belongs to another user is indistinguishable from a missing one and yields
// ErrNotFound.
//
// # Data Models
//
//   - User: account with a bcrypt password hash
//   - chat.Summary / chat.Detail: conversations and transcripts
//   - chat.Model: catalogue entries, kept in insertion order
//
// List fields (message count and last-message preview) are derived from the
// transcript on every read; they are never stored.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Deleting a conversation cascades to its messages.
//
// # Errors
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicate: username already taken
package store

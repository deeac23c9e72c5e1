// Package chat defines the conversation data model.
//
// # Types
//
//   - Summary: list-view entry (title, language, archived flag, message count, last-message preview)
//   - Detail: a Summary plus its ordered transcript
//   - Message: one transcript entry, either pending (optimistic, LocalID < 0) or confirmed (ID > 0)
//   - Model: an assistant model descriptor with language support flags
//
// The JSON tags match the remote REST API, so the same structs are used by the
// sync engine, the HTTP client and the development backend.
package chat

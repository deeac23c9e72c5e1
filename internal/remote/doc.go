// Package remote is the HTTP client for the conversation REST API.
//
// Client implements conversation.RemoteStore:
//
//	c := remote.New(cfg.Server.BaseURL, remote.WithTimeout(cfg.Server.Timeout))
//	list, err := c.ListConversations(ctx, sess)
//
// Every call carries the session's bearer token. Non-2xx replies become
// *APIError; the server's {"error"} or {"detail"} text is kept so the engine
// can show it. List endpoints accept both bare arrays and paginated
// {"results": [...]} envelopes.
package remote

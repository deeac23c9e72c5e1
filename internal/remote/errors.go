// ABOUTME: APIError wraps non-2xx replies from the conversation API
// ABOUTME: Extracts the server's error/detail text and maps 401/404 to sentinels

package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinels matched by APIError via errors.Is
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
)

// APIError is a non-2xx reply from the server
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

// Is lets errors.Is match APIError against the status sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	}
	return false
}

// ServerMessage returns the human-readable reason given by the server, if any.
func (e *APIError) ServerMessage() string {
	return e.Message
}

// newAPIError builds an APIError from a reply body. The message comes from
// "error", then "detail", then the first field error of a validation reply.
func newAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status, Body: strings.TrimSpace(string(body))}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return e
	}
	for _, key := range []string{"error", "detail"} {
		var s string
		if raw, ok := fields[key]; ok && json.Unmarshal(raw, &s) == nil && s != "" {
			e.Message = s
			return e
		}
	}
	for key, raw := range fields {
		var list []string
		if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
			e.Message = key + ": " + list[0]
			return e
		}
	}
	return e
}

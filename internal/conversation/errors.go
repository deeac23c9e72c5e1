// ABOUTME: Error taxonomy of the sync engine
// ABOUTME: Caller-contract sentinels, wrapped remote failures and the send failure carrying the input

package conversation

import (
	"errors"

	"github.com/2389/parley/internal/chat"
)

// Caller-contract violations. These never reach the network and never
// populate the engine's error slot.
var (
	ErrInvalidID        = errors.New("invalid conversation id")
	ErrEmptyContent     = errors.New("message content is empty")
	ErrEmptyTitle       = errors.New("title is empty")
	ErrNoSession        = errors.New("no session bound")
	ErrUnsupportedModel = errors.New("model not available for language")
	ErrInvalidLanguage  = chat.ErrInvalidLanguage
)

// Outcomes of operations that lost the right to commit.
var (
	// ErrSuperseded is returned by a load whose result was discarded because a
	// newer navigation happened while it was in flight.
	ErrSuperseded = errors.New("superseded by a newer navigation")
	// ErrSessionChanged is returned when the session was rebound or unbound
	// while the operation was in flight.
	ErrSessionChanged = errors.New("session changed during operation")
)

// ErrMalformedResponse marks a remote reply that is missing required data.
var ErrMalformedResponse = errors.New("malformed response")

// OperationError is a remote failure as surfaced by the engine. Message is the
// human-readable text stored in the error slot.
type OperationError struct {
	Op      string
	Message string
	Err     error
}

func (e *OperationError) Error() string {
	return e.Op + ": " + e.Message + ": " + e.Err.Error()
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// SendError is returned when a send fails. Content is the caller's input,
// unmodified, so it can be restored for a retry. IdempotencyKey is the key the
// send used; pass it to SendMessageWithKey when retrying.
type SendError struct {
	Content        string
	IdempotencyKey string
	Err            error
}

func (e *SendError) Error() string {
	return "send failed: " + e.Err.Error()
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// serverMessager is implemented by remote errors that carry a message from the server.
type serverMessager interface {
	ServerMessage() string
}

const sendFailedMessage = "Failed to send message"

// sendFailureMessage prefers the server's own explanation of a rejected send.
func sendFailureMessage(err error) string {
	var sm serverMessager
	if errors.As(err, &sm) {
		if msg := sm.ServerMessage(); msg != "" {
			return msg
		}
	}
	return sendFailedMessage
}

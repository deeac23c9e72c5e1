// ABOUTME: Deterministic assistant used by the development backend
// ABOUTME: Echoes the last user message so client behaviour is reproducible

package devserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/parley/internal/chat"
)

// historyWindow is how many transcript messages are handed to the responder.
const historyWindow = 10

// Prompt is the input to a Responder
type Prompt struct {
	History  []chat.Message // oldest first, ending with the new user message
	Language chat.Language
	Model    string
}

// Reply is a generated assistant message
type Reply struct {
	Content    string
	TokensUsed int
}

// Responder produces assistant replies
type Responder interface {
	Respond(ctx context.Context, p Prompt) (Reply, error)
}

// EchoResponder answers by quoting the user's last message. Token usage is
// the reply's word count.
type EchoResponder struct{}

// Respond implements Responder.
func (EchoResponder) Respond(ctx context.Context, p Prompt) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}

	var last string
	for i := len(p.History) - 1; i >= 0; i-- {
		if p.History[i].Role == chat.RoleUser {
			last = p.History[i].Content
			break
		}
	}
	if last == "" {
		return Reply{}, errors.New("no user message to answer")
	}

	var content string
	switch p.Language {
	case chat.LanguageArabic:
		content = fmt.Sprintf("**%s**: لقد قلت \"%s\"", p.Model, last)
	default:
		content = fmt.Sprintf("**%s**: you said \"%s\"", p.Model, last)
	}
	return Reply{Content: content, TokensUsed: len(strings.Fields(content))}, nil
}

// tail returns at most n trailing messages.
func tail(msgs []chat.Message, n int) []chat.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

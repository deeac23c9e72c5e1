// ABOUTME: Deterministic profile summaries for the development backend
// ABOUTME: Derives topics from word frequency and common queries from repeated messages

package devserver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/2389/parley/internal/chat"
)

const (
	maxTopics        = 5
	maxCommonQueries = 3
	minTopicRunes    = 4
)

// Digest is a generated profile of a user's messages
type Digest struct {
	Text          string
	Topics        []string
	CommonQueries []string
}

// Summarizer produces a profile from a user's recent messages, newest first
type Summarizer interface {
	Summarize(ctx context.Context, lang chat.Language, messages []string) (Digest, error)
}

// Summarize implements Summarizer. Topics are the most frequent words of at
// least four letters; common queries are the most repeated messages.
func (EchoResponder) Summarize(ctx context.Context, lang chat.Language, messages []string) (Digest, error) {
	if err := ctx.Err(); err != nil {
		return Digest{}, err
	}
	if len(messages) == 0 {
		return Digest{}, errors.New("no messages to summarize")
	}

	d := Digest{
		Topics:        topWords(messages, maxTopics),
		CommonQueries: topMessages(messages, maxCommonQueries),
	}

	shown := d.Topics[:min(3, len(d.Topics))]
	switch {
	case lang == chat.LanguageArabic && len(shown) > 0:
		d.Text = fmt.Sprintf("بناءً على %d رسالة، تتحدث غالباً عن %s.", len(messages), strings.Join(shown, "، "))
	case lang == chat.LanguageArabic:
		d.Text = fmt.Sprintf("بناءً على %d رسالة، لا توجد مواضيع متكررة بعد.", len(messages))
	case len(shown) > 0:
		d.Text = fmt.Sprintf("Based on %d messages, you mostly talk about %s.", len(messages), strings.Join(shown, ", "))
	default:
		d.Text = fmt.Sprintf("Based on %d messages, no recurring topics yet.", len(messages))
	}
	return d, nil
}

type tally struct {
	text  string
	count int
	first int // index of first occurrence
}

// ranked orders tallies by count, then by first occurrence.
func ranked(m map[string]*tally, n int) []string {
	list := make([]*tally, 0, len(m))
	for _, t := range m {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].count != list[j].count {
			return list[i].count > list[j].count
		}
		return list[i].first < list[j].first
	})
	out := []string{}
	for _, t := range list[:min(n, len(list))] {
		out = append(out, t.text)
	}
	return out
}

func topWords(messages []string, n int) []string {
	counts := map[string]*tally{}
	pos := 0
	for _, msg := range messages {
		words := strings.FieldsFunc(strings.ToLower(msg), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			pos++
			if utf8.RuneCountInString(w) < minTopicRunes {
				continue
			}
			if t, ok := counts[w]; ok {
				t.count++
				continue
			}
			counts[w] = &tally{text: w, count: 1, first: pos}
		}
	}
	return ranked(counts, n)
}

// topMessages returns messages sent more than once, most repeated first.
func topMessages(messages []string, n int) []string {
	counts := map[string]*tally{}
	for i, msg := range messages {
		msg = strings.TrimSpace(msg)
		key := strings.ToLower(msg)
		if t, ok := counts[key]; ok {
			t.count++
			continue
		}
		counts[key] = &tally{text: msg, count: 1, first: i}
	}
	for k, t := range counts {
		if t.count < 2 {
			delete(counts, k)
		}
	}
	return ranked(counts, n)
}

package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/chat"
)

func confirmed(id, conv int64, role chat.Role, content string) chat.Message {
	return chat.Message{ID: id, ConversationID: conv, Role: role, Content: content, Language: chat.LanguageEnglish}
}

func TestRepository_ListOperations(t *testing.T) {
	r := NewRepository()
	r.ReplaceList([]chat.Summary{{ID: 1, Title: "one"}, {ID: 2, Title: "two"}})

	r.PrependSummary(chat.Summary{ID: 3, Title: "three"})
	r.PrependSummary(chat.Summary{ID: 1, Title: "one again"})

	list := r.Summaries()
	require.Len(t, list, 3)
	assert.Equal(t, []int64{1, 3, 2}, []int64{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, "one again", list[0].Title)

	title := "renamed"
	assert.True(t, r.PatchSummary(2, SummaryPatch{Title: &title}))
	assert.False(t, r.PatchSummary(99, SummaryPatch{Title: &title}))
	s, ok := r.Summary(2)
	require.True(t, ok)
	assert.Equal(t, "renamed", s.Title)

	assert.True(t, r.ReplaceSummary(chat.Summary{ID: 3, Title: "swapped", Archived: true}))
	assert.False(t, r.ReplaceSummary(chat.Summary{ID: 42}))

	assert.True(t, r.RemoveSummary(1))
	assert.False(t, r.RemoveSummary(1))
	list = r.Summaries()
	assert.Equal(t, []int64{3, 2}, []int64{list[0].ID, list[1].ID})
	assert.True(t, list[0].Archived)
}

func TestRepository_AccessorsReturnCopies(t *testing.T) {
	r := NewRepository()
	r.ReplaceList([]chat.Summary{{ID: 1, LastMessage: &chat.Preview{Content: "x"}}})
	r.ReplaceActive(&chat.Detail{Summary: chat.Summary{ID: 1}, Messages: []chat.Message{confirmed(5, 1, chat.RoleUser, "hi")}})

	list := r.Summaries()
	list[0].LastMessage.Content = "mutated"
	active := r.Active()
	active.Messages[0].Content = "mutated"

	assert.Equal(t, "x", r.Summaries()[0].LastMessage.Content)
	assert.Equal(t, "hi", r.Active().Messages[0].Content)
}

func TestRepository_PendingLifecycle(t *testing.T) {
	r := NewRepository()
	now := time.Now()

	assert.False(t, r.AppendPending(chat.NewPending(-1, 7, "hi", chat.LanguageEnglish, now)), "no active detail")

	r.ReplaceActive(&chat.Detail{Summary: chat.Summary{ID: 7}})
	assert.False(t, r.AppendPending(chat.NewPending(-1, 8, "hi", chat.LanguageEnglish, now)), "other conversation")
	assert.False(t, r.AppendPending(confirmed(3, 7, chat.RoleUser, "hi")), "not pending")
	assert.True(t, r.AppendPending(chat.NewPending(-1, 7, "first", chat.LanguageEnglish, now)))
	assert.True(t, r.AppendPending(chat.NewPending(-2, 7, "second", chat.LanguageEnglish, now)))

	m, ok := r.TakePending(-1)
	require.True(t, ok)
	assert.Equal(t, "first", m.Content)
	_, ok = r.TakePending(-1)
	assert.False(t, ok, "a pending message is consumed once")

	require.Len(t, r.Active().Messages, 1)
	assert.Equal(t, int64(-2), r.Active().Messages[0].LocalID)
}

func TestRepository_ReconcileActiveCarriesPending(t *testing.T) {
	r := NewRepository()
	r.ReplaceActive(&chat.Detail{Summary: chat.Summary{ID: 7}, Messages: []chat.Message{confirmed(1, 7, chat.RoleUser, "a")}})
	r.AppendPending(chat.NewPending(-3, 7, "waiting", chat.LanguageEnglish, time.Now()))

	fresh := &chat.Detail{Summary: chat.Summary{ID: 7}, Messages: []chat.Message{
		confirmed(1, 7, chat.RoleUser, "a"),
		confirmed(2, 7, chat.RoleAssistant, "b"),
	}}
	assert.False(t, r.ReconcileActive(&chat.Detail{Summary: chat.Summary{ID: 8}}))
	assert.True(t, r.ReconcileActive(fresh))

	msgs := r.Active().Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(2), msgs[1].ID)
	assert.True(t, msgs[2].IsPending())
}

func TestRepository_AppendConfirmedSkipsDuplicates(t *testing.T) {
	r := NewRepository()
	assert.False(t, r.AppendConfirmed(7, confirmed(1, 7, chat.RoleUser, "a")))

	r.ReplaceActive(&chat.Detail{Summary: chat.Summary{ID: 7}, Messages: []chat.Message{confirmed(1, 7, chat.RoleUser, "a")}})
	assert.True(t, r.AppendConfirmed(7,
		confirmed(1, 7, chat.RoleUser, "a"),
		confirmed(2, 7, chat.RoleAssistant, "b"),
		confirmed(2, 7, chat.RoleAssistant, "b"),
	))
	assert.Len(t, r.Active().Messages, 2)
}

func TestRepository_PatchActiveAndReset(t *testing.T) {
	r := NewRepository()
	archived := true
	assert.False(t, r.PatchActive(1, SummaryPatch{Archived: &archived}))

	r.ReplaceActive(&chat.Detail{Summary: chat.Summary{ID: 1}})
	assert.False(t, r.PatchActive(2, SummaryPatch{Archived: &archived}))
	assert.True(t, r.PatchActive(1, SummaryPatch{Archived: &archived}))
	assert.True(t, r.Active().Archived)
	assert.Equal(t, int64(1), r.ActiveID())

	r.ReplaceList([]chat.Summary{{ID: 1}})
	r.Reset()
	assert.Empty(t, r.Summaries())
	assert.Nil(t, r.Active())
	assert.Zero(t, r.ActiveID())
}

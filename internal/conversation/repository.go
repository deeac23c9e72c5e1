// ABOUTME: Repository holds the conversation list and the single active detail
// ABOUTME: Pure in-memory state container; the Engine serialises all access to it

package conversation

import (
	"time"

	"github.com/2389/parley/internal/chat"
)

// SummaryPatch carries the summary fields to overwrite. Nil fields are left untouched.
type SummaryPatch struct {
	Title        *string
	Archived     *bool
	MessageCount *int
	UpdatedAt    *time.Time
	LastMessage  *chat.Preview
}

func (p SummaryPatch) apply(s *chat.Summary) {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Archived != nil {
		s.Archived = *p.Archived
	}
	if p.MessageCount != nil {
		s.MessageCount = *p.MessageCount
	}
	if p.UpdatedAt != nil {
		s.UpdatedAt = *p.UpdatedAt
	}
	if p.LastMessage != nil {
		lm := *p.LastMessage
		s.LastMessage = &lm
	}
}

// Repository is the canonical client-held conversation state: an ordered list
// of summaries and at most one active detail.
//
// Repository performs no I/O and holds no locks. Callers serialise access;
// within this module that is the Engine's mutex. Every accessor returns a deep
// copy so callers can never alias stored state.
type Repository struct {
	list   []chat.Summary
	active *chat.Detail
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{}
}

// Summaries returns the conversation list in display order.
func (r *Repository) Summaries() []chat.Summary {
	out := make([]chat.Summary, len(r.list))
	for i, s := range r.list {
		out[i] = s.Clone()
	}
	return out
}

// Summary returns the summary with the given id.
func (r *Repository) Summary(id int64) (chat.Summary, bool) {
	if i := r.indexOf(id); i >= 0 {
		return r.list[i].Clone(), true
	}
	return chat.Summary{}, false
}

// Active returns the active detail, or nil when no conversation is open.
func (r *Repository) Active() *chat.Detail {
	return r.active.Clone()
}

// ActiveID returns the id of the active detail, or 0 when none is open.
func (r *Repository) ActiveID() int64 {
	if r.active == nil {
		return 0
	}
	return r.active.ID
}

// ReplaceList swaps in a new list wholesale.
func (r *Repository) ReplaceList(list []chat.Summary) {
	r.list = make([]chat.Summary, len(list))
	for i, s := range list {
		r.list[i] = s.Clone()
	}
}

// PrependSummary puts s at the front of the list. An existing entry with the
// same id is removed first so the list never holds duplicates.
func (r *Repository) PrependSummary(s chat.Summary) {
	if i := r.indexOf(s.ID); i >= 0 {
		r.list = append(r.list[:i], r.list[i+1:]...)
	}
	r.list = append([]chat.Summary{s.Clone()}, r.list...)
}

// ReplaceActive swaps the active detail. Nil clears it.
func (r *Repository) ReplaceActive(d *chat.Detail) {
	r.active = d.Clone()
}

// ReconcileActive replaces the active detail with d when both are the same
// conversation. Pending messages of sends still in flight are carried over to
// the end of the new transcript. Reports whether the active detail changed.
func (r *Repository) ReconcileActive(d *chat.Detail) bool {
	if r.active == nil || d == nil || r.active.ID != d.ID {
		return false
	}
	var pending []chat.Message
	for _, m := range r.active.Messages {
		if m.IsPending() {
			pending = append(pending, m)
		}
	}
	r.active = d.Clone()
	r.active.Messages = append(r.active.Messages, pending...)
	return true
}

// PatchSummary applies p to the summary with the given id. Reports whether
// a summary was found.
func (r *Repository) PatchSummary(id int64, p SummaryPatch) bool {
	i := r.indexOf(id)
	if i < 0 {
		return false
	}
	p.apply(&r.list[i])
	return true
}

// PatchActive applies p to the active detail's summary fields when the active
// detail has the given id. Reports whether it did.
func (r *Repository) PatchActive(id int64, p SummaryPatch) bool {
	if r.active == nil || r.active.ID != id {
		return false
	}
	p.apply(&r.active.Summary)
	return true
}

// ReplaceSummary overwrites the summary with the same id in place. Reports
// whether one was found.
func (r *Repository) ReplaceSummary(s chat.Summary) bool {
	i := r.indexOf(s.ID)
	if i < 0 {
		return false
	}
	r.list[i] = s.Clone()
	return true
}

// RemoveSummary deletes the summary with the given id. Reports whether one
// was removed.
func (r *Repository) RemoveSummary(id int64) bool {
	i := r.indexOf(id)
	if i < 0 {
		return false
	}
	r.list = append(r.list[:i], r.list[i+1:]...)
	return true
}

// AppendPending adds a pending message to the end of the active transcript
// when the active detail is conversation m.ConversationID. Reports whether it
// was appended.
func (r *Repository) AppendPending(m chat.Message) bool {
	if !m.IsPending() || r.active == nil || r.active.ID != m.ConversationID {
		return false
	}
	r.active.Messages = append(r.active.Messages, m)
	return true
}

// TakePending removes and returns the pending message with the given local
// id. A pending message can be taken at most once; rollback and
// reconciliation both go through here.
func (r *Repository) TakePending(localID int64) (chat.Message, bool) {
	if r.active == nil {
		return chat.Message{}, false
	}
	for i, m := range r.active.Messages {
		if m.IsPending() && m.LocalID == localID {
			r.active.Messages = append(r.active.Messages[:i], r.active.Messages[i+1:]...)
			return m, true
		}
	}
	return chat.Message{}, false
}

// AppendConfirmed adds confirmed messages to the active transcript when it is
// conversation id, skipping any whose server id is already present.
func (r *Repository) AppendConfirmed(id int64, msgs ...chat.Message) bool {
	if r.active == nil || r.active.ID != id {
		return false
	}
	seen := make(map[int64]bool, len(r.active.Messages))
	for _, m := range r.active.Messages {
		if m.IsConfirmed() {
			seen[m.ID] = true
		}
	}
	for _, m := range msgs {
		if !m.IsConfirmed() || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		r.active.Messages = append(r.active.Messages, m)
	}
	return true
}

// Reset empties the repository.
func (r *Repository) Reset() {
	r.list = nil
	r.active = nil
}

func (r *Repository) indexOf(id int64) int {
	for i := range r.list {
		if r.list[i].ID == id {
			return i
		}
	}
	return -1
}

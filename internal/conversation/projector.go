// ABOUTME: Consistency projector mirrors an authoritative detail into the summary list
// ABOUTME: Pure functions over values; ordering is never changed

package conversation

import (
	"github.com/2389/parley/internal/chat"
)

// Project returns a copy of list in which the summary matching detail has its
// message count, updated-at, last-message preview and (when non-empty) title
// derived from detail. Other summaries and the ordering are untouched. A nil
// detail or an id not in the list yields an unchanged copy.
func Project(list []chat.Summary, detail *chat.Detail) []chat.Summary {
	out := cloneList(list)
	if detail == nil {
		return out
	}
	for i := range out {
		if out[i].ID != detail.ID {
			continue
		}
		DetailPatch(detail).apply(&out[i])
		break
	}
	return out
}

// DetailPatch derives the list-level fields of detail as a SummaryPatch.
func DetailPatch(detail *chat.Detail) SummaryPatch {
	confirmed := detail.ConfirmedMessages()
	count := len(confirmed)

	updated := detail.UpdatedAt
	if updated.IsZero() {
		for _, m := range confirmed {
			if m.CreatedAt.After(updated) {
				updated = m.CreatedAt
			}
		}
	}

	p := SummaryPatch{
		MessageCount: &count,
		UpdatedAt:    &updated,
	}
	if count > 0 {
		p.LastMessage = confirmed[count-1].Preview()
	}
	if detail.Title != "" {
		title := detail.Title
		p.Title = &title
	}
	return p
}

// ProjectExchange applies a confirmed exchange to the summary with the given
// id without a full detail: the count grows by two and the preview and
// timestamp come from the assistant reply. Used when the authoritative
// re-fetch after a send fails.
func ProjectExchange(list []chat.Summary, id int64, resp *chat.SendResponse) []chat.Summary {
	out := cloneList(list)
	if resp == nil {
		return out
	}
	for i := range out {
		if out[i].ID != id {
			continue
		}
		ExchangePatch(out[i], resp).apply(&out[i])
		break
	}
	return out
}

// ExchangePatch derives the patch that ProjectExchange applies to s.
func ExchangePatch(s chat.Summary, resp *chat.SendResponse) SummaryPatch {
	count := s.MessageCount + 2
	updated := resp.AssistantMessage.CreatedAt
	if updated.IsZero() {
		updated = resp.UserMessage.CreatedAt
	}
	p := SummaryPatch{
		MessageCount: &count,
		LastMessage:  resp.AssistantMessage.Preview(),
	}
	if !updated.IsZero() {
		p.UpdatedAt = &updated
	}
	if s.Title == "" {
		title := chat.DeriveTitle(resp.UserMessage.Content)
		p.Title = &title
	}
	return p
}

func cloneList(list []chat.Summary) []chat.Summary {
	if list == nil {
		return nil
	}
	out := make([]chat.Summary, len(list))
	for i, s := range list {
		out[i] = s.Clone()
	}
	return out
}

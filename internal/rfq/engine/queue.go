package engine

import (
	"slices"
	"time"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
)

// queueRank orders the factory work queue: quotes waiting on the factory first.
var queueRank = map[entity.Status]int{
	entity.StatusClientAccepted: 0,
	entity.StatusPending:        1,
	entity.StatusInNegotiation:  2,
	entity.StatusAdminAccepted:  3,
	entity.StatusResponded:      4,
	entity.StatusAccepted:       5,
	entity.StatusDeclined:       6,
	entity.StatusTrashed:        7,
}

// Priority of a status in the queue; lower sorts first.
func Priority(s entity.Status) int {
	if r, ok := queueRank[s]; ok {
		return r
	}
	return len(queueRank)
}

// RelevantTimestamp is the last modification time, else the timestamp that
// matches the status, else submission.
func RelevantTimestamp(q entity.Quote) time.Time {
	if q.ModifiedAt != nil {
		return *q.ModifiedAt
	}
	switch q.Status {
	case entity.StatusAccepted:
		if q.AcceptedAt != nil {
			return *q.AcceptedAt
		}
	case entity.StatusInNegotiation:
		if h := q.Negotiation.History; len(h) > 0 {
			return h[len(h)-1].Timestamp
		}
		if q.Negotiation.CounterAt != nil {
			return *q.Negotiation.CounterAt
		}
	case entity.StatusResponded, entity.StatusDeclined:
		if q.ResponseSummary != nil && q.ResponseSummary.RespondedAt != nil {
			return *q.ResponseSummary.RespondedAt
		}
	}
	return q.SubmittedAt
}

// SortQueue returns the quotes ordered by priority, then newest first.
// Ties keep input order.
func SortQueue(quotes []entity.Quote) []entity.Quote {
	out := slices.Clone(quotes)
	slices.SortStableFunc(out, func(a, b entity.Quote) int {
		if pa, pb := Priority(a.Status), Priority(b.Status); pa != pb {
			return pa - pb
		}
		return RelevantTimestamp(b).Compare(RelevantTimestamp(a))
	})
	return out
}

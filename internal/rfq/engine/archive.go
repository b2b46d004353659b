package engine

import (
	"time"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
)

// Archive separates the soft-delete state from the negotiation status so that
// trash/restore never goes through the approval transitions.
type Archive struct {
	Status    entity.Status
	RestoreTo *entity.Status
}

// ArchiveOf reads the archive wrapper of a quote.
func ArchiveOf(q entity.Quote) Archive {
	return Archive{Status: q.Status, RestoreTo: q.Negotiation.PreviousStatus}
}

// Trashed reports whether the quote is archived.
func (a Archive) Trashed() bool {
	return a.Status == entity.StatusTrashed
}

// Target is the status a restore lands on.
func (a Archive) Target(q entity.Quote) entity.Status {
	if a.RestoreTo != nil && a.RestoreTo.Valid() && *a.RestoreTo != entity.StatusTrashed {
		return *a.RestoreTo
	}
	switch {
	case len(q.Negotiation.History) > 0:
		return entity.StatusInNegotiation
	case q.ResponseSummary != nil:
		return entity.StatusResponded
	default:
		return entity.StatusPending
	}
}

// Trash soft-deletes the quote and remembers the status it held. Accepted
// quotes have a downstream order and stay out of the trash.
func Trash(q entity.Quote, now time.Time) (Result, error) {
	if q.Status == entity.StatusTrashed || q.Status == entity.StatusAccepted {
		return Result{}, invalid("移入回收站", q.Status)
	}
	next := q.Clone()
	prev := q.Status
	next.Negotiation.PreviousStatus = &prev
	next.Status = entity.StatusTrashed
	next.ModifiedAt = &now
	return Result{Quote: next, From: q.Status}, nil
}

// Restore brings a trashed quote back and clears the remembered status.
func Restore(q entity.Quote, now time.Time) (Result, error) {
	archive := ArchiveOf(q)
	if !archive.Trashed() {
		return Result{}, invalid("恢复", q.Status)
	}
	next := q.Clone()
	next.Status = archive.Target(q)
	next.Negotiation.PreviousStatus = nil
	next.ModifiedAt = &now
	return Result{Quote: next, From: q.Status}, nil
}

package engine

import (
	"testing"
	"time"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"github.com/stretchr/testify/assert"
)

func TestPriority(t *testing.T) {
	assert.Equal(t, 0, Priority(entity.StatusClientAccepted))
	assert.Equal(t, 7, Priority(entity.StatusTrashed))
	assert.Equal(t, 8, Priority(entity.Status("archived")))
}

func TestSortQueue(t *testing.T) {
	at := func(id string, s entity.Status, d time.Duration) entity.Quote {
		q := newQuote(s, 1)
		q.ID = id
		m := t0.Add(d)
		q.ModifiedAt = &m
		return q
	}
	quotes := []entity.Quote{
		at("trashed", entity.StatusTrashed, 9*time.Hour),
		at("pending-old", entity.StatusPending, time.Hour),
		at("unknown", entity.Status("legacy"), 10*time.Hour),
		at("client-accepted", entity.StatusClientAccepted, 0),
		at("pending-new", entity.StatusPending, 2*time.Hour),
		at("responded", entity.StatusResponded, 5*time.Hour),
	}

	var got []string
	for _, q := range SortQueue(quotes) {
		got = append(got, q.ID)
	}
	assert.Equal(t, []string{"client-accepted", "pending-new", "pending-old", "responded", "trashed", "unknown"}, got)
	assert.Equal(t, "trashed", quotes[0].ID)
}

func TestRelevantTimestamp(t *testing.T) {
	q := newQuote(entity.StatusAccepted, 1)
	assert.Equal(t, t0, RelevantTimestamp(q))

	accepted := t0.Add(time.Hour)
	q.AcceptedAt = &accepted
	assert.Equal(t, accepted, RelevantTimestamp(q))

	modified := t0.Add(2 * time.Hour)
	q.ModifiedAt = &modified
	assert.Equal(t, modified, RelevantTimestamp(q))
}

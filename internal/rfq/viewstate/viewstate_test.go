package viewstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/engine"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type event struct {
	typ     string
	payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event
}

func (p *recordingPublisher) Publish(eventType string, payload any) {
	p.mu.Lock()
	p.events = append(p.events, event{eventType, payload})
	p.mu.Unlock()
}

type toast struct {
	message  string
	severity notify.Severity
}

type recordingNotifier struct {
	mu     sync.Mutex
	toasts []toast
}

func (n *recordingNotifier) Notify(_ context.Context, message string, severity notify.Severity) {
	n.mu.Lock()
	n.toasts = append(n.toasts, toast{message, severity})
	n.mu.Unlock()
}

func (n *recordingNotifier) all() []toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]toast(nil), n.toasts...)
}

func quote(id string, status entity.Status) entity.Quote {
	return entity.Quote{
		ID:          id,
		Code:        "RFQ-2026-" + id,
		Status:      status,
		LineItems:   []entity.LineItem{{ID: 1, Category: "tee", Qty: 100}},
		SubmittedAt: now,
	}
}

func TestStore(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewStore(pub)
	s.ReplaceList([]entity.Quote{quote("a", entity.StatusPending), quote("b", entity.StatusResponded)})
	s.Upsert(quote("c", entity.StatusDeclined))
	s.Upsert(quote("a", entity.StatusTrashed))

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, entity.StatusTrashed, list[0].Status)

	assert.True(t, s.Remove("b"))
	assert.False(t, s.Remove("b"))
	assert.Equal(t, 2, s.Len())

	got, ok := s.Get("c")
	require.True(t, ok)
	got.LineItems[0].Qty = 1
	again, _ := s.Get("c")
	assert.Equal(t, 100, again.LineItems[0].Qty, "Get must hand out copies")

	require.Len(t, pub.events, 4)
	assert.Equal(t, RemovedPayload{ID: "b"}, pub.events[3].payload)
}

func TestApply_RollbackOnFailure(t *testing.T) {
	s := NewStore(nil)
	n := &recordingNotifier{}
	m := NewMutator(s, n, 2, nil)
	s.Upsert(quote("q1", entity.StatusResponded))

	next := quote("q1", entity.StatusDeclined)
	var seen entity.Status
	_, err := m.Apply(context.Background(), Mutation{
		ID:   "q1",
		Next: next,
		Write: func(ctx context.Context) (*entity.Quote, error) {
			cur, _ := s.Get("q1")
			seen = cur.Status
			return nil, fmt.Errorf("patch quote: %w", entity.ErrPermissionDenied)
		},
	})
	require.ErrorIs(t, err, entity.ErrPermissionDenied)
	assert.Equal(t, entity.StatusDeclined, seen, "change must be visible while writing")

	cur, _ := s.Get("q1")
	assert.Equal(t, entity.StatusResponded, cur.Status)
	require.Len(t, n.all(), 1)
	assert.Equal(t, notify.SeverityError, n.all()[0].severity)
	assert.Equal(t, Describe(entity.ErrPermissionDenied), n.all()[0].message)
}

func TestApply_CancelledIsSilent(t *testing.T) {
	s := NewStore(nil)
	n := &recordingNotifier{}
	m := NewMutator(s, n, 2, nil)

	_, err := m.Apply(context.Background(), Mutation{
		ID:    "q1",
		Next:  quote("q1", entity.StatusPending),
		Write: func(ctx context.Context) (*entity.Quote, error) { return nil, entity.ErrCancelled },
	})
	require.Error(t, err)
	assert.Empty(t, n.all())
	_, ok := s.Get("q1")
	assert.False(t, ok, "a quote that was not in view is removed again")
}

func TestApply_StoredResultWins(t *testing.T) {
	s := NewStore(nil)
	m := NewMutator(s, nil, 2, nil)
	s.Upsert(quote("q1", entity.StatusPending))

	stored := quote("q1", entity.StatusResponded)
	stored.Code = "RFQ-2026-STORED"
	got, err := m.Apply(context.Background(), Mutation{
		ID:    "q1",
		Next:  quote("q1", entity.StatusResponded),
		Write: func(ctx context.Context) (*entity.Quote, error) { return &stored, nil },
	})
	require.NoError(t, err)
	assert.Equal(t, "RFQ-2026-STORED", got.Code)
	cur, _ := s.Get("q1")
	assert.Equal(t, "RFQ-2026-STORED", cur.Code)
}

func TestApply_FireAndForget(t *testing.T) {
	s := NewStore(nil)
	n := &recordingNotifier{}
	m := NewMutator(s, n, 2, nil)
	s.Upsert(quote("q1", entity.StatusResponded))

	next := quote("q1", entity.StatusResponded)
	next.Hidden = true
	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	got, err := m.Apply(ctx, Mutation{
		ID:     "q1",
		Next:   next,
		Policy: FireAndForget,
		Write: func(ctx context.Context) (*entity.Quote, error) {
			<-release
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, entity.ErrNetwork
		},
	})
	require.NoError(t, err)
	assert.True(t, got.Hidden)

	cancel()
	close(release)
	m.Wait()

	cur, _ := s.Get("q1")
	assert.True(t, cur.Hidden, "local change is kept on failure")
	require.Len(t, n.all(), 1)
	assert.Equal(t, notify.SeverityWarning, n.all()[0].severity)
	assert.Equal(t, entity.ErrNetwork.Error(), n.all()[0].message, "background write outlives the request")
}

// Bulk restore over five ids where two writes fail.
func TestBulk_PartialFailure(t *testing.T) {
	s := NewStore(nil)
	n := &recordingNotifier{}
	m := NewMutator(s, n, 3, nil)

	var ids []string
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("q%d", i)
		ids = append(ids, id)
		q := quote(id, entity.StatusResponded)
		res, err := engine.Trash(q, now)
		require.NoError(t, err)
		s.Upsert(res.Quote)
	}
	failing := map[string]bool{"q2": true, "q4": true}

	res, err := m.Bulk(context.Background(), "restore", append(ids, "q1"), func(ctx context.Context, id string) (Mutation, error) {
		cur, _ := s.Get(id)
		r, err := engine.Restore(cur, now)
		if err != nil {
			return Mutation{}, err
		}
		return Mutation{
			Next: r.Quote,
			Write: func(ctx context.Context) (*entity.Quote, error) {
				if failing[id] {
					return nil, errors.New("connection reset")
				}
				q := r.Quote
				return &q, nil
			},
		}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	assert.ElementsMatch(t, []string{"q2", "q4"}, res.FailedIDs)

	for _, id := range ids {
		cur, _ := s.Get(id)
		if failing[id] {
			assert.Equal(t, entity.StatusTrashed, cur.Status, id)
		} else {
			assert.Equal(t, entity.StatusResponded, cur.Status, id)
			assert.Nil(t, cur.Negotiation.PreviousStatus, id)
		}
	}
	require.Len(t, n.all(), 1)
	assert.Equal(t, notify.SeverityWarning, n.all()[0].severity)
	assert.Equal(t, "restore: 成功 3 个，失败 2 个", n.all()[0].message)
}

func TestBulk_EmptySelection(t *testing.T) {
	m := NewMutator(NewStore(nil), nil, 2, nil)
	_, err := m.Bulk(context.Background(), "hide", []string{"", ""}, func(context.Context, string) (Mutation, error) {
		t.Fatal("build must not be called")
		return Mutation{}, nil
	})
	assert.ErrorIs(t, err, entity.ErrEmptySelection)
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestBulk_BuildErrorCountsAsFailure(t *testing.T) {
	n := &recordingNotifier{}
	m := NewMutator(NewStore(nil), n, 2, nil)
	res, err := m.Bulk(context.Background(), "trash", []string{"x"}, func(context.Context, string) (Mutation, error) {
		return Mutation{}, entity.ErrNotFound
	})
	require.NoError(t, err)
	assert.Equal(t, BulkResult{Failed: 1, FailedIDs: []string{"x"}}, res)
	assert.Equal(t, notify.SeverityError, n.all()[0].severity)
	assert.Contains(t, n.all()[0].message, Describe(entity.ErrNotFound))
}

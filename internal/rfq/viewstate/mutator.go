package viewstate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/notify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Policy decides what happens to an optimistic change when its write fails.
type Policy int

const (
	// RollbackOnFailure restores the previous view state. Used for every
	// status transition.
	RollbackOnFailure Policy = iota
	// FireAndForget keeps the local change and writes in the background.
	// Used for visibility flags.
	FireAndForget
)

func (p Policy) String() string {
	if p == FireAndForget {
		return "fire_and_forget"
	}
	return "rollback_on_failure"
}

// Mutation is one optimistic change to one quote.
type Mutation struct {
	ID string
	// Next is shown immediately. Ignored when Remove is set.
	Next   entity.Quote
	Remove bool
	Policy Policy
	// Write performs the remote change and returns the stored quote, or nil
	// when nothing is left to show.
	Write func(ctx context.Context) (*entity.Quote, error)
}

// BulkResult counts the outcome of a fan-out.
type BulkResult struct {
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	FailedIDs []string `json:"failed_ids"`
}

// Mutator applies mutations to the store and reports failures to the
// notifier. Cancelled writes roll back silently.
type Mutator struct {
	store       *Store
	notifier    notify.Notifier
	logger      *zap.Logger
	concurrency int

	bg sync.WaitGroup
}

func NewMutator(store *Store, notifier notify.Notifier, concurrency int, logger *zap.Logger) *Mutator {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = 4
	}
	return &Mutator{store: store, notifier: notifier, logger: logger, concurrency: concurrency}
}

// Apply shows the change locally, then writes it. With RollbackOnFailure the
// returned quote is the stored one; with FireAndForget it is the local one and
// the error is always nil.
func (m *Mutator) Apply(ctx context.Context, mut Mutation) (*entity.Quote, error) {
	if mut.Policy == FireAndForget {
		m.showLocal(mut)
		m.bg.Add(1)
		go func() {
			defer m.bg.Done()
			bgctx := context.WithoutCancel(ctx)
			if _, err := m.write(bgctx, mut); err != nil {
				m.logger.Warn("background write failed",
					zap.String("quote_id", mut.ID), zap.Error(err))
				m.notifier.Notify(bgctx, Describe(err), notify.SeverityWarning)
			}
		}()
		if mut.Remove {
			return nil, nil
		}
		local := mut.Next.Clone()
		return &local, nil
	}

	stored, err := m.applySync(ctx, mut)
	if err != nil {
		if !entity.IsCancelled(err) {
			m.notifier.Notify(ctx, Describe(err), notify.SeverityError)
		}
		return nil, err
	}
	return stored, nil
}

// Wait blocks until background writes have finished.
func (m *Mutator) Wait() {
	m.bg.Wait()
}

// applySync runs a rollback-on-failure mutation without notifying.
func (m *Mutator) applySync(ctx context.Context, mut Mutation) (*entity.Quote, error) {
	prev, had := m.store.Get(mut.ID)
	m.showLocal(mut)

	stored, err := m.write(ctx, mut)
	if err != nil {
		if had {
			m.store.Upsert(prev)
		} else {
			m.store.Remove(mut.ID)
		}
		m.logger.Debug("optimistic change rolled back",
			zap.String("quote_id", mut.ID), zap.Error(err))
		return nil, err
	}
	return stored, nil
}

func (m *Mutator) showLocal(mut Mutation) {
	if mut.Remove {
		m.store.Remove(mut.ID)
		return
	}
	m.store.Upsert(mut.Next)
}

func (m *Mutator) write(ctx context.Context, mut Mutation) (*entity.Quote, error) {
	stored, err := mut.Write(ctx)
	if err != nil {
		return nil, err
	}
	if stored != nil && !mut.Remove {
		m.store.Upsert(*stored)
	}
	return stored, nil
}

// Bulk builds and applies one mutation per distinct id concurrently, waits
// for all of them and reports the counts. Failed items are always rolled back
// so only succeeded ids change in the view. A build error counts as a failure
// of that id.
func (m *Mutator) Bulk(ctx context.Context, action string, ids []string, build func(ctx context.Context, id string) (Mutation, error)) (BulkResult, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return BulkResult{}, entity.ErrEmptySelection
	}

	errs := make([]error, len(ids))
	g := new(errgroup.Group)
	g.SetLimit(m.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			mut, err := build(ctx, id)
			if err == nil {
				mut.ID = id
				mut.Policy = RollbackOnFailure
				_, err = m.applySync(ctx, mut)
			}
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	var res BulkResult
	var firstErr error
	for i, err := range errs {
		if err == nil {
			res.Succeeded++
			continue
		}
		res.Failed++
		res.FailedIDs = append(res.FailedIDs, ids[i])
		if firstErr == nil {
			firstErr = err
		}
		m.logger.Warn("bulk item failed",
			zap.String("action", action), zap.String("quote_id", ids[i]), zap.Error(err))
	}

	switch {
	case res.Failed == 0:
		m.notifier.Notify(ctx, fmt.Sprintf("%s: 已更新 %d 个询价单", action, res.Succeeded), notify.SeveritySuccess)
	case res.Succeeded == 0:
		m.notifier.Notify(ctx, fmt.Sprintf("%s: %d 个询价单全部失败，%s", action, res.Failed, Describe(firstErr)), notify.SeverityError)
	default:
		m.notifier.Notify(ctx, fmt.Sprintf("%s: 成功 %d 个，失败 %d 个", action, res.Succeeded, res.Failed), notify.SeverityWarning)
	}
	return res, nil
}

// Describe turns an error into the message shown to the operator.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, entity.ErrPermissionDenied):
		return "无权修改该询价单"
	case errors.Is(err, entity.ErrRetriesExhausted):
		return "服务器无响应，请稍后重试"
	case errors.Is(err, entity.ErrNotFound):
		return "询价单已不存在"
	case errors.Is(err, entity.ErrStaleWrite):
		return "询价单已被他人修改，请刷新后重试"
	default:
		return err.Error()
	}
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

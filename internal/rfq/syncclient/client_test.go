package syncclient

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bitfantasy/nimo-rfq/internal/clock"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/repository"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSink struct {
	mu      sync.Mutex
	list    []entity.Quote
	upserts []string
}

func (s *recordingSink) ReplaceList(quotes []entity.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = quotes
}

func (s *recordingSink) Upsert(q entity.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, q.ID)
}

// scriptedSource answers List call n with results[n] once release[n] is closed.
type scriptedSource struct {
	mu      sync.Mutex
	calls   int
	started chan int
	release []chan struct{}
	results [][]entity.Quote
}

func (s *scriptedSource) List(_ context.Context, _ repository.QuoteFilter, _ repository.QuoteSort) ([]entity.Quote, error) {
	s.mu.Lock()
	n := s.calls
	s.calls++
	s.mu.Unlock()
	s.started <- n
	<-s.release[n]
	return s.results[n], nil
}

func (s *scriptedSource) Get(_ context.Context, id string) (*entity.Quote, error) {
	return &entity.Quote{ID: id}, nil
}

type fakeSigner struct {
	calls atomic.Int32
	fail  map[string]bool
}

func (f *fakeSigner) CreateSignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	f.calls.Add(1)
	if f.fail[path] {
		return "", entity.ErrNetwork
	}
	return "https://files.example.com/" + path + "?ttl=" + ttl.String(), nil
}

func testOptions() Options {
	return Options{
		ListTimeout:   time.Second,
		DetailTimeout: time.Second,
		LinkTimeout:   time.Second,
		MaxAttempts:   3,
		BackoffStep:   time.Millisecond,
		SignedURLTTL:  time.Hour,
		Concurrency:   2,
	}
}

func TestFetchList_StaleResponseNeverWins(t *testing.T) {
	src := &scriptedSource{
		started: make(chan int, 2),
		release: []chan struct{}{make(chan struct{}), make(chan struct{})},
		results: [][]entity.Quote{{{ID: "stale"}}, {{ID: "fresh"}}},
	}
	sink := &recordingSink{}
	c := NewClient(src, &fakeSigner{}, sink, NewMemoryLinkCache(time.Minute, nil), testOptions(), nil)
	ctx := context.Background()

	var err1 error
	done1 := make(chan struct{})
	go func() {
		_, err1 = c.FetchList(ctx, repository.QuoteFilter{}, repository.QuoteSort{})
		close(done1)
	}()
	require.Equal(t, 0, <-src.started)

	var got2 []entity.Quote
	var err2 error
	done2 := make(chan struct{})
	go func() {
		got2, err2 = c.FetchList(ctx, repository.QuoteFilter{}, repository.QuoteSort{})
		close(done2)
	}()
	require.Equal(t, 1, <-src.started)

	close(src.release[1])
	<-done2
	close(src.release[0])
	<-done1

	require.NoError(t, err2)
	assert.Equal(t, "fresh", got2[0].ID)
	assert.ErrorIs(t, err1, entity.ErrCancelled)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.list, 1)
	assert.Equal(t, "fresh", sink.list[0].ID)
}

func TestFetchList_SessionsDoNotSupersede(t *testing.T) {
	src := &scriptedSource{
		started: make(chan int, 2),
		release: []chan struct{}{make(chan struct{}), make(chan struct{})},
		results: [][]entity.Quote{{{ID: "a"}}, {{ID: "b"}}},
	}
	c := NewClient(src, &fakeSigner{}, &recordingSink{}, NewMemoryLinkCache(time.Minute, nil), testOptions(), nil)

	errs := make(chan error, 2)
	go func() {
		_, err := c.FetchList(WithSession(context.Background(), "alice"), repository.QuoteFilter{}, repository.QuoteSort{})
		errs <- err
	}()
	<-src.started
	go func() {
		_, err := c.FetchList(WithSession(context.Background(), "bob"), repository.QuoteFilter{}, repository.QuoteSort{})
		errs <- err
	}()
	<-src.started
	close(src.release[0])
	close(src.release[1])
	assert.NoError(t, <-errs)
	assert.NoError(t, <-errs)
}

func TestFetchDetail_UpsertsView(t *testing.T) {
	sink := &recordingSink{}
	c := NewClient(&scriptedSource{}, &fakeSigner{}, sink, NewMemoryLinkCache(time.Minute, nil), testOptions(), nil)

	q, err := c.FetchDetail(context.Background(), "q-7")
	require.NoError(t, err)
	assert.Equal(t, "q-7", q.ID)
	assert.Equal(t, []string{"q-7"}, sink.upserts)
}

// flakySource fails Get with errs in order, then succeeds.
type flakySource struct {
	scriptedSource
	mu   sync.Mutex
	errs []error
}

func (s *flakySource) Get(_ context.Context, id string) (*entity.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return &entity.Quote{ID: id}, nil
}

func TestLoad_RetryLogMarksTransientFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	src := &flakySource{errs: []error{entity.ErrNetwork, entity.ErrNotFound}}
	c := NewClient(src, &fakeSigner{}, &recordingSink{}, NewMemoryLinkCache(time.Minute, nil), testOptions(), zap.New(core))

	q, err := c.Load(context.Background(), "q-3")
	require.NoError(t, err)
	assert.Equal(t, "q-3", q.ID)

	entries := logs.FilterMessage("remote call failed, retrying").All()
	require.Len(t, entries, 2)
	assert.Equal(t, true, entries[0].ContextMap()["transient"])
	assert.Equal(t, false, entries[1].ContextMap()["transient"])
}

func TestFetchSignedLinks_CachesAndGuardsEmpty(t *testing.T) {
	signer := &fakeSigner{}
	cache := NewMemoryLinkCache(50*time.Minute, nil)
	c := NewClient(&scriptedSource{}, signer, &recordingSink{}, cache, testOptions(), nil)
	ctx := context.Background()
	paths := []string{"q-1/techpack.pdf", "q-1/sketch.png"}

	links, err := c.FetchSignedLinks(ctx, "q-1", paths)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "techpack.pdf", links[0].Name)
	assert.Contains(t, links[1].URL, "q-1/sketch.png")
	assert.EqualValues(t, 2, signer.calls.Load())

	_, err = c.FetchSignedLinks(ctx, "q-1", paths)
	require.NoError(t, err)
	assert.EqualValues(t, 2, signer.calls.Load(), "second call must be served from cache")

	// A cached empty result is ignored once the quote has files.
	cache.Set(ctx, "q-2", []Link{})
	links, err = c.FetchSignedLinks(ctx, "q-2", []string{"q-2/a.pdf"})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.NotEmpty(t, links[0].URL)
	assert.EqualValues(t, 3, signer.calls.Load())

	links, err = c.FetchSignedLinks(ctx, "q-3", nil)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestFetchSignedLinks_Placeholders(t *testing.T) {
	signer := &fakeSigner{fail: map[string]bool{"q-1/broken.pdf": true}}
	c := NewClient(&scriptedSource{}, signer, &recordingSink{}, NewMemoryLinkCache(50*time.Minute, nil), testOptions(), nil)
	ctx := context.Background()

	links, err := c.FetchSignedLinks(ctx, "q-1", []string{"q-1/ok.pdf", "q-1/broken.pdf"})
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.NotEmpty(t, links[0].URL)
	assert.Empty(t, links[0].Error)
	assert.Empty(t, links[1].URL)
	assert.Equal(t, linkUnavailable, links[1].Error)
	assert.EqualValues(t, 4, signer.calls.Load(), "one call for the good file, three for the broken one")

	// Degraded results are not cached.
	_, err = c.FetchSignedLinks(ctx, "q-1", []string{"q-1/ok.pdf", "q-1/broken.pdf"})
	require.NoError(t, err)
	assert.EqualValues(t, 8, signer.calls.Load())
}

func TestMemoryLinkCache_TTLBoundary(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	cache := NewMemoryLinkCache(50*time.Minute, clk)
	ctx := context.Background()
	cache.Set(ctx, "q-1", []Link{{Name: "a", Path: "q-1/a", URL: "u"}})

	clk.Advance(49 * time.Minute)
	_, ok := cache.Get(ctx, "q-1")
	assert.True(t, ok, "honored at t+49m")

	clk.Advance(2 * time.Minute)
	_, ok = cache.Get(ctx, "q-1")
	assert.False(t, ok, "expired at t+51m")
}

func TestRedisLinkCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	cache := NewRedisLinkCache(rdb, 50*time.Minute)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "q-1")
	assert.False(t, ok)

	cache.Set(ctx, "q-1", []Link{{Name: "a.pdf", Path: "q-1/a.pdf", URL: "https://x"}})
	mr.FastForward(49 * time.Minute)
	links, ok := cache.Get(ctx, "q-1")
	require.True(t, ok)
	assert.Equal(t, "https://x", links[0].URL)

	mr.FastForward(2 * time.Minute)
	_, ok = cache.Get(ctx, "q-1")
	assert.False(t, ok)

	cache.Set(ctx, "q-2", []Link{{Name: "b"}})
	cache.Invalidate(ctx, "q-2")
	_, ok = cache.Get(ctx, "q-2")
	assert.False(t, ok)

}

package syncclient

import (
	"context"
	"fmt"
	"path"
	"slices"
	"time"

	"github.com/bitfantasy/nimo-rfq/internal/config"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// linkUnavailable marks a placeholder link whose signing failed.
const linkUnavailable = "link unavailable"

// QuoteSource is the remote quote store as seen by the sync client.
type QuoteSource interface {
	List(ctx context.Context, filter repository.QuoteFilter, sort repository.QuoteSort) ([]entity.Quote, error)
	Get(ctx context.Context, id string) (*entity.Quote, error)
}

// Signer creates time-limited download URLs for stored files.
type Signer interface {
	CreateSignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// ViewSink receives committed fetch results.
type ViewSink interface {
	ReplaceList(quotes []entity.Quote)
	Upsert(q entity.Quote)
}

// Options 同步参数
type Options struct {
	ListTimeout   time.Duration
	DetailTimeout time.Duration
	LinkTimeout   time.Duration
	MaxAttempts   int
	BackoffStep   time.Duration
	SignedURLTTL  time.Duration
	// Concurrency bounds parallel link signing.
	Concurrency int
}

// OptionsFrom maps the sync config section.
func OptionsFrom(cfg config.SyncConfig) Options {
	return Options{
		ListTimeout:   cfg.ListTimeout,
		DetailTimeout: cfg.DetailTimeout,
		LinkTimeout:   cfg.LinkTimeout,
		MaxAttempts:   cfg.MaxAttempts,
		BackoffStep:   cfg.BackoffStep,
		SignedURLTTL:  cfg.SignedURLTTL,
		Concurrency:   cfg.BulkConcurrency,
	}
}

// Client fetches quotes and signed links for the view store. Per session
// (see WithSession) each kind of fetch has at most one authoritative request
// in flight; an older request is cancelled and its result dropped.
type Client struct {
	source QuoteSource
	signer Signer
	sink   ViewSink
	cache  LinkCache
	opts   Options
	logger *zap.Logger

	list   Classes
	detail Classes
	links  Classes
}

func NewClient(source QuoteSource, signer Signer, sink ViewSink, cache LinkCache, opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	return &Client{
		source: source,
		signer: signer,
		sink:   sink,
		cache:  cache,
		opts:   opts,
		logger: logger,
	}
}

func (c *Client) policy(op string, timeout time.Duration) Policy {
	return Policy{
		MaxAttempts: c.opts.MaxAttempts,
		BackoffStep: c.opts.BackoffStep,
		Timeout:     timeout,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			c.logger.Warn("remote call failed, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				// false when the store itself answered, e.g. not found
				zap.Bool("transient", entity.IsTransient(err)),
				zap.Error(err))
		},
	}
}

// FetchList loads the quote list and replaces the view with it.
func (c *Client) FetchList(ctx context.Context, filter repository.QuoteFilter, sort repository.QuoteSort) ([]entity.Quote, error) {
	sup := c.list.For(sessionOf(ctx))
	ctx, tok := sup.Begin(ctx)
	defer sup.End(tok)

	quotes, err := Retry(ctx, c.policy("list", c.opts.ListTimeout), func(ctx context.Context) ([]entity.Quote, error) {
		return c.source.List(ctx, filter, sort)
	})
	if err != nil {
		return nil, fmt.Errorf("获取询价单列表失败: %w", err)
	}
	if !sup.Commit(tok, func() { c.sink.ReplaceList(quotes) }) {
		return nil, fmt.Errorf("获取询价单列表失败: %w", entity.ErrCancelled)
	}
	return quotes, nil
}

// FetchDetail loads one quote and patches it into the view.
func (c *Client) FetchDetail(ctx context.Context, id string) (*entity.Quote, error) {
	sup := c.detail.For(sessionOf(ctx))
	ctx, tok := sup.Begin(ctx)
	defer sup.End(tok)

	q, err := Retry(ctx, c.policy("detail", c.opts.DetailTimeout), func(ctx context.Context) (*entity.Quote, error) {
		return c.source.Get(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("获取询价单 %s 失败: %w", id, err)
	}
	if !sup.Commit(tok, func() { c.sink.Upsert(*q) }) {
		return nil, fmt.Errorf("获取询价单 %s 失败: %w", id, entity.ErrCancelled)
	}
	return q, nil
}

// Load reads one quote with the detail retry policy without touching the
// detail superseding class or the view. Writers use it to get a fresh base.
func (c *Client) Load(ctx context.Context, id string) (*entity.Quote, error) {
	q, err := Retry(ctx, c.policy("load", c.opts.DetailTimeout), func(ctx context.Context) (*entity.Quote, error) {
		return c.source.Get(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("加载询价单 %s 失败: %w", id, err)
	}
	return q, nil
}

// FetchSignedLinks resolves download links for a quote's files. Files whose
// link cannot be signed come back as placeholders with Error set; the call
// itself fails only when superseded or cancelled.
func (c *Client) FetchSignedLinks(ctx context.Context, quoteID string, paths []string) ([]Link, error) {
	if len(paths) == 0 {
		return []Link{}, nil
	}
	sup := c.links.For(sessionOf(ctx))
	ctx, tok := sup.Begin(ctx)
	defer sup.End(tok)

	// An empty entry may be a transient result cached before files existed.
	if cached, ok := c.cache.Get(ctx, quoteID); ok && len(cached) > 0 && coversPaths(cached, paths) {
		return cached, nil
	}

	links := make([]Link, len(paths))
	g := new(errgroup.Group)
	g.SetLimit(c.opts.Concurrency)
	for i, p := range paths {
		g.Go(func() error {
			links[i] = Link{Name: path.Base(p), Path: p}
			url, err := Retry(ctx, c.policy("sign", c.opts.LinkTimeout), func(ctx context.Context) (string, error) {
				return c.signer.CreateSignedURL(ctx, p, c.opts.SignedURLTTL)
			})
			if err != nil {
				if entity.IsCancelled(err) {
					return err
				}
				c.logger.Warn("signed link unavailable", zap.String("quote_id", quoteID), zap.String("path", p), zap.Error(err))
				links[i].Error = linkUnavailable
				return nil
			}
			links[i].URL = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("签发询价单 %s 下载链接失败: %w", quoteID, err)
	}

	degraded := slices.ContainsFunc(links, func(l Link) bool { return l.Error != "" })
	committed := sup.Commit(tok, func() {
		// Placeholders are not cached so the next request tries again.
		if !degraded {
			c.cache.Set(ctx, quoteID, links)
		}
	})
	if !committed {
		return nil, fmt.Errorf("签发询价单 %s 下载链接失败: %w", quoteID, entity.ErrCancelled)
	}
	return links, nil
}

// InvalidateLinks drops cached links, e.g. after a new attachment lands.
func (c *Client) InvalidateLinks(ctx context.Context, quoteID string) {
	c.cache.Invalidate(ctx, quoteID)
}

func coversPaths(links []Link, paths []string) bool {
	for _, p := range paths {
		if !slices.ContainsFunc(links, func(l Link) bool { return l.Path == p }) {
			return false
		}
	}
	return true
}

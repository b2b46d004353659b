package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bitfantasy/nimo-rfq/internal/clock"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/engine"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/notify"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/repository"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/syncclient"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/viewstate"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 操作类型（写入操作日志）
const (
	ActionCreate   = "create"
	ActionResponse = "response"
	ActionDecline  = "decline"
	ActionTrash    = "trash"
	ActionRestore  = "restore"
	ActionApproval = "approval"
	ActionAccept   = "accept"
	ActionMessage  = "message"
	ActionHide     = "hide"
	ActionUnhide   = "unhide"
	ActionDelete   = "delete"
	ActionFiles    = "files"
	ActionSample   = "sample"
)

// NegotiationService drives quote transitions: the engine computes the next
// state, the mutator shows and writes it, and side effects run once the write
// has committed.
type NegotiationService struct {
	quotes   QuoteStore
	logs     ActivityLogger
	sync     *syncclient.Client
	store    *viewstate.Store
	mutator  *viewstate.Mutator
	orders   OrderCreator
	notifier notify.Notifier
	clock    clock.Clock
	logger   *zap.Logger
}

func NewNegotiationService(
	quotes QuoteStore,
	logs ActivityLogger,
	sync *syncclient.Client,
	store *viewstate.Store,
	mutator *viewstate.Mutator,
	orders OrderCreator,
	notifier notify.Notifier,
	clk clock.Clock,
	logger *zap.Logger,
) *NegotiationService {
	return &NegotiationService{
		quotes:   quotes,
		logs:     logs,
		sync:     sync,
		store:    store,
		mutator:  mutator,
		orders:   orders,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
	}
}

// ========== 读取 ==========

func (s *NegotiationService) List(ctx context.Context, filter repository.QuoteFilter, sort repository.QuoteSort) ([]entity.Quote, error) {
	return s.sync.FetchList(ctx, filter, sort)
}

func (s *NegotiationService) Get(ctx context.Context, id string) (*entity.Quote, error) {
	return s.sync.FetchDetail(ctx, id)
}

// Timeline returns the paired history rows, newest first. lineItemID narrows
// it to one line item.
func (s *NegotiationService) Timeline(ctx context.Context, id string, lineItemID *int) ([]engine.Row, error) {
	q, err := s.sync.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if lineItemID != nil {
		if _, ok := q.FindLineItem(*lineItemID); !ok {
			return nil, fmt.Errorf("%w: %d", entity.ErrUnknownLineItem, *lineItemID)
		}
	}
	return engine.Timeline(*q, lineItemID), nil
}

// AgreedPrice 行项议价结果
type AgreedPrice struct {
	LineItemID  int              `json:"line_item_id"`
	Price       decimal.Decimal  `json:"price"`
	LatestOffer *decimal.Decimal `json:"latest_offer,omitempty"`
	// Last price each side put forward for the item.
	FactoryProposed *decimal.Decimal `json:"factory_proposed,omitempty"`
	ClientProposed  *decimal.Decimal `json:"client_proposed,omitempty"`
	AdminOK     bool             `json:"admin_approved"`
	ClientOK    bool             `json:"client_approved"`
	Agreed      bool             `json:"agreed"`
}

func (s *NegotiationService) AgreedPrice(ctx context.Context, id string, lineItemID int) (*AgreedPrice, error) {
	q, err := s.sync.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, ok := q.FindLineItem(lineItemID); !ok {
		return nil, fmt.Errorf("%w: %d", entity.ErrUnknownLineItem, lineItemID)
	}
	l := engine.NewLedger(q)
	out := &AgreedPrice{
		LineItemID: lineItemID,
		Price:      l.ResolveAgreedPrice(lineItemID),
		AdminOK:    l.IsApproved(lineItemID, entity.PartyAdmin),
		ClientOK:   l.IsApproved(lineItemID, entity.PartyClient),
		Agreed:     l.IsAgreed(lineItemID),
	}
	if latest, ok := l.LatestOfferPrice(lineItemID); ok {
		out.LatestOffer = &latest
	}
	if p, ok := l.LastProposed(lineItemID, entity.SenderFactory); ok {
		out.FactoryProposed = &p
	}
	if p, ok := l.LastProposed(lineItemID, entity.SenderClient); ok {
		out.ClientProposed = &p
	}
	return out, nil
}

// Links signs download links for the quote files and message attachments.
func (s *NegotiationService) Links(ctx context.Context, id string) ([]syncclient.Link, error) {
	q, err := s.sync.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.sync.FetchSignedLinks(ctx, id, attachmentPaths(*q))
}

func (s *NegotiationService) Activity(ctx context.Context, id string, page, pageSize int) ([]entity.ActivityLog, int64, error) {
	return s.logs.FindByQuote(ctx, id, page, pageSize)
}

// ========== 询价单录入 ==========

// CreateQuoteInput 录入询价单
type CreateQuoteInput struct {
	Title     string            `json:"title" binding:"required"`
	ClientID  string            `json:"client_id" binding:"required"`
	FactoryID string            `json:"factory_id" binding:"required"`
	LineItems []entity.LineItem `json:"line_items" binding:"required"`
	Files     []string          `json:"files"`
}

func (s *NegotiationService) CreateQuote(ctx context.Context, in CreateQuoteInput, operatorID string) (*entity.Quote, error) {
	if len(in.LineItems) == 0 {
		return nil, fmt.Errorf("%w: 至少需要一个行项", entity.ErrValidation)
	}
	seen := make(map[int]bool, len(in.LineItems))
	for _, item := range in.LineItems {
		if item.ID <= 0 || seen[item.ID] {
			return nil, fmt.Errorf("%w: 行项ID必须为正数且不重复", entity.ErrValidation)
		}
		if item.Qty <= 0 {
			return nil, fmt.Errorf("%w: 行项 %d 数量无效", entity.ErrValidation, item.ID)
		}
		seen[item.ID] = true
	}

	q := &entity.Quote{
		Title:       in.Title,
		ClientID:    in.ClientID,
		FactoryID:   in.FactoryID,
		Status:      entity.StatusPending,
		LineItems:   in.LineItems,
		Files:       in.Files,
		SubmittedAt: s.clock.Now(),
	}
	if err := s.quotes.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("创建询价单失败: %w", err)
	}
	s.store.Upsert(*q)
	s.logActivity(ctx, q, ActionCreate, "", fmt.Sprintf("录入询价单，%d 个行项", len(q.LineItems)), operatorID, nil)
	return q, nil
}

// ========== 状态流转 ==========

func (s *NegotiationService) SubmitResponse(ctx context.Context, id string, in engine.ResponseInput, operatorID string) (*entity.Quote, error) {
	return s.transition(ctx, id, ActionResponse, operatorID, func(q entity.Quote, now time.Time) (engine.Result, error) {
		return engine.SubmitResponse(q, in, now)
	})
}

func (s *NegotiationService) Decline(ctx context.Context, id, reason, operatorID string) (*entity.Quote, error) {
	return s.transition(ctx, id, ActionDecline, operatorID, func(q entity.Quote, now time.Time) (engine.Result, error) {
		return engine.Decline(q, reason, now)
	})
}

func (s *NegotiationService) Trash(ctx context.Context, id, operatorID string) (*entity.Quote, error) {
	return s.transition(ctx, id, ActionTrash, operatorID, engine.Trash)
}

func (s *NegotiationService) Restore(ctx context.Context, id, operatorID string) (*entity.Quote, error) {
	return s.transition(ctx, id, ActionRestore, operatorID, engine.Restore)
}

func (s *NegotiationService) ToggleApproval(ctx context.Context, id string, lineItemID int, party entity.Party, confirmed bool, operatorID string) (*entity.Quote, error) {
	return s.transition(ctx, id, ActionApproval, operatorID, func(q entity.Quote, now time.Time) (engine.Result, error) {
		return engine.ToggleApproval(q, lineItemID, party, confirmed, now)
	})
}

// Accept approves every line item on the admin side.
func (s *NegotiationService) Accept(ctx context.Context, id, operatorID string) (*entity.Quote, error) {
	return s.transition(ctx, id, ActionAccept, operatorID, engine.BulkAccept)
}

// MessageInput 议价消息
type MessageInput struct {
	Sender      entity.Sender `json:"sender"`
	Message     string        `json:"message"`
	LineItemID  *int          `json:"line_item_id"`
	Attachments []string      `json:"attachments"`
}

func (s *NegotiationService) SendMessage(ctx context.Context, id string, in MessageInput, operatorID string) (*entity.Quote, error) {
	sender := in.Sender
	if sender == "" {
		sender = entity.SenderFactory
	}
	if sender != entity.SenderFactory && sender != entity.SenderClient {
		return nil, fmt.Errorf("%w: 未知的发送方 %q", entity.ErrValidation, sender)
	}
	return s.transition(ctx, id, ActionMessage, operatorID, func(q entity.Quote, now time.Time) (engine.Result, error) {
		return engine.AppendMessage(q, sender, in.Message, in.LineItemID, in.Attachments, now)
	})
}

// AttachFiles adds uploaded files to the quote's file list.
func (s *NegotiationService) AttachFiles(ctx context.Context, id string, paths []string, operatorID string) (*entity.Quote, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: 未提供附件", entity.ErrValidation)
	}
	q, err := s.sync.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	next := q.Clone()
	for _, p := range paths {
		if !slices.Contains(next.Files, p) {
			next.Files = append(next.Files, p)
		}
	}
	now := s.clock.Now()
	next.ModifiedAt = &now

	stored, err := s.mutator.Apply(ctx, viewstate.Mutation{
		ID:   id,
		Next: next,
		Write: func(ctx context.Context) (*entity.Quote, error) {
			return s.quotes.Patch(ctx, id, repository.QuotePatch{IfVersion: &q.Version, Files: next.Files, ModifiedAt: &now})
		},
	})
	if err != nil {
		return nil, err
	}
	s.sync.InvalidateLinks(ctx, id)
	s.logActivity(ctx, stored, ActionFiles, q.Status, fmt.Sprintf("上传附件 %d 个", len(paths)), operatorID, map[string]any{"paths": paths})
	return stored, nil
}

// SetHidden toggles the visibility flag. The view changes at once and the
// write runs in the background; a failed write is reported, not rolled back.
func (s *NegotiationService) SetHidden(ctx context.Context, id string, hidden bool, operatorID string) (*entity.Quote, error) {
	cur, ok := s.store.Get(id)
	if !ok {
		q, err := s.sync.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		cur = *q
	}
	next := cur.Clone()
	next.Hidden = hidden
	return s.mutator.Apply(ctx, viewstate.Mutation{
		ID:     id,
		Next:   next,
		Policy: viewstate.FireAndForget,
		Write:  s.hiddenWrite(id, hidden, operatorID),
	})
}

func (s *NegotiationService) hiddenWrite(id string, hidden bool, operatorID string) func(ctx context.Context) (*entity.Quote, error) {
	return func(ctx context.Context) (*entity.Quote, error) {
		stored, err := s.quotes.Patch(ctx, id, repository.QuotePatch{Hidden: &hidden})
		if err != nil {
			return nil, err
		}
		action := ActionUnhide
		if hidden {
			action = ActionHide
		}
		s.logActivity(ctx, stored, action, stored.Status, "", operatorID, nil)
		return stored, nil
	}
}

// Delete permanently removes the quote. It is not a status transition.
func (s *NegotiationService) Delete(ctx context.Context, id, operatorID string) error {
	_, err := s.mutator.Apply(ctx, viewstate.Mutation{
		ID:     id,
		Remove: true,
		Write:  s.deleteWrite(id, operatorID),
	})
	return err
}

func (s *NegotiationService) deleteWrite(id, operatorID string) func(ctx context.Context) (*entity.Quote, error) {
	return func(ctx context.Context) (*entity.Quote, error) {
		if err := s.quotes.Delete(ctx, id); err != nil {
			return nil, err
		}
		s.sync.InvalidateLinks(ctx, id)
		s.logger.Info("quote deleted", zap.String("quote_id", id), zap.String("operator", operatorID))
		return nil, nil
	}
}

// EmptyTrash permanently deletes every trashed quote and returns the count.
func (s *NegotiationService) EmptyTrash(ctx context.Context, operatorID string) (int64, error) {
	trashed, err := s.quotes.List(ctx, repository.QuoteFilter{
		Statuses:      []entity.Status{entity.StatusTrashed},
		IncludeHidden: true,
	}, repository.QuoteSort{})
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(trashed))
	for _, q := range trashed {
		ids = append(ids, q.ID)
	}
	n, err := s.quotes.DeleteMany(ctx, ids)
	if err != nil {
		s.notifier.Notify(ctx, viewstate.Describe(err), notify.SeverityError)
		return 0, fmt.Errorf("清空回收站失败: %w", err)
	}
	for _, id := range ids {
		s.store.Remove(id)
		s.sync.InvalidateLinks(ctx, id)
	}
	s.logger.Info("trash emptied", zap.Int64("deleted", n), zap.String("operator", operatorID))
	s.notifier.Notify(ctx, fmt.Sprintf("已永久删除 %d 个询价单", n), notify.SeveritySuccess)
	return n, nil
}

// ========== 批量操作 ==========

// BulkAction 批量操作类型
type BulkAction string

const (
	BulkHide    BulkAction = "hide"
	BulkUnhide  BulkAction = "unhide"
	BulkTrash   BulkAction = "trash"
	BulkRestore BulkAction = "restore"
	BulkDelete  BulkAction = "delete"
)

func (a BulkAction) Valid() bool {
	switch a {
	case BulkHide, BulkUnhide, BulkTrash, BulkRestore, BulkDelete:
		return true
	}
	return false
}

// Bulk runs one action over many quotes concurrently and reports partial
// success. Only the ids whose write succeeded change in the view.
func (s *NegotiationService) Bulk(ctx context.Context, action BulkAction, ids []string, operatorID string) (viewstate.BulkResult, error) {
	if !action.Valid() {
		return viewstate.BulkResult{}, fmt.Errorf("%w: 未知的批量操作 %q", entity.ErrValidation, action)
	}
	return s.mutator.Bulk(ctx, string(action), ids, func(ctx context.Context, id string) (viewstate.Mutation, error) {
		if action == BulkDelete {
			return viewstate.Mutation{Remove: true, Write: s.deleteWrite(id, operatorID)}, nil
		}

		q, err := s.sync.Load(ctx, id)
		if err != nil {
			return viewstate.Mutation{}, err
		}
		if action == BulkHide || action == BulkUnhide {
			next := q.Clone()
			next.Hidden = action == BulkHide
			return viewstate.Mutation{Next: next, Write: s.hiddenWrite(id, next.Hidden, operatorID)}, nil
		}

		fn := engine.Trash
		if action == BulkRestore {
			fn = engine.Restore
		}
		res, err := fn(*q, s.clock.Now())
		if err != nil {
			return viewstate.Mutation{}, err
		}
		return viewstate.Mutation{
			Next: res.Quote,
			Write: func(ctx context.Context) (*entity.Quote, error) {
				stored, err := s.quotes.Patch(ctx, id, repository.PatchFrom(res.Quote))
				if err != nil {
					return nil, err
				}
				s.logActivity(ctx, stored, string(action), res.From, "批量操作", operatorID, nil)
				return stored, nil
			},
		}, nil
	})
}

// ========== 内部 ==========

type step func(q entity.Quote, now time.Time) (engine.Result, error)

// transition loads a fresh copy of the quote, applies the engine step and
// writes the result with rollback on failure. Validation happens before any
// remote write.
func (s *NegotiationService) transition(ctx context.Context, id, action, operatorID string, fn step) (*entity.Quote, error) {
	q, err := s.sync.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := fn(*q, s.clock.Now())
	if err != nil {
		return nil, err
	}

	stored, err := s.mutator.Apply(ctx, viewstate.Mutation{
		ID:     id,
		Next:   res.Quote,
		Policy: viewstate.RollbackOnFailure,
		Write: func(ctx context.Context) (*entity.Quote, error) {
			return s.quotes.Patch(ctx, id, repository.PatchFrom(res.Quote))
		},
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, action, res, stored, operatorID)
	return stored, nil
}

func (s *NegotiationService) afterCommit(ctx context.Context, action string, res engine.Result, stored *entity.Quote, operatorID string) {
	content := fmt.Sprintf("%s → %s", res.From, stored.Status)
	var metadata map[string]any
	if action == ActionDecline && stored.ResponseSummary != nil {
		if reason := engine.DeclineReason(stored.ResponseSummary.Notes); reason != "" {
			content += "，原因：" + reason
			metadata = map[string]any{"reason": reason}
		}
	}
	s.logActivity(ctx, stored, action, res.From, content, operatorID, metadata)

	if res.Has(engine.EffectQuoteAccepted) {
		order, err := s.orders.CreateOrder(ctx, BuildOrderRequest(*stored))
		if err != nil {
			s.logger.Warn("order creation failed after acceptance",
				zap.String("quote_id", stored.ID), zap.Error(err))
			s.notifier.Notify(ctx, fmt.Sprintf("询价单 %s 已接受，但订单创建失败: %v", stored.Code, err), notify.SeverityWarning)
			return
		}
		s.notifier.Notify(ctx, fmt.Sprintf("询价单 %s 已接受，已生成订单 %s", stored.Code, order.Code), notify.SeveritySuccess)
	}
}

// logActivity never fails the caller; the change is already committed.
func (s *NegotiationService) logActivity(ctx context.Context, q *entity.Quote, action string, from entity.Status, content, operatorID string, metadata map[string]any) {
	if s.logs == nil || q == nil {
		return
	}
	if err := s.logs.LogActivity(context.WithoutCancel(ctx), q, action, from, content, operatorID, metadata); err != nil {
		s.logger.Warn("write activity log failed", zap.String("quote_id", q.ID), zap.String("action", action), zap.Error(err))
	}
}

// attachmentPaths lists the quote files followed by message attachments,
// without duplicates.
func attachmentPaths(q entity.Quote) []string {
	paths := append([]string(nil), q.Files...)
	for _, e := range q.Negotiation.History {
		for _, a := range e.Attachments {
			if !slices.Contains(paths, a) {
				paths = append(paths, a)
			}
		}
	}
	return paths
}

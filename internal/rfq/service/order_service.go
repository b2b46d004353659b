package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/engine"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/notify"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/repository"
	"github.com/bitfantasy/nimo-rfq/internal/shared/feishu"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderLine 成交行项
type OrderLine struct {
	LineItemID int
	Category   string
	Quantity   int
	UnitPrice  decimal.Decimal
}

// OrderRequest is what downstream order creation needs from an accepted quote.
type OrderRequest struct {
	QuoteID     string
	QuoteCode   string
	ClientID    string
	FactoryID   string
	Lines       []OrderLine
	Attachments []string
}

// OrderCreator creates the downstream order for an accepted quote.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*entity.Order, error)
}

// BuildOrderRequest summarises the agreed line items of q.
func BuildOrderRequest(q entity.Quote) OrderRequest {
	l := engine.NewLedger(&q)
	req := OrderRequest{
		QuoteID:     q.ID,
		QuoteCode:   q.Code,
		ClientID:    q.ClientID,
		FactoryID:   q.FactoryID,
		Attachments: attachmentPaths(q),
	}
	for _, item := range q.LineItems {
		req.Lines = append(req.Lines, OrderLine{
			LineItemID: item.ID,
			Category:   item.Category,
			Quantity:   item.Qty,
			UnitPrice:  l.ResolveAgreedPrice(item.ID),
		})
	}
	return req
}

// OrderService 成交订单服务
type OrderService struct {
	repo   *repository.OrderRepository
	cards  notify.CardSender
	chatID string
	logger *zap.Logger
}

func NewOrderService(repo *repository.OrderRepository, logger *zap.Logger) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{repo: repo, logger: logger}
}

// SetCardSender 注入飞书卡片发送（成交通知）
func (s *OrderService) SetCardSender(cards notify.CardSender, chatID string) {
	s.cards = cards
	s.chatID = chatID
}

// CreateOrder creates the order once per quote; a second call returns the
// existing order.
func (s *OrderService) CreateOrder(ctx context.Context, req OrderRequest) (*entity.Order, error) {
	if existing, err := s.repo.FindByQuoteID(ctx, req.QuoteID); err == nil {
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("查询订单失败: %w", err)
	}
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("%w: 订单没有行项", entity.ErrValidation)
	}

	code, err := s.repo.GenerateCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("生成订单编码失败: %w", err)
	}
	now := time.Now()
	order := &entity.Order{
		ID:          uuid.New().String()[:32],
		Code:        code,
		QuoteID:     req.QuoteID,
		ClientID:    req.ClientID,
		FactoryID:   req.FactoryID,
		Status:      entity.OrderStatusDraft,
		Attachments: req.Attachments,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	total := decimal.Zero
	for i, line := range req.Lines {
		amount := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2)
		total = total.Add(amount)
		order.Items = append(order.Items, entity.OrderItem{
			ID:         uuid.New().String()[:32],
			LineItemID: line.LineItemID,
			Category:   line.Category,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			Amount:     amount,
			SortOrder:  i,
			CreatedAt:  now,
		})
	}
	order.TotalAmount = total

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("创建订单失败: %w", err)
	}
	s.logger.Info("order created", zap.String("order", order.Code), zap.String("quote_id", req.QuoteID))

	if s.cards != nil && s.chatID != "" {
		card := feishu.NewQuoteAcceptedCard(req.QuoteCode, req.ClientID, order.Code, total.StringFixed(2))
		if err := s.cards.SendCard(context.WithoutCancel(ctx), s.chatID, card); err != nil {
			s.logger.Warn("send accepted card failed", zap.String("order", order.Code), zap.Error(err))
		}
	}
	return order, nil
}

func (s *OrderService) GetByQuote(ctx context.Context, quoteID string) (*entity.Order, error) {
	return s.repo.FindByQuoteID(ctx, quoteID)
}

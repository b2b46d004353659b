package service

import (
	"context"

	"github.com/bitfantasy/nimo-rfq/internal/clock"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/notify"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/repository"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/syncclient"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/viewstate"
	"go.uber.org/zap"
)

// QuoteStore is the remote quote store as used by the services.
type QuoteStore interface {
	List(ctx context.Context, filter repository.QuoteFilter, sort repository.QuoteSort) ([]entity.Quote, error)
	Create(ctx context.Context, q *entity.Quote) error
	Patch(ctx context.Context, id string, p repository.QuotePatch) (*entity.Quote, error)
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) (int64, error)
}

// ActivityLogger records committed changes.
type ActivityLogger interface {
	LogActivity(ctx context.Context, q *entity.Quote, action string, from entity.Status, content, operatorID string, metadata map[string]any) error
	FindByQuote(ctx context.Context, quoteID string, page, pageSize int) ([]entity.ActivityLog, int64, error)
}

// Services RFQ服务集合
type Services struct {
	Negotiation *NegotiationService
	Order       *OrderService
	Attachment  *AttachmentService
	Sample      *SampleService
}

// Deps are the collaborators shared by the RFQ services.
type Deps struct {
	Repos    *repository.Repositories
	Sync     *syncclient.Client
	Store    *viewstate.Store
	Mutator  *viewstate.Mutator
	Blob     BlobStore
	Notifier notify.Notifier
	Cards    notify.CardSender
	ChatID   string
	Clock    clock.Clock
	Logger   *zap.Logger
}

// NewServices 创建RFQ服务集合
func NewServices(d Deps) *Services {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = clock.NewSystem()
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}

	orders := NewOrderService(d.Repos.Order, d.Logger)
	if d.Cards != nil {
		orders.SetCardSender(d.Cards, d.ChatID)
	}
	negotiation := NewNegotiationService(d.Repos.Quote, d.Repos.ActivityLog, d.Sync, d.Store, d.Mutator, orders, d.Notifier, d.Clock, d.Logger)
	return &Services{
		Negotiation: negotiation,
		Order:       orders,
		Attachment:  NewAttachmentService(d.Blob, d.Logger),
		Sample:      NewSampleService(negotiation),
	}
}

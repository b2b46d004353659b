package repository

import (
	"errors"
	"net"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound = entity.ErrNotFound
)

// insufficient_privilege, raised by row level security and revoked grants.
const pgInsufficientPrivilege = "42501"

// Repositories RFQ仓库集合
type Repositories struct {
	Quote       *QuoteRepository
	ActivityLog *ActivityLogRepository
	Order       *OrderRepository
}

// NewRepositories 创建RFQ仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Quote:       NewQuoteRepository(db),
		ActivityLog: NewActivityLogRepository(db),
		Order:       NewOrderRepository(db),
	}
}

// Models lists every table owned by the RFQ module, for AutoMigrate.
func Models() []any {
	return []any{
		&entity.Quote{},
		&entity.ActivityLog{},
		&entity.Order{},
		&entity.OrderItem{},
	}
}

// mapError turns driver errors into the module's sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgInsufficientPrivilege {
		return errors.Join(entity.ErrPermissionDenied, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.Join(entity.ErrNetwork, err)
	}
	return err
}

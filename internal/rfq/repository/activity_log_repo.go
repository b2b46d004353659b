package repository

import (
	"context"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityLogRepository 操作日志仓库
type ActivityLogRepository struct {
	db *gorm.DB
}

func NewActivityLogRepository(db *gorm.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// Create 创建操作日志
func (r *ActivityLogRepository) Create(ctx context.Context, log *entity.ActivityLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()[:32]
	}
	return r.db.WithContext(ctx).Create(log).Error
}

// FindByQuote 查询某询价单的操作日志
func (r *ActivityLogRepository) FindByQuote(ctx context.Context, quoteID string, page, pageSize int) ([]entity.ActivityLog, int64, error) {
	var items []entity.ActivityLog
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ActivityLog{}).Where("quote_id = ?", quoteID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// LogActivity 便捷记录操作日志
func (r *ActivityLogRepository) LogActivity(ctx context.Context, q *entity.Quote, action string, from entity.Status, content, operatorID string, metadata map[string]any) error {
	log := &entity.ActivityLog{
		ID:         uuid.New().String()[:32],
		QuoteID:    q.ID,
		QuoteCode:  q.Code,
		Action:     action,
		FromStatus: from,
		ToStatus:   q.Status,
		Content:    content,
		Metadata:   metadata,
		OperatorID: operatorID,
	}
	return r.db.WithContext(ctx).Create(log).Error
}

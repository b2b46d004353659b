package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"gorm.io/gorm"
)

// OrderRepository 订单仓库
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create 创建订单（含行项）
func (r *OrderRepository) Create(ctx context.Context, order *entity.Order) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items := order.Items
		order.Items = nil
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].OrderID = order.ID
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		order.Items = items
		return nil
	})
}

// FindByID 根据ID查找订单（含行项）
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByQuoteID 查找询价单生成的订单
func (r *OrderRepository) FindByQuoteID(ctx context.Context, quoteID string) (*entity.Order, error) {
	return r.findOne(ctx, "quote_id = ?", quoteID)
}

func (r *OrderRepository) findOne(ctx context.Context, where string, arg any) (*entity.Order, error) {
	var order entity.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Where(where, arg).
		First(&order).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &order, nil
}

// GenerateCode 生成订单编码 SO-{year}-{4位}
func (r *OrderRepository) GenerateCode(ctx context.Context) (string, error) {
	year := time.Now().Format("2006")
	prefix := fmt.Sprintf("SO-%s-", year)

	var maxCode string
	err := r.db.WithContext(ctx).
		Model(&entity.Order{}).
		Select("COALESCE(MAX(code), '')").
		Where("code LIKE ?", prefix+"%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(maxCode, "SO-"+year+"-%04d", &seq)
	}
	seq++
	return fmt.Sprintf("SO-%s-%04d", year, seq), nil
}

package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order 成交后生成的生产订单
type Order struct {
	ID          string          `json:"id" gorm:"primaryKey;size:32"`
	Code        string          `json:"code" gorm:"size:32;uniqueIndex;not null"`
	QuoteID     string          `json:"quote_id" gorm:"size:32;uniqueIndex;not null"`
	ClientID    string          `json:"client_id" gorm:"size:32;index"`
	FactoryID   string          `json:"factory_id" gorm:"size:32;index"`
	Status      string          `json:"status" gorm:"size:20;default:draft"`
	TotalAmount decimal.Decimal `json:"total_amount" gorm:"type:decimal(15,2)"`
	Attachments []string        `json:"attachments" gorm:"type:jsonb;serializer:json"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	Items []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string {
	return "rfq_orders"
}

// 订单状态
const (
	OrderStatusDraft     = "draft"
	OrderStatusConfirmed = "confirmed"
)

// OrderItem 订单行项
type OrderItem struct {
	ID         string          `json:"id" gorm:"primaryKey;size:32"`
	OrderID    string          `json:"order_id" gorm:"size:32;not null;index"`
	LineItemID int             `json:"line_item_id"`
	Category   string          `json:"category" gorm:"size:100"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price" gorm:"type:decimal(12,4)"`
	Amount     decimal.Decimal `json:"amount" gorm:"type:decimal(15,2)"`
	SortOrder  int             `json:"sort_order" gorm:"default:0"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (OrderItem) TableName() string {
	return "rfq_order_items"
}

package entity

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog 询价单操作日志
type ActivityLog struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	QuoteID   string `json:"quote_id" gorm:"size:32;not null;index:idx_rfq_activity_quote"`
	QuoteCode string `json:"quote_code" gorm:"size:32"`

	Action     string `json:"action" gorm:"size:50;not null"` // response/decline/trash/restore/approval/accept/message/sample/hide/unhide
	FromStatus Status `json:"from_status" gorm:"size:20"`
	ToStatus   Status `json:"to_status" gorm:"size:20"`

	Content  string            `json:"content" gorm:"type:text"`
	Metadata datatypes.JSONMap `json:"metadata"`

	OperatorID string    `json:"operator_id" gorm:"size:32"`
	CreatedAt  time.Time `json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "rfq_activity_logs"
}

package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status 报价单状态
type Status string

const (
	StatusPending        Status = "pending"
	StatusResponded      Status = "responded"
	StatusInNegotiation  Status = "in_negotiation"
	StatusAdminAccepted  Status = "admin_accepted"
	StatusClientAccepted Status = "client_accepted"
	StatusAccepted       Status = "accepted"
	StatusDeclined       Status = "declined"
	StatusTrashed        Status = "trashed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusResponded, StatusInNegotiation, StatusAdminAccepted,
		StatusClientAccepted, StatusAccepted, StatusDeclined, StatusTrashed:
		return true
	}
	return false
}

// Quote 询价单（RFQ）
type Quote struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	Code      string `json:"code" gorm:"size:32;uniqueIndex;not null"`
	Title     string `json:"title" gorm:"size:200"`
	ClientID  string `json:"client_id" gorm:"size:32;index"`
	FactoryID string `json:"factory_id" gorm:"size:32;index"`
	Status    Status `json:"status" gorm:"size:20;index;default:pending"`
	Hidden    bool   `json:"hidden" gorm:"default:false"`
	// Version grows with every committed change except visibility.
	Version int `json:"version" gorm:"not null;default:0"`

	LineItems       []LineItem       `json:"line_items" gorm:"type:jsonb;serializer:json"`
	ResponseSummary *ResponseSummary `json:"response_summary,omitempty" gorm:"type:jsonb;serializer:json"`
	Negotiation     Negotiation      `json:"negotiation" gorm:"type:jsonb;serializer:json"`
	Files           []string         `json:"files" gorm:"type:jsonb;serializer:json"`

	SubmittedAt time.Time  `json:"submitted_at"`
	ModifiedAt  *time.Time `json:"modified_at"`
	AcceptedAt  *time.Time `json:"accepted_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Quote) TableName() string {
	return "rfq_quotes"
}

// LineItem 询价行项（一个款式）
type LineItem struct {
	ID          int               `json:"id"`
	Category    string            `json:"category"`
	Qty         int               `json:"qty"`
	TargetPrice decimal.Decimal   `json:"target_price"`
	Specs       map[string]string `json:"specs,omitempty"`
}

// ResponseSummary is the latest consolidated factory offer.
type ResponseSummary struct {
	Price             *decimal.Decimal   `json:"price,omitempty"`
	LeadTime          string             `json:"lead_time,omitempty"`
	Notes             string             `json:"notes,omitempty"`
	LineItemResponses []LineItemResponse `json:"line_item_responses,omitempty"`
	RespondedAt       *time.Time         `json:"responded_at,omitempty"`
}

// LineItemResponse 工厂对单个行项的报价
type LineItemResponse struct {
	LineItemID int             `json:"line_item_id"`
	Price      decimal.Decimal `json:"price"`
	Notes      string          `json:"notes,omitempty"`
}

// LineItemIDs returns the ids in insertion order.
func (q *Quote) LineItemIDs() []int {
	ids := make([]int, 0, len(q.LineItems))
	for _, item := range q.LineItems {
		ids = append(ids, item.ID)
	}
	return ids
}

// FindLineItem returns the line item with the given id.
func (q *Quote) FindLineItem(id int) (LineItem, bool) {
	for _, item := range q.LineItems {
		if item.ID == id {
			return item, true
		}
	}
	return LineItem{}, false
}

// Response returns the factory response for a line item, if any.
func (r *ResponseSummary) Response(lineItemID int) (LineItemResponse, bool) {
	if r == nil {
		return LineItemResponse{}, false
	}
	for _, resp := range r.LineItemResponses {
		if resp.LineItemID == lineItemID {
			return resp, true
		}
	}
	return LineItemResponse{}, false
}

// MergeResponses upserts entries by line item id; the last write per id wins
// and first-seen order is kept.
func (r *ResponseSummary) MergeResponses(updates []LineItemResponse) {
	index := make(map[int]int, len(r.LineItemResponses))
	for i, resp := range r.LineItemResponses {
		index[resp.LineItemID] = i
	}
	for _, u := range updates {
		if i, ok := index[u.LineItemID]; ok {
			r.LineItemResponses[i] = u
			continue
		}
		index[u.LineItemID] = len(r.LineItemResponses)
		r.LineItemResponses = append(r.LineItemResponses, u)
	}
}

// Clone returns a deep copy so engine transitions never alias the caller's quote.
func (q Quote) Clone() Quote {
	out := q
	if q.LineItems != nil {
		out.LineItems = make([]LineItem, len(q.LineItems))
		for i, item := range q.LineItems {
			out.LineItems[i] = item
			if item.Specs != nil {
				specs := make(map[string]string, len(item.Specs))
				for k, v := range item.Specs {
					specs[k] = v
				}
				out.LineItems[i].Specs = specs
			}
		}
	}
	if q.ResponseSummary != nil {
		rs := *q.ResponseSummary
		rs.LineItemResponses = append([]LineItemResponse(nil), q.ResponseSummary.LineItemResponses...)
		out.ResponseSummary = &rs
	}
	out.Negotiation = q.Negotiation.Clone()
	out.Files = append([]string(nil), q.Files...)
	out.ModifiedAt = cloneTime(q.ModifiedAt)
	out.AcceptedAt = cloneTime(q.AcceptedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

package entity

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Party identifies a side of the negotiation. The admin approves on behalf of
// the factory; the client is the buyer.
type Party string

const (
	PartyAdmin  Party = "admin"
	PartyClient Party = "client"
)

// Sender of a negotiation event
type Sender string

const (
	SenderClient  Sender = "client"
	SenderFactory Sender = "factory"
)

// Action of a negotiation event
type Action string

const (
	ActionOffer   Action = "offer"
	ActionCounter Action = "counter"
	ActionInfo    Action = "info"
	ActionAccept  Action = "accept"
	ActionDecline Action = "decline"
)

// IsPriceAction reports whether the action carries a price proposal.
func (a Action) IsPriceAction() bool {
	return a == ActionOffer || a == ActionCounter
}

// NegotiationEvent 议价日志条目（只追加）
type NegotiationEvent struct {
	ID                string           `json:"id"`
	Sender            Sender           `json:"sender"`
	Message           string           `json:"message,omitempty"`
	Price             *decimal.Decimal `json:"price,omitempty"`
	LineItemPrices    []LineItemPrice  `json:"line_item_prices,omitempty"`
	RelatedLineItemID *int             `json:"related_line_item_id,omitempty"`
	Timestamp         time.Time        `json:"timestamp"`
	Action            Action           `json:"action"`
	Attachments       []string         `json:"attachments,omitempty"`
}

// LineItemPrice 单行项报价
type LineItemPrice struct {
	LineItemID int             `json:"line_item_id"`
	Price      decimal.Decimal `json:"price"`
}

// PriceFor returns the price the event proposes for a line item.
func (e NegotiationEvent) PriceFor(lineItemID int) (decimal.Decimal, bool) {
	for _, p := range e.LineItemPrices {
		if p.LineItemID == lineItemID {
			return p.Price, true
		}
	}
	return decimal.Decimal{}, false
}

// References reports whether the event concerns the given line item, either
// through its per-item prices or through RelatedLineItemID.
func (e NegotiationEvent) References(lineItemID int) bool {
	if e.RelatedLineItemID != nil && *e.RelatedLineItemID == lineItemID {
		return true
	}
	_, ok := e.PriceFor(lineItemID)
	return ok
}

// Negotiation 议价状态
type Negotiation struct {
	History                 []NegotiationEvent `json:"history"`
	AdminApprovedLineItems  []int              `json:"admin_approved_line_items"`
	ClientApprovedLineItems []int              `json:"client_approved_line_items"`
	PreviousStatus          *Status            `json:"previous_status,omitempty"`
	SampleRequest           *SampleRequest     `json:"sample_request,omitempty"`

	// Quotes created before the structured history kept a single client
	// counter in these fields.
	Message      string           `json:"message,omitempty"`
	CounterPrice *decimal.Decimal `json:"counter_price,omitempty"`
	CounterAt    *time.Time       `json:"counter_at,omitempty"`
}

// Approved returns the approval set for a party.
func (n *Negotiation) Approved(party Party) []int {
	if party == PartyClient {
		return n.ClientApprovedLineItems
	}
	return n.AdminApprovedLineItems
}

// SetApproved replaces the approval set for a party.
func (n *Negotiation) SetApproved(party Party, ids []int) {
	if party == PartyClient {
		n.ClientApprovedLineItems = ids
		return
	}
	n.AdminApprovedLineItems = ids
}

// PruneApprovals drops approval ids that no longer name a line item.
func (n *Negotiation) PruneApprovals(lineItemIDs []int) {
	keep := func(ids []int) []int {
		out := ids[:0:0]
		for _, id := range ids {
			if slices.Contains(lineItemIDs, id) {
				out = append(out, id)
			}
		}
		return out
	}
	n.AdminApprovedLineItems = keep(n.AdminApprovedLineItems)
	n.ClientApprovedLineItems = keep(n.ClientApprovedLineItems)
}

// HasLegacyCounter reports whether the pre-history counter fields are set.
func (n *Negotiation) HasLegacyCounter() bool {
	return n.Message != "" || n.CounterPrice != nil
}

// Clone deep-copies the negotiation. Events are values; their slices are copied.
func (n Negotiation) Clone() Negotiation {
	out := n
	if n.History != nil {
		out.History = make([]NegotiationEvent, len(n.History))
		for i, e := range n.History {
			out.History[i] = e.clone()
		}
	}
	out.AdminApprovedLineItems = slices.Clone(n.AdminApprovedLineItems)
	out.ClientApprovedLineItems = slices.Clone(n.ClientApprovedLineItems)
	if n.PreviousStatus != nil {
		s := *n.PreviousStatus
		out.PreviousStatus = &s
	}
	if n.SampleRequest != nil {
		sr := *n.SampleRequest
		out.SampleRequest = &sr
	}
	out.CounterAt = cloneTime(n.CounterAt)
	return out
}

func (e NegotiationEvent) clone() NegotiationEvent {
	out := e
	out.LineItemPrices = slices.Clone(e.LineItemPrices)
	out.Attachments = slices.Clone(e.Attachments)
	if e.RelatedLineItemID != nil {
		id := *e.RelatedLineItemID
		out.RelatedLineItemID = &id
	}
	return out
}

// ExtendsHistory reports whether next keeps every committed event of prev, in
// order and by id, at its head.
func ExtendsHistory(prev, next []NegotiationEvent) bool {
	if len(next) < len(prev) {
		return false
	}
	for i := range prev {
		if prev[i].ID != next[i].ID || !prev[i].Timestamp.Equal(next[i].Timestamp) ||
			prev[i].Sender != next[i].Sender || prev[i].Action != next[i].Action {
			return false
		}
	}
	return true
}

// SampleRequest 打样请求
type SampleRequest struct {
	Quantity    int        `json:"quantity"`
	Notes       string     `json:"notes,omitempty"`
	Status      string     `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// 打样状态
const (
	SampleStatusRequested = "requested"
	SampleStatusShipped   = "shipped"
	SampleStatusReceived  = "received"
	SampleStatusApproved  = "approved"
	SampleStatusRejected  = "rejected"
)

// ValidSampleTransitions 合法的打样状态流转
var ValidSampleTransitions = map[string][]string{
	SampleStatusRequested: {SampleStatusShipped},
	SampleStatusShipped:   {SampleStatusReceived},
	SampleStatusReceived:  {SampleStatusApproved, SampleStatusRejected},
}

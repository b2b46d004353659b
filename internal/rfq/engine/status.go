// Package engine holds the pure quote negotiation rules: status transitions,
// the per-line-item approval ledger and history reconciliation. Nothing here
// performs I/O; callers persist the returned quote.
package engine

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Effect is a side effect the caller must run once the transition is committed.
type Effect string

const (
	// EffectQuoteAccepted fires on entering Accepted; it drives order creation.
	EffectQuoteAccepted Effect = "quote.accepted"
)

// Result of a transition. Quote is a fresh copy; the input is never mutated.
type Result struct {
	Quote   entity.Quote
	From    entity.Status
	Effects []Effect
}

// Has reports whether the transition produced the effect.
func (r Result) Has(e Effect) bool {
	return slices.Contains(r.Effects, e)
}

// ComputeStatus derives the negotiation status from the two approval sets.
// It depends only on its arguments.
func ComputeStatus(adminApproved, clientApproved, lineItemIDs []int) entity.Status {
	admin := covers(adminApproved, lineItemIDs)
	client := covers(clientApproved, lineItemIDs)
	switch {
	case admin && client:
		return entity.StatusAccepted
	case admin:
		return entity.StatusAdminAccepted
	case client:
		return entity.StatusClientAccepted
	default:
		return entity.StatusInNegotiation
	}
}

func covers(set, ids []int) bool {
	for _, id := range ids {
		if !slices.Contains(set, id) {
			return false
		}
	}
	return true
}

// ResponseInput 工厂报价
type ResponseInput struct {
	Price             *decimal.Decimal
	LeadTime          string
	Notes             string
	Message           string
	LineItemResponses []entity.LineItemResponse
}

var respondable = []entity.Status{
	entity.StatusPending,
	entity.StatusResponded,
	entity.StatusInNegotiation,
	entity.StatusAdminAccepted,
	entity.StatusClientAccepted,
}

// SubmitResponse records a factory price response. The first response on a
// quote without history moves it to Responded; any later one, or one made
// while the client had accepted, reopens negotiation.
func SubmitResponse(q entity.Quote, in ResponseInput, now time.Time) (Result, error) {
	if !slices.Contains(respondable, q.Status) {
		return Result{}, invalid("报价", q.Status)
	}
	responses := collapseResponses(in.LineItemResponses)
	priced := false
	for _, r := range responses {
		if _, ok := q.FindLineItem(r.LineItemID); !ok {
			return Result{}, fmt.Errorf("%w: %d", entity.ErrUnknownLineItem, r.LineItemID)
		}
		if r.Price.IsPositive() {
			priced = true
		}
	}
	if !priced {
		return Result{}, entity.ErrNoPricedLineItem
	}

	next := q.Clone()
	reopen := len(q.Negotiation.History) > 0 || q.Status == entity.StatusClientAccepted

	summary := next.ResponseSummary
	if summary == nil {
		summary = &entity.ResponseSummary{}
		next.ResponseSummary = summary
	}
	repriced := make([]int, 0, len(responses))
	for _, r := range responses {
		if prev, ok := summary.Response(r.LineItemID); !ok || !prev.Price.Equal(r.Price) {
			repriced = append(repriced, r.LineItemID)
		}
	}
	summary.MergeResponses(responses)
	summary.Price = in.Price
	summary.LeadTime = in.LeadTime
	summary.Notes = in.Notes
	summary.RespondedAt = &now

	action := entity.ActionOffer
	if reopen {
		action = entity.ActionCounter
	}
	event := entity.NegotiationEvent{
		ID:        newEventID(),
		Sender:    entity.SenderFactory,
		Message:   in.Message,
		Price:     in.Price,
		Timestamp: now,
		Action:    action,
	}
	for _, r := range responses {
		event.LineItemPrices = append(event.LineItemPrices, entity.LineItemPrice{LineItemID: r.LineItemID, Price: r.Price})
	}
	next.Negotiation.History = append(next.Negotiation.History, event)

	// A new price needs a fresh client approval.
	next.Negotiation.ClientApprovedLineItems = slices.DeleteFunc(next.Negotiation.ClientApprovedLineItems, func(id int) bool {
		return slices.Contains(repriced, id)
	})

	if reopen {
		next.Status = entity.StatusInNegotiation
	} else {
		next.Status = entity.StatusResponded
	}
	next.ModifiedAt = &now
	return Result{Quote: next, From: q.Status}, nil
}

// collapseResponses keeps one entry per line item: the last one given, at the
// position of the first.
func collapseResponses(in []entity.LineItemResponse) []entity.LineItemResponse {
	out := make([]entity.LineItemResponse, 0, len(in))
	for _, r := range in {
		i := slices.IndexFunc(out, func(o entity.LineItemResponse) bool { return o.LineItemID == r.LineItemID })
		if i >= 0 {
			out[i] = r
			continue
		}
		out = append(out, r)
	}
	return out
}

var declinable = []entity.Status{
	entity.StatusResponded,
	entity.StatusInNegotiation,
	entity.StatusClientAccepted,
}

const declineAnnotation = "[decline-reason] "

// Decline closes the quote. Earlier summary notes are kept and the reason is
// appended as a tagged line.
func Decline(q entity.Quote, reason string, now time.Time) (Result, error) {
	if !slices.Contains(declinable, q.Status) {
		return Result{}, invalid("拒绝", q.Status)
	}
	next := q.Clone()
	next.Negotiation.History = append(next.Negotiation.History, entity.NegotiationEvent{
		ID:        newEventID(),
		Sender:    entity.SenderFactory,
		Message:   reason,
		Timestamp: now,
		Action:    entity.ActionDecline,
	})
	if next.ResponseSummary == nil {
		next.ResponseSummary = &entity.ResponseSummary{}
	}
	if reason != "" {
		notes := next.ResponseSummary.Notes
		if notes != "" {
			notes += "\n"
		}
		next.ResponseSummary.Notes = notes + declineAnnotation + reason
	}
	next.Status = entity.StatusDeclined
	next.ModifiedAt = &now
	return Result{Quote: next, From: q.Status}, nil
}

// DeclineReason extracts the last tagged decline reason from summary notes.
func DeclineReason(notes string) string {
	reason := ""
	for _, line := range strings.Split(notes, "\n") {
		if r, ok := strings.CutPrefix(line, declineAnnotation); ok {
			reason = r
		}
	}
	return reason
}

var approvable = []entity.Status{
	entity.StatusResponded,
	entity.StatusInNegotiation,
	entity.StatusAdminAccepted,
	entity.StatusClientAccepted,
}

// ToggleApproval flips one party's approval of one line item and recomputes
// the status. Turning an approval on requires confirmed=true; turning it off
// does not.
func ToggleApproval(q entity.Quote, lineItemID int, party entity.Party, confirmed bool, now time.Time) (Result, error) {
	if !slices.Contains(approvable, q.Status) {
		return Result{}, invalid("变更确认", q.Status)
	}
	if _, ok := q.FindLineItem(lineItemID); !ok {
		return Result{}, fmt.Errorf("%w: %d", entity.ErrUnknownLineItem, lineItemID)
	}
	ledger := NewLedger(&q)
	if !ledger.IsApproved(lineItemID, party) && !confirmed {
		return Result{}, entity.ErrConfirmationRequired
	}

	next := q.Clone()
	next.Negotiation.SetApproved(party, ledger.Toggle(lineItemID, party))
	next.Status = ComputeStatus(next.Negotiation.AdminApprovedLineItems, next.Negotiation.ClientApprovedLineItems, next.LineItemIDs())
	next.ModifiedAt = &now

	res := Result{Quote: next, From: q.Status}
	if next.Status == entity.StatusAccepted && q.Status != entity.StatusAccepted {
		res.Quote.AcceptedAt = &now
		res.Effects = append(res.Effects, EffectQuoteAccepted)
	}
	return res, nil
}

// BulkAccept approves every line item on the admin side and forces the
// status: Accepted when the client had already accepted, AdminAccepted otherwise.
func BulkAccept(q entity.Quote, now time.Time) (Result, error) {
	if !slices.Contains(approvable, q.Status) {
		return Result{}, invalid("接受", q.Status)
	}
	next := q.Clone()
	next.Negotiation.AdminApprovedLineItems = next.LineItemIDs()
	slices.Sort(next.Negotiation.AdminApprovedLineItems)
	next.ModifiedAt = &now

	res := Result{Quote: next, From: q.Status}
	if q.Status == entity.StatusClientAccepted {
		res.Quote.Status = entity.StatusAccepted
		res.Quote.AcceptedAt = &now
		res.Effects = append(res.Effects, EffectQuoteAccepted)
	} else {
		res.Quote.Status = entity.StatusAdminAccepted
	}
	return res, nil
}

// AppendMessage adds an informational event. Allowed in every status except
// Trashed.
func AppendMessage(q entity.Quote, sender entity.Sender, message string, lineItemID *int, attachments []string, now time.Time) (Result, error) {
	if q.Status == entity.StatusTrashed {
		return Result{}, invalid("发送消息", q.Status)
	}
	if message == "" && len(attachments) == 0 {
		return Result{}, fmt.Errorf("%w: 消息内容为空", entity.ErrValidation)
	}
	if lineItemID != nil {
		if _, ok := q.FindLineItem(*lineItemID); !ok {
			return Result{}, fmt.Errorf("%w: %d", entity.ErrUnknownLineItem, *lineItemID)
		}
	}
	next := q.Clone()
	next.Negotiation.History = append(next.Negotiation.History, entity.NegotiationEvent{
		ID:                newEventID(),
		Sender:            sender,
		Message:           message,
		RelatedLineItemID: lineItemID,
		Timestamp:         now,
		Action:            entity.ActionInfo,
		Attachments:       attachments,
	})
	next.ModifiedAt = &now
	return Result{Quote: next, From: q.Status}, nil
}

func invalid(op string, status entity.Status) error {
	return fmt.Errorf("%w: 状态为 %s 的询价单不能%s", entity.ErrInvalidTransition, status, op)
}

func newEventID() string {
	return uuid.New().String()
}

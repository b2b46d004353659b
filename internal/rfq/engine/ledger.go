package engine

import (
	"slices"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"github.com/shopspring/decimal"
)

// Ledger is a read-only view over a quote's per-line-item approvals and the
// prices each side proposed.
type Ledger struct {
	quote *entity.Quote
}

func NewLedger(q *entity.Quote) *Ledger {
	return &Ledger{quote: q}
}

func (l *Ledger) IsApproved(lineItemID int, party entity.Party) bool {
	return slices.Contains(l.quote.Negotiation.Approved(party), lineItemID)
}

// IsAgreed reports whether both parties approved the line item.
func (l *Ledger) IsAgreed(lineItemID int) bool {
	return l.IsApproved(lineItemID, entity.PartyAdmin) && l.IsApproved(lineItemID, entity.PartyClient)
}

// Toggle returns the party's approval set with lineItemID flipped, sorted.
// The quote itself is left untouched.
func (l *Ledger) Toggle(lineItemID int, party entity.Party) []int {
	current := l.quote.Negotiation.Approved(party)
	var out []int
	if slices.Contains(current, lineItemID) {
		out = slices.DeleteFunc(slices.Clone(current), func(id int) bool { return id == lineItemID })
	} else {
		out = append(slices.Clone(current), lineItemID)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// LatestOfferPrice is the most recent offer/counter price for the line item,
// from either side.
func (l *Ledger) LatestOfferPrice(lineItemID int) (decimal.Decimal, bool) {
	e, ok := l.latestPriceEvent(lineItemID, "")
	if !ok {
		return decimal.Decimal{}, false
	}
	return e.PriceFor(lineItemID)
}

// LastProposed is the most recent price the given sender proposed for the item.
func (l *Ledger) LastProposed(lineItemID int, sender entity.Sender) (decimal.Decimal, bool) {
	e, ok := l.latestPriceEvent(lineItemID, sender)
	if !ok {
		return decimal.Decimal{}, false
	}
	return e.PriceFor(lineItemID)
}

// ResolveAgreedPrice picks the price a line item settles at.
//
// If the newest offer/counter naming the item came from the client, the
// result is the item's target price rather than the client's counter. This
// mirrors the production behaviour and is kept on purpose until product
// confirms it; see DESIGN.md.
func (l *Ledger) ResolveAgreedPrice(lineItemID int) decimal.Decimal {
	item, ok := l.quote.FindLineItem(lineItemID)
	if !ok {
		return decimal.Zero
	}
	if e, ok := l.latestPriceEvent(lineItemID, ""); ok {
		if e.Sender == entity.SenderClient {
			return item.TargetPrice
		}
		price, _ := e.PriceFor(lineItemID)
		return price
	}
	if resp, ok := l.quote.ResponseSummary.Response(lineItemID); ok {
		return resp.Price
	}
	return item.TargetPrice
}

func (l *Ledger) latestPriceEvent(lineItemID int, sender entity.Sender) (entity.NegotiationEvent, bool) {
	events := Chronological(l.quote.Negotiation.History)
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if !e.Action.IsPriceAction() {
			continue
		}
		if sender != "" && e.Sender != sender {
			continue
		}
		if _, ok := e.PriceFor(lineItemID); ok {
			return e, true
		}
	}
	return entity.NegotiationEvent{}, false
}

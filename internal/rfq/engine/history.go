package engine

import (
	"slices"
	"sort"
	"time"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
)

// Row pairs a client ask with the factory reply that followed it. Either side
// may be missing: a factory-initiated offer or an unanswered client ask.
type Row struct {
	Client  *entity.NegotiationEvent `json:"client,omitempty"`
	Factory *entity.NegotiationEvent `json:"factory,omitempty"`
}

func (r Row) empty() bool {
	return r.Client == nil && r.Factory == nil
}

// Chronological returns a copy of events sorted by timestamp. Events with
// equal timestamps keep log order.
func Chronological(events []entity.NegotiationEvent) []entity.NegotiationEvent {
	out := slices.Clone(events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// FilterByLineItem keeps the events that price or mention the line item.
func FilterByLineItem(events []entity.NegotiationEvent, lineItemID int) []entity.NegotiationEvent {
	var out []entity.NegotiationEvent
	for _, e := range events {
		if e.References(lineItemID) {
			out = append(out, e)
		}
	}
	return out
}

// GroupRows folds a chronological log into display rows, newest first.
func GroupRows(events []entity.NegotiationEvent) []Row {
	var rows []Row
	var acc Row
	for _, e := range Chronological(events) {
		switch e.Sender {
		case entity.SenderClient:
			// A second client event before any reply starts its own row so
			// nothing in the log is dropped.
			if !acc.empty() {
				rows = append(rows, acc)
				acc = Row{}
			}
			acc.Client = &e
		case entity.SenderFactory:
			if acc.Client != nil {
				acc.Factory = &e
				rows = append(rows, acc)
				acc = Row{}
				continue
			}
			rows = append(rows, Row{Factory: &e})
		}
	}
	if !acc.empty() {
		rows = append(rows, acc)
	}
	slices.Reverse(rows)
	return rows
}

// Flatten returns every event referenced by rows.
func Flatten(rows []Row) []entity.NegotiationEvent {
	var out []entity.NegotiationEvent
	for _, r := range rows {
		if r.Client != nil {
			out = append(out, *r.Client)
		}
		if r.Factory != nil {
			out = append(out, *r.Factory)
		}
	}
	return out
}

// Timeline is the display history of a quote, optionally narrowed to one
// line item. Quotes that predate the structured log get a synthetic one.
func Timeline(q entity.Quote, lineItemID *int) []Row {
	if len(q.Negotiation.History) > 0 {
		events := q.Negotiation.History
		if lineItemID != nil {
			events = FilterByLineItem(events, *lineItemID)
		}
		return GroupRows(events)
	}

	events := SynthesizeHistory(q)
	if lineItemID != nil {
		kept := events[:0:0]
		for _, e := range events {
			// Legacy entries without per-item detail apply to the whole quote.
			if len(e.LineItemPrices) == 0 && e.RelatedLineItemID == nil || e.References(*lineItemID) {
				kept = append(kept, e)
			}
		}
		events = kept
	}
	return GroupRows(events)
}

const (
	legacyResponseID = "legacy-response"
	legacyCounterID  = "legacy-counter"
)

// SynthesizeHistory builds the two-entry history of a quote created before
// the structured log: the factory response, then the client's counter.
func SynthesizeHistory(q entity.Quote) []entity.NegotiationEvent {
	var events []entity.NegotiationEvent
	offerAt := q.SubmittedAt

	if rs := q.ResponseSummary; rs != nil {
		if rs.RespondedAt != nil {
			offerAt = *rs.RespondedAt
		}
		offer := entity.NegotiationEvent{
			ID:        legacyResponseID,
			Sender:    entity.SenderFactory,
			Message:   rs.Notes,
			Price:     rs.Price,
			Timestamp: offerAt,
			Action:    entity.ActionOffer,
		}
		for _, r := range rs.LineItemResponses {
			offer.LineItemPrices = append(offer.LineItemPrices, entity.LineItemPrice{LineItemID: r.LineItemID, Price: r.Price})
		}
		events = append(events, offer)
	}

	if n := q.Negotiation; n.HasLegacyCounter() {
		at := counterTime(q)
		if at.Before(offerAt) {
			at = offerAt
		}
		events = append(events, entity.NegotiationEvent{
			ID:        legacyCounterID,
			Sender:    entity.SenderClient,
			Message:   n.Message,
			Price:     n.CounterPrice,
			Timestamp: at,
			Action:    entity.ActionCounter,
		})
	}
	return events
}

func counterTime(q entity.Quote) time.Time {
	switch {
	case q.Negotiation.CounterAt != nil:
		return *q.Negotiation.CounterAt
	case q.ModifiedAt != nil:
		return *q.ModifiedAt
	default:
		return q.SubmittedAt
	}
}

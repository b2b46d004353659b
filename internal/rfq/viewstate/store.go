// Package viewstate holds the admin console's shared view of the quote queue
// and applies optimistic mutations to it.
package viewstate

import (
	"sync"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/sse"
)

// Publisher receives every committed view change.
type Publisher interface {
	Publish(eventType string, payload any)
}

// RemovedPayload is published when a quote leaves the view.
type RemovedPayload struct {
	ID string `json:"id"`
}

// Store is the explicit state container behind the console. It is replaced
// wholesale by list fetches and patched by id otherwise.
type Store struct {
	mu     sync.RWMutex
	order  []string
	quotes map[string]entity.Quote
	pub    Publisher
}

// NewStore creates an empty store. pub may be nil.
func NewStore(pub Publisher) *Store {
	return &Store{quotes: make(map[string]entity.Quote), pub: pub}
}

// ReplaceList swaps in a freshly fetched list, keeping its order.
func (s *Store) ReplaceList(quotes []entity.Quote) {
	order := make([]string, 0, len(quotes))
	m := make(map[string]entity.Quote, len(quotes))
	for _, q := range quotes {
		if _, dup := m[q.ID]; !dup {
			order = append(order, q.ID)
		}
		m[q.ID] = q.Clone()
	}

	s.mu.Lock()
	s.order = order
	s.quotes = m
	s.mu.Unlock()

	s.publish(sse.EventQuoteList, s.List())
}

// Upsert replaces the quote in place or appends it.
func (s *Store) Upsert(q entity.Quote) {
	q = q.Clone()
	s.mu.Lock()
	if _, ok := s.quotes[q.ID]; !ok {
		s.order = append(s.order, q.ID)
	}
	s.quotes[q.ID] = q
	s.mu.Unlock()

	s.publish(sse.EventQuoteUpdate, q)
}

// Remove drops the quote; it reports whether it was present.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	_, ok := s.quotes[id]
	if ok {
		delete(s.quotes, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if ok {
		s.publish(sse.EventQuoteRemoved, RemovedPayload{ID: id})
	}
	return ok
}

// Get returns a copy of the quote.
func (s *Store) Get(id string) (entity.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[id]
	if !ok {
		return entity.Quote{}, false
	}
	return q.Clone(), true
}

// List returns copies of all quotes in view order.
func (s *Store) List() []entity.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.Quote, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.quotes[id].Clone())
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Store) publish(eventType string, payload any) {
	if s.pub != nil {
		s.pub.Publish(eventType, payload)
	}
}

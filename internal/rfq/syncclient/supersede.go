package syncclient

import (
	"context"
	"sync"
)

// Token identifies one request of a superseding class.
type Token uint64

// Supersede allows at most one authoritative request of a kind. Begin cancels
// the previous request; Commit applies a result only if its token is still
// the newest.
type Supersede struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// Begin starts a new request, cancelling the one in flight.
func (s *Supersede) Begin(ctx context.Context) (context.Context, Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return ctx, Token(s.gen)
}

// Commit runs apply under the lock when tok is current and reports whether it ran.
func (s *Supersede) Commit(tok Token, apply func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if uint64(tok) != s.gen {
		return false
	}
	apply()
	return true
}

// IsCurrent reports whether tok belongs to the newest request.
func (s *Supersede) IsCurrent(tok Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(tok) == s.gen
}

// End releases the request's context if it is still the newest one.
func (s *Supersede) End(tok Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if uint64(tok) == s.gen && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

type sessionKey struct{}

// WithSession tags ctx with the interactive session (usually the operator id)
// whose requests supersede each other. Requests of different sessions never
// cancel one another.
func WithSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

func sessionOf(ctx context.Context) string {
	s, _ := ctx.Value(sessionKey{}).(string)
	return s
}

// Classes holds one Supersede per session.
type Classes struct {
	mu sync.Mutex
	m  map[string]*Supersede
}

// For returns the Supersede of a session, creating it on first use.
func (c *Classes) For(session string) *Supersede {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[string]*Supersede)
	}
	s, ok := c.m[session]
	if !ok {
		s = &Supersede{}
		c.m[session] = s
	}
	return s
}

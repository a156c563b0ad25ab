// Package selector implements the sticky-cursor Account selection
// policy. The teacher's sdk/cliproxy/auth package exposes a Selector
// interface with simple round-robin/fill-first strategies (inferred
// from its selector_test.go; the implementation itself was not part of
// the retrieved corpus). Spec.md §4.4 requires a different, stickier
// policy — select() never rotates away from a healthy active Account —
// so this is authored against the spec directly rather than copied.
package selector

import (
	"sync"
	"time"

	"github.com/router-for-me/acctproxy/internal/clockid"
	"github.com/router-for-me/acctproxy/internal/lifecycle"
	"github.com/router-for-me/acctproxy/internal/model"
	"github.com/router-for-me/acctproxy/internal/store"
)

// Selector picks an Account to service one request, maintaining a
// sticky cursor persisted via Store.
type Selector struct {
	store *store.Store
	clock clockid.Clock

	mu     sync.Mutex
	cursor int
	inited bool
}

func New(st *store.Store, clock clockid.Clock) *Selector {
	return &Selector{store: st, clock: clock}
}

func (s *Selector) loadCursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inited {
		s.cursor = s.store.ReadCursor()
		s.inited = true
	}
	return s.cursor
}

func (s *Selector) setCursor(i int) {
	s.mu.Lock()
	s.cursor = i
	s.inited = true
	s.mu.Unlock()
}

func normalizeCursor(cursor, n int) int {
	if n == 0 {
		return 0
	}
	cursor %= n
	if cursor < 0 {
		cursor += n
	}
	return cursor
}

// Select returns a usable Account, sticking to the current cursor
// when possible, scanning forward on failure. Returns nil if no
// Account is usable.
func (s *Selector) Select() *model.Account {
	seq := s.store.Snapshot()
	n := len(seq)
	if n == 0 {
		return nil
	}
	now := s.clock.Now()
	cursor := normalizeCursor(s.loadCursor(), n)

	if lifecycle.Usable(seq[cursor], now) {
		return s.pick(seq[cursor], cursor, now, false)
	}
	for i := 1; i <= n; i++ {
		idx := (cursor + i) % n
		if lifecycle.Usable(seq[idx], now) {
			return s.pick(seq[idx], idx, now, true)
		}
	}
	return nil
}

func (s *Selector) pick(a *model.Account, idx int, now time.Time, cursorMoved bool) *model.Account {
	if cursorMoved {
		s.setCursor(idx)
		s.store.WriteCursor(idx)
	}
	s.store.Update(a.ID, func(acc *model.Account) bool {
		acc.LastUsed = &now
		return true
	})
	a.LastUsed = &now
	return a
}

// Advance always moves past the current cursor and returns the next
// usable Account, or nil if none is usable.
func (s *Selector) Advance() *model.Account {
	seq := s.store.Snapshot()
	n := len(seq)
	if n == 0 {
		return nil
	}
	now := s.clock.Now()
	cursor := normalizeCursor(s.loadCursor(), n)
	for i := 1; i <= n; i++ {
		idx := (cursor + i) % n
		if lifecycle.Usable(seq[idx], now) {
			s.setCursor(idx)
			s.store.WriteCursor(idx)
			s.store.Update(seq[idx].ID, func(acc *model.Account) bool {
				acc.LastUsed = &now
				return true
			})
			seq[idx].LastUsed = &now
			return seq[idx]
		}
	}
	return nil
}

// Set directly sets the cursor to i, used by the "Activate"
// management operation.
func (s *Selector) Set(i int) {
	s.setCursor(i)
	s.store.WriteCursor(i)
}

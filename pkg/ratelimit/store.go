package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// Decision is the outcome of a single admission check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// record tracks request counts for one key within the current window.
// A record is only meaningful while now < resetAt; once expired it is
// treated as absent regardless of whether Reap has removed it yet.
type record struct {
	count   int
	resetAt time.Time
}

// Store is an in-memory fixed-window counter keyed by caller identity.
// It is shared by all concurrently executing requests; all record access
// goes through a single mutex so per-key increments never lose updates.
type Store struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time
}

// NewStore creates a store using the wall clock
func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock creates a store with an injected clock, for tests and
// hosts that control time explicitly
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		records: make(map[string]*record),
		now:     now,
	}
}

// Check counts one request against key's current window and decides
// admission. The counter increments even when the request is denied, so
// bursts beyond the limit do not reset the window early.
func (s *Store) Check(key string, window time.Duration, max int) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	rec, ok := s.records[key]
	if !ok || !now.Before(rec.resetAt) {
		rec = &record{count: 1, resetAt: now.Add(window)}
		s.records[key] = rec
	} else {
		rec.count++
	}

	remaining := max - rec.count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   rec.count <= max,
		Limit:     max,
		Remaining: remaining,
		ResetAt:   rec.resetAt,
	}
}

// Forgive excludes one previously counted request from key's window.
// It never drives the count below zero and has no effect on a record
// whose window has already reset.
func (s *Store) Forgive(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || !s.now().Before(rec.resetAt) {
		return
	}
	if rec.count > 0 {
		rec.count--
	}
}

// Reap removes records whose window has passed and returns how many were
// removed. Check already treats expired records as absent, so reaping only
// bounds memory; correctness never depends on sweep timing.
func (s *Store) Reap() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, rec := range s.records {
		if !now.Before(rec.resetAt) {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys, expired records included
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// ClientKey derives the default rate-limit key from the caller's network
// origin: forwarded-for header, then real-ip, then the direct remote
// address, then a fixed sentinel. The remote address drops its ephemeral
// port so one host maps to one bucket across connections.
func ClientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	return "unknown"
}

// Package ratelimit admits or rejects requests per user using a short and
// a long sliding window.
package ratelimit

import (
	"sync"
	"time"
)

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour
)

// Default ceilings.
const (
	DefaultPerMinute = 10
	DefaultPerHour   = 50
)

type window struct {
	minute []time.Time
	hour   []time.Time
}

// Limiter tracks request timestamps per user. It is safe for concurrent use.
type Limiter struct {
	perMinute int
	perHour   int
	now       func() time.Time

	mu    sync.Mutex
	users map[string]*window
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New returns a Limiter admitting at most perMinute requests in any 60s
// window and perHour in any 3600s window per user. Non-positive ceilings
// fall back to the defaults.
func New(perMinute, perHour int, opts ...Option) *Limiter {
	if perMinute <= 0 {
		perMinute = DefaultPerMinute
	}
	if perHour <= 0 {
		perHour = DefaultPerHour
	}
	l := &Limiter{
		perMinute: perMinute,
		perHour:   perHour,
		now:       time.Now,
		users:     make(map[string]*window),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit records a request for userID and reports whether it is allowed.
// Rejected requests are not recorded.
func (l *Limiter) Admit(userID string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.users[userID]
	if !ok {
		w = &window{}
		l.users[userID] = w
	}
	w.minute = trim(w.minute, now.Add(-minuteWindow))
	w.hour = trim(w.hour, now.Add(-hourWindow))

	if len(w.minute) >= l.perMinute || len(w.hour) >= l.perHour {
		return false
	}

	w.minute = append(w.minute, now)
	w.hour = append(w.hour, now)
	return true
}

// Prune drops expired timestamps and forgets users with an empty hour
// window. It returns the number of users removed.
func (l *Limiter) Prune() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, w := range l.users {
		w.minute = trim(w.minute, now.Add(-minuteWindow))
		w.hour = trim(w.hour, now.Add(-hourWindow))
		if len(w.hour) == 0 {
			delete(l.users, id)
			removed++
		}
	}
	return removed
}

// Stats describes the limiter state.
type Stats struct {
	TrackedUsers int // Users with any state
	ActiveUsers  int // Users with a request in the last minute
}

// Stats returns a snapshot of the limiter state.
func (l *Limiter) Stats() Stats {
	cutoff := l.now().Add(-minuteWindow)

	l.mu.Lock()
	defer l.mu.Unlock()

	st := Stats{TrackedUsers: len(l.users)}
	for _, w := range l.users {
		if n := len(w.minute); n > 0 && w.minute[n-1].After(cutoff) {
			st.ActiveUsers++
		}
	}
	return st
}

// trim drops timestamps at or before cutoff. ts is in ascending order.
func trim(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}

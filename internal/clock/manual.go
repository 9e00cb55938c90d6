package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual is a deterministic clock for tests. It never fires on its own:
// waiters created by After are parked until Advance moves current time to or
// past their deadline. A fired channel carries the waiter's deadline, not the
// time Advance landed on.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	waiters map[chan time.Time]time.Time
}

// NewManual constructs a Manual clock starting at the supplied time.
func NewManual(start time.Time) *Manual {
	return &Manual{
		now:     start.UTC(),
		waiters: make(map[chan time.Time]time.Time),
	}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// After parks a waiter due at now+d. A non-positive d fires immediately.
func (m *Manual) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	m.mu.Lock()
	due := m.now.Add(d)
	if d <= 0 {
		m.mu.Unlock()
		ch <- due
		return ch
	}
	m.waiters[ch] = due
	m.mu.Unlock()
	return ch
}

// Sleep blocks until the manual clock advances by at least d.
func (m *Manual) Sleep(d time.Duration) {
	<-m.After(d)
}

// Advance moves time forward by d and releases every waiter whose deadline
// has been reached, earliest deadline first.
func (m *Manual) Advance(d time.Duration) time.Time {
	if d < 0 {
		d = 0
	}
	type firing struct {
		ch  chan time.Time
		due time.Time
	}
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now
	var fired []firing
	for ch, due := range m.waiters {
		if due.After(now) {
			continue
		}
		fired = append(fired, firing{ch: ch, due: due})
		delete(m.waiters, ch)
	}
	m.mu.Unlock()

	sort.Slice(fired, func(i, j int) bool { return fired[i].due.Before(fired[j].due) })
	for _, f := range fired {
		f.ch <- f.due
	}
	return now
}

// Pending reports how many waiters are still parked.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}

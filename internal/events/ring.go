// Package events keeps a bounded history of account changes seen by
// molt serve, so local clients can poll for what happened since their last
// look instead of watching storage themselves.
package events

import (
	"sync"
	"time"
)

// Kinds of event.
const (
	KindExternalChange = "external_change" // another process wrote the durable tier
	KindAPIChange      = "api_change"      // a request to this server changed the store
	KindRemoteStatus   = "remote_status"   // Moltbook API reachability changed
)

// Event is one recorded change. Seq increases by one per event and is
// never reused, even after the ring wraps.
type Event struct {
	Seq      int64     `json:"seq"`
	Time     time.Time `json:"time"`
	Kind     string    `json:"kind"`
	Detail   string    `json:"detail,omitempty"`
	Accounts int       `json:"accounts"`
	ActiveID string    `json:"active_id,omitempty"`
}

// Ring is a thread-safe ring buffer holding the last N events.
type Ring struct {
	mu   sync.Mutex
	buf  []Event
	size int
	pos  int
	full bool
	seq  int64
	now  func() time.Time
}

// New creates a ring that keeps the last n events.
func New(n int) *Ring {
	if n < 1 {
		n = 1
	}
	return &Ring{buf: make([]Event, n), size: n, now: time.Now}
}

// Add stamps e with the next sequence number (and the time, if unset) and
// stores it, evicting the oldest event when full.
func (r *Ring) Add(e Event) Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	e.Seq = r.seq
	if e.Time.IsZero() {
		e.Time = r.now()
	}
	r.buf[r.pos] = e
	r.pos = (r.pos + 1) % r.size
	if r.pos == 0 {
		r.full = true
	}
	return e
}

// Seq returns the sequence number of the newest event, or 0.
func (r *Ring) Seq() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Events returns all stored events, oldest first.
func (r *Ring) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eventsLocked()
}

func (r *Ring) eventsLocked() []Event {
	if !r.full {
		out := make([]Event, r.pos)
		copy(out, r.buf[:r.pos])
		return out
	}
	out := make([]Event, r.size)
	copy(out, r.buf[r.pos:])
	copy(out[r.size-r.pos:], r.buf[:r.pos])
	return out
}

// Since returns the stored events with Seq greater than seq, oldest first.
// Events evicted before the caller looked are silently missing; callers
// detect the gap by comparing the first Seq with seq+1.
func (r *Ring) Since(seq int64) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.eventsLocked()
	for i, e := range all {
		if e.Seq > seq {
			return all[i:]
		}
	}
	return []Event{}
}

// Last returns the last n events. If fewer exist, returns all of them.
func (r *Ring) Last(n int) []Event {
	all := r.Events()
	if n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

package chat

import "sync"

// DefaultHistorySize is the replay window used when none is configured.
const DefaultHistorySize = 50

// History is a bounded, append-only log of broadcast events.
//
// It keeps the most recent capacity events in a ring buffer. Sequence ids are
// assigned on Append and keep increasing after old events are dropped.
type History struct {
	mu     sync.RWMutex
	buf    []Event
	start  int
	size   int
	lastID uint64
}

// NewHistory creates a History holding at most capacity events.
// A non-positive capacity falls back to DefaultHistorySize.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{buf: make([]Event, capacity)}
}

// Append stamps ev with the next sequence id, stores it and returns the
// stamped copy. When the buffer is full the oldest event is dropped.
func (h *History) Append(ev Event) Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	ev.ID = h.lastID

	capacity := len(h.buf)
	if h.size < capacity {
		h.buf[(h.start+h.size)%capacity] = ev
		h.size++
		return ev
	}
	h.buf[h.start] = ev
	h.start = (h.start + 1) % capacity
	return ev
}

// Recent returns up to limit of the most recent events, oldest first.
func (h *History) Recent(limit int) []Event {
	if limit <= 0 {
		return []Event{}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit > h.size {
		limit = h.size
	}
	out := make([]Event, limit)
	capacity := len(h.buf)
	first := h.start + h.size - limit
	for i := range out {
		out[i] = h.buf[(first+i)%capacity]
	}
	return out
}

// Len returns the number of stored events.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Cap returns the maximum number of stored events.
func (h *History) Cap() int {
	return len(h.buf)
}

// LastID returns the sequence id of the most recent event, or zero.
func (h *History) LastID() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastID
}

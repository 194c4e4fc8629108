package progress

import "bookctl/internal/model"

// Ring is a bounded append-only buffer of log entries. When full, the oldest
// entries are dropped.
type Ring struct {
	buf   []model.LogEntry
	start int
	n     int
}

// NewRing returns a ring holding up to capacity entries (DefaultLogCapacity if <= 0).
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &Ring{buf: make([]model.LogEntry, capacity)}
}

func (r *Ring) Append(entries ...model.LogEntry) {
	for _, e := range entries {
		if r.n < len(r.buf) {
			r.buf[(r.start+r.n)%len(r.buf)] = e
			r.n++
			continue
		}
		r.buf[r.start] = e
		r.start = (r.start + 1) % len(r.buf)
	}
}

// Entries returns a copy, oldest first.
func (r *Ring) Entries() []model.LogEntry {
	out := make([]model.LogEntry, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *Ring) Len() int { return r.n }

func (r *Ring) Reset() {
	clear(r.buf)
	r.start, r.n = 0, 0
}

// Package session tracks live relay connections and evicts idle ones.
package session

import (
	"net"
	"sync"
	"time"
)

// Conn is the registry's non-owning view of a connection. The registry
// never reads from or writes to it.
type Conn interface {
	RemoteAddr() net.Addr
}

// Entry is a point-in-time copy of one registry record.
type Entry struct {
	ID           string
	Conn         Conn
	LastActivity time.Time
}

type record struct {
	conn Conn
	last time.Time
}

// Registry maps session ids to connections and their last activity. All
// methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*record
	now     func() time.Time
}

type Option func(*Registry)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now reports the registry clock.
func (r *Registry) Now() time.Time {
	return r.now()
}

// Put inserts or overwrites id with a fresh timestamp.
func (r *Registry) Put(id string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &record{conn: conn, last: r.now()}
}

// Touch refreshes the activity timestamp of id. It reports whether id was
// present.
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.last = r.now()
	return true
}

func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

// Release removes id only while it still belongs to conn. It returns false
// when id is held by a different connection, true otherwise (including when
// id is already gone).
func (r *Registry) Release(id string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return true
	}
	if e.conn != conn {
		return false
	}
	delete(r.entries, id)
	return true
}

// Rekey moves the entry under oldID to newID with the same connection and a
// fresh timestamp. A prior entry under newID is overwritten. Nothing happens
// when oldID is absent.
func (r *Registry) Rekey(oldID, newID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[oldID]
	if !ok {
		return false
	}
	delete(r.entries, oldID)
	r.entries[newID] = &record{conn: e.conn, last: r.now()}
	return true
}

func (r *Registry) Lookup(id string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return Entry{ID: id, Conn: e.conn, LastActivity: e.last}, true
}

func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for id, e := range r.entries {
		out = append(out, Entry{ID: id, Conn: e.conn, LastActivity: e.last})
	}
	return out
}

// Sweep removes every entry whose last activity is before cutoff and returns
// their ids.
func (r *Registry) Sweep(cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var idle []string
	for id, e := range r.entries {
		if e.last.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	for _, id := range idle {
		delete(r.entries, id)
	}
	return idle
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

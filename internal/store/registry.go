package store

import (
	"io"
	"sort"
	"sync"
	"time"
)

// Session is the administrative record for one accepted connection. The
// handler goroutine owns the connection and is the only writer of the
// transfer fields; everyone else reads copies through the Registry. The
// Registry never closes Conn on its own — forced shutdown is coordinated
// by the listener, which closes sockets to unblock in-flight reads.
type Session struct {
	ID            string
	Conn          io.ReadWriteCloser
	IP            string
	Port          int
	Active        bool
	CurrentFile   string
	BytesReceived uint64
	ConnectedAt   time.Time
}

// Registry is the lock-guarded collection of live sessions, keyed by
// connection ID. Nothing performs I/O while holding the lock.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Insert registers a session. A duplicate ID replaces the old entry;
// IDs are random so this does not happen in practice.
func (r *Registry) Insert(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Update applies fn to the session under the lock, making the
// read-modify-write atomic with respect to concurrent snapshots.
// Returns false if the session is gone.
func (r *Registry) Update(id string, fn func(*Session)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	fn(s)
	return true
}

// Remove deletes a session. Removing an absent ID is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Get returns a copy of the session record.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns point-in-time copies of all sessions, oldest
// connection first. The copies do not track later mutations.
func (r *Registry) Snapshot() []Session {
	r.mu.Lock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// ForEachActive invokes fn with a copy of every active session. The copies
// are collected under the lock and fn runs outside it, so fn may write to
// the session's connection.
func (r *Registry) ForEachActive(fn func(Session)) {
	r.mu.Lock()
	active := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.Active {
			active = append(active, *s)
		}
	}
	r.mu.Unlock()

	for _, s := range active {
		fn(s)
	}
}

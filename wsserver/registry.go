package wsserver

import (
	"sync"

	"github.com/gbdevw/gowsserver/wssession"
)

// Concurrency safe set of live sessions indexed by session ID.
type registry struct {
	mu       sync.Mutex
	sessions map[string]*wssession.Session
}

// Factory
func newRegistry() *registry {
	return &registry{sessions: map[string]*wssession.Session{}}
}

// Add a session to the registry.
func (r *registry) add(session *wssession.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID()] = session
}

// Returns the session with the provided ID if any.
func (r *registry) get(id string) (*wssession.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	return session, ok
}

// Remove the session with the provided ID and return it. Only one caller gets the session.
func (r *registry) loadAndDelete(id string) (*wssession.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return session, ok
}

// Remove the session with the provided ID if present.
func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Returns the registered sessions.
func (r *registry) snapshot() []*wssession.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := make([]*wssession.Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// Returns the number of registered sessions.
func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

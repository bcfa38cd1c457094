package internal

import "sync"

// Session ties a live connection to the display name and room it joined.
type Session struct {
	ConnID   string
	UserName string
	Room     string
}

// Registry maps connection ids to their sessions. Lookups against unknown
// connections are a normal outcome, not an error.
type Registry struct {
	mutex    sync.RWMutex
	sessions map[string]Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

// Register upserts the session for a connection, overwriting any prior entry.
func (r *Registry) Register(connID, userName, room string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.sessions[connID] = Session{ConnID: connID, UserName: userName, Room: room}
}

// Lookup returns the session for a connection, if one exists.
func (r *Registry) Lookup(connID string) (Session, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	session, ok := r.sessions[connID]
	return session, ok
}

// Remove deletes and returns the session for a connection so callers can
// drive membership and notification cleanup from it.
func (r *Registry) Remove(connID string) (Session, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	session, ok := r.sessions[connID]
	if ok {
		delete(r.sessions, connID)
	}
	return session, ok
}

// Len reports the number of active sessions.
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.sessions)
}

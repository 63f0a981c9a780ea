package relay

import "sync"

// Registry maps active audio deposition ids to their live sessions. It is
// owned by the composition root and shared by all transport connections.
// Sessions insert themselves on start and remove themselves exactly once on
// stop, transport close or provider failure.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) add(depositionID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[depositionID] = s
}

func (r *Registry) remove(depositionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, depositionID)
}

// Get returns the live session for a deposition id, or nil.
func (r *Registry) Get(depositionID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[depositionID]
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

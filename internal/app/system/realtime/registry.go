package realtime

import "sync"

// Registry maps live connection ids to the user id each connection
// announced. It performs no authentication; the announced id is recorded
// as given.
type Registry struct {
	mu    sync.RWMutex
	users map[string]string
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[string]string)}
}

// Announce records userID for connID. A later announce replaces it.
func (r *Registry) Announce(connID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[connID] = userID
}

// Disconnect forgets connID. Unknown ids are ignored.
func (r *Registry) Disconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, connID)
}

// UserOf returns the user announced on connID, if any.
func (r *Registry) UserOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[connID]
	return u, ok
}

// Len returns the number of identified connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

package chat

import (
	"sync"

	"PGateway/logger"
)

// Registry tracks live connections per user. Two co-maintained indices:
// byUser for broadcast lookups, byConn for O(1) cleanup on close. A
// connection appears under at most one user; empty per-user sets are
// pruned immediately.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]*Client // user -> conn_id -> client
	byConn map[string]*Client            // conn_id -> client
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]*Client),
		byConn: make(map[string]*Client),
	}
}

func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.byUser[c.UserID]
	if m == nil {
		m = make(map[string]*Client)
		r.byUser[c.UserID] = m
	}
	m[c.ConnID] = c
	r.byConn[c.ConnID] = c
}

// Unregister removes the connection from whatever user it belongs to.
// Unknown connections are a no-op.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byConn[c.ConnID]
	if !ok {
		return
	}
	delete(r.byConn, c.ConnID)
	if m := r.byUser[rec.UserID]; m != nil {
		delete(m, c.ConnID)
		if len(m) == 0 {
			delete(r.byUser, rec.UserID)
		}
	}
}

func (r *Registry) listByUser(user string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byUser[user]
	if len(m) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

// ConnCount returns the number of live connections for a user.
func (r *Registry) ConnCount(user string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[user])
}

// Send pushes one {type, payload} frame to every open connection of the
// user. Connections that closed mid-broadcast are skipped, not errors.
func (r *Registry) Send(userID, typ string, payload any) {
	data, err := EncodeFrame(typ, payload)
	if err != nil {
		logger.Errorf("[Registry] encode frame type=%s err=%v", typ, err)
		return
	}
	for _, c := range r.listByUser(userID) {
		if !c.Open() {
			continue
		}
		c.Enqueue(data)
	}
}

// SendToMany deduplicates the target list before sending, so a user that
// shows up twice in a target set still gets exactly one frame per
// connection.
func (r *Registry) SendToMany(userIDs []string, typ string, payload any) {
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		r.Send(id, typ, payload)
	}
}

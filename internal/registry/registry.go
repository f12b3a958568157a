package registry

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hireloop/chat-relay/internal/model"
)

// Binding associates a live connection with a user and, once joined, a
// conversation. ConversationID is zero for admin connections that have not
// taken a conversation yet.
type Binding struct {
	UserID         int64
	Role           model.UserRole
	ConversationID int64
}

// Registry tracks live transport connections, their user bindings, and room
// membership (conversation -> subscribed connections). It is the only shared
// mutable in-process state of the relay; every operation is safe to call from
// concurrent event handlers.
//
// The registry is deliberately permissive: unbinding an unknown connection is
// a no-op and binding without a prior Register is accepted. A late or missing
// connect event must not corrupt chat state.
type Registry struct {
	mu        sync.RWMutex
	connected map[string]struct{}
	bindings  map[string]Binding
	rooms     map[int64]map[string]struct{} // conversationID -> set of connection IDs
	admins    map[string]struct{}
}

func New() *Registry {
	return &Registry{
		connected: make(map[string]struct{}),
		bindings:  make(map[string]Binding),
		rooms:     make(map[int64]map[string]struct{}),
		admins:    make(map[string]struct{}),
	}
}

// Register records a transport connect. No side effects beyond logging.
func (r *Registry) Register(connectionID string) {
	r.mu.Lock()
	r.connected[connectionID] = struct{}{}
	total := len(r.connected)
	r.mu.Unlock()

	log.Info().
		Str("connectionId", connectionID).
		Int("totalConnections", total).
		Msg("connection registered")
}

// Bind associates a connection with a user and conversation. Rebinding
// overwrites the prior association and moves room membership accordingly.
func (r *Registry) Bind(connectionID string, userID int64, role model.UserRole, conversationID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.bindings[connectionID]; ok && prev.ConversationID != 0 && prev.ConversationID != conversationID {
		r.removeFromRoom(prev.ConversationID, connectionID)
	}

	r.bindings[connectionID] = Binding{
		UserID:         userID,
		Role:           role,
		ConversationID: conversationID,
	}

	if role == model.UserRoleAdmin {
		r.admins[connectionID] = struct{}{}
	}

	if conversationID != 0 {
		if r.rooms[conversationID] == nil {
			r.rooms[conversationID] = make(map[string]struct{})
		}
		r.rooms[conversationID][connectionID] = struct{}{}
	}
}

// Unbind removes a connection from all tracking maps and returns the
// previously bound association for logging. It does not close conversations;
// a disconnect is not a close.
func (r *Registry) Unbind(connectionID string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.connected, connectionID)
	delete(r.admins, connectionID)

	binding, ok := r.bindings[connectionID]
	if !ok {
		return Binding{}, false
	}

	delete(r.bindings, connectionID)
	if binding.ConversationID != 0 {
		r.removeFromRoom(binding.ConversationID, connectionID)
	}
	return binding, true
}

// Lookup returns the binding for a connection, constant time.
func (r *Registry) Lookup(connectionID string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	binding, ok := r.bindings[connectionID]
	return binding, ok
}

// RoomMembers returns the connections subscribed to a conversation's room.
func (r *Registry) RoomMembers(conversationID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]string, 0, len(r.rooms[conversationID]))
	for connID := range r.rooms[conversationID] {
		members = append(members, connID)
	}
	return members
}

// AdminConnections returns every connection bound as an admin, regardless of
// which conversation it is in.
func (r *Registry) AdminConnections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]string, 0, len(r.admins))
	for connID := range r.admins {
		conns = append(conns, connID)
	}
	return conns
}

// CloseRoom drops a conversation's room and returns the evicted connections
// so the transport can tear down channel subscriptions. Members stay
// connected and keep their binding, conversation id included: a send on a
// closed conversation must surface the closed status from storage, not look
// like the connection never joined. The binding moves on the next join.
func (r *Registry) CloseRoom(conversationID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := make([]string, 0, len(r.rooms[conversationID]))
	for connID := range r.rooms[conversationID] {
		members = append(members, connID)
	}
	delete(r.rooms, conversationID)
	return members
}

// TotalConnections returns the number of registered connections.
func (r *Registry) TotalConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connected)
}

// removeFromRoom must be called with the write lock held.
func (r *Registry) removeFromRoom(conversationID int64, connectionID string) {
	if room, ok := r.rooms[conversationID]; ok {
		delete(room, connectionID)
		if len(room) == 0 {
			delete(r.rooms, conversationID)
		}
	}
}

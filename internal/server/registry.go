package server

import (
	"sync"
)

// Registry is the sole owner of live room membership. It is in-memory and
// process-local; a connection is subscribed to at most one room at a time.
type Registry struct {
	mu      sync.RWMutex
	members map[int]map[*Client]struct{}
	current map[*Client]int
}

func NewRegistry() *Registry {
	return &Registry{
		members: make(map[int]map[*Client]struct{}),
		current: make(map[*Client]int),
	}
}

// Join subscribes c to roomId, removing it from any previously joined room.
// It returns the previous room id when the client switched rooms. Joining a
// room the client is already in is a no-op.
func (r *Registry) Join(c *Client, roomId int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.current[c]
	if ok && prev == roomId {
		return 0, false
	}
	if ok {
		r.removeLocked(c, prev)
	}

	if r.members[roomId] == nil {
		r.members[roomId] = make(map[*Client]struct{})
	}
	r.members[roomId][c] = struct{}{}
	r.current[c] = roomId

	return prev, ok
}

// Leave unsubscribes c from roomId. Absent members are a no-op.
func (r *Registry) Leave(c *Client, roomId int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current[c] != roomId {
		return
	}
	r.removeLocked(c, roomId)
	delete(r.current, c)
}

// OnDisconnect removes c from whatever room it was in. It reports the room
// the client was subscribed to, if any, and never fails.
func (r *Registry) OnDisconnect(c *Client) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomId, ok := r.current[c]
	if !ok {
		return 0, false
	}

	r.removeLocked(c, roomId)
	delete(r.current, c)
	return roomId, true
}

// MembersOf returns a snapshot of the room's current members. Unknown rooms
// have no members, which is not an error.
func (r *Registry) MembersOf(roomId int) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*Client, 0, len(r.members[roomId]))
	for c := range r.members[roomId] {
		members = append(members, c)
	}
	return members
}

// CurrentRoom reports the room c is subscribed to.
func (r *Registry) CurrentRoom(c *Client) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomId, ok := r.current[c]
	return roomId, ok
}

// Count reports the number of live members in a room.
func (r *Registry) Count(roomId int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.members[roomId])
}

func (r *Registry) removeLocked(c *Client, roomId int) {
	if members, ok := r.members[roomId]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(r.members, roomId)
		}
	}
}

package realtime

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Rooms maps rooms to the connections subscribed to them. Membership is per
// connection, and a reverse index keeps DropConnection proportional to the
// number of rooms the connection was in.
type Rooms struct {
	mu     sync.RWMutex
	byRoom map[string]map[string]struct{} // roomID -> connIDs
	byConn map[string]map[string]struct{} // connID -> roomIDs
}

// NewRooms creates an empty multiplexer.
func NewRooms() *Rooms {
	return &Rooms{
		byRoom: make(map[string]map[string]struct{}),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Subscribe adds connID to roomID. Subscribing twice is a no-op; the result
// reports whether the membership is new.
func (r *Rooms) Subscribe(roomID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.byRoom[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.byRoom[roomID] = members
	}
	if _, exists := members[connID]; exists {
		return false
	}
	members[connID] = struct{}{}

	rooms, ok := r.byConn[connID]
	if !ok {
		rooms = make(map[string]struct{})
		r.byConn[connID] = rooms
	}
	rooms[roomID] = struct{}{}
	return true
}

// Unsubscribe removes connID from roomID. Removing a non-member is a no-op.
func (r *Rooms) Unsubscribe(roomID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(roomID, connID)
}

func (r *Rooms) removeLocked(roomID, connID string) bool {
	members, ok := r.byRoom[roomID]
	if !ok {
		return false
	}
	if _, exists := members[connID]; !exists {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.byRoom, roomID)
	}

	if rooms, ok := r.byConn[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.byConn, connID)
		}
	}
	return true
}

// SubscribersOf returns a copy of the connections subscribed to roomID.
func (r *Rooms) SubscribersOf(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.byRoom[roomID])
}

// IsSubscribed reports whether connID is subscribed to roomID.
func (r *Rooms) IsSubscribed(roomID, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byRoom[roomID][connID]
	return ok
}

// RoomsOf returns the rooms connID is subscribed to, sorted.
func (r *Rooms) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := lo.Keys(r.byConn[connID])
	sort.Strings(rooms)
	return rooms
}

// DropConnection removes connID from every room it was subscribed to and
// returns those rooms.
func (r *Rooms) DropConnection(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := lo.Keys(r.byConn[connID])
	for _, roomID := range rooms {
		r.removeLocked(roomID, connID)
	}
	sort.Strings(rooms)
	return rooms
}

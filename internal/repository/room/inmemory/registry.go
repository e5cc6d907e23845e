package inmemory

import (
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/exp/maps"
)

// Listener observes membership changes. Calls happen after the registry lock is released,
// in the order the mutations were committed for a given connection.
type Listener interface {
	MemberJoined(roomKey, connId string)
	MemberLeft(roomKey, connId string)
}

type event struct {
	joined  bool
	roomKey string
	connId  string
}

// Registry owns the room -> members mapping. Rooms exist only while they have members.
type Registry struct {
	mu        sync.RWMutex
	rooms     map[string]map[string]struct{}
	connRooms map[string]string
	listeners []Listener
	logger    *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		rooms:     make(map[string]map[string]struct{}),
		connRooms: make(map[string]string),
		logger:    logger,
	}
}

// Subscribe must be called before the registry is shared between goroutines.
func (r *Registry) Subscribe(l Listener) {
	r.listeners = append(r.listeners, l)
}

// Join adds connId to roomKey. A connection belongs to at most one room, so joining
// another room first leaves the current one; previousRoom reports it.
func (r *Registry) Join(connId, roomKey string) (previousRoom string, joined bool) {
	r.mu.Lock()
	var events []event

	current, ok := r.connRooms[connId]
	if ok && current == roomKey {
		r.mu.Unlock()
		r.logger.Debug("connection already in room", "connection_id", connId, "room_key", roomKey)
		return "", false
	}
	if ok {
		r.removeLocked(connId, current)
		events = append(events, event{joined: false, roomKey: current, connId: connId})
		previousRoom = current
	}

	members, exists := r.rooms[roomKey]
	if !exists {
		members = make(map[string]struct{})
		r.rooms[roomKey] = members
		r.logger.Debug("room created", "room_key", roomKey)
	}
	members[connId] = struct{}{}
	r.connRooms[connId] = roomKey
	events = append(events, event{joined: true, roomKey: roomKey, connId: connId})
	r.mu.Unlock()

	r.notify(events)
	return previousRoom, true
}

// Leave removes connId from roomKey. An empty roomKey means the current room.
// Leaving a room the connection is not in is a no-op.
func (r *Registry) Leave(connId, roomKey string) (string, bool) {
	r.mu.Lock()
	current, ok := r.connRooms[connId]
	if !ok || (roomKey != "" && current != roomKey) {
		r.mu.Unlock()
		return "", false
	}
	r.removeLocked(connId, current)
	r.mu.Unlock()

	r.notify([]event{{joined: false, roomKey: current, connId: connId}})
	return current, true
}

// Disconnect drops connId from whatever room it was in.
func (r *Registry) Disconnect(connId string) (string, bool) {
	return r.Leave(connId, "")
}

// MembersOf returns the sorted connection ids of roomKey.
func (r *Registry) MembersOf(roomKey string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[roomKey]
	if !ok {
		return []string{}
	}

	ids := maps.Keys(members)
	sort.Strings(ids)
	return ids
}

func (r *Registry) RoomOf(connId string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomKey, ok := r.connRooms[connId]
	return roomKey, ok
}

func (r *Registry) IsMember(connId, roomKey string) bool {
	current, ok := r.RoomOf(connId)
	return ok && current == roomKey
}

func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := maps.Keys(r.rooms)
	sort.Strings(keys)
	return keys
}

func (r *Registry) removeLocked(connId, roomKey string) {
	delete(r.connRooms, connId)

	members := r.rooms[roomKey]
	delete(members, connId)
	if len(members) == 0 {
		delete(r.rooms, roomKey)
		r.logger.Debug("room deleted", "room_key", roomKey)
	}
}

func (r *Registry) notify(events []event) {
	for _, e := range events {
		for _, l := range r.listeners {
			if e.joined {
				l.MemberJoined(e.roomKey, e.connId)
			} else {
				l.MemberLeft(e.roomKey, e.connId)
			}
		}
	}
}

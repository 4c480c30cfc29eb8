// Package notify delivers order events to live subscribers grouped in rooms.
//
// Delivery is at-most-once and best effort: events published to a room
// with no members, or to a member whose buffer is full, are dropped.
package notify

import (
	"strings"
	"sync"

	"github.com/go-faster/errors"
)

// adminRoomName is the wire name of the admin room.
const adminRoomName = "admin"

// ErrInvalidRoom is returned when a room name cannot be parsed.
var ErrInvalidRoom = errors.New("invalid room")

// Room identifies a subscriber group. The zero value is not a valid room.
type Room struct {
	admin    bool
	customer string
}

// AdminRoom returns the room every admin dashboard joins.
func AdminRoom() Room { return Room{admin: true} }

// CustomerRoom returns the room of a single customer.
func CustomerRoom(id string) Room { return Room{customer: id} }

// ParseRoom converts a wire room name into a Room.
func ParseRoom(name string) (Room, error) {
	name = strings.TrimSpace(name)
	switch name {
	case "":
		return Room{}, ErrInvalidRoom
	case adminRoomName:
		return AdminRoom(), nil
	default:
		return CustomerRoom(name), nil
	}
}

// IsAdmin reports whether r is the admin room.
func (r Room) IsAdmin() bool { return r.admin }

// CustomerID returns the customer of a customer room, or "".
func (r Room) CustomerID() string { return r.customer }

// String returns the wire name of the room.
func (r Room) String() string {
	if r.admin {
		return adminRoomName
	}
	return r.customer
}

// Event is a named, pre-encoded payload.
type Event struct {
	Name string
	Data []byte
}

// Subscriber receives events for the rooms it joined.
type Subscriber struct {
	ch chan Event

	mu    sync.Mutex
	rooms map[Room]struct{}
}

// C returns the channel events are delivered on. It is never closed by the
// Hub.
func (s *Subscriber) C() <-chan Event { return s.ch }

// Rooms returns the rooms s is currently a member of.
func (s *Subscriber) Rooms() []Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Room, 0, len(s.rooms))
	for r := range s.rooms {
		out = append(out, r)
	}
	return out
}

// Hub is an in-process room registry.
type Hub struct {
	buffer int

	mu    sync.RWMutex
	rooms map[Room]map[*Subscriber]struct{}
}

// NewHub creates a Hub whose subscribers buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		buffer: buffer,
		rooms:  make(map[Room]map[*Subscriber]struct{}),
	}
}

// Subscribe creates a subscriber that is not in any room yet.
func (h *Hub) Subscribe() *Subscriber {
	return &Subscriber{
		ch:    make(chan Event, h.buffer),
		rooms: make(map[Room]struct{}),
	}
}

// Join adds s to room. Joining twice is a no-op.
func (h *Hub) Join(s *Subscriber, room Room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Subscriber]struct{})
		h.rooms[room] = members
	}
	members[s] = struct{}{}

	s.mu.Lock()
	s.rooms[room] = struct{}{}
	s.mu.Unlock()
}

// Leave removes s from room. Leaving a room s is not in is a no-op.
func (h *Hub) Leave(s *Subscriber, room Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(s, room)
}

// LeaveAll removes s from every room.
func (h *Hub) LeaveAll(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range s.Rooms() {
		h.leave(s, room)
	}
}

// h.mu must be held.
func (h *Hub) leave(s *Subscriber, room Room) {
	if members, ok := h.rooms[room]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	s.mu.Lock()
	delete(s.rooms, room)
	s.mu.Unlock()
}

// Members returns the number of subscribers in room.
func (h *Hub) Members(room Room) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Publish delivers ev to every current member of room without blocking and
// returns the number of members it reached.
func (h *Hub) Publish(room Room, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for s := range h.rooms[room] {
		select {
		case s.ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

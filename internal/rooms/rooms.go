// Package rooms tracks ephemeral realtime room membership. Room identifiers
// for a pair of users come from a Namer so the encoding can change without
// touching callers.
package rooms

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ID identifies a room.
type ID string

// Namer computes room identifiers.
type Namer interface {
	// Pair returns the room shared by a and b. Pair(a, b) == Pair(b, a).
	Pair(a, b uuid.UUID) ID
	// Personal returns the room keyed by a single user.
	Personal(userID uuid.UUID) ID
}

// SortedNamer sorts the two ids and joins them with Separator.
type SortedNamer struct {
	Separator string
}

func DefaultNamer() SortedNamer {
	return SortedNamer{Separator: "_"}
}

func (n SortedNamer) Pair(a, b uuid.UUID) ID {
	ids := []string{a.String(), b.String()}
	sort.Strings(ids)
	return ID(strings.Join(ids, n.Separator))
}

func (n SortedNamer) Personal(userID uuid.UUID) ID {
	return ID(userID.String())
}

// Manager holds room membership for members of type M (typically a
// connection handle).
type Manager[M comparable] struct {
	mu      sync.RWMutex
	namer   Namer
	members map[ID]map[M]struct{}
	joined  map[M]map[ID]struct{}
}

func NewManager[M comparable](namer Namer) *Manager[M] {
	return &Manager[M]{
		namer:   namer,
		members: make(map[ID]map[M]struct{}),
		joined:  make(map[M]map[ID]struct{}),
	}
}

func (m *Manager[M]) Namer() Namer {
	return m.namer
}

// Join adds member to room. Joining twice is a no-op.
func (m *Manager[M]) Join(member M, room ID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.members[room] == nil {
		m.members[room] = make(map[M]struct{})
	}
	m.members[room][member] = struct{}{}
	if m.joined[member] == nil {
		m.joined[member] = make(map[ID]struct{})
	}
	m.joined[member][room] = struct{}{}
}

// JoinPair joins the room shared by a and b and returns its id.
func (m *Manager[M]) JoinPair(member M, a, b uuid.UUID) ID {
	room := m.namer.Pair(a, b)
	m.Join(member, room)
	return room
}

// JoinPersonal joins userID's personal room and returns its id.
func (m *Manager[M]) JoinPersonal(member M, userID uuid.UUID) ID {
	room := m.namer.Personal(userID)
	m.Join(member, room)
	return room
}

// Leave removes member from room. It reports whether member was in it.
func (m *Manager[M]) Leave(member M, room ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(member, room)
}

func (m *Manager[M]) leaveLocked(member M, room ID) bool {
	set, ok := m.members[room]
	if !ok {
		return false
	}
	if _, ok := set[member]; !ok {
		return false
	}
	delete(set, member)
	if len(set) == 0 {
		delete(m.members, room)
	}
	if rooms := m.joined[member]; rooms != nil {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(m.joined, member)
		}
	}
	return true
}

// LeaveAll drops every membership of member and returns the rooms it left.
func (m *Manager[M]) LeaveAll(member M) []ID {
	m.mu.Lock()
	defer m.mu.Unlock()

	left := make([]ID, 0, len(m.joined[member]))
	for room := range m.joined[member] {
		left = append(left, room)
	}
	for _, room := range left {
		m.leaveLocked(member, room)
	}
	return left
}

// Members returns a snapshot of room's members.
func (m *Manager[M]) Members(room ID) []M {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]M, 0, len(m.members[room]))
	for member := range m.members[room] {
		out = append(out, member)
	}
	return out
}

// Rooms returns a snapshot of the rooms member has joined.
func (m *Manager[M]) Rooms(member M) []ID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ID, 0, len(m.joined[member]))
	for room := range m.joined[member] {
		out = append(out, room)
	}
	return out
}

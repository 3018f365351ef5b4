// Package presence tracks which users are online in this process.
package presence

import (
	"bytes"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Registry maps a user to its single active connection handle.
type Registry[H comparable] interface {
	// Register replaces any existing entry for userID with handle.
	Register(userID uuid.UUID, handle H)
	// Unregister removes the entry owned by handle, if any.
	Unregister(handle H)
	ListOnline() []uuid.UUID
}

// Map is an in-memory Registry. onChange is called with the new online set
// after every mutation that changed it, outside the registry lock. Calls are
// serialized and never go backwards: a snapshot older than the last one
// delivered is dropped. onChange must not call Register or Unregister.
type Map[H comparable] struct {
	mu       sync.Mutex
	byUser   map[uuid.UUID]H
	byHandle map[H]uuid.UUID
	version  uint64
	onChange func(online []uuid.UUID)

	notifyMu  sync.Mutex
	delivered uint64
}

func NewMap[H comparable](onChange func(online []uuid.UUID)) *Map[H] {
	return &Map[H]{
		byUser:   make(map[uuid.UUID]H),
		byHandle: make(map[H]uuid.UUID),
		onChange: onChange,
	}
}

func (m *Map[H]) Register(userID uuid.UUID, handle H) {
	m.mu.Lock()
	if prev, ok := m.byUser[userID]; ok {
		if prev == handle {
			m.mu.Unlock()
			return
		}
		delete(m.byHandle, prev)
	}
	// a handle belongs to one user at a time
	if prevUser, ok := m.byHandle[handle]; ok {
		delete(m.byUser, prevUser)
	}
	m.byUser[userID] = handle
	m.byHandle[handle] = userID
	online, version := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(version, online)
}

func (m *Map[H]) Unregister(handle H) {
	m.mu.Lock()
	userID, ok := m.byHandle[handle]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.byHandle, handle)
	delete(m.byUser, userID)
	online, version := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(version, online)
}

func (m *Map[H]) ListOnline() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked()
}

// Handle returns the current handle of userID.
func (m *Map[H]) Handle(userID uuid.UUID) (H, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.byUser[userID]
	return h, ok
}

func (m *Map[H]) listLocked() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m.byUser))
	for id := range m.byUser {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// snapshotLocked stamps the current online set with the next version.
func (m *Map[H]) snapshotLocked() ([]uuid.UUID, uint64) {
	m.version++
	return m.listLocked(), m.version
}

func (m *Map[H]) notify(version uint64, online []uuid.UUID) {
	if m.onChange == nil {
		return
	}
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	if version <= m.delivered {
		return
	}
	m.delivered = version
	m.onChange(online)
}

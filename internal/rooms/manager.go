// Package rooms keeps the chat broadcast groups: which connection handles
// receive events for which chat.
//
// Membership is only changed through Manager commands. The index is kept in
// both directions so a disconnect can leave every room without scanning all
// chats.
package rooms

import (
	"sort"
	"sync"

	"github.com/HassanDev-git/HK.Chat/internal/logger"
)

// HandleLookup resolves the live handles of a user.
type HandleLookup interface {
	HandlesOf(userID int64) []string
}

// Manager owns room membership.
type Manager struct {
	handles HandleLookup

	mu     sync.RWMutex
	byChat map[int64]map[string]struct{}
	byConn map[string]map[int64]struct{}
}

// NewManager creates an empty manager. handles is used by AddUserToRoom and
// RemoveUserFromRoom.
func NewManager(handles HandleLookup) *Manager {
	return &Manager{
		handles: handles,
		byChat:  make(map[int64]map[string]struct{}),
		byConn:  make(map[string]map[int64]struct{}),
	}
}

// Join adds the handle to the chat room. Joining twice is a no-op.
func (m *Manager) Join(connID string, chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joinLocked(connID, chatID)
}

// Leave removes the handle from the chat room. Leaving a room the handle is
// not in is a no-op.
func (m *Manager) Leave(connID string, chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(connID, chatID)
}

// Attach joins the handle to every given chat in one step. It is used at
// connection setup before any event handler runs.
func (m *Manager) Attach(connID string, chatIDs []int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range chatIDs {
		m.joinLocked(connID, id)
	}
	logger.Debugf("Rooms: handle %s attached to %d rooms", connID, len(chatIDs))
}

// Detach removes the handle from every room it is in.
func (m *Manager) Detach(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for chatID := range m.byConn[connID] {
		m.leaveLocked(connID, chatID)
	}
	delete(m.byConn, connID)
}

// AddUserToRoom joins every live handle of the user to the chat room.
func (m *Manager) AddUserToRoom(userID, chatID int64) int {
	handles := m.handlesOf(userID)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range handles {
		m.joinLocked(h, chatID)
	}
	logger.Tracef("Rooms: user %d joined chat %d on %d handles", userID, chatID, len(handles))
	return len(handles)
}

// RemoveUserFromRoom removes every live handle of the user from the room.
func (m *Manager) RemoveUserFromRoom(userID, chatID int64) int {
	handles := m.handlesOf(userID)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range handles {
		m.leaveLocked(h, chatID)
	}
	logger.Tracef("Rooms: user %d left chat %d on %d handles", userID, chatID, len(handles))
	return len(handles)
}

// Members returns the handles in the chat room, sorted.
func (m *Manager) Members(chatID int64) []string {
	m.mu.RLock()
	set := m.byChat[chatID]
	out := make([]string, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

// RoomsOf returns the chats the handle is joined to, ascending.
func (m *Manager) RoomsOf(connID string) []int64 {
	m.mu.RLock()
	set := m.byConn[connID]
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Manager) handlesOf(userID int64) []string {
	if m.handles == nil {
		return nil
	}
	return m.handles.HandlesOf(userID)
}

func (m *Manager) joinLocked(connID string, chatID int64) {
	members, ok := m.byChat[chatID]
	if !ok {
		members = make(map[string]struct{})
		m.byChat[chatID] = members
	}
	members[connID] = struct{}{}

	chats, ok := m.byConn[connID]
	if !ok {
		chats = make(map[int64]struct{})
		m.byConn[connID] = chats
	}
	chats[chatID] = struct{}{}
}

func (m *Manager) leaveLocked(connID string, chatID int64) {
	if members, ok := m.byChat[chatID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(m.byChat, chatID)
		}
	}
	if chats, ok := m.byConn[connID]; ok {
		delete(chats, chatID)
		if len(chats) == 0 {
			delete(m.byConn, connID)
		}
	}
}

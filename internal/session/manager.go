// Package session keeps reply work for one chat in arrival order without
// letting a busy chat occupy more than one goroutine.
package session

import (
	"sync"
	"time"
)

// Manager tracks, per chat, whether some goroutine currently owns the chat
// and what work is queued behind it. Different chats run in parallel.
type Manager struct {
	mu    sync.Mutex
	chats map[string]*chatState
	now   func() time.Time
}

type chatState struct {
	busy     bool
	pending  []func()
	lastUsed time.Time
}

func NewManager() *Manager {
	return &Manager{
		chats: make(map[string]*chatState),
		now:   time.Now,
	}
}

// Claim registers fn for the chat. When nobody owns the chat the caller
// becomes the owner, Claim returns true and the caller must pass fn to Run.
// Otherwise fn is queued behind the owner and Claim returns false.
func (m *Manager) Claim(chatID string, fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.chats[chatID]
	if !ok {
		cs = &chatState{}
		m.chats[chatID] = cs
	}
	if cs.busy {
		cs.pending = append(cs.pending, fn)
		return false
	}
	cs.busy = true
	return true
}

// Run is called by the owner of a claimed chat. It runs fn, then whatever
// was queued for the chat meanwhile, in order, and releases the chat once
// nothing is left.
//
// fn must not panic; if it does, ownership is released and the queued work
// waits for the next claim on that chat.
func (m *Manager) Run(chatID string, fn func()) {
	m.mu.Lock()
	cs := m.chats[chatID]
	m.mu.Unlock()
	if cs == nil {
		return
	}

	released := false
	defer func() {
		if !released {
			m.mu.Lock()
			cs.busy = false
			cs.lastUsed = m.now()
			m.mu.Unlock()
		}
	}()

	for next := fn; next != nil; {
		next()

		m.mu.Lock()
		if len(cs.pending) == 0 {
			cs.busy = false
			cs.lastUsed = m.now()
			released = true
			next = nil
		} else {
			next = cs.pending[0]
			cs.pending[0] = nil
			cs.pending = cs.pending[1:]
		}
		m.mu.Unlock()
	}
}

// Do claims the chat and, when that succeeds, runs fn and the chat's queued
// work on the calling goroutine. It reports whether the caller was the owner.
func (m *Manager) Do(chatID string, fn func()) bool {
	if !m.Claim(chatID, fn) {
		return false
	}
	m.Run(chatID, fn)
	return true
}

// Pending reports how much work is queued behind the chat's owner.
func (m *Manager) Pending(chatID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs, ok := m.chats[chatID]; ok {
		return len(cs.pending)
	}
	return 0
}

// Cleanup drops chats idle for longer than maxAge and returns how many were
// removed. Owned chats and chats with queued work are never removed.
func (m *Manager) Cleanup(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for chatID, cs := range m.chats {
		if !cs.busy && len(cs.pending) == 0 && now.Sub(cs.lastUsed) > maxAge {
			delete(m.chats, chatID)
			removed++
		}
	}
	return removed
}

// Len reports how many chats currently have an entry.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chats)
}

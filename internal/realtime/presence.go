package realtime

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// PresenceListener receives the full online set after every change. It is
// called with the registry lock held so listeners observe changes in order;
// it must not block or call back into the registry.
type PresenceListener func(online []string)

// Presence maps each online user to the single connection that currently
// represents it. The latest authentication for a user wins.
type Presence struct {
	mu       sync.RWMutex
	byUser   map[string]string // userID -> connID
	onChange PresenceListener
}

// NewPresence creates an empty registry. onChange may be nil.
func NewPresence(onChange PresenceListener) *Presence {
	return &Presence{
		byUser:   make(map[string]string),
		onChange: onChange,
	}
}

// SetOnline records connID as the active connection of userID, replacing any
// previous one, and notifies the listener.
func (p *Presence) SetOnline(userID, connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.byUser[userID] = connID
	p.notifyLocked()
}

// RemoveIfCurrent removes userID only while connID is still its recorded
// connection. A close from a connection that was already superseded is a
// no-op and reports false.
func (p *Presence) RemoveIfCurrent(userID, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, ok := p.byUser[userID]
	if !ok || current != connID {
		return false
	}
	delete(p.byUser, userID)
	p.notifyLocked()
	return true
}

// IsOnline reports whether userID has an active connection.
func (p *Presence) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.byUser[userID]
	return ok
}

// ConnectionOf returns the active connection of userID.
func (p *Presence) ConnectionOf(userID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	connID, ok := p.byUser[userID]
	return connID, ok
}

// Snapshot returns the online user ids, sorted.
func (p *Presence) Snapshot() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

// Len returns the number of online users.
func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser)
}

func (p *Presence) snapshotLocked() []string {
	users := lo.Keys(p.byUser)
	sort.Strings(users)
	return users
}

func (p *Presence) notifyLocked() {
	if p.onChange != nil {
		p.onChange(p.snapshotLocked())
	}
}

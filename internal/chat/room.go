// ============================================================================
// Beaver-Chat Room - Shared Chat State
// ============================================================================
//
// Package: internal/chat
// File: room.go
// Function: In-memory store of online users, offline users, and the message
// log, shared by every worker goroutine.
//
// User State Transitions:
//   (unseen) --AddUser--> online --RemoveUser--> offline
//                           ▲                       │
//                           └────────AddUser────────┘
//   RemoveUser on an unseen name moves it straight to offline.
//
// Invariants:
//   - a name is never in both sets
//   - a name nobody mentioned is in neither set
//   - Messages() is sorted by timestamp regardless of append order
//
// Concurrency:
//   One sync.Mutex guards sets and log together. Every method holds it for
//   its whole body and never performs I/O while holding it. Readers receive
//   copies, so later mutations never show through a returned slice.
//   A sync.Mutex cannot be poisoned; a panic in a caller never leaves the
//   room unusable because every unlock is deferred.
//
// ============================================================================

package chat

import (
	"sort"
	"strings"
	"sync"

	"github.com/ChuLiYu/beaver-chat/pkg/types"
)

// Stats summarises room occupancy.
type Stats struct {
	Online   int
	Offline  int
	Messages int
}

// Room is the chat room state. The zero value is not usable; call NewRoom.
type Room struct {
	mu       sync.Mutex
	online   map[string]struct{}
	offline  map[string]struct{}
	messages []types.Message
}

// NewRoom returns an empty room.
func NewRoom() *Room {
	return &Room{
		online:   make(map[string]struct{}),
		offline:  make(map[string]struct{}),
		messages: make([]types.Message, 0),
	}
}

// AddUser marks name as online, removing it from the offline set if present.
func (r *Room) AddUser(name string) {
	name = strings.TrimSpace(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.offline, name)
	r.online[name] = struct{}{}
}

// RemoveUser marks name as offline.
func (r *Room) RemoveUser(name string) {
	name = strings.TrimSpace(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.online, name)
	r.offline[name] = struct{}{}
}

// OnlineUsers returns a sorted snapshot of the online set.
func (r *Room) OnlineUsers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedNames(r.online)
}

// OfflineUsers returns a sorted snapshot of the offline set.
func (r *Room) OfflineUsers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedNames(r.offline)
}

// Users returns both sets taken under a single lock acquisition.
func (r *Room) Users() types.UserList {
	r.mu.Lock()
	defer r.mu.Unlock()

	return types.UserList{
		Online:  sortedNames(r.online),
		Offline: sortedNames(r.offline),
	}
}

// AddMessage appends m to the log.
func (r *Room) AddMessage(m types.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, m)
}

// Messages returns a copy of the log sorted ascending by timestamp. Messages
// sharing a timestamp keep their append order.
func (r *Room) Messages() []types.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	messages := make([]types.Message, len(r.messages))
	copy(messages, r.messages)

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp < messages[j].Timestamp
	})
	return messages
}

// Stats returns current set and log sizes.
func (r *Room) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		Online:   len(r.online),
		Offline:  len(r.offline),
		Messages: len(r.messages),
	}
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

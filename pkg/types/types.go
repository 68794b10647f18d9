// Package types defines the core domain model shared across beaver-chat packages.
package types

import "fmt"

// Message is one entry of the chat log.
// A Message is created once when it is posted and never mutated afterwards.
type Message struct {
	Timestamp uint64 `json:"timestamp"` // Unix milliseconds at post time
	Sender    string `json:"sender"`
	Content   string `json:"content"`
}

func (m Message) String() string {
	return fmt.Sprintf("[%d] %s: %s", m.Timestamp, m.Sender, m.Content)
}

// UserList is the body served by GET /users.
type UserList struct {
	Online  []string `json:"online"`
	Offline []string `json:"offline"`
}

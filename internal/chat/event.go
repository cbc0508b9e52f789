package chat

import "time"

// Kind classifies a broadcast event.
type Kind string

const (
	// KindMessage is an ordinary chat message written by a participant.
	KindMessage Kind = "message"
	// KindSystem is a server-originated notice, such as the welcome text.
	KindSystem Kind = "system"
	// KindNotification announces a participant joining or leaving.
	KindNotification Kind = "notification"
)

// AnonymousAuthor is used for events submitted without an author name.
const AnonymousAuthor = "Anonymous"

// Event is an immutable, sequenced record delivered to participants.
// ID is zero for events that were never appended to the History.
type Event struct {
	ID        uint64    `json:"id,omitempty"`
	Author    string    `json:"username,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"type"`
}

// Message is the input to Engine.Broadcast.
type Message struct {
	Author string
	Text   string
	Kind   Kind
}

func joinedText(name string) string { return name + " joined the chat" }

func leftText(name string) string { return name + " left the chat" }

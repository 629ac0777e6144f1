package models

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an individual entry within a conversation log. It carries the sender, the text
// that was shown to the user and the moment it was appended. A Message is never changed after it is
// appended to a log.
type Message struct {
	ID        string
	Sender    Sender
	Text      string
	Timestamp time.Time
}

// Sender identifies the participant that produced a message.
type Sender string

const (
	// SenderUser marks a message typed by the user.
	SenderUser Sender = "user"
	// SenderAssistant marks a reply revealed by the assistant, including interrupted replies and
	// gateway failures converted into text.
	SenderAssistant Sender = "assistant"
)

// NewMessage creates a message with a fresh ID stamped with the current time.
func NewMessage(sender Sender, text string) Message {
	return Message{
		ID:        uuid.New().String(),
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now(),
	}
}

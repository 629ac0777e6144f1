package chat

import (
	"slices"

	"github.com/ampora-ai/ampora-web/internal/models"
)

// ConversationLog is the ordered, append-only record of a conversation. Entries are never reordered
// or replaced.
type ConversationLog struct {
	messages []models.Message
}

// Append adds msg at the end of the log.
func (l *ConversationLog) Append(msg models.Message) {
	l.messages = append(l.messages, msg)
}

// Messages returns a copy of the log in insertion order.
func (l *ConversationLog) Messages() []models.Message {
	return slices.Clone(l.messages)
}

// Len returns the number of messages in the log.
func (l *ConversationLog) Len() int {
	return len(l.messages)
}

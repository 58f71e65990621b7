package domain

import (
	"fmt"
	"strings"
	"time"
)

// Message represents a committed chat message.
// Text is nil for attachment-only messages.
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	AuthorID       UserID
	Text           *string
	Images         []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasText reports whether the message carries a human text.
// Legacy clients post the literal "null" for attachment-only messages.
func (m Message) HasText() bool {
	return m.Text != nil && strings.TrimSpace(*m.Text) != "" && *m.Text != "null"
}

// Render returns the text shown in notifications.
func (m Message) Render(author User) string {
	if !m.HasText() {
		return fmt.Sprintf("%s sent you attachment", author.ShortName())
	}
	return *m.Text
}

package domain

import (
	"fmt"
	"time"
)

// Notification is a durable record created when a qualifying event occurs.
// At most one unread notification with a conversation reference exists per
// (recipient, conversation) for the offline message case.
type Notification struct {
	ID             NotificationID
	RecipientID    UserID
	ConversationID *ConversationID
	Title          string
	Text           string
	RedirectURL    string
	Notified       bool
	CreatedAt      time.Time
}

// IsTransient is true for notifications bound to a conversation; acking them
// removes the record instead of flagging it.
func (n Notification) IsTransient() bool {
	return n.ConversationID != nil
}

func ConversationRedirect(id ConversationID) string {
	return fmt.Sprintf("/messages/c/%d", id)
}

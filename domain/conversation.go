package domain

import (
	"slices"
	"time"
)

// Conversation holds an ordered set of members. The marketplace only creates
// two-party conversations but nothing here depends on it.
type Conversation struct {
	ID        ConversationID
	Title     string
	Members   []UserID
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c Conversation) HasMember(id UserID) bool {
	return slices.Contains(c.Members, id)
}

// Recipients returns every member except the author, in member order.
func (c Conversation) Recipients(author UserID) []UserID {
	res := make([]UserID, 0, len(c.Members))
	for _, m := range c.Members {
		if m != author {
			res = append(res, m)
		}
	}
	return res
}

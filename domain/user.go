// Package domain contains core concepts of the conversation layer.
// No runtime, network, or storage logic should be added here.
package domain

import "strings"

// User is the slice of the marketplace account the realtime layer reads.
// Online is the number of currently open sessions; it is owned by the store
// and only ever changed through an atomic adjustment.
type User struct {
	ID        UserID
	FirstName string
	LastName  string
	Email     string
	Online    int64
}

// UnknownAuthorName stands in for an author whose account could not be loaded.
const UnknownAuthorName = "Someone"

// PlaceholderUser is the author used when the account lookup fails.
func PlaceholderUser(id UserID) User {
	return User{ID: id, FirstName: UnknownAuthorName}
}

func (u User) IsOnline() bool {
	return u.Online > 0
}

// DisplayName mirrors how the account is printed in notification texts.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	return u.Email
}

// ShortName is the first name, falling back to the display name.
func (u User) ShortName() string {
	if first := strings.TrimSpace(u.FirstName); first != "" {
		return first
	}
	return u.DisplayName()
}

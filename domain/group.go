package domain

import "fmt"

// GroupName is an opaque broadcast group key.
type GroupName string

func UserGroup(id UserID) GroupName {
	return GroupName(fmt.Sprintf("user_%d", id))
}

func RoomGroup(id ConversationID) GroupName {
	return GroupName(fmt.Sprintf("chat_%d", id))
}

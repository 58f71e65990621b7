package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type UserID int64
type ConversationID int64
type MessageID int64
type NotificationID int64

// ConnectionID identifies one live transport connection.
// It is the key used by the group registry, never a user id.
type ConnectionID string

// ParseID accepts both JSON numbers and JSON strings holding a positive integer.
// Browsers built against the old backend send room names as strings ("7"),
// newer clients send numbers.
func ParseID(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("empty identifier")
	}
	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
	} else {
		s = string(raw)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid identifier %q: %w", s, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid identifier %d", id)
	}
	return id, nil
}

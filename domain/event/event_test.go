package event

import (
	"chat-relay/domain"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewMessagePosted_AttachmentOnlyKeepsNullText(t *testing.T) {
	req := require.New(t)
	// Given a message posted with the legacy "null" text
	null := "null"
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := domain.Message{ID: 12, ConversationID: 7, AuthorID: 1, Text: &null, CreatedAt: at, UpdatedAt: at}

	// When the event is built
	e := NewMessagePosted(msg, domain.User{ID: 1, FirstName: "Alice", LastName: "Martin"})

	// Then the payload keeps a JSON null text and an empty image list
	req.Equal(NewMessage, e.Type)
	var payload map[string]any
	req.NoError(json.Unmarshal(e.Payload, &payload))
	req.Nil(payload["text"])
	req.Equal([]any{}, payload["images"])
	req.Equal("Alice Martin", payload["author"])
	req.EqualValues(7, payload["conversation"])
}

func TestNewMessageDeleted_PayloadIsTheId(t *testing.T) {
	req := require.New(t)
	data, err := NewMessageDeleted(42).Encode()
	req.NoError(err)
	req.JSONEq(`{"type":"deleted_message","payload":42}`, string(data))
}

func TestNewConnected_NullPayload(t *testing.T) {
	req := require.New(t)
	data, err := NewConnected().Encode()
	req.NoError(err)
	req.JSONEq(`{"type":"connected","payload":null}`, string(data))
}

func TestDecode_RoundTripPreservesPayloadBytes(t *testing.T) {
	req := require.New(t)
	e := NewJoinedRoom(9)
	data, err := e.Encode()
	req.NoError(err)

	decoded, err := Decode(data)
	req.NoError(err)
	req.Equal(JoinedRoom, decoded.Type)
	req.JSONEq(`{"room_name":"9"}`, string(decoded.Payload))
}

package event

import (
	"chat-relay/domain"
	"encoding/json"
	"strconv"
	"time"
)

type Type string

const (
	Connected      Type = "connected"
	JoinedRoom     Type = "joined_room"
	NewMessage     Type = "new_message"
	DeletedMessage Type = "deleted_message"
	Notification   Type = "notification"
)

// Envelope is the outbound frame written to every client: {type, payload}.
// The payload is kept encoded so that the same bytes cross the bus and the socket.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func Decode(data []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(data, &e)
	return e, err
}

type JoinedRoomPayload struct {
	RoomName string `json:"room_name"`
}

type MessagePayload struct {
	ID           domain.MessageID      `json:"id"`
	Conversation domain.ConversationID `json:"conversation"`
	AuthorID     domain.UserID         `json:"author_id"`
	Author       string                `json:"author"`
	Text         *string               `json:"text"`
	Images       []string              `json:"images"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

type NotificationPayload struct {
	ID           domain.NotificationID  `json:"id"`
	Recipient    domain.UserID          `json:"recipient"`
	Conversation *domain.ConversationID `json:"conversation"`
	Title        string                 `json:"title"`
	Text         string                 `json:"text"`
	RedirectURL  string                 `json:"redirect_url"`
	Notified     bool                   `json:"notified"`
	CreatedAt    time.Time              `json:"created_at"`
}

func NewConnected() Envelope {
	return Envelope{Type: Connected, Payload: json.RawMessage("null")}
}

func NewJoinedRoom(id domain.ConversationID) Envelope {
	return build(JoinedRoom, JoinedRoomPayload{RoomName: strconv.FormatInt(int64(id), 10)})
}

func NewMessagePosted(m domain.Message, author domain.User) Envelope {
	images := m.Images
	if images == nil {
		images = []string{}
	}
	var text *string
	if m.HasText() {
		text = m.Text
	}
	return build(NewMessage, MessagePayload{
		ID:           m.ID,
		Conversation: m.ConversationID,
		AuthorID:     m.AuthorID,
		Author:       author.DisplayName(),
		Text:         text,
		Images:       images,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	})
}

// NewMessageDeleted carries the bare message id as payload.
func NewMessageDeleted(id domain.MessageID) Envelope {
	return build(DeletedMessage, id)
}

func NewNotificationCreated(n domain.Notification) Envelope {
	return build(Notification, ToNotificationPayload(n))
}

// ToNotificationPayload is the serialized form shared by the socket and the REST listing.
func ToNotificationPayload(n domain.Notification) NotificationPayload {
	return NotificationPayload{
		ID:           n.ID,
		Recipient:    n.RecipientID,
		Conversation: n.ConversationID,
		Title:        n.Title,
		Text:         n.Text,
		RedirectURL:  n.RedirectURL,
		Notified:     n.Notified,
		CreatedAt:    n.CreatedAt.UTC(),
	}
}

// build only receives the payload types above, none of which can fail to marshal
func build(t Type, payload any) Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = json.RawMessage("null")
	}
	return Envelope{Type: t, Payload: raw}
}

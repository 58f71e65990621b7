// Package rest exposes the plain HTTP surfaces of the relay: the internal
// hooks called by the CRUD layer after each commit, and the notification listing.
package rest

import (
	"chat-relay/contract"
	"chat-relay/domain"
	customerrors "chat-relay/errors"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	InternalTokenHeader = "X-Internal-Token"
	maxBodyBytes        = 1 << 20
)

var validate = validator.New()

type MessageRequest struct {
	ID           int64     `json:"id" validate:"required,gt=0"`
	Conversation int64     `json:"conversation" validate:"required,gt=0"`
	AuthorID     int64     `json:"author_id" validate:"required,gt=0"`
	Text         *string   `json:"text"`
	Images       []string  `json:"images" validate:"omitempty,dive,required"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (r MessageRequest) toMessage() domain.Message {
	return domain.Message{
		ID:             domain.MessageID(r.ID),
		ConversationID: domain.ConversationID(r.Conversation),
		AuthorID:       domain.UserID(r.AuthorID),
		Text:           r.Text,
		Images:         r.Images,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type MessageDeletedRequest struct {
	ConversationID int64 `json:"conversation_id" validate:"required,gt=0"`
	MessageID      int64 `json:"message_id" validate:"required,gt=0"`
}

type NotificationRequest struct {
	ID           int64     `json:"id" validate:"required,gt=0"`
	Conversation *int64    `json:"conversation" validate:"omitempty,gt=0"`
	Title        string    `json:"title" validate:"required,max=255"`
	Text         string    `json:"text" validate:"max=255"`
	RedirectURL  string    `json:"redirect_url" validate:"max=255"`
	Notified     bool      `json:"notified"`
	CreatedAt    time.Time `json:"created_at"`
}

func (r NotificationRequest) toNotification(recipient domain.UserID) domain.Notification {
	n := domain.Notification{
		ID:          domain.NotificationID(r.ID),
		RecipientID: recipient,
		Title:       r.Title,
		Text:        r.Text,
		RedirectURL: r.RedirectURL,
		Notified:    r.Notified,
		CreatedAt:   r.CreatedAt,
	}
	if r.Conversation != nil {
		c := domain.ConversationID(*r.Conversation)
		n.ConversationID = &c
	}
	return n
}

// Hooks is the invocation surface of the event router for the CRUD layer.
type Hooks struct {
	log    *slog.Logger
	router contract.IEventRouter
	token  []byte
}

func NewHooks(log *slog.Logger, router contract.IEventRouter, internalToken string) *Hooks {
	return &Hooks{log: log, router: router, token: []byte(internalToken)}
}

func (h *Hooks) Register(mux *http.ServeMux) {
	mux.Handle("POST /internal/messages/created", h.protect(h.messageCreated))
	mux.Handle("POST /internal/messages/deleted", h.protect(h.messageDeleted))
	mux.Handle("POST /internal/users/{id}/notifications", h.protect(h.notifyUser))
}

func (h *Hooks) protect(next func(w http.ResponseWriter, r *http.Request) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := []byte(r.Header.Get(InternalTokenHeader))
		if len(h.token) == 0 || subtle.ConstantTimeCompare(presented, h.token) != 1 {
			writeError(w, h.log, fmt.Errorf("%w: invalid internal token", customerrors.ErrAuthentication))
			return
		}
		if err := next(w, r); err != nil {
			writeError(w, h.log, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
}

func (h *Hooks) messageCreated(_ http.ResponseWriter, r *http.Request) error {
	var body MessageRequest
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	return h.router.OnMessageCreated(r.Context(), body.toMessage())
}

func (h *Hooks) messageDeleted(_ http.ResponseWriter, r *http.Request) error {
	var body MessageDeletedRequest
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	return h.router.OnMessageDeleted(r.Context(),
		domain.ConversationID(body.ConversationID), domain.MessageID(body.MessageID))
}

func (h *Hooks) notifyUser(_ http.ResponseWriter, r *http.Request) error {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("%w: user id %q", customerrors.ErrInvalidPayload, r.PathValue("id"))
	}
	var body NotificationRequest
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	user := domain.UserID(id)
	return h.router.NotifyUser(r.Context(), user, body.toNotification(user))
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", customerrors.ErrInvalidPayload, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", customerrors.ErrInvalidPayload, err)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := customerrors.StatusCode(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "status", status, "error", err)
	} else {
		log.Debug("Request rejected", "status", status, "error", err)
	}
	message := http.StatusText(status)
	if status == http.StatusBadRequest {
		message = err.Error()
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package rest

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	customerrors "chat-relay/errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/samber/lo"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// NotificationsAPI lets a reconnecting client fetch its pending notifications
// before acknowledging them over the socket.
type NotificationsAPI struct {
	log           *slog.Logger
	verifier      contract.ITokenVerifier
	notifications contract.INotificationStore
}

func NewNotificationsAPI(log *slog.Logger, verifier contract.ITokenVerifier,
	notifications contract.INotificationStore) *NotificationsAPI {
	return &NotificationsAPI{log: log, verifier: verifier, notifications: notifications}
}

func (a *NotificationsAPI) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/notifications", a.list)
}

// list returns the caller's notifications, newest first.
func (a *NotificationsAPI) list(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		writeError(w, a.log, fmt.Errorf("%w: missing bearer token", customerrors.ErrAuthentication))
		return
	}
	user, err := a.verifier.Verify(token)
	if err != nil {
		writeError(w, a.log, err)
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, a.log, fmt.Errorf("%w: limit %q", customerrors.ErrInvalidPayload, raw))
			return
		}
		limit = min(limit, maxListLimit)
	}

	notifications, err := a.notifications.ListNotifications(r.Context(), user, limit)
	if err != nil {
		writeError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(notifications, func(n domain.Notification, _ int) event.NotificationPayload {
		return event.ToNotificationPayload(n)
	}))
}

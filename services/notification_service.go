package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"time"
)

// NotificationService decides, for one recipient of a new message, whether a
// notification is stored and pushed.
//
// Online recipients always get a content-bearing notification pushed to their inbox.
// Offline recipients get at most one generic unread notification per conversation.
type NotificationService struct {
	log           *slog.Logger
	presence      contract.IPresenceTracker
	notifications contract.INotificationStore
	bus           contract.IBus
	metrics       *observability.Metrics
	now           func() time.Time
}

func NewNotificationService(log *slog.Logger, presence contract.IPresenceTracker,
	notifications contract.INotificationStore, bus contract.IBus, metrics *observability.Metrics) *NotificationService {
	return &NotificationService{
		log:           log,
		presence:      presence,
		notifications: notifications,
		bus:           bus,
		metrics:       metrics,
		now:           time.Now,
	}
}

func (s *NotificationService) Decide(ctx context.Context, recipient domain.UserID, msg domain.Message, author domain.User) error {
	online, err := s.presence.IsOnline(ctx, recipient)
	if err != nil {
		return err
	}
	if online {
		return s.notifyOnline(ctx, recipient, msg, author)
	}
	return s.notifyOffline(ctx, recipient, msg, author)
}

func (s *NotificationService) notifyOnline(ctx context.Context, recipient domain.UserID, msg domain.Message, author domain.User) error {
	conversation := msg.ConversationID
	n, err := s.notifications.CreateNotification(ctx, domain.Notification{
		RecipientID:    recipient,
		ConversationID: &conversation,
		Title:          fmt.Sprintf("New Message from %s", author.ShortName()),
		Text:           msg.Render(author),
		RedirectURL:    domain.ConversationRedirect(conversation),
		CreatedAt:      s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("create online notification for user %d: %w", recipient, err)
	}
	s.metrics.NotificationsCreated.WithLabelValues("online").Inc()

	if err := s.bus.Publish(ctx, domain.UserGroup(recipient), event.NewNotificationCreated(n)); err != nil {
		return fmt.Errorf("push notification %d to user %d: %w", n.ID, recipient, err)
	}
	return nil
}

// notifyOffline stores a generic notification unless one is already unread
// for the conversation; the store makes that check and the write atomic.
func (s *NotificationService) notifyOffline(ctx context.Context, recipient domain.UserID, msg domain.Message, author domain.User) error {
	conversation := msg.ConversationID
	_, created, err := s.notifications.CreateUnlessUnread(ctx, domain.Notification{
		RecipientID:    recipient,
		ConversationID: &conversation,
		Title:          "New Message",
		Text:           fmt.Sprintf("New message from %s", author.DisplayName()),
		RedirectURL:    domain.ConversationRedirect(conversation),
		CreatedAt:      s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("create offline notification for user %d: %w", recipient, err)
	}
	if !created {
		s.metrics.NotificationsSuppressed.Inc()
		s.log.Debug("Offline notification coalesced", "user_id", recipient, "conversation_id", conversation)
		return nil
	}
	s.metrics.NotificationsCreated.WithLabelValues("offline").Inc()
	return nil
}

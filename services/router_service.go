package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"fmt"
	"log/slog"
)

// RouterService turns committed CRUD mutations into broadcasts.
// It must only be called after the mutation is durable.
type RouterService struct {
	log           *slog.Logger
	bus           contract.IBus
	users         contract.IUserStore
	conversations contract.IConversationStore
	decider       contract.INotificationDecider
}

func NewRouterService(log *slog.Logger, bus contract.IBus, users contract.IUserStore,
	conversations contract.IConversationStore, decider contract.INotificationDecider) *RouterService {
	return &RouterService{
		log:           log,
		bus:           bus,
		users:         users,
		conversations: conversations,
		decider:       decider,
	}
}

// OnMessageCreated broadcasts the message to its room, then runs the decider
// for every member except the author. Only a failed broadcast is returned;
// notification failures are logged. An author that cannot be loaded is named
// with a placeholder so offline recipients still get their notification.
func (s *RouterService) OnMessageCreated(ctx context.Context, msg domain.Message) error {
	author, err := s.users.GetUser(ctx, msg.AuthorID)
	if err != nil {
		s.log.Warn("Unable to load message author", "user_id", msg.AuthorID, "message_id", msg.ID, "error", err)
		author = domain.PlaceholderUser(msg.AuthorID)
	}

	if err := s.bus.Publish(ctx, domain.RoomGroup(msg.ConversationID), event.NewMessagePosted(msg, author)); err != nil {
		return fmt.Errorf("broadcast message %d: %w", msg.ID, err)
	}

	conversation, err := s.conversations.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		s.log.Error("Unable to load conversation, notifications skipped",
			"conversation_id", msg.ConversationID, "message_id", msg.ID, "error", err)
		return nil
	}

	for _, recipient := range conversation.Recipients(msg.AuthorID) {
		if err := s.decider.Decide(ctx, recipient, msg, author); err != nil {
			s.log.Error("Notification failed", "user_id", recipient, "message_id", msg.ID, "error", err)
		}
	}
	return nil
}

func (s *RouterService) OnMessageDeleted(ctx context.Context, conversation domain.ConversationID, message domain.MessageID) error {
	if err := s.bus.Publish(ctx, domain.RoomGroup(conversation), event.NewMessageDeleted(message)); err != nil {
		return fmt.Errorf("broadcast deletion of message %d: %w", message, err)
	}
	return nil
}

// NotifyUser pushes an already stored notification to every session of the user.
func (s *RouterService) NotifyUser(ctx context.Context, user domain.UserID, n domain.Notification) error {
	if err := s.bus.Publish(ctx, domain.UserGroup(user), event.NewNotificationCreated(n)); err != nil {
		return fmt.Errorf("push notification %d to user %d: %w", n.ID, user, err)
	}
	return nil
}

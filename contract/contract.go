//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging and metrics labels without a manual name in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the outbound side of one connection.
// Consume must never block the caller.
type EventSink interface {
	Consume(ctx context.Context, e event.Envelope) error
}

// IRegistry maps broadcast groups to the local connections subscribed to them.
type IRegistry interface {
	Subscribe(group domain.GroupName, conn domain.ConnectionID, sink EventSink)
	Unsubscribe(group domain.GroupName, conn domain.ConnectionID)
	Members(group domain.GroupName) []domain.ConnectionID
	Deliver(ctx context.Context, group domain.GroupName, e event.Envelope) int
}

// IBus fans an envelope out to every subscriber of a group, wherever it lives.
type IBus interface {
	Publish(ctx context.Context, group domain.GroupName, e event.Envelope) error
}

type IPresenceTracker interface {
	Increment(ctx context.Context, user domain.UserID) (int64, error)
	Decrement(ctx context.Context, user domain.UserID) (int64, error)
	IsOnline(ctx context.Context, user domain.UserID) (bool, error)
}

type IUserStore interface {
	GetUser(ctx context.Context, id domain.UserID) (domain.User, error)
	// AdjustOnlineCounter applies delta atomically and never stores a negative value.
	// clamped is true when the result would have gone below zero.
	AdjustOnlineCounter(ctx context.Context, id domain.UserID, delta int64) (value int64, clamped bool, err error)
}

type IConversationStore interface {
	GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error)
	IsMember(ctx context.Context, id domain.ConversationID, user domain.UserID) (bool, error)
}

type INotificationStore interface {
	// FindUnread returns one unread notification referencing the conversation, if any.
	FindUnread(ctx context.Context, recipient domain.UserID, conversation domain.ConversationID) (domain.Notification, bool, error)
	CreateNotification(ctx context.Context, n domain.Notification) (domain.Notification, error)
	// CreateUnlessUnread atomically stores n unless an unread notification already
	// references n's conversation for the same recipient. It returns the stored
	// or the existing notification, and whether n was stored.
	CreateUnlessUnread(ctx context.Context, n domain.Notification) (domain.Notification, bool, error)
	GetNotification(ctx context.Context, id domain.NotificationID) (domain.Notification, error)
	MarkNotified(ctx context.Context, id domain.NotificationID) error
	DeleteNotification(ctx context.Context, id domain.NotificationID) error
	// ListNotifications returns the recipient's notifications, newest first.
	ListNotifications(ctx context.Context, recipient domain.UserID, limit int) ([]domain.Notification, error)
}

type INotificationDecider interface {
	Decide(ctx context.Context, recipient domain.UserID, msg domain.Message, author domain.User) error
}

type IEventRouter interface {
	OnMessageCreated(ctx context.Context, msg domain.Message) error
	OnMessageDeleted(ctx context.Context, conversation domain.ConversationID, message domain.MessageID) error
	NotifyUser(ctx context.Context, user domain.UserID, n domain.Notification) error
}

type ITokenVerifier interface {
	Verify(token string) (domain.UserID, error)
}

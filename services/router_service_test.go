package services

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type routerFixture struct {
	router        *RouterService
	bus           *mocks.MockIBus
	users         *mocks.MockIUserStore
	conversations *mocks.MockIConversationStore
	decider       *mocks.MockINotificationDecider
}

func newRouterFixture(t *testing.T) routerFixture {
	ctrl := gomock.NewController(t)
	f := routerFixture{
		bus:           mocks.NewMockIBus(ctrl),
		users:         mocks.NewMockIUserStore(ctrl),
		conversations: mocks.NewMockIConversationStore(ctrl),
		decider:       mocks.NewMockINotificationDecider(ctrl),
	}
	f.router = NewRouterService(logs.GetLoggerFromLevel(slog.LevelDebug), f.bus, f.users, f.conversations, f.decider)
	return f
}

func TestRouterService_OnMessageCreated_Broadcasts_Then_Notifies(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	ctx := context.Background()
	msg := message(12, 7, "hi")

	// Given a conversation between Alice, user 2 and user 3
	f.users.EXPECT().GetUser(gomock.Any(), alice.ID).Return(alice, nil)
	gomock.InOrder(
		f.bus.EXPECT().Publish(gomock.Any(), domain.RoomGroup(7), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ domain.GroupName, e event.Envelope) error {
				req.Equal(event.NewMessage, e.Type)
				var payload event.MessagePayload
				req.NoError(json.Unmarshal(e.Payload, &payload))
				req.Equal(domain.MessageID(12), payload.ID)
				req.Equal("Alice Martin", payload.Author)
				return nil
			}),
		f.conversations.EXPECT().GetConversation(gomock.Any(), domain.ConversationID(7)).
			Return(domain.Conversation{ID: 7, Members: []domain.UserID{1, 2, 3}}, nil),
		f.decider.EXPECT().Decide(gomock.Any(), domain.UserID(2), msg, alice).
			Return(fmt.Errorf("%w: disk full", errors.ErrTransientStore)),
		f.decider.EXPECT().Decide(gomock.Any(), domain.UserID(3), msg, alice).Return(nil),
	)

	// When the message is routed, a failing notification doesn't fail the broadcast
	req.NoError(f.router.OnMessageCreated(ctx, msg))
}

func TestRouterService_OnMessageCreated_Broadcast_Failure(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)

	f.users.EXPECT().GetUser(gomock.Any(), alice.ID).Return(alice, nil)
	f.bus.EXPECT().Publish(gomock.Any(), domain.RoomGroup(7), gomock.Any()).
		Return(fmt.Errorf("%w: nats closed", errors.ErrBusUnavailable))
	f.conversations.EXPECT().GetConversation(gomock.Any(), gomock.Any()).Times(0)
	f.decider.EXPECT().Decide(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	err := f.router.OnMessageCreated(context.Background(), message(12, 7, "hi"))
	req.ErrorIs(err, errors.ErrBusUnavailable)
}

func TestRouterService_OnMessageCreated_Unknown_Author_Still_Notifies(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	msg := message(12, 7, "hi")
	placeholder := domain.PlaceholderUser(alice.ID)

	// Given the author cannot be loaded
	f.users.EXPECT().GetUser(gomock.Any(), alice.ID).
		Return(domain.User{}, fmt.Errorf("%w: timeout", errors.ErrTransientStore))
	f.bus.EXPECT().Publish(gomock.Any(), domain.RoomGroup(7), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.GroupName, e event.Envelope) error {
			var payload event.MessagePayload
			req.NoError(json.Unmarshal(e.Payload, &payload))
			req.Equal(domain.UnknownAuthorName, payload.Author)
			return nil
		})
	f.conversations.EXPECT().GetConversation(gomock.Any(), domain.ConversationID(7)).
		Return(domain.Conversation{ID: 7, Members: []domain.UserID{1, 2}}, nil)

	// Then the recipient is still handed to the decider, under a placeholder name
	f.decider.EXPECT().Decide(gomock.Any(), domain.UserID(2), msg, placeholder).Return(nil)

	req.NoError(f.router.OnMessageCreated(context.Background(), msg))
}

func TestRouterService_OnMessageDeleted(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)

	f.bus.EXPECT().Publish(gomock.Any(), domain.RoomGroup(7), event.NewMessageDeleted(12)).Return(nil)

	req.NoError(f.router.OnMessageDeleted(context.Background(), 7, 12))
}

func TestRouterService_NotifyUser(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	n := domain.Notification{ID: 5, RecipientID: 2, Title: "New offer", RedirectURL: "/offers/5"}

	f.bus.EXPECT().Publish(gomock.Any(), domain.UserGroup(2), event.NewNotificationCreated(n)).Return(nil)

	req.NoError(f.router.NotifyUser(context.Background(), 2, n))
}

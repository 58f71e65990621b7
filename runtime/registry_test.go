package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []event.Envelope
}

func (s *recordingSink) Consume(_ context.Context, e event.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Events() []event.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Envelope(nil), s.events...)
}

func TestRegistry_Subscribe_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(logs.GetLoggerFromLevel(slog.LevelDebug), 4)
	conn := domain.ConnectionID(uuid.NewString())
	group := domain.RoomGroup(1)
	sink := &recordingSink{}

	// Given a connection subscribed twice
	registry.Subscribe(group, conn, sink)
	registry.Subscribe(group, conn, sink)

	// Then it appears once and receives a single copy
	req.Equal([]domain.ConnectionID{conn}, registry.Members(group))
	req.Equal(1, registry.Deliver(context.Background(), group, event.NewConnected()))
	req.Len(sink.Events(), 1)
}

func TestRegistry_Unsubscribe_Removes_Empty_Group(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(logs.GetLoggerFromLevel(slog.LevelDebug), 4)
	conn := domain.ConnectionID(uuid.NewString())
	group := domain.RoomGroup(1)

	// Given a connection in a room
	registry.Subscribe(group, conn, &recordingSink{})
	req.Equal(1, registry.GroupCount())

	// When it leaves twice
	registry.Unsubscribe(group, conn)
	registry.Unsubscribe(group, conn)

	// Then the room doesn't exist anymore
	req.Empty(registry.Members(group))
	req.Equal(0, registry.GroupCount())
}

func TestRegistry_Deliver_Only_To_Group_Members(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(logs.GetLoggerFromLevel(slog.LevelDebug), 4)
	inRoom := &recordingSink{}
	otherRoom := &recordingSink{}
	inbox := &recordingSink{}

	registry.Subscribe(domain.RoomGroup(1), "a", inRoom)
	registry.Subscribe(domain.RoomGroup(2), "b", otherRoom)
	registry.Subscribe(domain.UserGroup(1), "a", inbox)

	// When an event is delivered to room 1
	n := registry.Deliver(context.Background(), domain.RoomGroup(1), event.NewMessageDeleted(5))

	// Then only the room 1 sink receives it
	req.Equal(1, n)
	req.Len(inRoom.Events(), 1)
	req.Empty(otherRoom.Events())
	req.Empty(inbox.Events())
}

func TestRegistry_Deliver_Unknown_Group(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(logs.GetLoggerFromLevel(slog.LevelDebug), 0)
	req.Equal(0, registry.Deliver(context.Background(), "chat_404", event.NewConnected()))
}

func TestRegistry_Concurrent_Subscriptions(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(logs.GetLoggerFromLevel(slog.LevelDebug), 8)
	group := domain.RoomGroup(3)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := domain.ConnectionID(uuid.NewString())
			registry.Subscribe(group, conn, &recordingSink{})
			registry.Deliver(context.Background(), group, event.NewConnected())
			registry.Unsubscribe(group, conn)
		}()
	}
	wg.Wait()

	req.Empty(registry.Members(group))
}

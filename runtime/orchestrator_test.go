package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/observability"
	"chat-relay/runtime/workers"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(t *testing.T, opts OrchestratorOptions) *Orchestrator {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	supervisor := workers.NewSupervisor(log, 10*time.Millisecond, metrics.WorkerRestarts)
	opts.RegistryShards = 4
	opts.HeartbeatInterval = 10 * time.Millisecond
	return NewOrchestrator(log, supervisor, metrics, opts)
}

func TestOrchestrator_Local_Bus(t *testing.T) {
	req := require.New(t)
	orchestrator := newTestOrchestrator(t, OrchestratorOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = orchestrator.Start(ctx) }()

	// Given a connection in a room
	sink := &recordingSink{}
	orchestrator.Registry().Subscribe(domain.RoomGroup(1), domain.ConnectionID(uuid.NewString()), sink)

	// When an event is published on the bus
	req.Equal(BackendLocal, orchestrator.Backend())
	req.NoError(orchestrator.Bus().Publish(ctx, domain.RoomGroup(1), event.NewMessageDeleted(3)))

	// Then it is delivered synchronously
	req.Len(sink.Events(), 1)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	orchestrator.Stop(stopCtx)
	req.NoError(stopCtx.Err())
}

func TestOrchestrator_Nats_Bus_Relays_Through_Subscription(t *testing.T) {
	req := require.New(t)
	server := test.RunRandClientPortServer()
	defer server.Shutdown()
	nc, err := ConnectNats(logs.GetLoggerFromLevel(slog.LevelDebug), server.ClientURL(), "orchestrator-test")
	req.NoError(err)
	defer nc.Close()

	orchestrator := newTestOrchestrator(t, OrchestratorOptions{Nats: nc, SubjectPrefix: "chat"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = orchestrator.Start(ctx) }()

	sink := &recordingSink{}
	orchestrator.Registry().Subscribe(domain.UserGroup(9), domain.ConnectionID(uuid.NewString()), sink)
	req.Equal(BackendNats, orchestrator.Backend())

	// The relay subscription is asynchronous, publish until the first delivery
	req.Eventually(func() bool {
		_ = orchestrator.Bus().Publish(ctx, domain.UserGroup(9), event.NewConnected())
		return len(sink.Events()) > 0
	}, 5*time.Second, 50*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	orchestrator.Stop(stopCtx)
	req.NoError(stopCtx.Err())
}

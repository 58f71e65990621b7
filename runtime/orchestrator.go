// Package runtime holds the in-process machinery of the relay: the group
// registry, the presence tracker and the broadcast bus, plus the orchestrator
// that runs the supervised background workers around them.
// It contains no business rule.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/observability"
	"chat-relay/runtime/workers"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

type OrchestratorOptions struct {
	RegistryShards    int
	HeartbeatInterval time.Duration
	// Nats switches the bus to the cross-process backend when set.
	Nats          *nats.Conn
	SubjectPrefix string
}

type Orchestrator struct {
	mu         sync.Mutex
	log        *slog.Logger
	supervisor contract.ISupervisor
	registry   *Registry
	bus        contract.IBus
	backend    string
	metrics    *observability.Metrics
	opts       OrchestratorOptions
	done       chan struct{}
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	metrics *observability.Metrics, opts OrchestratorOptions) *Orchestrator {
	registry := NewRegistry(log, opts.RegistryShards)
	o := &Orchestrator{
		log:        log,
		supervisor: supervisor,
		registry:   registry,
		metrics:    metrics,
		opts:       opts,
		done:       make(chan struct{}),
	}
	if opts.Nats != nil {
		o.bus = NewNatsBus(log, opts.Nats, opts.SubjectPrefix, metrics.EventsPublished)
		o.backend = BackendNats
	} else {
		o.bus = NewLocalBus(log, registry, metrics.EventsPublished)
		o.backend = BackendLocal
	}
	return o
}

func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

func (o *Orchestrator) Bus() contract.IBus {
	return o.bus
}

func (o *Orchestrator) Backend() string {
	return o.backend
}

// Start registers the background workers and blocks until they all return.
func (o *Orchestrator) Start(ctx context.Context) error {
	defer close(o.done)

	o.mu.Lock()
	o.supervisor.Add(workers.NewHeartbeatWorker(o.log, o.metrics, o.registry, o.opts.HeartbeatInterval))
	if o.opts.Nats != nil {
		o.supervisor.Add(workers.NewBusRelayWorker(o.log, o.opts.Nats, o.opts.SubjectPrefix, o.registry))
	}
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers", "bus", o.backend)
	o.supervisor.Run(ctx)
	return nil
}

// Stop cancels the supervised workers and waits for Start to return.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
	select {
	case <-o.done:
	case <-ctx.Done():
		o.log.Warn("Orchestrator did not stop in time")
	}
}

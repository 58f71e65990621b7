package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	BackendLocal = "local"
	BackendNats  = "nats"
)

// LocalBus delivers envelopes to the connections of this process only.
// It is enough for a single instance deployment.
type LocalBus struct {
	log       *slog.Logger
	registry  contract.IRegistry
	published *prometheus.CounterVec
}

func NewLocalBus(log *slog.Logger, registry contract.IRegistry, published *prometheus.CounterVec) *LocalBus {
	return &LocalBus{log: log, registry: registry, published: published}
}

// Publish never blocks: sinks only enqueue.
func (b *LocalBus) Publish(ctx context.Context, group domain.GroupName, e event.Envelope) error {
	b.published.WithLabelValues(string(e.Type), BackendLocal).Inc()
	n := b.registry.Deliver(ctx, group, e)
	b.log.Debug("Event published", "group", group, "type", e.Type, "receivers", n)
	return nil
}

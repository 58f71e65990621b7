package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
)

// NatsBus publishes every envelope on <prefix>.<group>.
// Local delivery is not done here: every process, this one included,
// receives its own publications through the BusRelayWorker subscription.
type NatsBus struct {
	log       *slog.Logger
	nc        *nats.Conn
	prefix    string
	published *prometheus.CounterVec
}

func NewNatsBus(log *slog.Logger, nc *nats.Conn, prefix string, published *prometheus.CounterVec) *NatsBus {
	return &NatsBus{log: log, nc: nc, prefix: prefix, published: published}
}

func Subject(prefix string, group domain.GroupName) string {
	return prefix + "." + string(group)
}

func (b *NatsBus) Publish(_ context.Context, group domain.GroupName, e event.Envelope) error {
	data, err := e.Encode()
	if err != nil {
		return err
	}
	if err := b.nc.Publish(Subject(b.prefix, group), data); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrBusUnavailable, err)
	}
	b.published.WithLabelValues(string(e.Type), BackendNats).Inc()
	return nil
}

// ConnectNats dials the cluster and keeps reconnecting forever.
func ConnectNats(log *slog.Logger, url, name string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(nats.DefaultReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
}

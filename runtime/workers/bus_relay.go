package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
)

const relayBufferSize = 1024

// BusRelayWorker feeds envelopes published on NATS by any process
// into the local registry. One subscription, one goroutine: the order
// of a publisher's messages on a subject is kept.
type BusRelayWorker struct {
	log      *slog.Logger
	nc       *nats.Conn
	prefix   string
	registry contract.IRegistry
}

func NewBusRelayWorker(log *slog.Logger, nc *nats.Conn, prefix string, registry contract.IRegistry) *BusRelayWorker {
	return &BusRelayWorker{log: log, nc: nc, prefix: prefix, registry: registry}
}

func (w *BusRelayWorker) Run(ctx context.Context) error {
	msgs := make(chan *nats.Msg, relayBufferSize)
	sub, err := w.nc.ChanSubscribe(w.prefix+".>", msgs)
	if err != nil {
		return fmt.Errorf("subscribe %s.>: %w", w.prefix, err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			w.log.Warn("Unable to unsubscribe bus relay", "error", err)
		}
	}()
	w.log.Info("Bus relay subscribed", "subject", sub.Subject)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgs:
			w.relay(ctx, msg)
		}
	}
}

func (w *BusRelayWorker) relay(ctx context.Context, msg *nats.Msg) {
	group, ok := strings.CutPrefix(msg.Subject, w.prefix+".")
	if !ok || group == "" {
		return
	}
	e, err := event.Decode(msg.Data)
	if err != nil {
		w.log.Warn("Dropping undecodable bus message", "subject", msg.Subject, "error", err)
		return
	}
	w.registry.Deliver(ctx, domain.GroupName(group), e)
}

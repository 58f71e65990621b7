package sink

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ConnectionSink is the bounded outbound queue of a single connection.
// Producers never block: when the queue is full the oldest envelope is dropped.
type ConnectionSink struct {
	mu        sync.Mutex
	log       *slog.Logger
	conn      domain.ConnectionID
	queue     chan event.Envelope
	closed    bool
	dropped   prometheus.Counter
	delivered prometheus.Counter
}

func NewConnectionSink(log *slog.Logger, conn domain.ConnectionID, size int,
	delivered, dropped prometheus.Counter) *ConnectionSink {
	if size < 1 {
		size = 1
	}
	return &ConnectionSink{
		log:       log,
		conn:      conn,
		queue:     make(chan event.Envelope, size),
		delivered: delivered,
		dropped:   dropped,
	}
}

// Consume enqueues e. The lock only serialises producers; the consumer side
// reads the channel without it.
func (s *ConnectionSink) Consume(_ context.Context, e event.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.ErrSessionClosed
	}

	select {
	case s.queue <- e:
		s.delivered.Inc()
		return nil
	default:
	}

	// Full: discard the oldest pending envelope, then retry once.
	// The consumer may have drained in between, in which case nothing is dropped.
	select {
	case old := <-s.queue:
		s.dropped.Inc()
		s.log.Warn("Outbound queue full, dropping oldest event",
			"connection_id", s.conn, "dropped_type", old.Type)
	default:
	}

	select {
	case s.queue <- e:
		s.delivered.Inc()
	default:
		s.dropped.Inc()
		s.log.Warn("Outbound queue full, dropping event", "connection_id", s.conn, "type", e.Type)
	}
	return nil
}

// Events is drained by the connection writer until Close.
func (s *ConnectionSink) Events() <-chan event.Envelope {
	return s.queue
}

func (s *ConnectionSink) Len() int {
	return len(s.queue)
}

// Close is idempotent. Pending envelopes stay readable until the channel is drained.
func (s *ConnectionSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.queue)
}

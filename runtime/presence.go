package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// PresenceTracker keeps the per-user count of open sessions.
// All arithmetic happens inside the store; the tracker never reads then writes.
type PresenceTracker struct {
	log    *slog.Logger
	users  contract.IUserStore
	clamps prometheus.Counter
}

func NewPresenceTracker(log *slog.Logger, users contract.IUserStore, clamps prometheus.Counter) *PresenceTracker {
	return &PresenceTracker{log: log, users: users, clamps: clamps}
}

func (p *PresenceTracker) Increment(ctx context.Context, user domain.UserID) (int64, error) {
	value, _, err := p.users.AdjustOnlineCounter(ctx, user, 1)
	if err != nil {
		return 0, fmt.Errorf("increment online counter of user %d: %w", user, err)
	}
	return value, nil
}

// Decrement lowers the counter by one. A decrement on a zero counter is an
// inconsistency: it is logged and reported in metrics, not returned.
func (p *PresenceTracker) Decrement(ctx context.Context, user domain.UserID) (int64, error) {
	value, clamped, err := p.users.AdjustOnlineCounter(ctx, user, -1)
	if err != nil {
		return 0, fmt.Errorf("decrement online counter of user %d: %w", user, err)
	}
	if clamped {
		p.clamps.Inc()
		p.log.Warn("Online counter clamped at zero", "user_id", user, "error", errors.ErrCounterUnderflow)
	}
	return value, nil
}

func (p *PresenceTracker) IsOnline(ctx context.Context, user domain.UserID) (bool, error) {
	u, err := p.users.GetUser(ctx, user)
	if err != nil {
		return false, fmt.Errorf("read online counter of user %d: %w", user, err)
	}
	return u.IsOnline(), nil
}

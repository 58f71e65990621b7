package runtime

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestPresenceTracker_Decrement_Clamped_Is_Not_An_Error(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockIUserStore(ctrl)
	clamps := prometheus.NewCounter(prometheus.CounterOpts{Name: "clamps"})
	tracker := NewPresenceTracker(logs.GetLoggerFromLevel(slog.LevelDebug), store, clamps)

	// Given a store reporting a clamp
	store.EXPECT().AdjustOnlineCounter(gomock.Any(), domain.UserID(3), int64(-1)).Return(int64(0), true, nil)

	// When the tracker decrements
	value, err := tracker.Decrement(context.Background(), 3)

	// Then the call succeeds and the inconsistency is counted
	req.NoError(err)
	req.Equal(int64(0), value)
	req.Equal(float64(1), testutil.ToFloat64(clamps))
}

func TestPresenceTracker_Increment_Store_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockIUserStore(ctrl)
	tracker := NewPresenceTracker(logs.GetLoggerFromLevel(slog.LevelDebug), store,
		prometheus.NewCounter(prometheus.CounterOpts{Name: "clamps"}))

	store.EXPECT().AdjustOnlineCounter(gomock.Any(), domain.UserID(3), int64(1)).
		Return(int64(0), false, fmt.Errorf("%w: connection reset", errors.ErrTransientStore))

	_, err := tracker.Increment(context.Background(), 3)
	req.ErrorIs(err, errors.ErrTransientStore)
}

func TestPresenceTracker_IsOnline(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockIUserStore(ctrl)
	tracker := NewPresenceTracker(logs.GetLoggerFromLevel(slog.LevelDebug), store,
		prometheus.NewCounter(prometheus.CounterOpts{Name: "clamps"}))

	store.EXPECT().GetUser(gomock.Any(), domain.UserID(1)).Return(domain.User{ID: 1, Online: 2}, nil)
	store.EXPECT().GetUser(gomock.Any(), domain.UserID(2)).Return(domain.User{ID: 2}, nil)

	online, err := tracker.IsOnline(context.Background(), 1)
	req.NoError(err)
	req.True(online)

	online, err = tracker.IsOnline(context.Background(), 2)
	req.NoError(err)
	req.False(online)
}

package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestUserRepository_Get_Unknown_User(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t), logs.GetLoggerFromLevel(slog.LevelDebug))

	_, err := repository.GetUser(context.Background(), 42)
	req.ErrorIs(err, errors.ErrNotFound)

	_, _, err = repository.AdjustOnlineCounter(context.Background(), 42, 1)
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestUserRepository_Put_And_Get(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t), logs.GetLoggerFromLevel(slog.LevelDebug))
	ctx := context.Background()
	alice := domain.User{ID: 1, FirstName: "Alice", LastName: "Martin", Email: "alice@example.com"}

	req.NoError(repository.PutUser(ctx, alice))

	fetched, err := repository.GetUser(ctx, 1)
	req.NoError(err)
	req.Equal(alice, fetched)
}

func TestUserRepository_Counter_Clamps_At_Zero(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t), logs.GetLoggerFromLevel(slog.LevelDebug))
	ctx := context.Background()
	req.NoError(repository.PutUser(ctx, domain.User{ID: 1, FirstName: "Alice"}))

	// Given a user with one session
	value, clamped, err := repository.AdjustOnlineCounter(ctx, 1, 1)
	req.NoError(err)
	req.Equal(int64(1), value)
	req.False(clamped)

	// When two disconnects are observed
	value, clamped, err = repository.AdjustOnlineCounter(ctx, 1, -1)
	req.NoError(err)
	req.Equal(int64(0), value)
	req.False(clamped)

	value, clamped, err = repository.AdjustOnlineCounter(ctx, 1, -1)

	// Then the counter stays at zero and the clamp is reported
	req.NoError(err)
	req.Equal(int64(0), value)
	req.True(clamped)

	user, err := repository.GetUser(ctx, 1)
	req.NoError(err)
	req.False(user.IsOnline())
}

// Property: after N concurrent connect/disconnect pairs the counter is back to zero
// and it was never observed negative.
func TestUserRepository_Concurrent_Sessions_Balance(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t), logs.GetLoggerFromLevel(slog.LevelDebug))
	ctx := context.Background()
	req.NoError(repository.PutUser(ctx, domain.User{ID: 7, FirstName: "Bob"}))

	const sessions = 20
	var wg sync.WaitGroup
	errs := make(chan error, sessions*2)
	peak := make(chan int64, sessions)
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := repository.AdjustOnlineCounter(ctx, 7, 1)
			errs <- err
			peak <- v
		}()
	}
	wg.Wait()
	close(peak)

	highest := int64(0)
	for v := range peak {
		highest = max(highest, v)
	}
	req.Equal(int64(sessions), highest)

	user, err := repository.GetUser(ctx, 7)
	req.NoError(err)
	req.Equal(int64(sessions), user.Online)

	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, clamped, err := repository.AdjustOnlineCounter(ctx, 7, -1)
			if err == nil && (clamped || v < 0) {
				err = errors.ErrCounterUnderflow
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	user, err = repository.GetUser(ctx, 7)
	req.NoError(err)
	req.Equal(int64(0), user.Online)
}

func TestUserRepository_ListOnline(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t), logs.GetLoggerFromLevel(slog.LevelDebug))
	ctx := context.Background()
	req.NoError(repository.PutUser(ctx, domain.User{ID: 1}))
	req.NoError(repository.PutUser(ctx, domain.User{ID: 2}))
	_, _, err := repository.AdjustOnlineCounter(ctx, 1, 1)
	req.NoError(err)
	_, _, err = repository.AdjustOnlineCounter(ctx, 2, 1)
	req.NoError(err)
	_, _, err = repository.AdjustOnlineCounter(ctx, 2, 1)
	req.NoError(err)

	online, err := repository.ListOnline(ctx)
	req.NoError(err)
	req.Equal(map[domain.UserID]int64{1: 1, 2: 2}, online)
}

func TestUserRepository_ListUsers(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t), logs.GetLoggerFromLevel(slog.LevelDebug))
	ctx := context.Background()

	// Given two profiles, one of them connected
	req.NoError(repository.PutUser(ctx, domain.User{ID: 1, FirstName: "Alice"}))
	req.NoError(repository.PutUser(ctx, domain.User{ID: 2, FirstName: "Bob"}))
	_, _, err := repository.AdjustOnlineCounter(ctx, 2, 1)
	req.NoError(err)

	// Then both are listed with their counter
	users, err := repository.ListUsers(ctx)
	req.NoError(err)
	req.Len(users, 2)
	req.Equal("Alice", users[0].FirstName)
	req.False(users[0].IsOnline())
	req.Equal(int64(1), users[1].Online)
}

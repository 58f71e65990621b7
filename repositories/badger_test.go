package repositories

import (
	"bytes"
	"chat-relay/domain"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenBadger_Logs_Through_Slog(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Given a database opened with the relay logger
	db, err := OpenBadger(t.TempDir(), logger)
	req.NoError(err)
	repository := NewUserRepository(db, logger)
	req.NoError(repository.PutUser(context.Background(), domain.User{ID: 1, FirstName: "Alice"}))
	req.NoError(db.Close())

	// Then Badger's own messages are tagged entries of that logger
	req.Contains(buf.String(), "component=badger")
}

func TestBadgerLogger_Trims_Newlines(t *testing.T) {
	var buf bytes.Buffer
	logger := newBadgerLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	logger.Warningf("value log %d truncated\n", 3)

	require.Contains(t, buf.String(), `msg="value log 3 truncated"`)
	require.Contains(t, buf.String(), "level=WARN")
}

package main

import (
	"chat-relay/contract"
	"chat-relay/internal"
	"chat-relay/repositories"
	"chat-relay/repositories/postgres"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/mama165/sdk-go/database"
)

type stores struct {
	Users         contract.IUserStore
	Conversations contract.IConversationStore
	Notifications contract.INotificationStore
	closers       []func() error
}

// Close releases the stores in reverse opening order.
func (s *stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

func openStores(ctx context.Context, config internal.Config, logger *slog.Logger) (*stores, error) {
	switch config.StoreDriver {
	case internal.StorePostgres:
		db, err := postgres.Open(config.DatabaseURL, postgres.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("database opening failed: %w", err)
		}
		return &stores{
			Users:         postgres.NewUserStore(db),
			Conversations: postgres.NewConversationStore(db),
			Notifications: postgres.NewNotificationStore(db),
			closers:       []func() error{db.Close},
		}, nil
	default:
		db, err := repositories.OpenBadger(config.BadgerFilepath, logger)
		if err != nil {
			return nil, fmt.Errorf("database opening failed: %w", err)
		}
		notifications, err := repositories.NewNotificationRepository(db, logger)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("notification sequence: %w", err)
		}

		if logger.Enabled(ctx, slog.LevelDebug) {
			endpoint := "/inspect"
			logger.Info("Debug Badger inspector available",
				"url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
			database.StartDebugServer(db, config.DebugPort, endpoint, RecordMapper)
		}

		return &stores{
			Users:         repositories.NewUserRepository(db, logger),
			Conversations: repositories.NewConversationRepository(db),
			Notifications: notifications,
			closers:       []func() error{db.Close, notifications.Close},
		}, nil
	}
}

// RecordMapper renders relay records in the Badger inspector.
// Counters are raw 8 byte integers, everything else is CBOR.
func RecordMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	kind, _, _ := strings.Cut(key, ":")
	row.Type = strings.ToUpper(kind)

	switch kind {
	case "online":
		if len(val) == 8 {
			row.Detail = fmt.Sprintf("sessions: %d", int64(binary.BigEndian.Uint64(val)))
		}
	case "user", "conversation", "notification":
		if diag, err := cbor.Diagnose(val); err == nil {
			row.Detail = diag
		}
	}
	return row
}

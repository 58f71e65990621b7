package repositories

import (
	"chat-relay/errors"
	"context"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

const maxConflictRetries = 1000

// OpenBadger opens the embedded database. Badger's own logs go through logger
// and are filtered by its level.
func OpenBadger(path string, logger *slog.Logger) (*badger.DB, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(newBadgerLogger(logger)))
	if err != nil {
		return nil, fmt.Errorf("%w: open badger at %s: %v", errors.ErrTransientStore, path, err)
	}
	return db, nil
}

// classify maps Badger errors onto the store error taxonomy.
func classify(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, badger.ErrKeyNotFound):
		return fmt.Errorf("%s: %w", what, errors.ErrNotFound)
	case stderrors.Is(err, errors.ErrNotFound):
		return err
	default:
		return fmt.Errorf("%w: %s: %v", errors.ErrTransientStore, what, err)
	}
}

// updateWithRetry runs fn in a read-write transaction and retries on
// optimistic conflicts. Badger detects a conflict when a key read by fn
// was committed by another transaction in the meantime.
func updateWithRetry(ctx context.Context, log *slog.Logger, db *badger.DB, fn func(txn *badger.Txn) error) error {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := db.Update(fn)
		if !stderrors.Is(err, badger.ErrConflict) {
			return err
		}
		log.Debug("Badger transaction conflict, retrying", "attempt", attempt+1)
	}
	return badger.ErrConflict
}

func getRecord(txn *badger.Txn, key []byte, dst any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return unmarshal(val, dst)
	})
}

func setRecord(txn *badger.Txn, key []byte, v any) error {
	data, err := marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func encodeInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func decodeInt64(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

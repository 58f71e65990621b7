package repositories

import (
	"chat-relay/domain"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dgraph-io/badger/v4"
)

// UserRepository keeps the user profile and the online counter under two
// distinct keys, "user:{id}" and "online:{id}", so presence updates never
// rewrite the profile.
type UserRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewUserRepository(db *badger.DB, log *slog.Logger) *UserRepository {
	return &UserRepository{db: db, log: log}
}

type DiskUser struct {
	ID        int64  `cbor:"1,keyasint"`
	FirstName string `cbor:"2,keyasint"`
	LastName  string `cbor:"3,keyasint"`
	Email     string `cbor:"4,keyasint"`
}

func userKey(id domain.UserID) []byte {
	return []byte(fmt.Sprintf("user:%d", id))
}

func onlineKey(id domain.UserID) []byte {
	return []byte(fmt.Sprintf("online:%d", id))
}

// PutUser creates or replaces a profile. The online counter is left untouched.
func (r *UserRepository) PutUser(_ context.Context, u domain.User) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return setRecord(txn, userKey(u.ID), DiskUser{
			ID:        int64(u.ID),
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Email:     u.Email,
		})
	})
	return classify(err, fmt.Sprintf("put user %d", u.ID))
}

func (r *UserRepository) GetUser(_ context.Context, id domain.UserID) (domain.User, error) {
	var disk DiskUser
	var online int64
	err := r.db.View(func(txn *badger.Txn) error {
		if err := getRecord(txn, userKey(id), &disk); err != nil {
			return err
		}
		var err error
		online, err = readCounter(txn, id)
		return err
	})
	if err != nil {
		return domain.User{}, classify(err, fmt.Sprintf("get user %d", id))
	}
	return domain.User{
		ID:        domain.UserID(disk.ID),
		FirstName: disk.FirstName,
		LastName:  disk.LastName,
		Email:     disk.Email,
		Online:    online,
	}, nil
}

// AdjustOnlineCounter is a single read-modify-write transaction retried on conflict,
// so concurrent sessions of the same user never lose an update.
func (r *UserRepository) AdjustOnlineCounter(ctx context.Context, id domain.UserID, delta int64) (int64, bool, error) {
	var value int64
	var clamped bool
	err := updateWithRetry(ctx, r.log, r.db, func(txn *badger.Txn) error {
		if _, err := txn.Get(userKey(id)); err != nil {
			return err
		}
		current, err := readCounter(txn, id)
		if err != nil {
			return err
		}
		value, clamped = current+delta, false
		if value < 0 {
			value, clamped = 0, true
		}
		return txn.Set(onlineKey(id), encodeInt64(value))
	})
	if err != nil {
		return 0, false, classify(err, fmt.Sprintf("adjust online counter of user %d", id))
	}
	return value, clamped, nil
}

// ListOnline returns every stored counter, zero ones included.
func (r *UserRepository) ListOnline(_ context.Context) (map[domain.UserID]int64, error) {
	res := make(map[domain.UserID]int64)
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("online:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			id, err := strconv.ParseInt(string(item.Key()[len(prefix):]), 10, 64)
			if err != nil {
				continue
			}
			if err := item.Value(func(val []byte) error {
				res[domain.UserID(id)] = decodeInt64(val)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return res, classify(err, "list online counters")
}

func readCounter(txn *badger.Txn, id domain.UserID) (int64, error) {
	item, err := txn.Get(onlineKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var value int64
	err = item.Value(func(val []byte) error {
		value = decodeInt64(val)
		return nil
	})
	return value, err
}

// ListUsers returns every stored profile with its online counter, ordered by key.
func (r *UserRepository) ListUsers(_ context.Context) ([]domain.User, error) {
	var users []domain.User
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("user:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var disk DiskUser
			if err := it.Item().Value(func(val []byte) error {
				return unmarshal(val, &disk)
			}); err != nil {
				return err
			}
			online, err := readCounter(txn, domain.UserID(disk.ID))
			if err != nil {
				return err
			}
			users = append(users, domain.User{
				ID:        domain.UserID(disk.ID),
				FirstName: disk.FirstName,
				LastName:  disk.LastName,
				Email:     disk.Email,
				Online:    online,
			})
		}
		return nil
	})
	return users, classify(err, "list users")
}

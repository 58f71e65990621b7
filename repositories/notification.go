package repositories

import (
	"chat-relay/domain"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const sequenceBandwidth = 100

// NotificationRepository stores notifications under "notification:{id}" with two indexes:
//   - "idx:recipient:{recipient}:{id padded}" to list a user's notifications newest first
//   - "idx:unread:{recipient}:{conversation}:{id padded}" for unread conversation notifications
//
// "guard:unread:{recipient}:{conversation}" holds the id of the last notification
// created through CreateUnlessUnread and serializes those calls per pair.
//
// Ids come from a Badger sequence and are strictly increasing.
type NotificationRepository struct {
	db  *badger.DB
	log *slog.Logger
	seq *badger.Sequence
	now func() time.Time
}

// NewNotificationRepository leases the id sequence. On a read-only database
// no sequence is leased and CreateNotification fails.
func NewNotificationRepository(db *badger.DB, log *slog.Logger) (*NotificationRepository, error) {
	if db.Opts().ReadOnly {
		return &NotificationRepository{db: db, log: log, now: time.Now}, nil
	}
	seq, err := db.GetSequence([]byte("seq:notification"), sequenceBandwidth)
	if err != nil {
		return nil, classify(err, "notification sequence")
	}
	return &NotificationRepository{db: db, log: log, seq: seq, now: time.Now}, nil
}

// Close releases the leased sequence range.
func (r *NotificationRepository) Close() error {
	if r.seq == nil {
		return nil
	}
	return r.seq.Release()
}

type DiskNotification struct {
	ID           int64     `cbor:"1,keyasint"`
	Recipient    int64     `cbor:"2,keyasint"`
	Conversation *int64    `cbor:"3,keyasint,omitempty"`
	Title        string    `cbor:"4,keyasint"`
	Text         string    `cbor:"5,keyasint"`
	RedirectURL  string    `cbor:"6,keyasint"`
	Notified     bool      `cbor:"7,keyasint"`
	CreatedAt    time.Time `cbor:"8,keyasint"`
}

func notificationKey(id domain.NotificationID) []byte {
	return []byte(fmt.Sprintf("notification:%d", id))
}

func recipientPrefix(recipient domain.UserID) string {
	return fmt.Sprintf("idx:recipient:%d:", recipient)
}

func recipientKey(recipient domain.UserID, id domain.NotificationID) []byte {
	return []byte(fmt.Sprintf("%s%019d", recipientPrefix(recipient), id))
}

func unreadPrefix(recipient domain.UserID, conversation domain.ConversationID) string {
	return fmt.Sprintf("idx:unread:%d:%d:", recipient, conversation)
}

func unreadGuardKey(recipient domain.UserID, conversation domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("guard:unread:%d:%d", recipient, conversation))
}

func unreadKey(n DiskNotification) []byte {
	return []byte(fmt.Sprintf("%s%019d",
		unreadPrefix(domain.UserID(n.Recipient), domain.ConversationID(*n.Conversation)), n.ID))
}

func (r *NotificationRepository) CreateNotification(_ context.Context, n domain.Notification) (domain.Notification, error) {
	n, err := r.prepare(n)
	if err != nil {
		return domain.Notification{}, classify(err, "create notification")
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return writeNotification(txn, toDiskNotification(n))
	})
	if err != nil {
		return domain.Notification{}, classify(err, "create notification")
	}
	return n, nil
}

// CreateUnlessUnread stores n only when the recipient has no unread
// notification for n's conversation. The lookup and the write share one
// transaction; every caller also reads and writes the per-pair guard key, so
// two concurrent calls conflict even when the unread index is empty and the
// loser retries against the winner's notification.
func (r *NotificationRepository) CreateUnlessUnread(ctx context.Context, n domain.Notification) (domain.Notification, bool, error) {
	if n.ConversationID == nil {
		created, err := r.CreateNotification(ctx, n)
		return created, err == nil, err
	}
	recipient, conversation := n.RecipientID, *n.ConversationID
	var result domain.Notification
	created := false
	err := updateWithRetry(ctx, r.log, r.db, func(txn *badger.Txn) error {
		created = false
		guard := unreadGuardKey(recipient, conversation)
		if _, err := txn.Get(guard); err != nil && !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		existing, found, err := findUnread(txn, recipient, conversation)
		if err != nil {
			return err
		}
		if found {
			result = toNotification(existing)
			return nil
		}
		fresh, err := r.prepare(n)
		if err != nil {
			return err
		}
		if err := writeNotification(txn, toDiskNotification(fresh)); err != nil {
			return err
		}
		if err := txn.Set(guard, encodeInt64(int64(fresh.ID))); err != nil {
			return err
		}
		result, created = fresh, true
		return nil
	})
	if err != nil {
		return domain.Notification{}, false, classify(err, "create unread notification")
	}
	return result, created, nil
}

// prepare assigns the next id and normalizes the creation time.
func (r *NotificationRepository) prepare(n domain.Notification) (domain.Notification, error) {
	if r.seq == nil {
		return domain.Notification{}, badger.ErrReadOnlyTxn
	}
	next, err := r.seq.Next()
	if err != nil {
		return domain.Notification{}, fmt.Errorf("next notification id: %w", err)
	}
	n.ID = domain.NotificationID(next + 1)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now()
	}
	n.CreatedAt = n.CreatedAt.UTC()
	return n, nil
}

func writeNotification(txn *badger.Txn, disk DiskNotification) error {
	if err := setRecord(txn, notificationKey(domain.NotificationID(disk.ID)), disk); err != nil {
		return err
	}
	if err := txn.Set(recipientKey(domain.UserID(disk.Recipient), domain.NotificationID(disk.ID)), nil); err != nil {
		return err
	}
	if disk.Conversation != nil && !disk.Notified {
		return txn.Set(unreadKey(disk), nil)
	}
	return nil
}

func (r *NotificationRepository) GetNotification(_ context.Context, id domain.NotificationID) (domain.Notification, error) {
	var disk DiskNotification
	err := r.db.View(func(txn *badger.Txn) error {
		return getRecord(txn, notificationKey(id), &disk)
	})
	if err != nil {
		return domain.Notification{}, classify(err, fmt.Sprintf("get notification %d", id))
	}
	return toNotification(disk), nil
}

func (r *NotificationRepository) FindUnread(_ context.Context, recipient domain.UserID,
	conversation domain.ConversationID) (domain.Notification, bool, error) {
	var disk DiskNotification
	found := false
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		disk, found, err = findUnread(txn, recipient, conversation)
		return err
	})
	if err != nil {
		return domain.Notification{}, false, classify(err, "find unread notification")
	}
	if !found {
		return domain.Notification{}, false, nil
	}
	return toNotification(disk), true, nil
}

func findUnread(txn *badger.Txn, recipient domain.UserID, conversation domain.ConversationID) (DiskNotification, bool, error) {
	prefix := []byte(unreadPrefix(recipient, conversation))
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	it := txn.NewIterator(options)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		id, err := strconv.ParseInt(string(it.Item().Key()[len(prefix):]), 10, 64)
		if err != nil {
			continue
		}
		var disk DiskNotification
		err = getRecord(txn, notificationKey(domain.NotificationID(id)), &disk)
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			// dangling index entry
			continue
		}
		if err != nil {
			return DiskNotification{}, false, err
		}
		return disk, true, nil
	}
	return DiskNotification{}, false, nil
}

func (r *NotificationRepository) MarkNotified(ctx context.Context, id domain.NotificationID) error {
	err := updateWithRetry(ctx, r.log, r.db, func(txn *badger.Txn) error {
		var disk DiskNotification
		if err := getRecord(txn, notificationKey(id), &disk); err != nil {
			return err
		}
		if disk.Notified {
			return nil
		}
		disk.Notified = true
		if err := setRecord(txn, notificationKey(id), disk); err != nil {
			return err
		}
		if disk.Conversation != nil {
			return txn.Delete(unreadKey(disk))
		}
		return nil
	})
	return classify(err, fmt.Sprintf("mark notification %d", id))
}

func (r *NotificationRepository) DeleteNotification(ctx context.Context, id domain.NotificationID) error {
	err := updateWithRetry(ctx, r.log, r.db, func(txn *badger.Txn) error {
		var disk DiskNotification
		if err := getRecord(txn, notificationKey(id), &disk); err != nil {
			return err
		}
		if err := txn.Delete(notificationKey(id)); err != nil {
			return err
		}
		if err := txn.Delete(recipientKey(domain.UserID(disk.Recipient), id)); err != nil {
			return err
		}
		if disk.Conversation != nil {
			return txn.Delete(unreadKey(disk))
		}
		return nil
	})
	return classify(err, fmt.Sprintf("delete notification %d", id))
}

// ListNotifications walks the recipient index backwards, highest id first.
func (r *NotificationRepository) ListNotifications(_ context.Context, recipient domain.UserID,
	limit int) ([]domain.Notification, error) {
	var res []domain.Notification
	err := r.db.View(func(txn *badger.Txn) error {
		prefixStr := recipientPrefix(recipient)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(append(prefix, []byte("9999999999999999999")...)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(res) == limit {
				break
			}
			id, err := strconv.ParseInt(string(it.Item().Key()[len(prefixStr):]), 10, 64)
			if err != nil {
				continue
			}
			var disk DiskNotification
			err = getRecord(txn, notificationKey(domain.NotificationID(id)), &disk)
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			res = append(res, toNotification(disk))
		}
		return nil
	})
	if err != nil {
		return nil, classify(err, "list notifications")
	}
	return res, nil
}

func toDiskNotification(n domain.Notification) DiskNotification {
	disk := DiskNotification{
		ID:          int64(n.ID),
		Recipient:   int64(n.RecipientID),
		Title:       n.Title,
		Text:        n.Text,
		RedirectURL: n.RedirectURL,
		Notified:    n.Notified,
		CreatedAt:   n.CreatedAt,
	}
	if n.ConversationID != nil {
		c := int64(*n.ConversationID)
		disk.Conversation = &c
	}
	return disk
}

func toNotification(disk DiskNotification) domain.Notification {
	n := domain.Notification{
		ID:          domain.NotificationID(disk.ID),
		RecipientID: domain.UserID(disk.Recipient),
		Title:       disk.Title,
		Text:        disk.Text,
		RedirectURL: disk.RedirectURL,
		Notified:    disk.Notified,
		CreatedAt:   disk.CreatedAt,
	}
	if disk.Conversation != nil {
		c := domain.ConversationID(*disk.Conversation)
		n.ConversationID = &c
	}
	return n
}

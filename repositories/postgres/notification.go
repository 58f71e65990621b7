package postgres

import (
	"chat-relay/domain"
	"context"
	"database/sql"
	"fmt"
	"time"
)

const notificationColumns = `id, recipient_id, conversation_id, title, text, redirect_url, notified, created_at`

type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(row scanner) (domain.Notification, error) {
	var n domain.Notification
	var conversation sql.NullInt64
	if err := row.Scan(&n.ID, &n.RecipientID, &conversation, &n.Title, &n.Text,
		&n.RedirectURL, &n.Notified, &n.CreatedAt); err != nil {
		return domain.Notification{}, err
	}
	if conversation.Valid {
		c := domain.ConversationID(conversation.Int64)
		n.ConversationID = &c
	}
	return n, nil
}

// querier is what *sql.DB and *sql.Tx share.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *NotificationStore) FindUnread(ctx context.Context, recipient domain.UserID,
	conversation domain.ConversationID) (domain.Notification, bool, error) {
	n, found, err := findUnread(ctx, s.db, recipient, conversation)
	if err != nil {
		return domain.Notification{}, false, classify(err, "find unread notification")
	}
	return n, found, nil
}

func findUnread(ctx context.Context, q querier, recipient domain.UserID,
	conversation domain.ConversationID) (domain.Notification, bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE recipient_id = $1 AND conversation_id = $2 AND notified = false
		ORDER BY id
		LIMIT 1
	`, int64(recipient), int64(conversation))
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return domain.Notification{}, false, nil
	}
	if err != nil {
		return domain.Notification{}, false, err
	}
	return n, true, nil
}

func (s *NotificationStore) CreateNotification(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	n, err := insertNotification(ctx, s.db, n)
	if err != nil {
		return domain.Notification{}, classify(err, "create notification")
	}
	return n, nil
}

// CreateUnlessUnread runs the lookup and the insert in one transaction holding
// an advisory lock keyed on (recipient, conversation), so concurrent relays
// sharing the database serialize on the pair.
func (s *NotificationStore) CreateUnlessUnread(ctx context.Context, n domain.Notification) (domain.Notification, bool, error) {
	if n.ConversationID == nil {
		created, err := s.CreateNotification(ctx, n)
		return created, err == nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Notification{}, false, classify(err, "begin create unread notification")
	}
	defer func() { _ = tx.Rollback() }()

	lock := fmt.Sprintf("notification:unread:%d:%d", n.RecipientID, *n.ConversationID)
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lock); err != nil {
		return domain.Notification{}, false, classify(err, "lock unread notification")
	}
	existing, found, err := findUnread(ctx, tx, n.RecipientID, *n.ConversationID)
	if err != nil {
		return domain.Notification{}, false, classify(err, "find unread notification")
	}
	if found {
		return existing, false, classify(tx.Commit(), "commit unread notification")
	}
	created, err := insertNotification(ctx, tx, n)
	if err != nil {
		return domain.Notification{}, false, classify(err, "create notification")
	}
	if err := tx.Commit(); err != nil {
		return domain.Notification{}, false, classify(err, "commit unread notification")
	}
	return created, true, nil
}

func insertNotification(ctx context.Context, q querier, n domain.Notification) (domain.Notification, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	var conversation sql.NullInt64
	if n.ConversationID != nil {
		conversation = sql.NullInt64{Int64: int64(*n.ConversationID), Valid: true}
	}
	err := q.QueryRowContext(ctx, `
		INSERT INTO notifications (recipient_id, conversation_id, title, text, redirect_url, notified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, int64(n.RecipientID), conversation, n.Title, n.Text, n.RedirectURL, n.Notified, n.CreatedAt).Scan(&n.ID)
	if err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

func (s *NotificationStore) GetNotification(ctx context.Context, id domain.NotificationID) (domain.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE id = $1
	`, int64(id))
	n, err := scanNotification(row)
	if err != nil {
		return domain.Notification{}, classify(err, fmt.Sprintf("get notification %d", id))
	}
	return n, nil
}

func (s *NotificationStore) MarkNotified(ctx context.Context, id domain.NotificationID) error {
	what := fmt.Sprintf("mark notification %d", id)
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET notified = true WHERE id = $1`, int64(id))
	if err != nil {
		return classify(err, what)
	}
	return requireAffected(res, what)
}

func (s *NotificationStore) DeleteNotification(ctx context.Context, id domain.NotificationID) error {
	what := fmt.Sprintf("delete notification %d", id)
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1`, int64(id))
	if err != nil {
		return classify(err, what)
	}
	return requireAffected(res, what)
}

// ListNotifications returns newest first. A limit <= 0 means no limit.
func (s *NotificationStore) ListNotifications(ctx context.Context, recipient domain.UserID,
	limit int) ([]domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC, id DESC`
	args := []any{int64(recipient)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "list notifications")
	}
	defer rows.Close()

	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, classify(err, "list notifications")
		}
		res = append(res, n)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list notifications")
	}
	return res, nil
}

package postgres

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestUserStore_GetUser(t *testing.T) {
	req := require.New(t)
	db, mock := setupMockDB(t)
	store := NewUserStore(db)

	mock.ExpectQuery("SELECT id, first_name, last_name, email, online FROM users").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name", "last_name", "email", "online"}).
			AddRow(1, "Alice", "Martin", "alice@example.com", 2))
	mock.ExpectQuery("SELECT id, first_name, last_name, email, online FROM users").
		WithArgs(int64(2)).
		WillReturnError(sql.ErrNoRows)

	user, err := store.GetUser(context.Background(), 1)
	req.NoError(err)
	req.Equal(domain.User{ID: 1, FirstName: "Alice", LastName: "Martin", Email: "alice@example.com", Online: 2}, user)

	_, err = store.GetUser(context.Background(), 2)
	req.ErrorIs(err, errors.ErrNotFound)
	req.NoError(mock.ExpectationsWereMet())
}

func TestUserStore_AdjustOnlineCounter(t *testing.T) {
	req := require.New(t)
	db, mock := setupMockDB(t)
	store := NewUserStore(db)

	// Given a counter already at zero
	mock.ExpectQuery("UPDATE users u SET online = GREATEST").
		WithArgs(int64(4), int64(-1)).
		WillReturnRows(sqlmock.NewRows([]string{"online", "prev"}).AddRow(0, 0))
	mock.ExpectQuery("UPDATE users u SET online = GREATEST").
		WithArgs(int64(4), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"online", "prev"}).AddRow(1, 0))
	mock.ExpectQuery("UPDATE users u SET online = GREATEST").
		WithArgs(int64(4), int64(1)).
		WillReturnError(fmt.Errorf("connection reset by peer"))

	// When decremented the clamp is reported
	value, clamped, err := store.AdjustOnlineCounter(context.Background(), 4, -1)
	req.NoError(err)
	req.Equal(int64(0), value)
	req.True(clamped)

	// When incremented it is not
	value, clamped, err = store.AdjustOnlineCounter(context.Background(), 4, 1)
	req.NoError(err)
	req.Equal(int64(1), value)
	req.False(clamped)

	// Driver errors are transient
	_, _, err = store.AdjustOnlineCounter(context.Background(), 4, 1)
	req.ErrorIs(err, errors.ErrTransientStore)
	req.NoError(mock.ExpectationsWereMet())
}

func TestConversationStore_GetConversation(t *testing.T) {
	req := require.New(t)
	db, mock := setupMockDB(t)
	store := NewConversationStore(db)
	at := time.Now().UTC()

	mock.ExpectQuery("SELECT id, title, created_at, updated_at FROM conversations").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "created_at", "updated_at"}).AddRow(3, "Bike", at, at))
	mock.ExpectQuery("SELECT user_id FROM conversation_members").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(1).AddRow(2))

	c, err := store.GetConversation(context.Background(), 3)
	req.NoError(err)
	req.Equal(domain.Conversation{ID: 3, Title: "Bike", Members: []domain.UserID{1, 2}, CreatedAt: at, UpdatedAt: at}, c)
	req.NoError(mock.ExpectationsWereMet())
}

func TestConversationStore_IsMember(t *testing.T) {
	req := require.New(t)
	db, mock := setupMockDB(t)
	store := NewConversationStore(db)

	mock.ExpectQuery("SELECT EXISTS").WithArgs(int64(3), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists", "member"}).AddRow(true, true))
	mock.ExpectQuery("SELECT EXISTS").WithArgs(int64(3), int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"exists", "member"}).AddRow(true, false))
	mock.ExpectQuery("SELECT EXISTS").WithArgs(int64(404), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists", "member"}).AddRow(false, false))

	member, err := store.IsMember(context.Background(), 3, 1)
	req.NoError(err)
	req.True(member)

	member, err = store.IsMember(context.Background(), 3, 9)
	req.NoError(err)
	req.False(member)

	_, err = store.IsMember(context.Background(), 404, 1)
	req.ErrorIs(err, errors.ErrNotFound)
	req.NoError(mock.ExpectationsWereMet())
}

func notificationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "recipient_id", "conversation_id", "title", "text", "redirect_url", "notified", "created_at"})
}

func TestNotificationStore_FindUnread(t *testing.T) {
	req := require.New(t)
	db, mock := setupMockDB(t)
	store := NewNotificationStore(db)
	at := time.Now().UTC()

	mock.ExpectQuery("FROM notifications WHERE recipient_id = \\$1 AND conversation_id = \\$2 AND notified = false").
		WithArgs(int64(2), int64(3)).
		WillReturnRows(notificationRows().AddRow(10, 2, 3, "New Message", "New message from Alice", "/messages/c/3", false, at))
	mock.ExpectQuery("FROM notifications WHERE recipient_id = \\$1 AND conversation_id = \\$2 AND notified = false").
		WithArgs(int64(2), int64(4)).
		WillReturnRows(notificationRows())

	n, found, err := store.FindUnread(context.Background(), 2, 3)
	req.NoError(err)
	req.True(found)
	req.Equal(domain.Notification{
		ID: 10, RecipientID: 2, ConversationID: lo.ToPtr(domain.ConversationID(3)),
		Title: "New Message", Text: "New message from Alice", RedirectURL: "/messages/c/3", CreatedAt: at,
	}, n)

	_, found, err = store.FindUnread(context.Background(), 2, 4)
	req.NoError(err)
	req.False(found)
	req.NoError(mock.ExpectationsWereMet())
}

func TestNotificationStore_CreateNotification(t *testing.T) {
	req := require.New(t)
	db, mock := setupMockDB(t)
	store := NewNotificationStore(db)
	at := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO notifications").
		WithArgs(int64(2), sql.NullInt64{}, "New offer", "Alice made an offer", "/offers/5", false, at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(77))

	n, err := store.CreateNotification(context.Background(), domain.Notification{
		RecipientID: 2, Title: "New offer", Text: "Alice made an offer", RedirectURL: "/offers/5", CreatedAt: at,
	})
	req.NoError(err)
	req.Equal(domain.NotificationID(77), n.ID)
	req.Nil(n.ConversationID)
	req.NoError(mock.ExpectationsWereMet())
}

func TestNotificationStore_CreateUnlessUnread(t *testing.T) {
	req := require.New(t)
	db, mock := setupMockDB(t)
	store := NewNotificationStore(db)
	at := time.Now().UTC()
	n := domain.Notification{
		RecipientID: 2, ConversationID: lo.ToPtr(domain.ConversationID(3)),
		Title: "New Message", Text: "New message from Alice", RedirectURL: "/messages/c/3", CreatedAt: at,
	}

	// Given no unread notification for (2, 3), then the one just created
	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock\\(hashtextextended\\(\\$1, 0\\)\\)").
		WithArgs("notification:unread:2:3").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM notifications WHERE recipient_id = \\$1 AND conversation_id = \\$2 AND notified = false").
		WithArgs(int64(2), int64(3)).
		WillReturnRows(notificationRows())
	mock.ExpectQuery("INSERT INTO notifications").
		WithArgs(int64(2), sql.NullInt64{Int64: 3, Valid: true}, "New Message", "New message from Alice", "/messages/c/3", false, at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(80))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs("notification:unread:2:3").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM notifications WHERE recipient_id = \\$1 AND conversation_id = \\$2 AND notified = false").
		WithArgs(int64(2), int64(3)).
		WillReturnRows(notificationRows().AddRow(80, 2, 3, "New Message", "New message from Alice", "/messages/c/3", false, at))
	mock.ExpectCommit()

	// When the same pair is offered twice
	first, created, err := store.CreateUnlessUnread(context.Background(), n)
	req.NoError(err)
	req.True(created)
	req.Equal(domain.NotificationID(80), first.ID)

	second, created, err := store.CreateUnlessUnread(context.Background(), n)

	// Then the second call returns the existing notification without inserting
	req.NoError(err)
	req.False(created)
	req.Equal(first.ID, second.ID)
	req.NoError(mock.ExpectationsWereMet())
}

func TestNotificationStore_CreateUnlessUnread_Rolls_Back_On_Failure(t *testing.T) {
	req := require.New(t)
	db, mock := setupMockDB(t)
	store := NewNotificationStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs("notification:unread:2:3").
		WillReturnError(fmt.Errorf("connection reset"))
	mock.ExpectRollback()

	_, created, err := store.CreateUnlessUnread(context.Background(), domain.Notification{
		RecipientID: 2, ConversationID: lo.ToPtr(domain.ConversationID(3)), Title: "New Message",
	})
	req.ErrorIs(err, errors.ErrTransientStore)
	req.False(created)
	req.NoError(mock.ExpectationsWereMet())
}

func TestNotificationStore_Mark_And_Delete(t *testing.T) {
	req := require.New(t)
	db, mock := setupMockDB(t)
	store := NewNotificationStore(db)

	mock.ExpectExec("UPDATE notifications SET notified = true").WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE notifications SET notified = true").WithArgs(int64(6)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM notifications").WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM notifications").WithArgs(int64(6)).
		WillReturnError(fmt.Errorf("timeout"))

	req.NoError(store.MarkNotified(context.Background(), 5))
	req.ErrorIs(store.MarkNotified(context.Background(), 6), errors.ErrNotFound)
	req.NoError(store.DeleteNotification(context.Background(), 5))
	req.ErrorIs(store.DeleteNotification(context.Background(), 6), errors.ErrTransientStore)
	req.NoError(mock.ExpectationsWereMet())
}

func TestNotificationStore_ListNotifications(t *testing.T) {
	req := require.New(t)
	db, mock := setupMockDB(t)
	store := NewNotificationStore(db)
	at := time.Now().UTC()

	mock.ExpectQuery("ORDER BY created_at DESC, id DESC LIMIT \\$2").
		WithArgs(int64(2), 2).
		WillReturnRows(notificationRows().
			AddRow(11, 2, nil, "New offer", "Alice made an offer", "/offers/5", false, at).
			AddRow(10, 2, 3, "New Message", "New message from Alice", "/messages/c/3", true, at.Add(-time.Minute)))

	list, err := store.ListNotifications(context.Background(), 2, 2)
	req.NoError(err)
	req.Len(list, 2)
	req.Equal(domain.NotificationID(11), list[0].ID)
	req.Nil(list[0].ConversationID)
	req.Equal(domain.ConversationID(3), *list[1].ConversationID)
	req.True(list[1].Notified)
	req.NoError(mock.ExpectationsWereMet())
}

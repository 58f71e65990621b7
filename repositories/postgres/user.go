package postgres

import (
	"chat-relay/domain"
	"context"
	"database/sql"
	"fmt"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) GetUser(ctx context.Context, id domain.UserID) (domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, email, online
		FROM users
		WHERE id = $1
	`, int64(id)).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Online)
	if err != nil {
		return domain.User{}, classify(err, fmt.Sprintf("get user %d", id))
	}
	return u, nil
}

// AdjustOnlineCounter locks the row, applies delta and clamps at zero in a
// single statement. The previous value is returned alongside so the clamp
// can be detected without a second round trip.
func (s *UserStore) AdjustOnlineCounter(ctx context.Context, id domain.UserID, delta int64) (int64, bool, error) {
	var value, previous int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE users u
		SET online = GREATEST(p.prev + $2, 0)
		FROM (SELECT id, online AS prev FROM users WHERE id = $1 FOR UPDATE) p
		WHERE u.id = p.id
		RETURNING u.online, p.prev
	`, int64(id), delta).Scan(&value, &previous)
	if err != nil {
		return 0, false, classify(err, fmt.Sprintf("adjust online counter of user %d", id))
	}
	return value, previous+delta < 0, nil
}

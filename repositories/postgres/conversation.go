package postgres

import (
	"chat-relay/domain"
	"context"
	"database/sql"
	"fmt"
)

type ConversationStore struct {
	db *sql.DB
}

func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

func (s *ConversationStore) GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	what := fmt.Sprintf("get conversation %d", id)
	var c domain.Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`, int64(id)).Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.Conversation{}, classify(err, what)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id
		FROM conversation_members
		WHERE conversation_id = $1
		ORDER BY user_id
	`, int64(id))
	if err != nil {
		return domain.Conversation{}, classify(err, what)
	}
	defer rows.Close()

	for rows.Next() {
		var member domain.UserID
		if err := rows.Scan(&member); err != nil {
			return domain.Conversation{}, classify(err, what)
		}
		c.Members = append(c.Members, member)
	}
	if err := rows.Err(); err != nil {
		return domain.Conversation{}, classify(err, what)
	}
	return c, nil
}

// IsMember distinguishes an unknown conversation (ErrNotFound) from a stranger (false).
func (s *ConversationStore) IsMember(ctx context.Context, id domain.ConversationID, user domain.UserID) (bool, error) {
	var exists, member bool
	err := s.db.QueryRowContext(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM conversations WHERE id = $1),
			EXISTS (SELECT 1 FROM conversation_members WHERE conversation_id = $1 AND user_id = $2)
	`, int64(id), int64(user)).Scan(&exists, &member)
	if err != nil {
		return false, classify(err, fmt.Sprintf("membership of user %d in conversation %d", user, id))
	}
	if !exists {
		return false, classify(sql.ErrNoRows, fmt.Sprintf("conversation %d", id))
	}
	return member, nil
}

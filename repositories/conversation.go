package repositories

import (
	"chat-relay/domain"
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

// ConversationRepository is a read model of conversations owned by the CRUD layer.
// It is filled by PutConversation (seeding, tests) and read by the relay.
type ConversationRepository struct {
	db *badger.DB
}

func NewConversationRepository(db *badger.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

type DiskConversation struct {
	ID        int64     `cbor:"1,keyasint"`
	Title     string    `cbor:"2,keyasint"`
	Members   []int64   `cbor:"3,keyasint"`
	CreatedAt time.Time `cbor:"4,keyasint"`
	UpdatedAt time.Time `cbor:"5,keyasint"`
}

func conversationKey(id domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("conversation:%d", id))
}

func (r *ConversationRepository) PutConversation(_ context.Context, c domain.Conversation) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return setRecord(txn, conversationKey(c.ID), DiskConversation{
			ID:    int64(c.ID),
			Title: c.Title,
			Members: lo.Map(c.Members, func(m domain.UserID, _ int) int64 {
				return int64(m)
			}),
			CreatedAt: c.CreatedAt.UTC(),
			UpdatedAt: c.UpdatedAt.UTC(),
		})
	})
	return classify(err, fmt.Sprintf("put conversation %d", c.ID))
}

func (r *ConversationRepository) GetConversation(_ context.Context, id domain.ConversationID) (domain.Conversation, error) {
	var disk DiskConversation
	err := r.db.View(func(txn *badger.Txn) error {
		return getRecord(txn, conversationKey(id), &disk)
	})
	if err != nil {
		return domain.Conversation{}, classify(err, fmt.Sprintf("get conversation %d", id))
	}
	return domain.Conversation{
		ID:    domain.ConversationID(disk.ID),
		Title: disk.Title,
		Members: lo.Map(disk.Members, func(m int64, _ int) domain.UserID {
			return domain.UserID(m)
		}),
		CreatedAt: disk.CreatedAt,
		UpdatedAt: disk.UpdatedAt,
	}, nil
}

// IsMember returns ErrNotFound for an unknown conversation, false for a stranger.
func (r *ConversationRepository) IsMember(ctx context.Context, id domain.ConversationID, user domain.UserID) (bool, error) {
	c, err := r.GetConversation(ctx, id)
	if err != nil {
		return false, err
	}
	return c.HasMember(user), nil
}

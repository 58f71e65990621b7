package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConversationRepository_Membership(t *testing.T) {
	req := require.New(t)
	repository := NewConversationRepository(openTestDB(t))
	ctx := context.Background()
	at := time.Now().UTC()
	conversation := domain.Conversation{ID: 3, Title: "Bike", Members: []domain.UserID{1, 2}, CreatedAt: at, UpdatedAt: at}

	// Given a stored conversation between 1 and 2
	req.NoError(repository.PutConversation(ctx, conversation))

	// Then it is read back unchanged
	fetched, err := repository.GetConversation(ctx, 3)
	req.NoError(err)
	req.Equal(conversation, fetched)

	// And membership is resolved
	member, err := repository.IsMember(ctx, 3, 2)
	req.NoError(err)
	req.True(member)

	member, err = repository.IsMember(ctx, 3, 9)
	req.NoError(err)
	req.False(member)

	_, err = repository.IsMember(ctx, 404, 1)
	req.ErrorIs(err, errors.ErrNotFound)
}

package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/techagentng/collera/models"
)

// CreateConversation skips the lookup so tests can provoke a pair conflict.
func CreateConversation(r ChatRepository, ctx context.Context, a, b uuid.UUID) (*models.Conversation, error) {
	return r.(*chatRepo).createConversation(ctx, a, b)
}

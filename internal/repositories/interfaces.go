package repositories

import (
	"context"

	"github.com/votewatch/realtime/internal/models"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *models.ChatMessage) error
	GetByID(ctx context.Context, id int64) (*models.ChatMessage, error)
	MarkRead(ctx context.Context, id int64) error
	ListBetween(ctx context.Context, userA, userB int64, limit int) ([]*models.ChatMessage, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetProfile(ctx context.Context, id int64) (*models.Profile, error)
}

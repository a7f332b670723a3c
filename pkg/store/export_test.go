package store

import (
	"context"

	"github.com/xhad/doccheck/internal/models"
)

func (s *SQLite) Messages(ctx context.Context, chatID string) ([]models.Message, error) {
	return s.messages(ctx, chatID)
}

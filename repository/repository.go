// Package repository хранит посты в SQL (gorm) или документной (MongoDB) базе.
package repository

import (
	"context"
	"errors"
	"time"

	"captiongram/models"
)

var (
	ErrNotFound  = errors.New("post not found")
	ErrDuplicate = errors.New("post already exists")
)

// Cursor - позиция пагинации ленты профиля (created_at, id последнего поста)
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	FindByID(ctx context.Context, id string) (*models.Post, error)
	UpdateCaption(ctx context.Context, id string, caption string) (*models.Post, error)
	ListByOwner(ctx context.Context, ownerID int64, after *Cursor, limit int) ([]models.Post, error)
	Count(ctx context.Context) (int64, error)
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func pageSize(limit int) int {
	if limit <= 0 || limit > MaxPageSize {
		return DefaultPageSize
	}
	return limit
}

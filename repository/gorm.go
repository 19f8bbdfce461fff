package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"captiongram/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

// GormPostRepository - хранилище постов в SQL базе
type GormPostRepository struct {
	db *gorm.DB
}

func NewGormPostRepository(db *gorm.DB) *GormPostRepository {
	return &GormPostRepository{db: db}
}

func (r *GormPostRepository) write(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Clauses(dbresolver.Write)
}

func (r *GormPostRepository) read(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Clauses(dbresolver.Read)
}

func (r *GormPostRepository) Create(ctx context.Context, post *models.Post) error {
	post.ID = uuid.NewString()
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now

	err := r.write(ctx).Create(post).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", ErrDuplicate, post.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

func (r *GormPostRepository) FindByID(ctx context.Context, id string) (*models.Post, error) {
	// Читаем с мастера: сразу после записи реплика может отставать
	var post models.Post
	err := r.write(ctx).Where("id = ?", id).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return &post, nil
}

func (r *GormPostRepository) UpdateCaption(ctx context.Context, id string, caption string) (*models.Post, error) {
	trx := r.write(ctx).Model(&models.Post{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"caption": caption, "updated_at": time.Now().UTC()})
	if trx.Error != nil {
		return nil, fmt.Errorf("failed to update caption: %w", trx.Error)
	}
	if trx.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *GormPostRepository) ListByOwner(ctx context.Context, ownerID int64, after *Cursor, limit int) ([]models.Post, error) {
	query := r.read(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC, id DESC").
		Limit(pageSize(limit))

	if after != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}

	posts := make([]models.Post, 0)
	if err := query.Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return posts, nil
}

func (r *GormPostRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.read(ctx).Model(&models.Post{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return count, nil
}

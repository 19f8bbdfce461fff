package db

import (
	"fmt"

	"gorm.io/gorm"
)

// CreatePostFeedIndex создает индекс для ленты профиля (owner_id, created_at)
func CreatePostFeedIndex(db *gorm.DB) error {
	createIndexSQL := `
		CREATE INDEX IF NOT EXISTS idx_posts_owner_id_created_at ON posts (owner_id, created_at);
	`
	if err := db.Exec(createIndexSQL).Error; err != nil {
		return fmt.Errorf("failed to create index idx_posts_owner_id_created_at: %w", err)
	}
	return nil
}

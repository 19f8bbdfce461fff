// Package storage загружает изображения во внешнее объектное хранилище.
package storage

import (
	"context"

	"github.com/google/uuid"
)

const (
	FolderPosts           = "posts"
	FolderProfilePictures = "profile_pictures"
)

// Object - загруженный объект с публичным URL
type Object struct {
	URL    string `json:"url"`
	FileID string `json:"file_id"`
	Key    string `json:"key"`
	Folder string `json:"folder"`
}

type Store interface {
	Upload(ctx context.Context, data []byte, key, folder string) (*Object, error)
	Delete(ctx context.Context, obj Object) error
}

// NewKey генерирует уникальный ключ объекта, не зависящий от содержимого
func NewKey(ext string) string {
	return uuid.NewString() + ext
}

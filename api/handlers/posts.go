package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"captiongram/models"
	"captiongram/repository"

	"github.com/gin-gonic/gin"
)

const DefaultMaxUploadBytes = 20 << 20

// PostWorkflows - сценарии постов, которые вызывают обработчики
type PostWorkflows interface {
	CreatePost(ctx context.Context, ownerID int64, raw []byte) (*models.Post, error)
	RegenerateCaption(ctx context.Context, callerID int64, postID string) (*models.Post, error)
	GetPost(ctx context.Context, postID string) (*models.Post, error)
	ListOwnerPosts(ctx context.Context, ownerID int64, after *repository.Cursor, limit int) ([]models.Post, error)
}

type PostHandlers struct {
	posts          PostWorkflows
	maxUploadBytes int64
}

func NewPostHandlers(posts PostWorkflows, maxUploadBytes int64) *PostHandlers {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &PostHandlers{posts: posts, maxUploadBytes: maxUploadBytes}
}

// CreatePost создает пост из файла в поле post
func (h *PostHandlers) CreatePost(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized", "error": "unauthorized"})
		return
	}

	raw, err := readUpload(c, "post", h.maxUploadBytes)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "Image is too large", "error": "too_large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid upload", "error": "invalid_request"})
		return
	}

	// Отсутствие файла обрабатывает сам сценарий: ErrNoImage
	post, err := h.posts.CreatePost(c.Request.Context(), userID, raw)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Post created successfully", "post": post})
}

// GenerateCaption перегенерирует подпись существующего поста
func (h *PostHandlers) GenerateCaption(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized", "error": "unauthorized"})
		return
	}

	post, err := h.posts.RegenerateCaption(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "New caption generated", "post": post})
}

func (h *PostHandlers) GetPost(c *gin.Context) {
	post, err := h.posts.GetPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": post})
}

// readUpload читает файл из multipart поля. Отсутствующее поле дает nil без ошибки
func readUpload(c *gin.Context, field string, maxBytes int64) ([]byte, error) {
	// Запас на заголовки multipart и остальные поля формы
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+1<<20)

	fileHeader, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if fileHeader.Size > maxBytes {
		return nil, &http.MaxBytesError{Limit: maxBytes}
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer func(f multipart.File) { _ = f.Close() }(file)

	return io.ReadAll(file)
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"captiongram/api/middleware"
	"captiongram/models"
	"captiongram/repository"
	"captiongram/services"

	"github.com/gin-gonic/gin"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Accounts - операции с пользователями и сессиями
type Accounts interface {
	Register(ctx context.Context, req services.RegisterRequest) (*models.User, string, error)
	Login(ctx context.Context, username, password string) (*models.User, string, error)
	Logout(ctx context.Context, token string) error
	SessionTTL() time.Duration
}

type AuthHandlers struct {
	users          Accounts
	posts          PostWorkflows
	cookieSecure   bool
	maxUploadBytes int64
}

func NewAuthHandlers(users Accounts, posts PostWorkflows, cookieSecure bool, maxUploadBytes int64) *AuthHandlers {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &AuthHandlers{users: users, posts: posts, cookieSecure: cookieSecure, maxUploadBytes: maxUploadBytes}
}

func (h *AuthHandlers) setSessionCookie(c *gin.Context, token string, maxAge int) {
	if h.cookieSecure {
		c.SetSameSite(http.SameSiteNoneMode)
	} else {
		c.SetSameSite(http.SameSiteLaxMode)
	}
	c.SetCookie(middleware.TokenCookie, token, maxAge, "/", "", h.cookieSecure, true)
}

// Register регистрирует пользователя; форма multipart с обязательным файлом pfp
func (h *AuthHandlers) Register(c *gin.Context) {
	picture, err := readUpload(c, "pfp", h.maxUploadBytes)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "Profile picture is too large", "error": "too_large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request", "error": "invalid_request"})
		return
	}

	user, token, err := h.users.Register(c.Request.Context(), services.RegisterRequest{
		Username: c.PostForm("username"),
		Password: c.PostForm("password"),
		FullName: c.PostForm("fullname"),
		Bio:      c.PostForm("bio"),
		Picture:  picture,
	})
	switch {
	case err == nil:
	case errors.Is(err, services.ErrNoProfilePicture):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Profile picture is required", "error": "no_image"})
		return
	case errors.Is(err, services.ErrInvalidUserData):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Username and password are required", "error": "invalid_request"})
		return
	case errors.Is(err, services.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"message": "User already exists", "error": "user_exists"})
		return
	default:
		respondError(c, err)
		return
	}

	h.setSessionCookie(c, token, int(h.users.SessionTTL().Seconds()))
	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "user": user.Info()})
}

func (h *AuthHandlers) Login(c *gin.Context) {
	var loginRequest LoginRequest
	if err := c.ShouldBindJSON(&loginRequest); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request", "error": "invalid_request"})
		return
	}

	user, token, err := h.users.Login(c.Request.Context(), loginRequest.Username, loginRequest.Password)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found", "error": "user_not_found"})
		return
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials", "error": "invalid_credentials"})
		return
	default:
		respondError(c, err)
		return
	}

	h.setSessionCookie(c, token, int(h.users.SessionTTL().Seconds()))
	c.JSON(http.StatusOK, gin.H{"message": "User successfully logged in", "username": user.Username, "token": token})
}

func (h *AuthHandlers) Logout(c *gin.Context) {
	if err := h.users.Logout(c.Request.Context(), middleware.RequestToken(c)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Logout failed", "error": "internal"})
		return
	}
	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "Logout successful"})
}

// Profile возвращает текущего пользователя и его посты, новые первыми
func (h *AuthHandlers) Profile(c *gin.Context) {
	value, exists := c.Get(middleware.UserKey)
	user, ok := value.(*models.User)
	if !exists || !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized", "error": "unauthorized"})
		return
	}

	after, err := cursorFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid cursor", "error": "invalid_request"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	posts, err := h.posts.ListOwnerPosts(c.Request.Context(), user.ID, after, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ProfileResponse{User: user.Info(), Posts: posts})
}

func cursorFromQuery(c *gin.Context) (*repository.Cursor, error) {
	createdAt := c.Query("cursor_created_at")
	id := c.Query("cursor_id")
	if createdAt == "" && id == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, err
	}
	return &repository.Cursor{CreatedAt: ts, ID: id}, nil
}

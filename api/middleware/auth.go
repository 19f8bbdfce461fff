package middleware

import (
	"context"
	"net/http"
	"strings"

	"captiongram/models"

	"github.com/gin-gonic/gin"
)

const (
	TokenCookie = "token"
	UserIDKey   = "user_id"
	UserKey     = "user"
)

// TokenResolver находит пользователя по токену сессии
type TokenResolver interface {
	UserByToken(ctx context.Context, token string) (*models.User, error)
}

// RequestToken достает токен из cookie token или заголовка Authorization: Bearer
func RequestToken(c *gin.Context) string {
	if token, err := c.Cookie(TokenCookie); err == nil && token != "" {
		return token
	}
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// AuthMiddleware пропускает только запросы с действующим токеном
func AuthMiddleware(users TokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := RequestToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized", "error": "unauthorized"})
			return
		}
		user, err := users.UserByToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized", "error": "unauthorized"})
			return
		}
		c.Set(UserIDKey, user.ID)
		c.Set(UserKey, user)
		c.Next()
	}
}

// OptionalAuthMiddleware - middleware для опциональной аутентификации
func OptionalAuthMiddleware(users TokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := RequestToken(c); token != "" {
			if user, err := users.UserByToken(c.Request.Context(), token); err == nil {
				c.Set(UserIDKey, user.ID)
				c.Set(UserKey, user)
			}
		}
		c.Next()
	}
}

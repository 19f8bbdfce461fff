package routes

import (
	"time"

	"captiongram/api/handlers"
	"captiongram/api/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Auth   *handlers.AuthHandlers
	Posts  *handlers.PostHandlers
	Health gin.HandlerFunc
	WS     gin.HandlerFunc
	Tokens middleware.TokenResolver
}

// CORS разрешает фронтенду из списка origins отправлять cookie.
// Пустой список запрещает любые кросс-доменные запросы
func CORS(allowedOrigins []string) gin.HandlerFunc {
	conf := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		conf.AllowOriginFunc = func(origin string) bool { return false }
	} else {
		conf.AllowOrigins = allowedOrigins
	}
	return cors.New(conf)
}

func PublicApi(router *gin.Engine, h Handlers) {
	auth := middleware.AuthMiddleware(h.Tokens)

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authEndpoints := router.Group("/auth")
	{
		authEndpoints.POST("/register", h.Auth.Register)
		authEndpoints.POST("/login", h.Auth.Login)
		authEndpoints.POST("/logout", h.Auth.Logout)
		authEndpoints.GET("/user", auth, h.Auth.Profile)
	}

	postEndpoints := router.Group("/posts")
	{
		postEndpoints.POST("/", auth, h.Posts.CreatePost)
		postEndpoints.GET("/:id", h.Posts.GetPost)
		postEndpoints.PUT("/:id/generate-caption", auth, h.Posts.GenerateCaption)
	}

	if h.WS != nil {
		router.GET("/ws/posts", auth, h.WS)
	}
}

package handlers

import (
	"log"
	"net/http"
	"net/url"
	"strings"

	"captiongram/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// NewWSPostsHandler - WebSocket endpoint для событий постов пользователя
func NewWSPostsHandler(manager *services.WSConnManager, allowedOrigins []string) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: originChecker(allowedOrigins),
	}

	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized", "error": "unauthorized"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Println("WebSocket upgrade error:", err)
			return
		}
		defer conn.Close()

		// Приветствие до регистрации: дальше писать в conn может только менеджер
		_ = conn.WriteJSON(gin.H{"event": "connected", "message": "WebSocket connected"})

		manager.Add(userID, conn)
		defer manager.Remove(userID, conn)
		log.Printf("DEBUG: WebSocket connected for userID=%d, connections=%d", userID, manager.Connections(userID))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				log.Println("WebSocket read error:", err)
				break
			}
		}
	}
}

// originChecker пропускает запросы без Origin, origins из списка и, при пустом списке, только свой хост
func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(allowedOrigins) == 0 {
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		}
		for _, allowed := range allowedOrigins {
			if allowed == origin {
				return true
			}
		}
		log.Printf("DEBUG: WebSocket origin %s rejected", origin)
		return false
	}
}

package ws

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // В продакшене нужно проверять origin
	},
}

// Serve апгрейдит соединение после проверки токена: любая ошибка валидации
// фатальна для подключения, обработчики событий не запускаются
func Serve(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		user, err := hub.services.Auth.ValidateToken(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Error("Failed to upgrade connection", "error", err)
			return
		}

		client := newClient(hub, conn, user)
		hub.Register(client)

		ctx := context.Background()
		if _, _, err := hub.services.Presence.Connect(ctx, user.ID); err != nil {
			hub.log.Error("Failed to record connect", "error", err, "user_id", user.ID)
		}

		go client.writePump()
		go client.readPump(ctx)
	}
}

// bearerToken достает токен из заголовка Authorization или из query-параметра -
// браузерный WebSocket не умеет ставить заголовки
func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}

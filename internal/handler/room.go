package handler

import (
	"net/http"

	"social_messaging/internal/service"
	apperrors "social_messaging/pkg/errors"
	"social_messaging/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RoomHandler struct {
	roomService    service.RoomService
	messageService service.MessageService
	readService    service.ReadService
	log            logger.Logger
}

func NewRoomHandler(roomService service.RoomService, messageService service.MessageService, readService service.ReadService, log logger.Logger) *RoomHandler {
	return &RoomHandler{
		roomService:    roomService,
		messageService: messageService,
		readService:    readService,
		log:            log,
	}
}

// List - страница комнат по свежести; курсор - id последней комнаты
// предыдущей страницы
func (h *RoomHandler) List(c *gin.Context) {
	userID, _ := c.Get("user_id")
	cursor, ok := optionalCursor(c)
	if !ok {
		return
	}

	rooms, nextCursor, err := h.roomService.ListRooms(c.Request.Context(), userID.(uuid.UUID), cursor, 0)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rooms":      rooms,
		"nextCursor": nextCursor,
	})
}

func (h *RoomHandler) GetByID(c *gin.Context) {
	userID, _ := c.Get("user_id")
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room ID"})
		return
	}

	room, err := h.roomService.GetRoom(c.Request.Context(), userID.(uuid.UUID), roomID)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) Messages(c *gin.Context) {
	userID, _ := c.Get("user_id")
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room ID"})
		return
	}
	cursor, ok := optionalCursor(c)
	if !ok {
		return
	}

	messages, nextCursor, err := h.messageService.GetPage(c.Request.Context(), userID.(uuid.UUID), roomID, cursor, 0)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages":   messages,
		"nextCursor": nextCursor,
	})
}

func (h *RoomHandler) Unread(c *gin.Context) {
	userID, _ := c.Get("user_id")
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room ID"})
		return
	}

	count, err := h.readService.UnreadCount(c.Request.Context(), userID.(uuid.UUID), roomID)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"roomId": roomID,
		"unread": count,
	})
}

func optionalCursor(c *gin.Context) (*uuid.UUID, bool) {
	raw := c.Query("cursor")
	if raw == "" {
		return nil, true
	}
	cursor, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
		return nil, false
	}
	return &cursor, true
}

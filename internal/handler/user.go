package handler

import (
	"net/http"

	"social_messaging/internal/service"
	apperrors "social_messaging/pkg/errors"
	"social_messaging/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type UserHandler struct {
	presenceService service.PresenceService
	log             logger.Logger
}

func NewUserHandler(presenceService service.PresenceService, log logger.Logger) *UserHandler {
	return &UserHandler{
		presenceService: presenceService,
		log:             log,
	}
}

// Status - REST-дубль check_user_status для страниц без живого сокета
func (h *UserHandler) Status(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	status, err := h.presenceService.Status(c.Request.Context(), userID)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, status)
}

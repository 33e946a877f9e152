package handler

import (
	"social_messaging/internal/service"
	"social_messaging/pkg/logger"
)

type Handlers struct {
	Health *HealthHandler
	Room   *RoomHandler
	User   *UserHandler
}

func NewHandlers(services *service.Services, log logger.Logger) *Handlers {
	return &Handlers{
		Health: NewHealthHandler(),
		Room:   NewRoomHandler(services.Room, services.Message, services.Read, log),
		User:   NewUserHandler(services.Presence, log),
	}
}

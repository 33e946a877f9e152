package service

import (
	"social_messaging/internal/config"
	"social_messaging/internal/repository"
	"social_messaging/pkg/logger"
)

type Services struct {
	Auth      AuthService
	Room      RoomService
	Message   MessageService
	Reaction  ReactionService
	Read      ReadService
	Presence  PresenceService
	Typing    TypingService
	RateLimit RateLimitService
}

func NewServices(repos *repository.Repositories, cfg *config.Config, log logger.Logger) *Services {
	return &Services{
		Auth:      NewAuthService(repos.User, cfg.JWT, log),
		Room:      NewRoomService(repos.Room, repos.Message, repos.Read, repos.User, cfg, log),
		Message:   NewMessageService(repos.Message, repos.Room, cfg, log),
		Reaction:  NewReactionService(repos.Reaction, repos.Message, repos.Room, log),
		Read:      NewReadService(repos.Read, repos.Message, repos.Room, log),
		Presence:  NewPresenceService(repos.Presence, repos.User, log),
		Typing:    NewTypingService(NewMemoryTypingStore(cfg.Chat.TypingTTL)),
		RateLimit: NewRateLimitService(repos.RateLimit, log),
	}
}

package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"social_messaging/pkg/logger"
)

type Repositories struct {
	User      UserRepository
	Room      RoomRepository
	Message   MessageRepository
	Reaction  ReactionRepository
	Read      ReadRepository
	Presence  PresenceRepository
	RateLimit RateLimitRepository
}

func NewRepositories(db *pgxpool.Pool, redis *redis.Client, log logger.Logger) *Repositories {
	return &Repositories{
		User:      NewUserRepository(db, log),
		Room:      NewRoomRepository(db, log),
		Message:   NewMessageRepository(db, log),
		Reaction:  NewReactionRepository(db, log),
		Read:      NewReadRepository(db, log),
		Presence:  NewPresenceRepository(redis, log),
		RateLimit: NewRateLimitRepository(redis, log),
	}
}

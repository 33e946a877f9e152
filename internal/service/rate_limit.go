package service

import (
	"context"
	"time"

	"social_messaging/internal/repository"
	"social_messaging/pkg/logger"
)

// Бакеты лимитов REST-поверхности. Ключ счетчика - бакет плюс идентификатор
// вызывающего, у каждого бакета свои лимит и окно.
const (
	BucketRoomList       = "room_list"
	BucketMessageHistory = "message_history"
	BucketUserStatus     = "user_status"
)

type RateLimitService interface {
	Allow(ctx context.Context, bucket, key string, limit int, windowSeconds int) (bool, error)
	Increment(ctx context.Context, bucket, key string, windowSeconds int) (int64, error)
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, log logger.Logger) RateLimitService {
	return &rateLimitService{
		rateLimitRepo: rateLimitRepo,
		log:           log,
	}
}

func (s *rateLimitService) Allow(ctx context.Context, bucket, key string, limit int, windowSeconds int) (bool, error) {
	return s.rateLimitRepo.CheckLimit(ctx, bucket+":"+key, limit, time.Duration(windowSeconds)*time.Second)
}

func (s *rateLimitService) Increment(ctx context.Context, bucket, key string, windowSeconds int) (int64, error) {
	return s.rateLimitRepo.Increment(ctx, bucket+":"+key, time.Duration(windowSeconds)*time.Second)
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"social_messaging/internal/domain"
	"social_messaging/pkg/logger"
)

const (
	presenceKeyPrefix = "presence:conn:"
	presenceChannel   = "presence:status"
	presenceKeyTTL    = 24 * time.Hour
)

// PresenceRepository ведет счетчик активных соединений пользователя в Redis.
// Offline наступает только когда счетчик достигает нуля - перезапись булевым
// значением на каждый disconnect теряет мультивкладочные сессии.
type PresenceRepository interface {
	Connect(ctx context.Context, userID uuid.UUID) (int64, error)
	Disconnect(ctx context.Context, userID uuid.UUID) (int64, error)
	Connections(ctx context.Context, userID uuid.UUID) (int64, error)
	PublishStatus(ctx context.Context, status *domain.UserStatus) error
	SubscribeStatus(ctx context.Context) (<-chan *domain.UserStatus, func())
}

type presenceRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewPresenceRepository(redis *redis.Client, log logger.Logger) PresenceRepository {
	return &presenceRepository{redis: redis, log: log}
}

func (r *presenceRepository) Connect(ctx context.Context, userID uuid.UUID) (int64, error) {
	key := presenceKeyPrefix + userID.String()
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		r.log.Error("Failed to increment presence", "error", err, "user_id", userID)
		return 0, err
	}
	r.redis.Expire(ctx, key, presenceKeyTTL)
	return count, nil
}

// decrFloorScript не дает счетчику уйти ниже нуля при повторных disconnect
var decrFloorScript = redis.NewScript(`
	local v = redis.call('DECR', KEYS[1])
	if v < 0 then
		redis.call('SET', KEYS[1], 0)
		return 0
	end
	return v
`)

func (r *presenceRepository) Disconnect(ctx context.Context, userID uuid.UUID) (int64, error) {
	key := presenceKeyPrefix + userID.String()
	res, err := decrFloorScript.Run(ctx, r.redis, []string{key}).Int64()
	if err != nil {
		r.log.Error("Failed to decrement presence", "error", err, "user_id", userID)
		return 0, err
	}
	return res, nil
}

func (r *presenceRepository) Connections(ctx context.Context, userID uuid.UUID) (int64, error) {
	key := presenceKeyPrefix + userID.String()
	count, err := r.redis.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *presenceRepository) PublishStatus(ctx context.Context, status *domain.UserStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	return r.redis.Publish(ctx, presenceChannel, payload).Err()
}

// SubscribeStatus доставляет статусы, опубликованные другими инстансами
func (r *presenceRepository) SubscribeStatus(ctx context.Context) (<-chan *domain.UserStatus, func()) {
	pubsub := r.redis.Subscribe(ctx, presenceChannel)
	out := make(chan *domain.UserStatus, 64)

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			status := &domain.UserStatus{}
			if err := json.Unmarshal([]byte(msg.Payload), status); err != nil {
				r.log.Warn("Failed to unmarshal presence status", "error", err)
				continue
			}
			select {
			case out <- status:
			default:
				r.log.Warn("Presence status channel full, dropping update")
			}
		}
	}()

	return out, func() { _ = pubsub.Close() }
}

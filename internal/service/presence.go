package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"social_messaging/internal/domain"
	"social_messaging/internal/repository"
	"social_messaging/pkg/logger"
)

// PresenceService переводит пользователя online/offline по счетчику соединений:
// offline только когда закрылось последнее соединение пользователя
type PresenceService interface {
	Connect(ctx context.Context, userID uuid.UUID) (*domain.UserStatus, bool, error)
	Disconnect(ctx context.Context, userID uuid.UUID) (*domain.UserStatus, bool, error)
	Status(ctx context.Context, userID uuid.UUID) (*domain.UserStatus, error)
	Subscribe(ctx context.Context) (<-chan *domain.UserStatus, func())
}

type presenceService struct {
	presenceRepo repository.PresenceRepository
	userRepo     repository.UserRepository
	log          logger.Logger
}

func NewPresenceService(presenceRepo repository.PresenceRepository, userRepo repository.UserRepository, log logger.Logger) PresenceService {
	return &presenceService{
		presenceRepo: presenceRepo,
		userRepo:     userRepo,
		log:          log,
	}
}

// Connect возвращает статус и признак смены видимого состояния (первое соединение)
func (s *presenceService) Connect(ctx context.Context, userID uuid.UUID) (*domain.UserStatus, bool, error) {
	count, err := s.presenceRepo.Connect(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	status := &domain.UserStatus{UserID: userID, IsOnline: true}
	if count > 1 {
		return status, false, nil
	}

	if err := s.userRepo.SetOnline(ctx, userID); err != nil {
		return nil, false, err
	}
	if err := s.presenceRepo.PublishStatus(ctx, status); err != nil {
		s.log.Warn("Failed to publish status", "error", err, "user_id", userID)
	}

	return status, true, nil
}

func (s *presenceService) Disconnect(ctx context.Context, userID uuid.UUID) (*domain.UserStatus, bool, error) {
	count, err := s.presenceRepo.Disconnect(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if count > 0 {
		// остались другие вкладки/устройства
		return &domain.UserStatus{UserID: userID, IsOnline: true}, false, nil
	}

	lastSeen := time.Now()
	if err := s.userRepo.SetOffline(ctx, userID, lastSeen); err != nil {
		return nil, false, err
	}

	status := &domain.UserStatus{UserID: userID, IsOnline: false, LastSeen: &lastSeen}
	if err := s.presenceRepo.PublishStatus(ctx, status); err != nil {
		s.log.Warn("Failed to publish status", "error", err, "user_id", userID)
	}

	return status, true, nil
}

// Status отвечает из долговременной записи пользователя, а не из счетчика -
// ответ доступен и для пользователей, которых этот инстанс не видел
func (s *presenceService) Status(ctx context.Context, userID uuid.UUID) (*domain.UserStatus, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &domain.UserStatus{
		UserID:   user.ID,
		IsOnline: user.IsOnline,
		LastSeen: user.LastSeen,
	}, nil
}

func (s *presenceService) Subscribe(ctx context.Context) (<-chan *domain.UserStatus, func()) {
	return s.presenceRepo.SubscribeStatus(ctx)
}

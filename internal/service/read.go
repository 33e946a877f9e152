package service

import (
	"context"

	"github.com/google/uuid"
	"social_messaging/internal/domain"
	"social_messaging/internal/repository"
	apperrors "social_messaging/pkg/errors"
	"social_messaging/pkg/logger"
)

type ReadService interface {
	MarkRead(ctx context.Context, userID, messageID, roomID uuid.UUID) ([]uuid.UUID, []uuid.UUID, error)
	UnreadCount(ctx context.Context, userID, roomID uuid.UUID) (int, error)
}

type readService struct {
	readRepo    repository.ReadRepository
	messageRepo repository.MessageRepository
	roomRepo    repository.RoomRepository
	log         logger.Logger
}

func NewReadService(
	readRepo repository.ReadRepository,
	messageRepo repository.MessageRepository,
	roomRepo repository.RoomRepository,
	log logger.Logger,
) ReadService {
	return &readService{
		readRepo:    readRepo,
		messageRepo: messageRepo,
		roomRepo:    roomRepo,
		log:         log,
	}
}

// MarkRead идемпотентен и работает водяным знаком: прочитанными становятся все
// видимые сообщения комнаты не новее целевого. Возвращает обновленный список
// прочитавших и активных участников для fan-out.
func (s *readService) MarkRead(ctx context.Context, userID, messageID, roomID uuid.UUID) ([]uuid.UUID, []uuid.UUID, error) {
	member, err := s.roomRepo.GetMember(ctx, roomID, userID)
	if err != nil {
		return nil, nil, err
	}
	if member.Type == domain.MemberTypeBanned {
		return nil, nil, apperrors.ErrMemberBanned
	}

	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	if msg.RoomID == nil || *msg.RoomID != roomID {
		return nil, nil, apperrors.ErrMessageNotFound
	}

	if err := s.readRepo.MarkRead(ctx, userID, roomID, messageID); err != nil {
		return nil, nil, err
	}

	readers, err := s.readRepo.Readers(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}

	members, err := s.roomRepo.GetActiveMemberIDs(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	return readers, members, nil
}

func (s *readService) UnreadCount(ctx context.Context, userID, roomID uuid.UUID) (int, error) {
	return s.readRepo.UnreadCount(ctx, userID, roomID)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"social_messaging/internal/config"
	"social_messaging/internal/domain"
	"social_messaging/internal/repository"
	apperrors "social_messaging/pkg/errors"
	"social_messaging/pkg/logger"
)

type MessageService interface {
	Send(ctx context.Context, senderID, roomID uuid.UUID, content, msgType string, recipientID *uuid.UUID) (*domain.Message, []uuid.UUID, error)
	Delete(ctx context.Context, senderID, messageID, roomID uuid.UUID) ([]uuid.UUID, error)
	GetPage(ctx context.Context, userID, roomID uuid.UUID, cursor *uuid.UUID, limit int) ([]*domain.Message, *uuid.UUID, error)
}

type messageService struct {
	messageRepo repository.MessageRepository
	roomRepo    repository.RoomRepository
	cfg         *config.Config
	log         logger.Logger
}

func NewMessageService(messageRepo repository.MessageRepository, roomRepo repository.RoomRepository, cfg *config.Config, log logger.Logger) MessageService {
	return &messageService{
		messageRepo: messageRepo,
		roomRepo:    roomRepo,
		cfg:         cfg,
		log:         log,
	}
}

// Send проверяет членство, сохраняет сообщение и обновляет указатели активных
// участников; доставку подписчикам делает транспортный слой поверх результата.
// Порядок доставки в комнате равен порядку вставки. Направленное сообщение
// (recipientID задан) видно и адресуется только отправителю и получателю.
func (s *messageService) Send(ctx context.Context, senderID, roomID uuid.UUID, content, msgType string, recipientID *uuid.UUID) (*domain.Message, []uuid.UUID, error) {
	if content == "" {
		return nil, nil, fmt.Errorf("%w: empty content", apperrors.ErrBadRequest)
	}
	if len(content) > s.cfg.Chat.MaxMessageSize {
		return nil, nil, fmt.Errorf("%w: message too long", apperrors.ErrBadRequest)
	}
	if msgType == "" {
		msgType = domain.MessageTypeContent
	}
	if !domain.ValidMessageType(msgType) {
		return nil, nil, fmt.Errorf("%w: unknown message type %q", apperrors.ErrBadRequest, msgType)
	}

	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	member, err := s.roomRepo.GetMember(ctx, roomID, senderID)
	if err != nil {
		return nil, nil, err
	}
	if member.Type == domain.MemberTypeBanned {
		return nil, nil, apperrors.ErrMemberBanned
	}
	if !member.IsActive() {
		return nil, nil, apperrors.ErrNotMember
	}

	if room.Kind == domain.RoomKindSelfNotes && msgType == domain.MessageTypeContent {
		msgType = domain.MessageTypeSaved
	}

	var members []uuid.UUID
	if recipientID != nil && *recipientID != senderID {
		recipient, err := s.roomRepo.GetMember(ctx, roomID, *recipientID)
		if err != nil {
			return nil, nil, err
		}
		if !recipient.IsActive() {
			return nil, nil, apperrors.ErrNotMember
		}
		// указатели обновляются только у сторон - остальные сообщение не видят
		members = []uuid.UUID{senderID, *recipientID}
	} else {
		recipientID = nil
		members, err = s.roomRepo.GetActiveMemberIDs(ctx, roomID)
		if err != nil {
			return nil, nil, err
		}
	}

	msg := &domain.Message{
		ID:          uuid.New(),
		RoomID:      &roomID,
		SenderID:    &senderID,
		RecipientID: recipientID,
		Type:        msgType,
		Content:     content,
		CreatedAt:   time.Now(),
	}
	if err := s.messageRepo.Create(ctx, msg, members); err != nil {
		return nil, nil, err
	}

	return msg, members, nil
}

// Delete доступен только отправителю; осиротевшие указатели last_messages
// чинятся в той же транзакции
func (s *messageService) Delete(ctx context.Context, senderID, messageID, roomID uuid.UUID) ([]uuid.UUID, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID == nil || *msg.SenderID != senderID {
		return nil, apperrors.ErrNotSender
	}
	if msg.RoomID == nil || *msg.RoomID != roomID {
		return nil, apperrors.ErrMessageNotFound
	}

	members, err := s.roomRepo.GetActiveMemberIDs(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if err := s.messageRepo.DeleteWithRepair(ctx, messageID, roomID); err != nil {
		return nil, err
	}

	return members, nil
}

func (s *messageService) GetPage(ctx context.Context, userID, roomID uuid.UUID, cursor *uuid.UUID, limit int) ([]*domain.Message, *uuid.UUID, error) {
	if limit <= 0 || limit > 100 {
		limit = s.cfg.Chat.MessagePageSize
	}

	member, err := s.roomRepo.GetMember(ctx, roomID, userID)
	if err != nil {
		return nil, nil, err
	}
	if member.Type == domain.MemberTypeBanned {
		return nil, nil, apperrors.ErrMemberBanned
	}

	messages, err := s.messageRepo.GetPage(ctx, roomID, userID, cursor, limit)
	if err != nil {
		if errors.Is(err, apperrors.ErrMessageNotFound) {
			return nil, nil, err
		}
		return nil, nil, err
	}

	var nextCursor *uuid.UUID
	if len(messages) == limit {
		last := messages[len(messages)-1].ID
		nextCursor = &last
	}

	return messages, nextCursor, nil
}

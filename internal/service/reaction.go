package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"social_messaging/internal/domain"
	"social_messaging/internal/repository"
	apperrors "social_messaging/pkg/errors"
	"social_messaging/pkg/logger"
)

// ReactionResult - итог мутации реакции для транспортного слоя:
// полный снимок групп для message_reaction_update и стороны, которым
// нужно обновить список комнат после смены указателя
type ReactionResult struct {
	MessageID uuid.UUID
	RoomID    uuid.UUID
	Removed   bool
	Groups    []*domain.ReactionGroup
	Notice    *domain.Message
	Parties   []uuid.UUID
	Members   []uuid.UUID
}

type ReactionService interface {
	Add(ctx context.Context, userID, messageID, roomID uuid.UUID, emoji string) (*ReactionResult, error)
	Remove(ctx context.Context, userID, messageID, roomID uuid.UUID) (*ReactionResult, error)
}

type reactionService struct {
	reactionRepo repository.ReactionRepository
	messageRepo  repository.MessageRepository
	roomRepo     repository.RoomRepository
	log          logger.Logger
}

func NewReactionService(
	reactionRepo repository.ReactionRepository,
	messageRepo repository.MessageRepository,
	roomRepo repository.RoomRepository,
	log logger.Logger,
) ReactionService {
	return &reactionService{
		reactionRepo: reactionRepo,
		messageRepo:  messageRepo,
		roomRepo:     roomRepo,
		log:          log,
	}
}

// Add - upsert по паре (user, message). Повторение того же emoji работает как
// переключатель и снимает реакцию; другой emoji заменяет прежний.
func (s *reactionService) Add(ctx context.Context, userID, messageID, roomID uuid.UUID, emoji string) (*ReactionResult, error) {
	if emoji == "" {
		return nil, fmt.Errorf("%w: empty reaction content", apperrors.ErrBadRequest)
	}

	msg, err := s.checkAccess(ctx, userID, messageID, roomID)
	if err != nil {
		return nil, err
	}

	existing, err := s.reactionRepo.Get(ctx, userID, messageID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.Content == emoji {
		return s.Remove(ctx, userID, messageID, roomID)
	}

	reaction := &domain.Reaction{
		ID:        uuid.New(),
		UserID:    userID,
		MessageID: messageID,
		Content:   emoji,
		CreatedAt: time.Now(),
	}
	if existing != nil {
		reaction.ID = existing.ID
	}
	if err := s.reactionRepo.Upsert(ctx, reaction); err != nil {
		return nil, err
	}

	result := &ReactionResult{MessageID: messageID, RoomID: roomID}

	// реакция на чужое сообщение порождает направленное уведомление автору;
	// прежнее уведомление этой реакции удаляется и создается заново
	if msg.SenderID != nil && *msg.SenderID != userID {
		authorID := *msg.SenderID
		if old, err := s.messageRepo.FindNoticeByReaction(ctx, reaction.ID); err == nil {
			if err := s.messageRepo.DeleteNotice(ctx, old.ID); err != nil {
				return nil, err
			}
		}

		notice := &domain.Message{
			ID:          uuid.New(),
			RoomID:      &roomID,
			SenderID:    &userID,
			RecipientID: &authorID,
			Type:        domain.MessageTypeReaction,
			Content:     emoji,
			ReactionID:  &reaction.ID,
			CreatedAt:   time.Now(),
		}
		parties := []uuid.UUID{userID, authorID}
		if err := s.messageRepo.Create(ctx, notice, parties); err != nil {
			return nil, err
		}
		result.Notice = notice
		result.Parties = parties
	}

	return s.finish(ctx, result)
}

// Remove снимает реакцию и ее уведомление; указатели обеих сторон
// перевыводятся из новейшего оставшегося сообщения, а не просто из снятого
func (s *reactionService) Remove(ctx context.Context, userID, messageID, roomID uuid.UUID) (*ReactionResult, error) {
	msg, err := s.checkAccess(ctx, userID, messageID, roomID)
	if err != nil {
		return nil, err
	}

	result := &ReactionResult{MessageID: messageID, RoomID: roomID, Removed: true}

	existing, err := s.reactionRepo.Get(ctx, userID, messageID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return s.finish(ctx, result)
		}
		return nil, err
	}

	if notice, err := s.messageRepo.FindNoticeByReaction(ctx, existing.ID); err == nil {
		if err := s.messageRepo.DeleteNotice(ctx, notice.ID); err != nil {
			return nil, err
		}
	}
	if err := s.reactionRepo.Delete(ctx, userID, messageID); err != nil {
		return nil, err
	}

	parties := []uuid.UUID{userID}
	if msg.SenderID != nil && *msg.SenderID != userID {
		parties = append(parties, *msg.SenderID)
	}
	for _, party := range parties {
		if err := s.messageRepo.RepointLastMessage(ctx, party, roomID); err != nil {
			return nil, err
		}
	}
	result.Parties = parties

	return s.finish(ctx, result)
}

func (s *reactionService) checkAccess(ctx context.Context, userID, messageID, roomID uuid.UUID) (*domain.Message, error) {
	member, err := s.roomRepo.GetMember(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if member.Type == domain.MemberTypeBanned {
		return nil, apperrors.ErrMemberBanned
	}
	if !member.IsActive() {
		return nil, apperrors.ErrNotMember
	}

	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.RoomID == nil || *msg.RoomID != roomID {
		return nil, apperrors.ErrMessageNotFound
	}

	return msg, nil
}

func (s *reactionService) finish(ctx context.Context, result *ReactionResult) (*ReactionResult, error) {
	groups, err := s.reactionRepo.GroupsByMessage(ctx, result.MessageID)
	if err != nil {
		return nil, err
	}
	result.Groups = groups

	members, err := s.roomRepo.GetActiveMemberIDs(ctx, result.RoomID)
	if err != nil {
		return nil, err
	}
	result.Members = members

	return result, nil
}

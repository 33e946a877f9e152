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

type RoomService interface {
	ListRooms(ctx context.Context, userID uuid.UUID, cursor *uuid.UUID, limit int) ([]*domain.RoomPreview, *uuid.UUID, error)
	GetRoom(ctx context.Context, userID, roomID uuid.UUID) (*domain.RoomPreview, error)
	StartDirect(ctx context.Context, userID, targetID uuid.UUID) (*domain.Room, bool, error)
	CreateGroup(ctx context.Context, creatorID uuid.UUID, name string, memberIDs []uuid.UUID) (*domain.Room, *domain.Message, []uuid.UUID, error)
	GetOrCreateSelfRoom(ctx context.Context, userID uuid.UUID) (*domain.Room, error)
	CanSubscribe(ctx context.Context, userID, roomID uuid.UUID) (bool, error)
	ActiveMemberIDs(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error)
	LeaveRoom(ctx context.Context, userID, roomID uuid.UUID) (*domain.Message, []uuid.UUID, error)
	BanMember(ctx context.Context, actorID, roomID, targetID uuid.UUID) (*domain.Message, []uuid.UUID, error)
	AddMember(ctx context.Context, actorID, roomID, targetID uuid.UUID) (*domain.Message, []uuid.UUID, error)
}

type roomService struct {
	roomRepo    repository.RoomRepository
	messageRepo repository.MessageRepository
	readRepo    repository.ReadRepository
	userRepo    repository.UserRepository
	cfg         *config.Config
	log         logger.Logger
}

func NewRoomService(
	roomRepo repository.RoomRepository,
	messageRepo repository.MessageRepository,
	readRepo repository.ReadRepository,
	userRepo repository.UserRepository,
	cfg *config.Config,
	log logger.Logger,
) RoomService {
	return &roomService{
		roomRepo:    roomRepo,
		messageRepo: messageRepo,
		readRepo:    readRepo,
		userRepo:    userRepo,
		cfg:         cfg,
		log:         log,
	}
}

// ListRooms - страница комнат по свежести; на первую страницу (пустой курсор)
// сверху подмешивается личная комната "заметки себе"
func (s *roomService) ListRooms(ctx context.Context, userID uuid.UUID, cursor *uuid.UUID, limit int) ([]*domain.RoomPreview, *uuid.UUID, error) {
	if limit <= 0 || limit > 100 {
		limit = s.cfg.Chat.RoomPageSize
	}

	previews, err := s.roomRepo.ListPreviews(ctx, userID, cursor, limit)
	if err != nil {
		return nil, nil, err
	}

	for _, preview := range previews {
		count, err := s.readRepo.UnreadCount(ctx, userID, preview.Room.ID)
		if err != nil {
			s.log.Warn("Failed to count unread", "error", err, "room_id", preview.Room.ID)
			continue
		}
		preview.UnreadCount = count
	}

	var nextCursor *uuid.UUID
	if len(previews) == limit {
		last := previews[len(previews)-1].Room.ID
		nextCursor = &last
	}

	if cursor == nil {
		selfPreview, err := s.selfRoomPreview(ctx, userID)
		if err != nil {
			return nil, nil, err
		}
		previews = append([]*domain.RoomPreview{selfPreview}, previews...)
	}

	return previews, nextCursor, nil
}

func (s *roomService) selfRoomPreview(ctx context.Context, userID uuid.UUID) (*domain.RoomPreview, error) {
	room, err := s.GetOrCreateSelfRoom(ctx, userID)
	if err != nil {
		return nil, err
	}

	preview := &domain.RoomPreview{Room: *room}
	if last, err := s.messageRepo.NewestVisible(ctx, room.ID, userID); err == nil {
		preview.LastMessage = last
	}
	return preview, nil
}

func (s *roomService) GetRoom(ctx context.Context, userID, roomID uuid.UUID) (*domain.RoomPreview, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	member, err := s.roomRepo.GetMember(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if member.Type == domain.MemberTypeBanned {
		return nil, apperrors.ErrMemberBanned
	}

	preview := &domain.RoomPreview{Room: *room}
	if last, err := s.messageRepo.NewestVisible(ctx, roomID, userID); err == nil {
		preview.LastMessage = last
	}
	if count, err := s.readRepo.UnreadCount(ctx, userID, roomID); err == nil {
		preview.UnreadCount = count
	}

	members, err := s.roomRepo.GetMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	var activeIDs []uuid.UUID
	for _, m := range members {
		if m.IsActive() {
			activeIDs = append(activeIDs, m.UserID)
		}
	}
	users, err := s.userRepo.GetByIDs(ctx, activeIDs)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		preview.Members = append(preview.Members, *u)
	}

	return preview, nil
}

// StartDirect идемпотентен: существующая 1:1 комната с этой парой возвращается
// вместо создания дубликата
func (s *roomService) StartDirect(ctx context.Context, userID, targetID uuid.UUID) (*domain.Room, bool, error) {
	if userID == targetID {
		room, err := s.GetOrCreateSelfRoom(ctx, userID)
		return room, false, err
	}

	if _, err := s.userRepo.GetByID(ctx, targetID); err != nil {
		return nil, false, err
	}

	existing, err := s.roomRepo.FindDirectRoom(ctx, userID, targetID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, apperrors.ErrRoomNotFound) {
		return nil, false, err
	}

	room := &domain.Room{
		ID:         uuid.New(),
		Kind:       domain.RoomKindDirect,
		MaxMembers: 2,
		CreatedAt:  time.Now(),
	}
	if err := s.roomRepo.CreateDirect(ctx, room, userID, targetID); err != nil {
		return nil, false, err
	}

	return room, true, nil
}

func (s *roomService) CreateGroup(ctx context.Context, creatorID uuid.UUID, name string, memberIDs []uuid.UUID) (*domain.Room, *domain.Message, []uuid.UUID, error) {
	if name == "" {
		return nil, nil, nil, fmt.Errorf("%w: group name is required", apperrors.ErrBadRequest)
	}

	seen := map[uuid.UUID]bool{creatorID: true}
	members := []uuid.UUID{creatorID}
	for _, id := range memberIDs {
		if !seen[id] {
			seen[id] = true
			members = append(members, id)
		}
	}
	if len(members) < 2 {
		return nil, nil, nil, fmt.Errorf("%w: group needs at least 2 distinct members", apperrors.ErrBadRequest)
	}
	if len(members) > s.cfg.Chat.MaxGroupMembers {
		return nil, nil, nil, apperrors.ErrRoomFull
	}

	roomID := uuid.New()
	room := &domain.Room{
		ID:         roomID,
		Kind:       domain.RoomKindGroup,
		Name:       &name,
		MaxMembers: s.cfg.Chat.MaxGroupMembers,
		CreatedAt:  time.Now(),
	}
	createMsg := &domain.Message{
		ID:        uuid.New(),
		RoomID:    &roomID,
		Type:      domain.MessageTypeCreate,
		Content:   fmt.Sprintf("Group %q created", name),
		CreatedAt: time.Now(),
	}

	if err := s.roomRepo.CreateGroup(ctx, room, creatorID, members, createMsg); err != nil {
		return nil, nil, nil, err
	}

	return room, createMsg, members, nil
}

func (s *roomService) GetOrCreateSelfRoom(ctx context.Context, userID uuid.UUID) (*domain.Room, error) {
	room, err := s.roomRepo.FindSelfRoom(ctx, userID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, apperrors.ErrRoomNotFound) {
		return nil, err
	}

	room = &domain.Room{
		ID:         uuid.New(),
		Kind:       domain.RoomKindSelfNotes,
		MaxMembers: 1,
		CreatedAt:  time.Now(),
	}
	if err := s.roomRepo.CreateSelfRoom(ctx, room, userID); err != nil {
		return nil, err
	}

	return room, nil
}

// CanSubscribe - подписка на комнату разрешена только активному участнику;
// отказ молчаливый, просто без fan-out на этот сокет
func (s *roomService) CanSubscribe(ctx context.Context, userID, roomID uuid.UUID) (bool, error) {
	member, err := s.roomRepo.GetMember(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotMember) {
			return false, nil
		}
		return false, err
	}
	return member.IsActive(), nil
}

func (s *roomService) ActiveMemberIDs(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	return s.roomRepo.GetActiveMemberIDs(ctx, roomID)
}

func (s *roomService) LeaveRoom(ctx context.Context, userID, roomID uuid.UUID) (*domain.Message, []uuid.UUID, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	if room.Kind != domain.RoomKindGroup {
		return nil, nil, fmt.Errorf("%w: can only leave group rooms", apperrors.ErrBadRequest)
	}

	member, err := s.roomRepo.GetMember(ctx, roomID, userID)
	if err != nil {
		return nil, nil, err
	}
	if !member.IsActive() {
		return nil, nil, apperrors.ErrNotMember
	}

	now := time.Now()
	if err := s.roomRepo.UpdateMemberType(ctx, roomID, userID, domain.MemberTypeOld, &now); err != nil {
		return nil, nil, err
	}

	return s.systemMessage(ctx, roomID, &userID, domain.MessageTypeLeave, "left the group")
}

// BanMember доступен только owner/admin; забаненный больше не получает fan-out
func (s *roomService) BanMember(ctx context.Context, actorID, roomID, targetID uuid.UUID) (*domain.Message, []uuid.UUID, error) {
	actor, err := s.roomRepo.GetMember(ctx, roomID, actorID)
	if err != nil {
		return nil, nil, err
	}
	if !actor.CanModerate() {
		return nil, nil, apperrors.ErrForbidden
	}

	target, err := s.roomRepo.GetMember(ctx, roomID, targetID)
	if err != nil {
		return nil, nil, err
	}
	if target.Type == domain.MemberTypeOwner {
		return nil, nil, apperrors.ErrForbidden
	}

	now := time.Now()
	if err := s.roomRepo.UpdateMemberType(ctx, roomID, targetID, domain.MemberTypeBanned, &now); err != nil {
		return nil, nil, err
	}

	return s.systemMessage(ctx, roomID, &actorID, domain.MessageTypeBan, "member banned")
}

func (s *roomService) AddMember(ctx context.Context, actorID, roomID, targetID uuid.UUID) (*domain.Message, []uuid.UUID, error) {
	actor, err := s.roomRepo.GetMember(ctx, roomID, actorID)
	if err != nil {
		return nil, nil, err
	}
	if !actor.CanModerate() {
		return nil, nil, apperrors.ErrForbidden
	}

	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	if room.Kind != domain.RoomKindGroup {
		return nil, nil, fmt.Errorf("%w: can only add members to group rooms", apperrors.ErrBadRequest)
	}

	// забаненные не возвращаются обычным путем
	if existing, err := s.roomRepo.GetMember(ctx, roomID, targetID); err == nil {
		if existing.Type == domain.MemberTypeBanned {
			return nil, nil, apperrors.ErrMemberBanned
		}
		if existing.IsActive() {
			return nil, nil, fmt.Errorf("%w: already a member", apperrors.ErrBadRequest)
		}
	}

	active, err := s.roomRepo.GetActiveMemberIDs(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	if len(active) >= room.MaxMembers {
		return nil, nil, apperrors.ErrRoomFull
	}

	if err := s.roomRepo.AddMember(ctx, &domain.RoomMember{
		RoomID:   roomID,
		UserID:   targetID,
		Type:     domain.MemberTypeMember,
		JoinedAt: time.Now(),
	}); err != nil {
		return nil, nil, err
	}

	return s.systemMessage(ctx, roomID, &targetID, domain.MessageTypeNewMember, "joined the group")
}

// systemMessage пишет служебное сообщение и обновляет указатели активных участников
func (s *roomService) systemMessage(ctx context.Context, roomID uuid.UUID, senderID *uuid.UUID, msgType, content string) (*domain.Message, []uuid.UUID, error) {
	members, err := s.roomRepo.GetActiveMemberIDs(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	msg := &domain.Message{
		ID:        uuid.New(),
		RoomID:    &roomID,
		SenderID:  senderID,
		Type:      msgType,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.messageRepo.Create(ctx, msg, members); err != nil {
		return nil, nil, err
	}

	return msg, members, nil
}

package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"social_messaging/internal/config"
	"social_messaging/internal/domain"
	apperrors "social_messaging/pkg/errors"
	"social_messaging/pkg/logger"
)

// Общие in-memory заглушки репозиториев для тестов сервисного слоя

func testConfig() *config.Config {
	return &config.Config{
		Chat: config.ChatConfig{
			RoomPageSize:    10,
			MessagePageSize: 10,
			MaxGroupMembers: 100,
			MaxMessageSize:  4096,
			TypingTTL:       6 * time.Second,
		},
	}
}

func testLogger() logger.Logger {
	return logger.NewNop()
}

type fakeUserRepo struct {
	users map[uuid.UUID]*domain.User
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[uuid.UUID]*domain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*domain.User, error) {
	var out []*domain.User
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) SetOnline(_ context.Context, id uuid.UUID) error {
	if u, ok := r.users[id]; ok {
		u.IsOnline = true
	}
	return nil
}

func (r *fakeUserRepo) SetOffline(_ context.Context, id uuid.UUID, lastSeen time.Time) error {
	if u, ok := r.users[id]; ok {
		u.IsOnline = false
		u.LastSeen = &lastSeen
	}
	return nil
}

type fakeRoomRepo struct {
	rooms    map[uuid.UUID]*domain.Room
	members  map[uuid.UUID]map[uuid.UUID]*domain.RoomMember
	previews []*domain.RoomPreview
	// записанный аргумент последнего ListPreviews
	lastCursor *uuid.UUID
	createMsgs []*domain.Message
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{
		rooms:   make(map[uuid.UUID]*domain.Room),
		members: make(map[uuid.UUID]map[uuid.UUID]*domain.RoomMember),
	}
}

func (r *fakeRoomRepo) addRoom(room *domain.Room) {
	r.rooms[room.ID] = room
	if r.members[room.ID] == nil {
		r.members[room.ID] = make(map[uuid.UUID]*domain.RoomMember)
	}
}

func (r *fakeRoomRepo) addMember(roomID, userID uuid.UUID, memberType string) {
	if r.members[roomID] == nil {
		r.members[roomID] = make(map[uuid.UUID]*domain.RoomMember)
	}
	r.members[roomID][userID] = &domain.RoomMember{
		RoomID:   roomID,
		UserID:   userID,
		Type:     memberType,
		JoinedAt: time.Now(),
	}
}

func (r *fakeRoomRepo) GetByID(_ context.Context, roomID uuid.UUID) (*domain.Room, error) {
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, apperrors.ErrRoomNotFound
	}
	return room, nil
}

func (r *fakeRoomRepo) GetMember(_ context.Context, roomID, userID uuid.UUID) (*domain.RoomMember, error) {
	member, ok := r.members[roomID][userID]
	if !ok {
		return nil, apperrors.ErrNotMember
	}
	return member, nil
}

func (r *fakeRoomRepo) GetMembers(_ context.Context, roomID uuid.UUID) ([]*domain.RoomMember, error) {
	var out []*domain.RoomMember
	for _, m := range r.members[roomID] {
		out = append(out, m)
	}
	return out, nil
}

func (r *fakeRoomRepo) GetActiveMemberIDs(_ context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, m := range r.members[roomID] {
		if m.IsActive() {
			out = append(out, m.UserID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (r *fakeRoomRepo) FindDirectRoom(_ context.Context, userA, userB uuid.UUID) (*domain.Room, error) {
	for roomID, room := range r.rooms {
		if room.Kind != domain.RoomKindDirect {
			continue
		}
		_, hasA := r.members[roomID][userA]
		_, hasB := r.members[roomID][userB]
		if hasA && hasB {
			return room, nil
		}
	}
	return nil, apperrors.ErrRoomNotFound
}

func (r *fakeRoomRepo) FindSelfRoom(_ context.Context, userID uuid.UUID) (*domain.Room, error) {
	for roomID, room := range r.rooms {
		if room.Kind != domain.RoomKindSelfNotes {
			continue
		}
		if _, ok := r.members[roomID][userID]; ok {
			return room, nil
		}
	}
	return nil, apperrors.ErrRoomNotFound
}

func (r *fakeRoomRepo) CreateDirect(_ context.Context, room *domain.Room, userA, userB uuid.UUID) error {
	r.addRoom(room)
	r.addMember(room.ID, userA, domain.MemberTypeMember)
	r.addMember(room.ID, userB, domain.MemberTypeMember)
	return nil
}

func (r *fakeRoomRepo) CreateSelfRoom(_ context.Context, room *domain.Room, ownerID uuid.UUID) error {
	r.addRoom(room)
	r.addMember(room.ID, ownerID, domain.MemberTypeOwner)
	return nil
}

func (r *fakeRoomRepo) CreateGroup(_ context.Context, room *domain.Room, ownerID uuid.UUID, memberIDs []uuid.UUID, createMsg *domain.Message) error {
	r.addRoom(room)
	for _, id := range memberIDs {
		if id == ownerID {
			r.addMember(room.ID, id, domain.MemberTypeOwner)
		} else {
			r.addMember(room.ID, id, domain.MemberTypeMember)
		}
	}
	r.createMsgs = append(r.createMsgs, createMsg)
	return nil
}

func (r *fakeRoomRepo) AddMember(_ context.Context, member *domain.RoomMember) error {
	if r.members[member.RoomID] == nil {
		r.members[member.RoomID] = make(map[uuid.UUID]*domain.RoomMember)
	}
	r.members[member.RoomID][member.UserID] = member
	return nil
}

func (r *fakeRoomRepo) UpdateMemberType(_ context.Context, roomID, userID uuid.UUID, memberType string, leftAt *time.Time) error {
	member, ok := r.members[roomID][userID]
	if !ok {
		return apperrors.ErrNotMember
	}
	member.Type = memberType
	member.LeftAt = leftAt
	return nil
}

func (r *fakeRoomRepo) ListPreviews(_ context.Context, _ uuid.UUID, cursor *uuid.UUID, limit int) ([]*domain.RoomPreview, error) {
	r.lastCursor = cursor
	if len(r.previews) > limit {
		return r.previews[:limit], nil
	}
	return r.previews, nil
}

type fakeMessageRepo struct {
	messages map[uuid.UUID]*domain.Message
	// кто получил обновление указателя при каждом Create
	lastTargets [][]uuid.UUID
	repointed   []uuid.UUID
	deleted     []uuid.UUID
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[uuid.UUID]*domain.Message)}
}

func (r *fakeMessageRepo) Create(_ context.Context, message *domain.Message, memberIDs []uuid.UUID) error {
	r.messages[message.ID] = message
	r.lastTargets = append(r.lastTargets, memberIDs)
	return nil
}

func (r *fakeMessageRepo) GetByID(_ context.Context, messageID uuid.UUID) (*domain.Message, error) {
	msg, ok := r.messages[messageID]
	if !ok {
		return nil, apperrors.ErrMessageNotFound
	}
	return msg, nil
}

func (r *fakeMessageRepo) GetPage(_ context.Context, roomID, userID uuid.UUID, _ *uuid.UUID, limit int) ([]*domain.Message, error) {
	var out []*domain.Message
	for _, msg := range r.messages {
		if msg.RoomID == nil || *msg.RoomID != roomID {
			continue
		}
		if !msg.VisibleTo(userID) {
			continue
		}
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeMessageRepo) DeleteWithRepair(_ context.Context, messageID, _ uuid.UUID) error {
	delete(r.messages, messageID)
	r.deleted = append(r.deleted, messageID)
	return nil
}

func (r *fakeMessageRepo) NewestVisible(_ context.Context, roomID, userID uuid.UUID) (*domain.Message, error) {
	page, _ := r.GetPage(context.Background(), roomID, userID, nil, 1)
	if len(page) == 0 {
		return nil, apperrors.ErrMessageNotFound
	}
	return page[0], nil
}

func (r *fakeMessageRepo) UpsertLastMessage(_ context.Context, _, _, _ uuid.UUID, _ time.Time) error {
	return nil
}

func (r *fakeMessageRepo) RepointLastMessage(_ context.Context, userID, _ uuid.UUID) error {
	r.repointed = append(r.repointed, userID)
	return nil
}

func (r *fakeMessageRepo) FindNoticeByReaction(_ context.Context, reactionID uuid.UUID) (*domain.Message, error) {
	for _, msg := range r.messages {
		if msg.ReactionID != nil && *msg.ReactionID == reactionID {
			return msg, nil
		}
	}
	return nil, apperrors.ErrMessageNotFound
}

func (r *fakeMessageRepo) DeleteNotice(_ context.Context, noticeID uuid.UUID) error {
	delete(r.messages, noticeID)
	return nil
}

type reactionKey struct {
	userID    uuid.UUID
	messageID uuid.UUID
}

type fakeReactionRepo struct {
	reactions map[reactionKey]*domain.Reaction
}

func newFakeReactionRepo() *fakeReactionRepo {
	return &fakeReactionRepo{reactions: make(map[reactionKey]*domain.Reaction)}
}

func (r *fakeReactionRepo) Get(_ context.Context, userID, messageID uuid.UUID) (*domain.Reaction, error) {
	reaction, ok := r.reactions[reactionKey{userID, messageID}]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return reaction, nil
}

func (r *fakeReactionRepo) Upsert(_ context.Context, reaction *domain.Reaction) error {
	r.reactions[reactionKey{reaction.UserID, reaction.MessageID}] = reaction
	return nil
}

func (r *fakeReactionRepo) Delete(_ context.Context, userID, messageID uuid.UUID) error {
	delete(r.reactions, reactionKey{userID, messageID})
	return nil
}

func (r *fakeReactionRepo) GroupsByMessage(_ context.Context, messageID uuid.UUID) ([]*domain.ReactionGroup, error) {
	byContent := make(map[string]*domain.ReactionGroup)
	for key, reaction := range r.reactions {
		if key.messageID != messageID {
			continue
		}
		group, ok := byContent[reaction.Content]
		if !ok {
			group = &domain.ReactionGroup{Content: reaction.Content}
			byContent[reaction.Content] = group
		}
		group.Count++
		group.UserIDs = append(group.UserIDs, key.userID)
	}
	var out []*domain.ReactionGroup
	for _, group := range byContent {
		out = append(out, group)
	}
	return out, nil
}

type fakeReadRepo struct {
	reads  map[reactionKey]bool
	unread map[uuid.UUID]int // room -> count, для тестов без привязанных хранилищ
	// привязанные хранилища включают честный подсчет по водяному знаку
	messages *fakeMessageRepo
	rooms    *fakeRoomRepo
}

func newFakeReadRepo() *fakeReadRepo {
	return &fakeReadRepo{
		reads:  make(map[reactionKey]bool),
		unread: make(map[uuid.UUID]int),
	}
}

// wire переключает заглушку на реальные правила: MarkRead отмечает все
// видимые сообщения до целевого, UnreadCount считает по окну членства.
func (r *fakeReadRepo) wire(messages *fakeMessageRepo, rooms *fakeRoomRepo) {
	r.messages = messages
	r.rooms = rooms
}

func (r *fakeReadRepo) MarkRead(_ context.Context, userID, roomID, messageID uuid.UUID) error {
	if r.messages == nil {
		r.reads[reactionKey{userID, messageID}] = true
		return nil
	}
	target, ok := r.messages.messages[messageID]
	if !ok {
		return nil
	}
	member, ok := r.rooms.members[roomID][userID]
	if !ok {
		return nil
	}
	for id, msg := range r.messages.messages {
		if msg.RoomID == nil || *msg.RoomID != roomID {
			continue
		}
		if msg.CreatedAt.After(target.CreatedAt) {
			continue
		}
		if msg.CreatedAt.Before(member.JoinedAt) {
			continue
		}
		if member.LeftAt != nil && msg.CreatedAt.After(*member.LeftAt) {
			continue
		}
		if !msg.VisibleTo(userID) {
			continue
		}
		r.reads[reactionKey{userID, id}] = true
	}
	return nil
}

func (r *fakeReadRepo) Readers(_ context.Context, messageID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for key := range r.reads {
		if key.messageID == messageID {
			out = append(out, key.userID)
		}
	}
	return out, nil
}

func (r *fakeReadRepo) UnreadCount(_ context.Context, userID, roomID uuid.UUID) (int, error) {
	if r.messages == nil {
		return r.unread[roomID], nil
	}
	member, ok := r.rooms.members[roomID][userID]
	if !ok {
		return 0, nil
	}
	count := 0
	for id, msg := range r.messages.messages {
		if msg.RoomID == nil || *msg.RoomID != roomID {
			continue
		}
		if !msg.CountsTowardUnread(userID, member.JoinedAt, member.LeftAt) {
			continue
		}
		if r.reads[reactionKey{userID, id}] {
			continue
		}
		count++
	}
	return count, nil
}

type fakePresenceRepo struct {
	conns     map[uuid.UUID]int64
	published []*domain.UserStatus
	updates   chan *domain.UserStatus
}

func newFakePresenceRepo() *fakePresenceRepo {
	return &fakePresenceRepo{
		conns:   make(map[uuid.UUID]int64),
		updates: make(chan *domain.UserStatus, 16),
	}
}

func (r *fakePresenceRepo) Connect(_ context.Context, userID uuid.UUID) (int64, error) {
	r.conns[userID]++
	return r.conns[userID], nil
}

func (r *fakePresenceRepo) Disconnect(_ context.Context, userID uuid.UUID) (int64, error) {
	if r.conns[userID] > 0 {
		r.conns[userID]--
	}
	return r.conns[userID], nil
}

func (r *fakePresenceRepo) Connections(_ context.Context, userID uuid.UUID) (int64, error) {
	return r.conns[userID], nil
}

func (r *fakePresenceRepo) PublishStatus(_ context.Context, status *domain.UserStatus) error {
	r.published = append(r.published, status)
	return nil
}

func (r *fakePresenceRepo) SubscribeStatus(_ context.Context) (<-chan *domain.UserStatus, func()) {
	return r.updates, func() {}
}

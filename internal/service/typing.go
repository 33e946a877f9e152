package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"social_messaging/internal/domain"
)

// TypingStore - сменная емкость для эфемерного состояния "печатает".
// In-process реализация валидна для одного инстанса; для горизонтального
// масштабирования подставляется реализация поверх общего pub/sub хранилища.
type TypingStore interface {
	Snapshot(roomID uuid.UUID) []domain.TypingUser
	Upsert(roomID uuid.UUID, entry domain.TypingUser)
	Remove(roomID, userID uuid.UUID)
}

type typingEntry struct {
	user      domain.TypingUser
	expiresAt time.Time
}

type memoryTypingStore struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]map[uuid.UUID]typingEntry
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryTypingStore(ttl time.Duration) TypingStore {
	return &memoryTypingStore{
		rooms: make(map[uuid.UUID]map[uuid.UUID]typingEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Snapshot отбрасывает просроченные записи - страховка от грязного
// разрыва соединения, не дошедшего до явного stop
func (s *memoryTypingStore) Snapshot(roomID uuid.UUID) []domain.TypingUser {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil
	}

	now := s.now()
	var users []domain.TypingUser
	for userID, entry := range room {
		if entry.expiresAt.Before(now) {
			delete(room, userID)
			continue
		}
		users = append(users, entry.user)
	}
	if len(room) == 0 {
		delete(s.rooms, roomID)
	}

	return users
}

func (s *memoryTypingStore) Upsert(roomID uuid.UUID, entry domain.TypingUser) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		room = make(map[uuid.UUID]typingEntry)
		s.rooms[roomID] = room
	}
	room[entry.UserID] = typingEntry{user: entry, expiresAt: s.now().Add(s.ttl)}
}

func (s *memoryTypingStore) Remove(roomID, userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return
	}
	delete(room, userID)
	if len(room) == 0 {
		// пустая комната выбрасывается целиком - память ограничена
		delete(s.rooms, roomID)
	}
}

// TypingService возвращает после каждой операции полный снимок комнаты -
// клиенты заменяют свой список целиком, сервер ничего не фильтрует
type TypingService interface {
	Start(roomID uuid.UUID, user domain.TypingUser) []domain.TypingUser
	Stop(roomID, userID uuid.UUID) []domain.TypingUser
}

type typingService struct {
	store TypingStore
}

func NewTypingService(store TypingStore) TypingService {
	return &typingService{store: store}
}

func (s *typingService) Start(roomID uuid.UUID, user domain.TypingUser) []domain.TypingUser {
	s.store.Upsert(roomID, user)
	return s.store.Snapshot(roomID)
}

func (s *typingService) Stop(roomID, userID uuid.UUID) []domain.TypingUser {
	s.store.Remove(roomID, userID)
	return s.store.Snapshot(roomID)
}

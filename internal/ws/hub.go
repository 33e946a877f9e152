package ws

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"social_messaging/internal/service"
	"social_messaging/pkg/logger"
)

// Hub держит соединения по пользователям и подписки сокетов на комнаты.
// Подписки не переживают разрыв - после reconnect клиент заново играет
// join_room по всем своим комнатам.
type Hub struct {
	services *service.Services
	log      logger.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]bool
	rooms   map[uuid.UUID]map[*Client]bool

	seqMu   sync.Mutex
	roomSeq map[uuid.UUID]*sync.Mutex
}

func NewHub(services *service.Services, log logger.Logger) *Hub {
	return &Hub{
		services: services,
		log:      log,
		clients:  make(map[uuid.UUID]map[*Client]bool),
		rooms:    make(map[uuid.UUID]map[*Client]bool),
		roomSeq:  make(map[uuid.UUID]*sync.Mutex),
	}
}

// SerializeRoom выполняет fn под замком комнаты. Окно запись-рассылка двух
// конкурентных отправителей не перемешивается: порядок receive_message в
// комнате равен порядку вставки в историю.
func (h *Hub) SerializeRoom(roomID uuid.UUID, fn func()) {
	h.seqMu.Lock()
	lock, ok := h.roomSeq[roomID]
	if !ok {
		lock = &sync.Mutex{}
		h.roomSeq[roomID] = lock
	}
	h.seqMu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	fn()
}

// Run ретранслирует статусы присутствия из pub/sub всем локальным клиентам.
// Единственный путь доставки user_status_change - без дублей на инстансе,
// опубликовавшем статус.
func (h *Hub) Run(ctx context.Context) {
	statuses, cancel := h.services.Presence.Subscribe(ctx)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-statuses:
			if !ok {
				return
			}
			h.BroadcastAll(EventUserStatusChange, status)
		}
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.clients[c.user.ID]
	if !ok {
		conns = make(map[*Client]bool)
		h.clients[c.user.ID] = conns
	}
	conns[c] = true
	h.log.Info("Client registered", "user_id", c.user.ID, "connections", len(conns))
}

// Unregister снимает сокет со всех комнат и возвращает их список -
// вызывающий прогоняет по нему typing-stop
func (h *Hub) Unregister(c *Client) []uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()

	var joined []uuid.UUID
	for roomID, subs := range h.rooms {
		if subs[c] {
			delete(subs, c)
			joined = append(joined, roomID)
			if len(subs) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}

	if conns, ok := h.clients[c.user.ID]; ok {
		if conns[c] {
			delete(conns, c)
			close(c.send)
		}
		if len(conns) == 0 {
			delete(h.clients, c.user.ID)
		}
	}

	return joined
}

func (h *Hub) JoinRoom(c *Client, roomID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[roomID]
	if !ok {
		subs = make(map[*Client]bool)
		h.rooms[roomID] = subs
	}
	subs[c] = true
}

func (h *Hub) LeaveRoom(c *Client, roomID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.rooms[roomID]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// KickFromRoom отписывает все сокеты пользователя от комнаты - после бана
// fan-out не доходит до него, даже если он остается подключенным
func (h *Hub) KickFromRoom(userID, roomID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for c := range subs {
		if c.user.ID == userID {
			delete(subs, c)
		}
	}
	if len(subs) == 0 {
		delete(h.rooms, roomID)
	}
}

// BroadcastRoom шлет событие каждому подписчику комнаты; медленный клиент
// с полным буфером пропускает событие, но не тормозит остальных
func (h *Hub) BroadcastRoom(roomID uuid.UUID, event string, payload any) {
	raw, err := marshalEnvelope(event, payload)
	if err != nil {
		h.log.Error("Failed to marshal event", "error", err, "event", event)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[roomID] {
		c.trySend(raw)
	}
}

// SendToUser шлет событие всем соединениям пользователя (личный канал)
func (h *Hub) SendToUser(userID uuid.UUID, event string, payload any) {
	raw, err := marshalEnvelope(event, payload)
	if err != nil {
		h.log.Error("Failed to marshal event", "error", err, "event", event)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[userID] {
		c.trySend(raw)
	}
}

func (h *Hub) BroadcastAll(event string, payload any) {
	raw, err := marshalEnvelope(event, payload)
	if err != nil {
		h.log.Error("Failed to marshal event", "error", err, "event", event)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conns := range h.clients {
		for c := range conns {
			c.trySend(raw)
		}
	}
}

// Connections возвращает число локальных соединений пользователя
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"social_messaging/internal/domain"
	"social_messaging/internal/ws"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateOffline // потолок попыток исчерпан, нужен явный Reconnect
)

const (
	PendingSending = "sending"
	PendingError   = "error"
)

// PendingMessage - локальная оптимистичная запись, ключ - tempId
type PendingMessage struct {
	TempID  string
	RoomID  uuid.UUID
	Content string
	Type    string
	Status  string
}

type Options struct {
	URL            string // ws://host/ws/chat
	Token          string
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	MaxAttempts    int
	TypingDebounce time.Duration
}

func (o *Options) withDefaults() {
	if o.BackoffBase <= 0 {
		o.BackoffBase = 500 * time.Millisecond
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = 30 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 10
	}
	if o.TypingDebounce <= 0 {
		o.TypingDebounce = 3 * time.Second
	}
}

// Client - клиентская сторона протокола: оптимистичная отправка со сверкой
// по tempId, ручной повтор неудачных отправок и переподключение с
// экспоненциальной выдержкой и воспроизведением подписок
type Client struct {
	opts    Options
	onEvent func(*ws.Envelope)

	mu           sync.Mutex
	conn         *websocket.Conn
	state        State
	pending      []*PendingMessage
	joined       map[uuid.UUID]bool
	currentRoom  *uuid.UUID
	typingUsers  []domain.TypingUser
	typingTimer  *time.Timer
	typingActive bool
	closed       bool
}

func New(opts Options, onEvent func(*ws.Envelope)) *Client {
	opts.withDefaults()
	if onEvent == nil {
		onEvent = func(*ws.Envelope) {}
	}
	return &Client{
		opts:    opts,
		onEvent: onEvent,
		joined:  make(map[uuid.UUID]bool),
	}
}

// Backoff - выдержка перед попыткой attempt (с нуля): base*2^attempt с потолком
func Backoff(base, cap time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Pending() []*PendingMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*PendingMessage, len(c.pending))
	copy(out, c.pending)
	return out
}

func (c *Client) TypingUsers() []domain.TypingUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.TypingUser, len(c.typingUsers))
	copy(out, c.typingUsers)
	return out
}

// Connect устанавливает соединение и воспроизводит join_room по всем ранее
// активным комнатам - подписки на сервере не переживают разрыв
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("token", c.opts.Token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	rooms := make([]uuid.UUID, 0, len(c.joined))
	for roomID := range c.joined {
		rooms = append(rooms, roomID)
	}
	c.mu.Unlock()

	for _, roomID := range rooms {
		_ = c.emit(ws.EventJoinRoom, &ws.RoomRef{RoomID: roomID})
	}

	go c.readLoop(ctx, conn)
	return nil
}

// Reconnect - явный перезапуск после состояния Offline
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateOffline {
		c.state = StateDisconnected
	}
	c.mu.Unlock()
	return c.Connect(ctx)
}

func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var env ws.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		c.handle(&env)
	}

	_ = conn.Close()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	c.reconnectLoop(ctx)
}

// reconnectLoop - ограниченная экспоненциальная выдержка; после потолка
// попыток остается стойкий индикатор Offline до явного Reconnect
func (c *Client) reconnectLoop(ctx context.Context) {
	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(Backoff(c.opts.BackoffBase, c.opts.BackoffCap, attempt)):
		}

		if err := c.Connect(ctx); err == nil {
			return
		}
	}

	c.mu.Lock()
	c.state = StateOffline
	c.mu.Unlock()
	c.onEvent(&ws.Envelope{Event: ws.EventErrorMessage})
}

// handle сверяет входящие события с локальным оптимистичным состоянием
func (c *Client) handle(env *ws.Envelope) {
	switch env.Event {
	case ws.EventReceiveMessage:
		var payload ws.ReceiveMessagePayload
		if err := json.Unmarshal(env.Data, &payload); err == nil && payload.TempID != "" {
			// свое подтверждение снимает pending ровно один раз;
			// незнакомый tempId принадлежит другому клиенту
			c.removePending(payload.TempID)
		}
	case ws.EventErrorMessage:
		var payload ws.ErrorPayload
		if err := json.Unmarshal(env.Data, &payload); err == nil && payload.TempID != "" {
			c.markPendingError(payload.TempID)
		}
	case ws.EventTypingUpdate:
		var payload ws.TypingUpdatePayload
		if err := json.Unmarshal(env.Data, &payload); err == nil {
			c.mu.Lock()
			if c.currentRoom != nil && *c.currentRoom == payload.RoomID {
				c.typingUsers = payload.TypingUsers
			}
			c.mu.Unlock()
		}
	}

	c.onEvent(env)
}

func (c *Client) emit(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(&ws.Envelope{Event: event, Data: raw})
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}

	return conn.WriteMessage(websocket.TextMessage, frame)
}

// SendMessage рисует pending-запись немедленно и отправляет интент;
// возвращает tempId для отслеживания
func (c *Client) SendMessage(roomID uuid.UUID, content, msgType string) (string, error) {
	tempID := uuid.NewString()
	p := &PendingMessage{
		TempID:  tempID,
		RoomID:  roomID,
		Content: content,
		Type:    msgType,
		Status:  PendingSending,
	}

	c.mu.Lock()
	c.pending = append(c.pending, p)
	c.mu.Unlock()

	err := c.emit(ws.EventSendMessage, &ws.SendMessageRequest{
		RoomID:  roomID,
		Content: content,
		Type:    msgType,
		TempID:  tempID,
	})
	if err != nil {
		c.markPendingError(tempID)
	}
	return tempID, err
}

// Retry повторяет неудачную отправку тем же tempId - сервер вернет его
// в подтверждении, и pending снимется как обычно
func (c *Client) Retry(tempID string) error {
	c.mu.Lock()
	var found *PendingMessage
	for _, p := range c.pending {
		if p.TempID == tempID && p.Status == PendingError {
			found = p
			break
		}
	}
	if found == nil {
		c.mu.Unlock()
		return errors.New("no failed pending message with this tempId")
	}
	found.Status = PendingSending
	req := &ws.SendMessageRequest{
		RoomID:  found.RoomID,
		Content: found.Content,
		Type:    found.Type,
		TempID:  found.TempID,
	}
	c.mu.Unlock()

	err := c.emit(ws.EventSendMessage, req)
	if err != nil {
		c.markPendingError(tempID)
	}
	return err
}

func (c *Client) removePending(tempID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.pending {
		if p.TempID == tempID {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

func (c *Client) markPendingError(tempID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pending {
		if p.TempID == tempID {
			p.Status = PendingError
			return
		}
	}
}

// JoinRoom подписывает сокет и запоминает комнату для replay после reconnect
func (c *Client) JoinRoom(roomID uuid.UUID) error {
	c.mu.Lock()
	c.joined[roomID] = true
	c.mu.Unlock()
	return c.emit(ws.EventJoinRoom, &ws.RoomRef{RoomID: roomID})
}

func (c *Client) LeaveRoom(roomID uuid.UUID) error {
	c.mu.Lock()
	delete(c.joined, roomID)
	c.mu.Unlock()
	return c.emit(ws.EventLeaveRoom, &ws.RoomRef{RoomID: roomID})
}

// SwitchRoom полностью сбрасывает pending-список и кэш typing -
// протечка устаревшего состояния между комнатами недопустима
func (c *Client) SwitchRoom(roomID uuid.UUID) error {
	c.mu.Lock()
	c.pending = nil
	c.typingUsers = nil
	c.currentRoom = &roomID
	c.joined[roomID] = true
	c.mu.Unlock()

	return c.emit(ws.EventJoinRoom, &ws.RoomRef{RoomID: roomID})
}

// Keystroke реализует клиентский debounce: первый символ шлет typing_start,
// каждый следующий сдвигает таймер, тишина шлет typing_stop
func (c *Client) Keystroke(roomID uuid.UUID) {
	c.mu.Lock()
	active := c.typingActive
	c.typingActive = true
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.typingTimer = time.AfterFunc(c.opts.TypingDebounce, func() {
		c.mu.Lock()
		c.typingActive = false
		c.mu.Unlock()
		_ = c.emit(ws.EventTypingStop, &ws.RoomRef{RoomID: roomID})
	})
	c.mu.Unlock()

	if !active {
		_ = c.emit(ws.EventTypingStart, &ws.RoomRef{RoomID: roomID})
	}
}

func (c *Client) StopTyping(roomID uuid.UUID) {
	c.mu.Lock()
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.typingActive = false
	c.mu.Unlock()
	_ = c.emit(ws.EventTypingStop, &ws.RoomRef{RoomID: roomID})
}

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"social_messaging/internal/domain"
	"social_messaging/internal/service"
	apperrors "social_messaging/pkg/errors"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	user *domain.User
}

func newClient(hub *Hub, conn *websocket.Conn, user *domain.User) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		user: user,
	}
}

func (c *Client) trySend(raw []byte) {
	select {
	case c.send <- raw:
	default:
		// переполненный буфер - событие пропущено, история доберется по REST
	}
}

func (c *Client) sendEvent(event string, payload any) {
	raw, err := marshalEnvelope(event, payload)
	if err != nil {
		c.hub.log.Error("Failed to marshal event", "error", err, "event", event)
		return
	}
	c.trySend(raw)
}

func (c *Client) sendError(message, tempID string) {
	c.sendEvent(EventErrorMessage, &ErrorPayload{Message: message, TempID: tempID})
}

func (c *Client) readPump(ctx context.Context) {
	defer c.teardown(ctx)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("Unexpected close", "error", err, "user_id", c.user.ID)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.sendError("invalid envelope", "")
			continue
		}

		c.dispatch(ctx, &env)
	}
}

// teardown - единая точка разбора соединения: отписка от комнат,
// typing-stop по каждой из них и уменьшение счетчика присутствия
func (c *Client) teardown(ctx context.Context) {
	joined := c.hub.Unregister(c)
	for _, roomID := range joined {
		users := c.hub.services.Typing.Stop(roomID, c.user.ID)
		c.hub.BroadcastRoom(roomID, EventTypingUpdate, &TypingUpdatePayload{RoomID: roomID, TypingUsers: users})
	}

	if _, _, err := c.hub.services.Presence.Disconnect(ctx, c.user.ID); err != nil {
		c.hub.log.Error("Failed to record disconnect", "error", err, "user_id", c.user.ID)
	}

	_ = c.conn.Close()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) dispatch(ctx context.Context, env *Envelope) {
	switch env.Event {
	case EventStartChat:
		c.handleStartChat(ctx, env.Data)
	case EventGetRooms:
		c.handleGetRooms(ctx, env.Data)
	case EventJoinRoom:
		c.handleJoinRoom(ctx, env.Data)
	case EventLeaveRoom:
		c.handleLeaveRoom(env.Data)
	case EventSendMessage:
		c.handleSendMessage(ctx, env.Data)
	case EventTypingStart:
		c.handleTyping(env.Data, true)
	case EventTypingStop:
		c.handleTyping(env.Data, false)
	case EventAddReaction:
		c.handleReaction(ctx, env.Data, true)
	case EventRemoveReaction:
		c.handleReaction(ctx, env.Data, false)
	case EventDeleteMessage:
		c.handleDeleteMessage(ctx, env.Data)
	case EventMarkRead:
		c.handleMarkRead(ctx, env.Data)
	case EventCheckUserStatus:
		c.handleCheckUserStatus(ctx, env.Data)
	case EventLeaveGroup:
		c.handleLeaveGroup(ctx, env.Data)
	case EventBanMember:
		c.handleBanMember(ctx, env.Data)
	case EventAddMember:
		c.handleAddMember(ctx, env.Data)
	default:
		c.sendError("unsupported event", "")
	}
}

func (c *Client) handleStartChat(ctx context.Context, data json.RawMessage) {
	var req StartChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("invalid start_chat payload", "")
		return
	}

	if req.IsGroup {
		room, createMsg, members, err := c.hub.services.Room.CreateGroup(ctx, c.user.ID, req.Name, req.MembersIDs)
		if err != nil {
			c.sendError(err.Error(), "")
			return
		}
		c.sendEvent(EventRoomReady, room)
		for _, memberID := range members {
			c.hub.SendToUser(memberID, EventNewRoomCreated, room)
		}
		c.hub.BroadcastRoom(room.ID, EventReceiveMessage, &ReceiveMessagePayload{NewMessage: createMsg, RoomID: room.ID})
		return
	}

	if req.TargetUserID == nil {
		c.sendError("targetUserId is required", "")
		return
	}
	room, created, err := c.hub.services.Room.StartDirect(ctx, c.user.ID, *req.TargetUserID)
	if err != nil {
		c.sendError(err.Error(), "")
		return
	}
	c.sendEvent(EventRoomReady, room)
	if created {
		c.hub.SendToUser(*req.TargetUserID, EventNewRoomCreated, room)
	}
}

func (c *Client) handleGetRooms(ctx context.Context, data json.RawMessage) {
	var req GetRoomsRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			c.sendError("invalid get_rooms payload", "")
			return
		}
	}

	rooms, nextCursor, err := c.hub.services.Room.ListRooms(ctx, c.user.ID, req.Cursor, req.Limit)
	if err != nil {
		c.sendError(err.Error(), "")
		return
	}
	c.sendEvent(EventRoomsListData, &RoomsListPayload{Rooms: rooms, NextCursor: nextCursor})
}

// handleJoinRoom - отказ молчаливый: не-участник просто не получает fan-out
func (c *Client) handleJoinRoom(ctx context.Context, data json.RawMessage) {
	var req RoomRef
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("invalid join_room payload", "")
		return
	}

	ok, err := c.hub.services.Room.CanSubscribe(ctx, c.user.ID, req.RoomID)
	if err != nil {
		c.hub.log.Error("Failed to check subscription", "error", err, "room_id", req.RoomID)
		return
	}
	if !ok {
		return
	}
	c.hub.JoinRoom(c, req.RoomID)
}

func (c *Client) handleLeaveRoom(data json.RawMessage) {
	var req RoomRef
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("invalid leave_room payload", "")
		return
	}
	c.hub.LeaveRoom(c, req.RoomID)

	users := c.hub.services.Typing.Stop(req.RoomID, c.user.ID)
	c.hub.BroadcastRoom(req.RoomID, EventTypingUpdate, &TypingUpdatePayload{RoomID: req.RoomID, TypingUsers: users})
}

// handleSendMessage: валидация -> запись -> fan-out подписчикам с нетронутым
// tempId; ошибка уходит только отправившему сокету, авто-повтора нет.
// Окно запись-рассылка сериализовано по комнате, иначе два конкурентных
// отправителя могут разослать события не в порядке вставки.
func (c *Client) handleSendMessage(ctx context.Context, data json.RawMessage) {
	var req SendMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("invalid send_message payload", "")
		return
	}

	c.hub.SerializeRoom(req.RoomID, func() {
		msg, _, err := c.hub.services.Message.Send(ctx, c.user.ID, req.RoomID, req.Content, req.Type, req.RecipientID)
		if err != nil {
			c.sendError(err.Error(), req.TempID)
			return
		}

		payload := &ReceiveMessagePayload{
			NewMessage: msg,
			RoomID:     req.RoomID,
			TempID:     req.TempID,
		}
		if msg.RecipientID != nil {
			// направленное сообщение доставляется только сторонам
			c.hub.SendToUser(c.user.ID, EventReceiveMessage, payload)
			c.hub.SendToUser(*msg.RecipientID, EventReceiveMessage, payload)
			return
		}
		c.hub.BroadcastRoom(req.RoomID, EventReceiveMessage, payload)
	})
}

func (c *Client) handleTyping(data json.RawMessage, start bool) {
	var req RoomRef
	if err := json.Unmarshal(data, &req); err != nil {
		return // typing - best-effort, без ошибок пользователю
	}

	var users []domain.TypingUser
	if start {
		users = c.hub.services.Typing.Start(req.RoomID, domain.TypingUser{
			UserID:      c.user.ID,
			DisplayName: c.user.DisplayName,
			AvatarURL:   c.user.AvatarURL,
		})
	} else {
		users = c.hub.services.Typing.Stop(req.RoomID, c.user.ID)
	}

	c.hub.BroadcastRoom(req.RoomID, EventTypingUpdate, &TypingUpdatePayload{RoomID: req.RoomID, TypingUsers: users})
}

func (c *Client) handleReaction(ctx context.Context, data json.RawMessage, add bool) {
	var req ReactionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("invalid reaction payload", "")
		return
	}

	c.hub.SerializeRoom(req.RoomID, func() {
		var result *service.ReactionResult
		var err error
		if add {
			result, err = c.hub.services.Reaction.Add(ctx, c.user.ID, req.MessageID, req.RoomID, req.Content)
		} else {
			result, err = c.hub.services.Reaction.Remove(ctx, c.user.ID, req.MessageID, req.RoomID)
		}
		if err != nil {
			c.sendError(err.Error(), "")
			return
		}

		c.hub.BroadcastRoom(req.RoomID, EventReactionUpdate, &ReactionUpdatePayload{
			MessageID: req.MessageID,
			RoomID:    req.RoomID,
			Reactions: result.Groups,
		})

		if result.Notice != nil {
			c.hub.SendToUser(*result.Notice.RecipientID, EventReceiveMessage, &ReceiveMessagePayload{
				NewMessage: result.Notice,
				RoomID:     req.RoomID,
			})
		}

		// указатели сторон сменились - обе получают свежую первую страницу списка
		for _, party := range result.Parties {
			c.pushRoomList(ctx, party)
		}
	})
}

func (c *Client) handleDeleteMessage(ctx context.Context, data json.RawMessage) {
	var req DeleteMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("invalid delete_message payload", "")
		return
	}

	c.hub.SerializeRoom(req.RoomID, func() {
		members, err := c.hub.services.Message.Delete(ctx, c.user.ID, req.MessageID, req.RoomID)
		if err != nil {
			c.sendError(err.Error(), "")
			return
		}

		c.hub.BroadcastRoom(req.RoomID, EventMessageDeleted, &MessageDeletedPayload{
			MessageID: req.MessageID,
			RoomID:    req.RoomID,
		})
		for _, memberID := range members {
			c.pushRoomList(ctx, memberID)
		}
	})
}

func (c *Client) handleMarkRead(ctx context.Context, data json.RawMessage) {
	var req MarkReadRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("invalid mark_read payload", "")
		return
	}

	readers, _, err := c.hub.services.Read.MarkRead(ctx, c.user.ID, req.MessageID, req.RoomID)
	if err != nil {
		c.sendError(err.Error(), "")
		return
	}

	c.hub.BroadcastRoom(req.RoomID, EventMessageReadUpdate, &MessageReadUpdatePayload{
		MessageID: req.MessageID,
		RoomID:    req.RoomID,
		ReaderIDs: readers,
	})
	// собственные другие вкладки сбрасывают счетчик комнаты
	c.hub.SendToUser(c.user.ID, EventRoomRead, &RoomReadPayload{RoomID: req.RoomID})
}

func (c *Client) handleCheckUserStatus(ctx context.Context, data json.RawMessage) {
	var req CheckUserStatusRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("invalid check_user_status payload", "")
		return
	}

	status, err := c.hub.services.Presence.Status(ctx, req.UserID)
	if err != nil {
		c.sendError(err.Error(), "")
		return
	}
	c.sendEvent(EventUserStatusChange, status)
}

func (c *Client) handleLeaveGroup(ctx context.Context, data json.RawMessage) {
	var req RoomRef
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("invalid leave_group payload", "")
		return
	}

	c.hub.SerializeRoom(req.RoomID, func() {
		msg, _, err := c.hub.services.Room.LeaveRoom(ctx, c.user.ID, req.RoomID)
		if err != nil {
			c.sendError(err.Error(), "")
			return
		}

		c.hub.KickFromRoom(c.user.ID, req.RoomID)
		c.hub.BroadcastRoom(req.RoomID, EventReceiveMessage, &ReceiveMessagePayload{NewMessage: msg, RoomID: req.RoomID})
	})
}

func (c *Client) handleBanMember(ctx context.Context, data json.RawMessage) {
	var req MemberRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("invalid ban_member payload", "")
		return
	}

	c.hub.SerializeRoom(req.RoomID, func() {
		msg, _, err := c.hub.services.Room.BanMember(ctx, c.user.ID, req.RoomID, req.TargetUserID)
		if err != nil {
			c.sendError(err.Error(), "")
			return
		}

		// сначала отписка - событие о бане до забаненного уже не дойдет
		c.hub.KickFromRoom(req.TargetUserID, req.RoomID)
		c.hub.BroadcastRoom(req.RoomID, EventReceiveMessage, &ReceiveMessagePayload{NewMessage: msg, RoomID: req.RoomID})
	})
}

func (c *Client) handleAddMember(ctx context.Context, data json.RawMessage) {
	var req MemberRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("invalid add_member payload", "")
		return
	}

	c.hub.SerializeRoom(req.RoomID, func() {
		msg, _, err := c.hub.services.Room.AddMember(ctx, c.user.ID, req.RoomID, req.TargetUserID)
		if err != nil {
			c.sendError(err.Error(), "")
			return
		}

		c.hub.BroadcastRoom(req.RoomID, EventReceiveMessage, &ReceiveMessagePayload{NewMessage: msg, RoomID: req.RoomID})

		room, err := c.hub.services.Room.GetRoom(ctx, req.TargetUserID, req.RoomID)
		if err == nil {
			c.hub.SendToUser(req.TargetUserID, EventNewRoomCreated, room.Room)
		}
	})
}

func (c *Client) pushRoomList(ctx context.Context, userID uuid.UUID) {
	if c.hub.Connections(userID) == 0 {
		return
	}
	rooms, nextCursor, err := c.hub.services.Room.ListRooms(ctx, userID, nil, 0)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			c.hub.log.Warn("Failed to refresh room list", "error", err, "user_id", userID)
		}
		return
	}
	c.hub.SendToUser(userID, EventRoomListUpdated, &RoomsListPayload{Rooms: rooms, NextCursor: nextCursor})
}

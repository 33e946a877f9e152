package ws

import (
	"encoding/json"

	"github.com/google/uuid"
	"social_messaging/internal/domain"
)

// Имена событий двунаправленного протокола
const (
	// клиент -> сервер
	EventStartChat       = "start_chat"
	EventGetRooms        = "get_rooms"
	EventJoinRoom        = "join_room"
	EventLeaveRoom       = "leave_room"
	EventSendMessage     = "send_message"
	EventTypingStart     = "typing_start"
	EventTypingStop      = "typing_stop"
	EventAddReaction     = "add_reaction"
	EventRemoveReaction  = "remove_reaction"
	EventDeleteMessage   = "delete_message"
	EventMarkRead        = "mark_read"
	EventCheckUserStatus = "check_user_status"
	EventLeaveGroup      = "leave_group"
	EventBanMember       = "ban_member"
	EventAddMember       = "add_member"

	// сервер -> клиент
	EventRoomReady         = "room_ready"
	EventErrorMessage      = "error_message"
	EventRoomsListData     = "rooms_list_data"
	EventReceiveMessage    = "receive_message"
	EventTypingUpdate      = "typing_update"
	EventReactionUpdate    = "message_reaction_update"
	EventMessageDeleted    = "message_deleted"
	EventRoomListUpdated   = "room_list_updated"
	EventNewRoomCreated    = "new_room_created"
	EventUserStatusChange  = "user_status_change"
	EventMessageReadUpdate = "message_read_update"
	EventRoomRead          = "room_read"
)

// Envelope - рамка всех сообщений протокола
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type StartChatRequest struct {
	TargetUserID *uuid.UUID  `json:"targetUserId,omitempty"`
	Name         string      `json:"name,omitempty"`
	IsGroup      bool        `json:"isGroup,omitempty"`
	MembersIDs   []uuid.UUID `json:"membersIds,omitempty"`
}

type GetRoomsRequest struct {
	Cursor *uuid.UUID `json:"cursor,omitempty"`
	Limit  int        `json:"limit,omitempty"`
}

type RoomRef struct {
	RoomID uuid.UUID `json:"roomId"`
}

type SendMessageRequest struct {
	RoomID      uuid.UUID  `json:"roomId"`
	Content     string     `json:"content"`
	Type        string     `json:"type,omitempty"`
	TempID      string     `json:"tempId,omitempty"`
	RecipientID *uuid.UUID `json:"recipientId,omitempty"` // направленное сообщение для сторон
}

type ReactionRequest struct {
	MessageID uuid.UUID `json:"messageId"`
	RoomID    uuid.UUID `json:"roomId"`
	Content   string    `json:"content,omitempty"`
}

type DeleteMessageRequest struct {
	MessageID uuid.UUID `json:"messageId"`
	RoomID    uuid.UUID `json:"roomId"`
}

type MarkReadRequest struct {
	MessageID uuid.UUID `json:"messageId"`
	RoomID    uuid.UUID `json:"roomId"`
}

type CheckUserStatusRequest struct {
	UserID uuid.UUID `json:"userId"`
}

type MemberRequest struct {
	RoomID       uuid.UUID `json:"roomId"`
	TargetUserID uuid.UUID `json:"targetUserId"`
}

// ReceiveMessagePayload несет tempId без изменений - ключ сверки
// оптимистичной отправки; чужой tempId клиенты игнорируют
type ReceiveMessagePayload struct {
	NewMessage *domain.Message `json:"newMessage"`
	RoomID     uuid.UUID       `json:"roomId"`
	TempID     string          `json:"tempId,omitempty"`
}

type RoomsListPayload struct {
	Rooms      []*domain.RoomPreview `json:"rooms"`
	NextCursor *uuid.UUID            `json:"nextCursor,omitempty"`
}

type TypingUpdatePayload struct {
	RoomID      uuid.UUID           `json:"roomId"`
	TypingUsers []domain.TypingUser `json:"typingUsers"`
}

type ReactionUpdatePayload struct {
	MessageID uuid.UUID               `json:"messageId"`
	RoomID    uuid.UUID               `json:"roomId"`
	Reactions []*domain.ReactionGroup `json:"reactions"`
}

type MessageDeletedPayload struct {
	MessageID uuid.UUID `json:"messageId"`
	RoomID    uuid.UUID `json:"roomId"`
}

type MessageReadUpdatePayload struct {
	MessageID uuid.UUID   `json:"messageId"`
	RoomID    uuid.UUID   `json:"roomId"`
	ReaderIDs []uuid.UUID `json:"readerIds"`
}

type RoomReadPayload struct {
	RoomID uuid.UUID `json:"roomId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	TempID  string `json:"tempId,omitempty"`
}

func marshalEnvelope(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Envelope{Event: event, Data: data})
}

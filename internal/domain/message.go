package domain

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID          uuid.UUID  `json:"id"`
	RoomID      *uuid.UUID `json:"room_id,omitempty"`
	SenderID    *uuid.UUID `json:"sender_id,omitempty"`
	RecipientID *uuid.UUID `json:"recipient_id,omitempty"`
	Type        string     `json:"type"`
	Content     string     `json:"content"`
	ReactionID  *uuid.UUID `json:"reaction_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// LastMessage - денормализованный указатель (userId, roomId) -> последнее сообщение.
// Материализует ответ на "список моих комнат по свежести" без скана истории.
type LastMessage struct {
	UserID    uuid.UUID `json:"user_id"`
	RoomID    uuid.UUID `json:"room_id"`
	MessageID uuid.UUID `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	MessageTypeContent   = "CONTENT"
	MessageTypeCreate    = "CREATE"
	MessageTypeSaved     = "SAVED"
	MessageTypeNewMember = "NEWMEMBER"
	MessageTypeLeave     = "LEAVE"
	MessageTypeBan       = "BAN"
	MessageTypeReaction  = "REACTION"
	MessageTypeClear     = "CLEAR"
	MessageTypeDelete    = "DELETE"
)

func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeContent, MessageTypeCreate, MessageTypeSaved, MessageTypeNewMember,
		MessageTypeLeave, MessageTypeBan, MessageTypeReaction, MessageTypeClear, MessageTypeDelete:
		return true
	}
	return false
}

// VisibleTo: направленное сообщение видно только отправителю и получателю.
// SQL запросов истории и указателей повторяет это правило дословно.
func (m *Message) VisibleTo(userID uuid.UUID) bool {
	if m.RecipientID == nil {
		return true
	}
	if *m.RecipientID == userID {
		return true
	}
	return m.SenderID != nil && *m.SenderID == userID
}

// CountsTowardUnread - правило счетчика непрочитанных: окно членства
// [joined_at, left_at ?? now], видимость, и собственные сообщения не считаются,
// кроме REACTION-уведомлений, информативных для обеих сторон.
// SQL в read-репозитории повторяет это правило дословно.
func (m *Message) CountsTowardUnread(userID uuid.UUID, joinedAt time.Time, leftAt *time.Time) bool {
	if m.CreatedAt.Before(joinedAt) {
		return false
	}
	if leftAt != nil && m.CreatedAt.After(*leftAt) {
		return false
	}
	if !m.VisibleTo(userID) {
		return false
	}
	if m.SenderID == nil || *m.SenderID != userID {
		return true
	}
	return m.Type == MessageTypeReaction
}

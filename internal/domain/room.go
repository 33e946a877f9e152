package domain

import (
	"time"

	"github.com/google/uuid"
)

type Room struct {
	ID          uuid.UUID `json:"id"`
	Kind        string    `json:"kind"`
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	MaxMembers  int       `json:"max_members"`
	CreatedAt   time.Time `json:"created_at"`
}

type RoomMember struct {
	RoomID   uuid.UUID  `json:"room_id"`
	UserID   uuid.UUID  `json:"user_id"`
	Type     string     `json:"type"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

// RoomPreview - элемент списка комнат: комната + последнее сообщение + счетчик непрочитанных
type RoomPreview struct {
	Room        Room     `json:"room"`
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
	Members     []User   `json:"members,omitempty"`
}

const (
	RoomKindDirect    = "direct"
	RoomKindGroup     = "group"
	RoomKindSelfNotes = "self_notes"
)

const (
	MemberTypeOwner  = "owner"
	MemberTypeAdmin  = "admin"
	MemberTypeMember = "member"
	MemberTypeOld    = "old"
	MemberTypeBanned = "banned"
)

// IsActive - активный участник получает fan-out и может писать в комнату
func (m *RoomMember) IsActive() bool {
	switch m.Type {
	case MemberTypeOwner, MemberTypeAdmin, MemberTypeMember:
		return m.LeftAt == nil
	default:
		return false
	}
}

// CanModerate - право банить и добавлять участников
func (m *RoomMember) CanModerate() bool {
	return m.IsActive() && (m.Type == MemberTypeOwner || m.Type == MemberTypeAdmin)
}

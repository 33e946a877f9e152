package domain

import "github.com/google/uuid"

// TypingUser - эфемерная запись "печатает"; живет только в памяти процесса
type TypingUser struct {
	UserID      uuid.UUID `json:"userId"`
	DisplayName string    `json:"displayName"`
	AvatarURL   *string   `json:"avatarUrl,omitempty"`
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Reaction - не более одной реакции на пару (user, message); upsert заменяет emoji
type Reaction struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	MessageID uuid.UUID `json:"message_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ReactionGroup - сгруппированный по emoji снимок реакций сообщения.
// Клиент целиком заменяет свой локальный список этим снимком.
type ReactionGroup struct {
	Content string      `json:"content"`
	Count   int         `json:"count"`
	UserIDs []uuid.UUID `json:"userIds"`
}

// Read - отметка "прочитано" для пары (user, message)
type Read struct {
	UserID    uuid.UUID `json:"user_id"`
	MessageID uuid.UUID `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
}

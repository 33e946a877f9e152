package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"social_messaging/pkg/logger"
)

type ReadRepository interface {
	MarkRead(ctx context.Context, userID, roomID, messageID uuid.UUID) error
	Readers(ctx context.Context, messageID uuid.UUID) ([]uuid.UUID, error)
	UnreadCount(ctx context.Context, userID, roomID uuid.UUID) (int, error)
}

type readRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewReadRepository(db *pgxpool.Pool, log logger.Logger) ReadRepository {
	return &readRepository{db: db, log: log}
}

// MarkRead - водяной знак: прочитанным становится целевое сообщение и все
// видимые пользователю сообщения комнаты не новее него. Счетчик падает ровно
// в ноль после отметки новейшего сообщения комнаты.
func (r *readRepository) MarkRead(ctx context.Context, userID, roomID, messageID uuid.UUID) error {
	query := `
		INSERT INTO reads (user_id, message_id, created_at)
		SELECT $1, m.id, $4
		FROM messages m
		JOIN room_members rm ON rm.room_id = m.room_id AND rm.user_id = $1
		WHERE m.room_id = $2
		  AND m.created_at <= (SELECT w.created_at FROM messages w WHERE w.id = $3)
		  AND m.created_at >= rm.joined_at
		  AND (rm.left_at IS NULL OR m.created_at <= rm.left_at)
		  AND (m.recipient_id IS NULL OR m.recipient_id = $1 OR m.sender_id = $1)
		ON CONFLICT (user_id, message_id) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query, userID, roomID, messageID, time.Now())
	if err != nil {
		r.log.Error("Failed to mark read", "error", err, "user_id", userID, "message_id", messageID)
	}
	return err
}

func (r *readRepository) Readers(ctx context.Context, messageID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT user_id FROM reads
		WHERE message_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.Query(ctx, query, messageID)
	if err != nil {
		r.log.Error("Failed to get readers", "error", err, "message_id", messageID)
		return nil, err
	}
	defer rows.Close()

	var readers []uuid.UUID
	for rows.Next() {
		var userID uuid.UUID
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		readers = append(readers, userID)
	}

	return readers, rows.Err()
}

// UnreadCount считает непрочитанные в окне членства [joined_at, left_at ?? now].
// Собственные сообщения не считаются, кроме REACTION-уведомлений, где пользователь
// отправитель или получатель - они информативны для обеих сторон.
// Правило кодифицировано в domain.Message.CountsTowardUnread, SQL ему следует.
func (r *readRepository) UnreadCount(ctx context.Context, userID, roomID uuid.UUID) (int, error) {
	query := `
		SELECT count(*)
		FROM messages m
		JOIN room_members rm ON rm.room_id = m.room_id AND rm.user_id = $1
		WHERE m.room_id = $2
		  AND m.created_at >= rm.joined_at
		  AND (rm.left_at IS NULL OR m.created_at <= rm.left_at)
		  AND (m.recipient_id IS NULL OR m.recipient_id = $1 OR m.sender_id = $1)
		  AND NOT EXISTS (SELECT 1 FROM reads rd WHERE rd.user_id = $1 AND rd.message_id = m.id)
		  AND (
		      m.sender_id IS DISTINCT FROM $1
		      OR (m.type = 'REACTION' AND (m.sender_id = $1 OR m.recipient_id = $1))
		  )
	`

	var count int
	if err := r.db.QueryRow(ctx, query, userID, roomID).Scan(&count); err != nil {
		r.log.Error("Failed to count unread", "error", err, "user_id", userID, "room_id", roomID)
		return 0, err
	}

	return count, nil
}

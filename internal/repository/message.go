package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"social_messaging/internal/domain"
	apperrors "social_messaging/pkg/errors"
	"social_messaging/pkg/logger"
)

type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message, memberIDs []uuid.UUID) error
	GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error)
	GetPage(ctx context.Context, roomID, userID uuid.UUID, cursor *uuid.UUID, limit int) ([]*domain.Message, error)
	DeleteWithRepair(ctx context.Context, messageID, roomID uuid.UUID) error
	NewestVisible(ctx context.Context, roomID, userID uuid.UUID) (*domain.Message, error)
	UpsertLastMessage(ctx context.Context, userID, roomID, messageID uuid.UUID, createdAt time.Time) error
	RepointLastMessage(ctx context.Context, userID, roomID uuid.UUID) error
	FindNoticeByReaction(ctx context.Context, reactionID uuid.UUID) (*domain.Message, error)
	DeleteNotice(ctx context.Context, noticeID uuid.UUID) error
}

type messageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

// Create вставляет сообщение и обновляет last_messages каждого активного
// участника одной транзакцией
func (r *messageRepository) Create(ctx context.Context, message *domain.Message, memberIDs []uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO messages (id, room_id, sender_id, recipient_id, type, content, reaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err = tx.QueryRow(ctx, query,
		message.ID, message.RoomID, message.SenderID, message.RecipientID,
		message.Type, message.Content, message.ReactionID, message.CreatedAt,
	).Scan(&message.CreatedAt)
	if err != nil {
		r.log.Error("Failed to create message", "error", err)
		return err
	}

	lmQuery := `
		INSERT INTO last_messages (user_id, room_id, message_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, room_id) DO UPDATE SET message_id = $3, created_at = $4
	`
	for _, userID := range memberIDs {
		if _, err := tx.Exec(ctx, lmQuery, userID, message.RoomID, message.ID, message.CreatedAt); err != nil {
			r.log.Error("Failed to upsert last message", "error", err, "user_id", userID)
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *messageRepository) GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	query := `
		SELECT id, room_id, sender_id, recipient_id, type, content, reaction_id, created_at
		FROM messages
		WHERE id = $1
	`

	message := &domain.Message{}
	err := r.db.QueryRow(ctx, query, messageID).Scan(
		&message.ID, &message.RoomID, &message.SenderID, &message.RecipientID,
		&message.Type, &message.Content, &message.ReactionID, &message.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		r.log.Error("Failed to get message", "error", err, "message_id", messageID)
		return nil, err
	}

	return message, nil
}

// GetPage возвращает страницу истории комнаты для пользователя.
// Направленные REACTION-уведомления видны только отправителю и получателю,
// left_at участника ограничивает видимость сверху.
func (r *messageRepository) GetPage(ctx context.Context, roomID, userID uuid.UUID, cursor *uuid.UUID, limit int) ([]*domain.Message, error) {
	query := `
		SELECT m.id, m.room_id, m.sender_id, m.recipient_id, m.type, m.content, m.reaction_id, m.created_at
		FROM messages m
		JOIN room_members rm ON rm.room_id = m.room_id AND rm.user_id = $2
		WHERE m.room_id = $1
		  AND (m.recipient_id IS NULL OR m.recipient_id = $2 OR m.sender_id = $2)
		  AND (rm.left_at IS NULL OR m.created_at <= rm.left_at)
		  AND ($3::uuid IS NULL OR (m.created_at, m.id) < (
		      SELECT c.created_at, c.id FROM messages c WHERE c.id = $3))
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $4
	`

	rows, err := r.db.Query(ctx, query, roomID, userID, cursor, limit)
	if err != nil {
		r.log.Error("Failed to get message page", "error", err, "room_id", roomID)
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		message := &domain.Message{}
		if err := rows.Scan(
			&message.ID, &message.RoomID, &message.SenderID, &message.RecipientID,
			&message.Type, &message.Content, &message.ReactionID, &message.CreatedAt,
		); err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, err
		}
		messages = append(messages, message)
	}

	return messages, rows.Err()
}

// DeleteWithRepair удаляет сообщение вместе с его реакциями, уведомлениями и
// отметками прочтения, затем чинит все указатели last_messages, которые на него
// ссылались - перенаправляет на новейшее оставшееся видимое сообщение или удаляет
func (r *messageRepository) DeleteWithRepair(ctx context.Context, messageID, roomID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// уведомления, порожденные реакциями на это сообщение
	if _, err := tx.Exec(ctx, `
		DELETE FROM messages
		WHERE reaction_id IN (SELECT id FROM reactions WHERE message_id = $1)
	`, messageID); err != nil {
		r.log.Error("Failed to delete reaction notices", "error", err)
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM reactions WHERE message_id = $1`, messageID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM reads WHERE message_id = $1`, messageID); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM messages WHERE id = $1`, messageID)
	if err != nil {
		r.log.Error("Failed to delete message", "error", err, "message_id", messageID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrMessageNotFound
	}

	// осиротевшие указатели комнаты
	rows, err := tx.Query(ctx, `
		SELECT lm.user_id FROM last_messages lm
		WHERE lm.room_id = $1
		  AND NOT EXISTS (SELECT 1 FROM messages m WHERE m.id = lm.message_id)
	`, roomID)
	if err != nil {
		return err
	}
	var affected []uuid.UUID
	for rows.Next() {
		var userID uuid.UUID
		if err := rows.Scan(&userID); err != nil {
			rows.Close()
			return err
		}
		affected = append(affected, userID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, userID := range affected {
		if err := repointInTx(ctx, tx, userID, roomID); err != nil {
			r.log.Error("Failed to repair last message pointer", "error", err, "user_id", userID)
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *messageRepository) NewestVisible(ctx context.Context, roomID, userID uuid.UUID) (*domain.Message, error) {
	query := `
		SELECT id, room_id, sender_id, recipient_id, type, content, reaction_id, created_at
		FROM messages
		WHERE room_id = $1
		  AND (recipient_id IS NULL OR recipient_id = $2 OR sender_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	message := &domain.Message{}
	err := r.db.QueryRow(ctx, query, roomID, userID).Scan(
		&message.ID, &message.RoomID, &message.SenderID, &message.RecipientID,
		&message.Type, &message.Content, &message.ReactionID, &message.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		return nil, err
	}

	return message, nil
}

func (r *messageRepository) UpsertLastMessage(ctx context.Context, userID, roomID, messageID uuid.UUID, createdAt time.Time) error {
	query := `
		INSERT INTO last_messages (user_id, room_id, message_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, room_id) DO UPDATE SET message_id = $3, created_at = $4
	`

	_, err := r.db.Exec(ctx, query, userID, roomID, messageID, createdAt)
	if err != nil {
		r.log.Error("Failed to upsert last message", "error", err, "user_id", userID, "room_id", roomID)
	}
	return err
}

// RepointLastMessage переустанавливает указатель пользователя на новейшее
// видимое ему сообщение комнаты, либо удаляет указатель, если сообщений нет
func (r *messageRepository) RepointLastMessage(ctx context.Context, userID, roomID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := repointInTx(ctx, tx, userID, roomID); err != nil {
		r.log.Error("Failed to repoint last message", "error", err, "user_id", userID, "room_id", roomID)
		return err
	}

	return tx.Commit(ctx)
}

func (r *messageRepository) FindNoticeByReaction(ctx context.Context, reactionID uuid.UUID) (*domain.Message, error) {
	query := `
		SELECT id, room_id, sender_id, recipient_id, type, content, reaction_id, created_at
		FROM messages
		WHERE reaction_id = $1 AND type = 'REACTION'
		LIMIT 1
	`

	message := &domain.Message{}
	err := r.db.QueryRow(ctx, query, reactionID).Scan(
		&message.ID, &message.RoomID, &message.SenderID, &message.RecipientID,
		&message.Type, &message.Content, &message.ReactionID, &message.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		return nil, err
	}

	return message, nil
}

func (r *messageRepository) DeleteNotice(ctx context.Context, noticeID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM messages WHERE id = $1 AND type = 'REACTION'`, noticeID)
	if err != nil {
		r.log.Error("Failed to delete notice", "error", err, "notice_id", noticeID)
	}
	return err
}

func repointInTx(ctx context.Context, tx pgx.Tx, userID, roomID uuid.UUID) error {
	var messageID uuid.UUID
	var createdAt time.Time
	err := tx.QueryRow(ctx, `
		SELECT id, created_at FROM messages
		WHERE room_id = $1
		  AND (recipient_id IS NULL OR recipient_id = $2 OR sender_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, roomID, userID).Scan(&messageID, &createdAt)

	if errors.Is(err, pgx.ErrNoRows) {
		_, err = tx.Exec(ctx, `DELETE FROM last_messages WHERE user_id = $1 AND room_id = $2`, userID, roomID)
		return err
	}
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO last_messages (user_id, room_id, message_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, room_id) DO UPDATE SET message_id = $3, created_at = $4
	`, userID, roomID, messageID, createdAt)
	return err
}

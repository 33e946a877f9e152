package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"social_messaging/internal/domain"
	apperrors "social_messaging/pkg/errors"
	"social_messaging/pkg/logger"
)

type ReactionRepository interface {
	Get(ctx context.Context, userID, messageID uuid.UUID) (*domain.Reaction, error)
	Upsert(ctx context.Context, reaction *domain.Reaction) error
	Delete(ctx context.Context, userID, messageID uuid.UUID) error
	GroupsByMessage(ctx context.Context, messageID uuid.UUID) ([]*domain.ReactionGroup, error)
}

type reactionRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewReactionRepository(db *pgxpool.Pool, log logger.Logger) ReactionRepository {
	return &reactionRepository{db: db, log: log}
}

func (r *reactionRepository) Get(ctx context.Context, userID, messageID uuid.UUID) (*domain.Reaction, error) {
	query := `
		SELECT id, user_id, message_id, content, created_at
		FROM reactions
		WHERE user_id = $1 AND message_id = $2
	`

	reaction := &domain.Reaction{}
	err := r.db.QueryRow(ctx, query, userID, messageID).Scan(
		&reaction.ID, &reaction.UserID, &reaction.MessageID, &reaction.Content, &reaction.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		r.log.Error("Failed to get reaction", "error", err)
		return nil, err
	}

	return reaction, nil
}

// Upsert - одна реакция на пару (user, message); повторная с другим emoji заменяет
func (r *reactionRepository) Upsert(ctx context.Context, reaction *domain.Reaction) error {
	query := `
		INSERT INTO reactions (id, user_id, message_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, message_id)
		DO UPDATE SET content = $4, created_at = $5
		RETURNING id
	`

	err := r.db.QueryRow(ctx, query,
		reaction.ID, reaction.UserID, reaction.MessageID, reaction.Content, reaction.CreatedAt,
	).Scan(&reaction.ID)
	if err != nil {
		r.log.Error("Failed to upsert reaction", "error", err)
	}
	return err
}

func (r *reactionRepository) Delete(ctx context.Context, userID, messageID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM reactions WHERE user_id = $1 AND message_id = $2`, userID, messageID)
	if err != nil {
		r.log.Error("Failed to delete reaction", "error", err)
	}
	return err
}

func (r *reactionRepository) GroupsByMessage(ctx context.Context, messageID uuid.UUID) ([]*domain.ReactionGroup, error) {
	query := `
		SELECT content, count(*), array_agg(user_id ORDER BY created_at)
		FROM reactions
		WHERE message_id = $1
		GROUP BY content
		ORDER BY content
	`

	rows, err := r.db.Query(ctx, query, messageID)
	if err != nil {
		r.log.Error("Failed to group reactions", "error", err, "message_id", messageID)
		return nil, err
	}
	defer rows.Close()

	var groups []*domain.ReactionGroup
	for rows.Next() {
		group := &domain.ReactionGroup{}
		if err := rows.Scan(&group.Content, &group.Count, &group.UserIDs); err != nil {
			r.log.Error("Failed to scan reaction group", "error", err)
			return nil, err
		}
		groups = append(groups, group)
	}

	return groups, rows.Err()
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"social_messaging/internal/domain"
	apperrors "social_messaging/pkg/errors"
	"social_messaging/pkg/logger"
)

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.User, error)
	SetOnline(ctx context.Context, id uuid.UUID) error
	SetOffline(ctx context.Context, id uuid.UUID, lastSeen time.Time) error
}

type userRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewUserRepository(db *pgxpool.Pool, log logger.Logger) UserRepository {
	return &userRepository{db: db, log: log}
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `
		SELECT id, username, display_name, avatar_url, is_online, last_seen, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	user := &domain.User{}
	var avatarURL sql.NullString
	var lastSeen sql.NullTime
	err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.DisplayName, &avatarURL,
		&user.IsOnline, &lastSeen, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		r.log.Error("Failed to get user", "error", err, "user_id", id)
		return nil, err
	}

	if avatarURL.Valid {
		user.AvatarURL = &avatarURL.String
	}
	if lastSeen.Valid {
		user.LastSeen = &lastSeen.Time
	}

	return user, nil
}

func (r *userRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.User, error) {
	query := `
		SELECT id, username, display_name, avatar_url, is_online, last_seen, created_at, updated_at
		FROM users
		WHERE id = ANY($1)
	`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		r.log.Error("Failed to get users", "error", err)
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user := &domain.User{}
		var avatarURL sql.NullString
		var lastSeen sql.NullTime
		if err := rows.Scan(
			&user.ID, &user.Username, &user.DisplayName, &avatarURL,
			&user.IsOnline, &lastSeen, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			r.log.Error("Failed to scan user", "error", err)
			return nil, err
		}
		if avatarURL.Valid {
			user.AvatarURL = &avatarURL.String
		}
		if lastSeen.Valid {
			user.LastSeen = &lastSeen.Time
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

func (r *userRepository) SetOnline(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE users
		SET is_online = true, updated_at = $2
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, id, time.Now())
	if err != nil {
		r.log.Error("Failed to set user online", "error", err, "user_id", id)
	}
	return err
}

func (r *userRepository) SetOffline(ctx context.Context, id uuid.UUID, lastSeen time.Time) error {
	query := `
		UPDATE users
		SET is_online = false, last_seen = $2, updated_at = $2
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, id, lastSeen)
	if err != nil {
		r.log.Error("Failed to set user offline", "error", err, "user_id", id)
	}
	return err
}

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

type RoomRepository interface {
	GetByID(ctx context.Context, roomID uuid.UUID) (*domain.Room, error)
	GetMember(ctx context.Context, roomID, userID uuid.UUID) (*domain.RoomMember, error)
	GetMembers(ctx context.Context, roomID uuid.UUID) ([]*domain.RoomMember, error)
	GetActiveMemberIDs(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error)
	FindDirectRoom(ctx context.Context, userA, userB uuid.UUID) (*domain.Room, error)
	FindSelfRoom(ctx context.Context, userID uuid.UUID) (*domain.Room, error)
	CreateDirect(ctx context.Context, room *domain.Room, userA, userB uuid.UUID) error
	CreateSelfRoom(ctx context.Context, room *domain.Room, ownerID uuid.UUID) error
	CreateGroup(ctx context.Context, room *domain.Room, ownerID uuid.UUID, memberIDs []uuid.UUID, createMsg *domain.Message) error
	AddMember(ctx context.Context, member *domain.RoomMember) error
	UpdateMemberType(ctx context.Context, roomID, userID uuid.UUID, memberType string, leftAt *time.Time) error
	ListPreviews(ctx context.Context, userID uuid.UUID, cursor *uuid.UUID, limit int) ([]*domain.RoomPreview, error)
}

type roomRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewRoomRepository(db *pgxpool.Pool, log logger.Logger) RoomRepository {
	return &roomRepository{db: db, log: log}
}

func (r *roomRepository) GetByID(ctx context.Context, roomID uuid.UUID) (*domain.Room, error) {
	query := `
		SELECT id, kind, name, description, max_members, created_at
		FROM rooms
		WHERE id = $1
	`

	room := &domain.Room{}
	var name, description sql.NullString
	err := r.db.QueryRow(ctx, query, roomID).Scan(
		&room.ID, &room.Kind, &name, &description, &room.MaxMembers, &room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrRoomNotFound
		}
		r.log.Error("Failed to get room", "error", err, "room_id", roomID)
		return nil, err
	}

	if name.Valid {
		room.Name = &name.String
	}
	if description.Valid {
		room.Description = &description.String
	}

	return room, nil
}

func (r *roomRepository) GetMember(ctx context.Context, roomID, userID uuid.UUID) (*domain.RoomMember, error) {
	query := `
		SELECT room_id, user_id, type, joined_at, left_at
		FROM room_members
		WHERE room_id = $1 AND user_id = $2
	`

	member := &domain.RoomMember{}
	var leftAt sql.NullTime
	err := r.db.QueryRow(ctx, query, roomID, userID).Scan(
		&member.RoomID, &member.UserID, &member.Type, &member.JoinedAt, &leftAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotMember
		}
		r.log.Error("Failed to get member", "error", err, "room_id", roomID, "user_id", userID)
		return nil, err
	}

	if leftAt.Valid {
		member.LeftAt = &leftAt.Time
	}

	return member, nil
}

func (r *roomRepository) GetMembers(ctx context.Context, roomID uuid.UUID) ([]*domain.RoomMember, error) {
	query := `
		SELECT room_id, user_id, type, joined_at, left_at
		FROM room_members
		WHERE room_id = $1
	`

	rows, err := r.db.Query(ctx, query, roomID)
	if err != nil {
		r.log.Error("Failed to get members", "error", err, "room_id", roomID)
		return nil, err
	}
	defer rows.Close()

	var members []*domain.RoomMember
	for rows.Next() {
		member := &domain.RoomMember{}
		var leftAt sql.NullTime
		if err := rows.Scan(&member.RoomID, &member.UserID, &member.Type, &member.JoinedAt, &leftAt); err != nil {
			r.log.Error("Failed to scan member", "error", err)
			return nil, err
		}
		if leftAt.Valid {
			member.LeftAt = &leftAt.Time
		}
		members = append(members, member)
	}

	return members, rows.Err()
}

func (r *roomRepository) GetActiveMemberIDs(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT user_id
		FROM room_members
		WHERE room_id = $1 AND type IN ('owner', 'admin', 'member') AND left_at IS NULL
	`

	rows, err := r.db.Query(ctx, query, roomID)
	if err != nil {
		r.log.Error("Failed to get active member ids", "error", err, "room_id", roomID)
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// FindDirectRoom ищет существующую 1:1 комнату ровно с этой парой участников
func (r *roomRepository) FindDirectRoom(ctx context.Context, userA, userB uuid.UUID) (*domain.Room, error) {
	query := `
		SELECT r.id, r.kind, r.name, r.description, r.max_members, r.created_at
		FROM rooms r
		WHERE r.kind = 'direct'
		  AND EXISTS (SELECT 1 FROM room_members m WHERE m.room_id = r.id AND m.user_id = $1)
		  AND EXISTS (SELECT 1 FROM room_members m WHERE m.room_id = r.id AND m.user_id = $2)
		  AND (SELECT count(*) FROM room_members m WHERE m.room_id = r.id) = 2
		LIMIT 1
	`

	room := &domain.Room{}
	var name, description sql.NullString
	err := r.db.QueryRow(ctx, query, userA, userB).Scan(
		&room.ID, &room.Kind, &name, &description, &room.MaxMembers, &room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrRoomNotFound
		}
		r.log.Error("Failed to find direct room", "error", err)
		return nil, err
	}

	if name.Valid {
		room.Name = &name.String
	}
	if description.Valid {
		room.Description = &description.String
	}

	return room, nil
}

func (r *roomRepository) FindSelfRoom(ctx context.Context, userID uuid.UUID) (*domain.Room, error) {
	query := `
		SELECT r.id, r.kind, r.name, r.description, r.max_members, r.created_at
		FROM rooms r
		JOIN room_members m ON m.room_id = r.id
		WHERE r.kind = 'self_notes' AND m.user_id = $1
		LIMIT 1
	`

	room := &domain.Room{}
	var name, description sql.NullString
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&room.ID, &room.Kind, &name, &description, &room.MaxMembers, &room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrRoomNotFound
		}
		r.log.Error("Failed to find self room", "error", err, "user_id", userID)
		return nil, err
	}

	if name.Valid {
		room.Name = &name.String
	}
	if description.Valid {
		room.Description = &description.String
	}

	return room, nil
}

func (r *roomRepository) CreateDirect(ctx context.Context, room *domain.Room, userA, userB uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertRoom(ctx, tx, room); err != nil {
		r.log.Error("Failed to create direct room", "error", err)
		return err
	}
	now := time.Now()
	for _, userID := range []uuid.UUID{userA, userB} {
		if err := insertMember(ctx, tx, &domain.RoomMember{
			RoomID: room.ID, UserID: userID, Type: domain.MemberTypeMember, JoinedAt: now,
		}); err != nil {
			r.log.Error("Failed to create direct room member", "error", err)
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *roomRepository) CreateSelfRoom(ctx context.Context, room *domain.Room, ownerID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertRoom(ctx, tx, room); err != nil {
		r.log.Error("Failed to create self room", "error", err)
		return err
	}
	if err := insertMember(ctx, tx, &domain.RoomMember{
		RoomID: room.ID, UserID: ownerID, Type: domain.MemberTypeOwner, JoinedAt: time.Now(),
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// CreateGroup создает комнату, участников, системное CREATE-сообщение и указатели
// last_messages одной транзакцией - частичное создание невозможно
func (r *roomRepository) CreateGroup(ctx context.Context, room *domain.Room, ownerID uuid.UUID, memberIDs []uuid.UUID, createMsg *domain.Message) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertRoom(ctx, tx, room); err != nil {
		r.log.Error("Failed to create group room", "error", err)
		return err
	}

	now := time.Now()
	for _, userID := range memberIDs {
		memberType := domain.MemberTypeMember
		if userID == ownerID {
			memberType = domain.MemberTypeOwner
		}
		if err := insertMember(ctx, tx, &domain.RoomMember{
			RoomID: room.ID, UserID: userID, Type: memberType, JoinedAt: now,
		}); err != nil {
			r.log.Error("Failed to create group member", "error", err, "user_id", userID)
			return err
		}
	}

	msgQuery := `
		INSERT INTO messages (id, room_id, sender_id, recipient_id, type, content, reaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := tx.Exec(ctx, msgQuery,
		createMsg.ID, createMsg.RoomID, createMsg.SenderID, createMsg.RecipientID,
		createMsg.Type, createMsg.Content, createMsg.ReactionID, createMsg.CreatedAt,
	); err != nil {
		r.log.Error("Failed to create CREATE message", "error", err)
		return err
	}

	lmQuery := `
		INSERT INTO last_messages (user_id, room_id, message_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, room_id) DO UPDATE SET message_id = $3, created_at = $4
	`
	for _, userID := range memberIDs {
		if _, err := tx.Exec(ctx, lmQuery, userID, room.ID, createMsg.ID, createMsg.CreatedAt); err != nil {
			r.log.Error("Failed to create last message pointer", "error", err, "user_id", userID)
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *roomRepository) AddMember(ctx context.Context, member *domain.RoomMember) error {
	query := `
		INSERT INTO room_members (room_id, user_id, type, joined_at, left_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (room_id, user_id) DO UPDATE SET type = $3, joined_at = $4, left_at = $5
	`

	_, err := r.db.Exec(ctx, query, member.RoomID, member.UserID, member.Type, member.JoinedAt, member.LeftAt)
	if err != nil {
		r.log.Error("Failed to add member", "error", err, "room_id", member.RoomID, "user_id", member.UserID)
	}
	return err
}

func (r *roomRepository) UpdateMemberType(ctx context.Context, roomID, userID uuid.UUID, memberType string, leftAt *time.Time) error {
	query := `
		UPDATE room_members
		SET type = $3, left_at = $4
		WHERE room_id = $1 AND user_id = $2
	`

	tag, err := r.db.Exec(ctx, query, roomID, userID, memberType, leftAt)
	if err != nil {
		r.log.Error("Failed to update member type", "error", err, "room_id", roomID, "user_id", userID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotMember
	}
	return nil
}

// ListPreviews возвращает страницу комнат пользователя по свежести last_messages.
// Курсор - id последней комнаты предыдущей страницы.
func (r *roomRepository) ListPreviews(ctx context.Context, userID uuid.UUID, cursor *uuid.UUID, limit int) ([]*domain.RoomPreview, error) {
	query := `
		SELECT r.id, r.kind, r.name, r.description, r.max_members, r.created_at,
		       m.id, m.room_id, m.sender_id, m.recipient_id, m.type, m.content, m.reaction_id, m.created_at
		FROM last_messages lm
		JOIN rooms r ON r.id = lm.room_id
		JOIN messages m ON m.id = lm.message_id
		WHERE lm.user_id = $1
		  AND r.kind <> 'self_notes'
		  AND ($2::uuid IS NULL OR (lm.created_at, lm.room_id) < (
		      SELECT c.created_at, c.room_id FROM last_messages c
		      WHERE c.user_id = $1 AND c.room_id = $2))
		ORDER BY lm.created_at DESC, lm.room_id DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, userID, cursor, limit)
	if err != nil {
		r.log.Error("Failed to list room previews", "error", err, "user_id", userID)
		return nil, err
	}
	defer rows.Close()

	var previews []*domain.RoomPreview
	for rows.Next() {
		preview := &domain.RoomPreview{}
		msg := &domain.Message{}
		var name, description sql.NullString
		if err := rows.Scan(
			&preview.Room.ID, &preview.Room.Kind, &name, &description,
			&preview.Room.MaxMembers, &preview.Room.CreatedAt,
			&msg.ID, &msg.RoomID, &msg.SenderID, &msg.RecipientID,
			&msg.Type, &msg.Content, &msg.ReactionID, &msg.CreatedAt,
		); err != nil {
			r.log.Error("Failed to scan room preview", "error", err)
			return nil, err
		}
		if name.Valid {
			preview.Room.Name = &name.String
		}
		if description.Valid {
			preview.Room.Description = &description.String
		}
		preview.LastMessage = msg
		previews = append(previews, preview)
	}

	return previews, rows.Err()
}

func insertRoom(ctx context.Context, tx pgx.Tx, room *domain.Room) error {
	query := `
		INSERT INTO rooms (id, kind, name, description, max_members, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.Exec(ctx, query, room.ID, room.Kind, room.Name, room.Description, room.MaxMembers, room.CreatedAt)
	return err
}

func insertMember(ctx context.Context, tx pgx.Tx, member *domain.RoomMember) error {
	query := `
		INSERT INTO room_members (room_id, user_id, type, joined_at, left_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := tx.Exec(ctx, query, member.RoomID, member.UserID, member.Type, member.JoinedAt, member.LeftAt)
	return err
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"sessionauth/internal/domain/models"
	"sessionauth/internal/storage"
)

// CreateSession starts a new session for userID.
func (s *Storage) CreateSession(ctx context.Context, userID string) (*models.Session, error) {
	const op = "storage.postgres.CreateSession"

	uid, ok := parseID(userID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	id := uuid.New()
	now := time.Now().UTC()

	_, err := s.db.Exec(ctx, "INSERT INTO sessions(id, user_id, created_at) VALUES ($1, $2, $3)", id, uid, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.Session{
		ID:        id.String(),
		UserID:    uid.String(),
		CreatedAt: now,
	}, nil
}

// Session finds a session by ID.
func (s *Storage) Session(ctx context.Context, sessionID string) (*models.Session, error) {
	const op = "storage.postgres.Session"

	id, ok := parseID(sessionID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}

	session, err := scanSession(s.db.QueryRow(ctx,
		"SELECT id::text, user_id::text, created_at FROM sessions WHERE id = $1", id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return session, nil
}

// DeleteSession removes a session. Deleting a missing session is not an error.
func (s *Storage) DeleteSession(ctx context.Context, sessionID string) error {
	const op = "storage.postgres.DeleteSession"

	id, ok := parseID(sessionID)
	if !ok {
		return nil
	}

	if _, err := s.db.Exec(ctx, "DELETE FROM sessions WHERE id = $1", id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// TakeSession deletes a session and returns it. Under concurrent calls only
// one caller gets the row, the rest get storage.ErrSessionNotFound.
func (s *Storage) TakeSession(ctx context.Context, sessionID string) (*models.Session, error) {
	const op = "storage.postgres.TakeSession"

	id, ok := parseID(sessionID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}

	query := `
		DELETE FROM sessions
		WHERE id = $1
		RETURNING id::text, user_id::text, created_at
	`

	session, err := scanSession(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return session, nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var session models.Session

	if err := row.Scan(&session.ID, &session.UserID, &session.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrSessionNotFound
		}

		return nil, err
	}

	return &session, nil
}

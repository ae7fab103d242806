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

const userColumns = `id::text, email, pass_hash, name, birthday, avatar_url, origin_url,
	access_token, refresh_token, session_id, created_at`

// SaveUser inserts a new user and returns its generated ID.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) (string, error) {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users(id, email, pass_hash, name, birthday, avatar_url, origin_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	id := uuid.New()

	_, err := s.db.Exec(ctx, query,
		id,
		user.Email,
		user.PassHash,
		user.Name,
		user.Birthday,
		user.AvatarURL,
		user.OriginURL,
		time.Now().UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return "", fmt.Errorf("%s: %w", op, storage.ErrUserExists)
		}

		return "", fmt.Errorf("%s: %w", op, err)
	}

	return id.String(), nil
}

// User finds a user by email.
func (s *Storage) User(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.postgres.User"

	user, err := scanUser(s.db.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserByID finds a user by ID.
func (s *Storage) UserByID(ctx context.Context, userID string) (*models.User, error) {
	const op = "storage.postgres.UserByID"

	id, ok := parseID(userID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	user, err := scanUser(s.db.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdateUserTokens overwrites the denormalized token state of a user.
func (s *Storage) UpdateUserTokens(ctx context.Context, userID string, tokens models.UserTokens) error {
	const op = "storage.postgres.UpdateUserTokens"

	id, ok := parseID(userID)
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	query := `
		UPDATE users
		SET access_token = $1, refresh_token = $2, session_id = $3
		WHERE id = $4
	`

	cmdTag, err := s.db.Exec(ctx, query, tokens.AccessToken, tokens.RefreshToken, tokens.SessionID, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PassHash,
		&user.Name,
		&user.Birthday,
		&user.AvatarURL,
		&user.OriginURL,
		&user.AccessToken,
		&user.RefreshToken,
		&user.SessionID,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}

		return nil, err
	}

	return &user, nil
}

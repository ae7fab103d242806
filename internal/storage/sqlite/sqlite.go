package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"sessionauth/internal/domain/models"
	"sessionauth/internal/storage"
)

type Storage struct {
	db *sql.DB
}

// New opens the SQLite database at storagePath. The schema is applied by the migrator.
func New(storagePath string) (*Storage, error) {
	const op = "storage.sqlite.New"

	db, err := sql.Open("sqlite3", storagePath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveUser inserts a new user and returns its generated ID.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) (string, error) {
	const op = "storage.sqlite.SaveUser"

	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, pass_hash, name, birthday, avatar_url, origin_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, user.Email, user.PassHash, user.Name, user.Birthday, user.AvatarURL, user.OriginURL, time.Now().UTC(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return "", fmt.Errorf("%s: %w", op, storage.ErrUserExists)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

const userColumns = `id, email, pass_hash, name, birthday, avatar_url, origin_url,
	access_token, refresh_token, session_id, created_at`

// User returns the user with the given email.
func (s *Storage) User(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.sqlite.User"

	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)

	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserByID returns the user with the given ID.
func (s *Storage) UserByID(ctx context.Context, userID string) (*models.User, error) {
	const op = "storage.sqlite.UserByID"

	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", userID)

	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdateUserTokens overwrites the denormalized token state of a user.
func (s *Storage) UpdateUserTokens(ctx context.Context, userID string, tokens models.UserTokens) error {
	const op = "storage.sqlite.UpdateUserTokens"

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET access_token = ?, refresh_token = ?, session_id = ? WHERE id = ?",
		tokens.AccessToken, tokens.RefreshToken, tokens.SessionID, userID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

// CreateSession starts a new session for userID.
func (s *Storage) CreateSession(ctx context.Context, userID string) (*models.Session, error) {
	const op = "storage.sqlite.CreateSession"

	session := &models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, created_at) VALUES (?, ?, ?)",
		session.ID, session.UserID, session.CreatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return session, nil
}

// Session returns the session with the given ID.
func (s *Storage) Session(ctx context.Context, sessionID string) (*models.Session, error) {
	const op = "storage.sqlite.Session"

	row := s.db.QueryRowContext(ctx, "SELECT id, user_id, created_at FROM sessions WHERE id = ?", sessionID)

	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return session, nil
}

// DeleteSession removes the session. Deleting a missing session is not an error.
func (s *Storage) DeleteSession(ctx context.Context, sessionID string) error {
	const op = "storage.sqlite.DeleteSession"

	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// TakeSession deletes the session and returns it in one statement.
// Of concurrent callers only one gets the session, the rest get storage.ErrSessionNotFound.
func (s *Storage) TakeSession(ctx context.Context, sessionID string) (*models.Session, error) {
	const op = "storage.sqlite.TakeSession"

	row := s.db.QueryRowContext(ctx,
		"DELETE FROM sessions WHERE id = ? RETURNING id, user_id, created_at", sessionID)

	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return session, nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var user models.User

	err := row.Scan(
		&user.ID, &user.Email, &user.PassHash, &user.Name, &user.Birthday, &user.AvatarURL, &user.OriginURL,
		&user.AccessToken, &user.RefreshToken, &user.SessionID, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}

	return &user, nil
}

func scanSession(row *sql.Row) (*models.Session, error) {
	var session models.Session

	if err := row.Scan(&session.ID, &session.UserID, &session.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, err
	}

	return &session, nil
}

// Package redis keeps sessions in Redis hashes that expire with the refresh token.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"sessionauth/internal/domain/models"
	"sessionauth/internal/storage"
)

const (
	fieldUserID    = "user_id"
	fieldCreatedAt = "created_at"
)

const takeSessionScript = `
local data = redis.call("HGETALL", KEYS[1])
if #data == 0 then
  return false
end
redis.call("DEL", KEYS[1])
return data
`

var takeSessionLua = redis.NewScript(takeSessionScript)

type Store struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New connects to the Redis server at url.
func New(ctx context.Context, url, prefix string, ttl time.Duration) (*Store, error) {
	const op = "storage.redis.New"

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	return NewWithClient(rdb, prefix, ttl), nil
}

// NewWithClient wraps an existing client. Sessions expire after ttl; zero disables expiry.
func NewWithClient(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	return &Store{
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) key(sessionID string) string {
	return s.prefix + "session:" + sessionID
}

// CreateSession starts a new session for userID.
func (s *Store) CreateSession(ctx context.Context, userID string) (*models.Session, error) {
	const op = "storage.redis.CreateSession"

	session := &models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}

	key := s.key(session.ID)

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldUserID, session.UserID,
			fieldCreatedAt, session.CreatedAt.UnixNano(),
		)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return session, nil
}

// Session returns the session with the given ID.
func (s *Store) Session(ctx context.Context, sessionID string) (*models.Session, error) {
	const op = "storage.redis.Session"

	fields, err := s.rdb.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}

	session, err := decodeSession(sessionID, fields)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return session, nil
}

// DeleteSession removes the session. Deleting a missing session is not an error.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	const op = "storage.redis.DeleteSession"

	if err := s.rdb.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// TakeSession reads and deletes the session in one Lua script, so only one
// of several concurrent callers observes it.
func (s *Store) TakeSession(ctx context.Context, sessionID string) (*models.Session, error) {
	const op = "storage.redis.TakeSession"

	res, err := takeSessionLua.Run(ctx, s.rdb, []string{s.key(sessionID)}).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	fields := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		fields[res[i]] = res[i+1]
	}

	session, err := decodeSession(sessionID, fields)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return session, nil
}

func decodeSession(sessionID string, fields map[string]string) (*models.Session, error) {
	userID := fields[fieldUserID]
	if userID == "" {
		return nil, fmt.Errorf("session %s: missing %s", sessionID, fieldUserID)
	}

	createdAt, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("session %s: bad %s: %w", sessionID, fieldCreatedAt, err)
	}

	return &models.Session{
		ID:        sessionID,
		UserID:    userID,
		CreatedAt: time.Unix(0, createdAt).UTC(),
	}, nil
}

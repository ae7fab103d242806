// Package storagetest holds behaviour checks shared by every storage driver.
package storagetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionauth/internal/domain/models"
	"sessionauth/internal/storage"
)

type UserStore interface {
	SaveUser(ctx context.Context, user *models.User) (string, error)
	User(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, userID string) (*models.User, error)
	UpdateUserTokens(ctx context.Context, userID string, tokens models.UserTokens) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, userID string) (*models.Session, error)
	Session(ctx context.Context, sessionID string) (*models.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	TakeSession(ctx context.Context, sessionID string) (*models.Session, error)
}

func NewUser() *models.User {
	return &models.User{
		Email:     gofakeit.Email(),
		PassHash:  []byte(gofakeit.Password(true, true, true, true, false, 20)),
		Name:      gofakeit.Name(),
		Birthday:  "1990-01-02",
		OriginURL: "https://app.example.com",
	}
}

// Users checks save, lookup by email and ID, duplicate detection and token write-back.
func Users(t *testing.T, s UserStore, missingID string) {
	t.Helper()
	ctx := context.Background()

	u := NewUser()
	id, err := s.SaveUser(ctx, u)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = s.SaveUser(ctx, u)
	assert.ErrorIs(t, err, storage.ErrUserExists)

	byEmail, err := s.User(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, id, byEmail.ID)
	assert.Equal(t, u.PassHash, byEmail.PassHash)
	assert.Equal(t, u.Name, byEmail.Name)
	assert.Equal(t, u.OriginURL, byEmail.OriginURL)

	byID, err := s.UserByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, u.Email, byID.Email)

	_, err = s.User(ctx, gofakeit.Email())
	assert.ErrorIs(t, err, storage.ErrUserNotFound)

	_, err = s.UserByID(ctx, missingID)
	assert.ErrorIs(t, err, storage.ErrUserNotFound)

	_, err = s.UserByID(ctx, "not-an-id")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)

	tokens := models.UserTokens{AccessToken: "a", RefreshToken: "r", SessionID: "sid"}
	require.NoError(t, s.UpdateUserTokens(ctx, id, tokens))

	byID, err = s.UserByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, tokens.AccessToken, byID.AccessToken)
	assert.Equal(t, tokens.RefreshToken, byID.RefreshToken)
	assert.Equal(t, tokens.SessionID, byID.SessionID)

	assert.ErrorIs(t, s.UpdateUserTokens(ctx, missingID, tokens), storage.ErrUserNotFound)
}

// Sessions checks the session lifecycle for a session owned by userID.
func Sessions(t *testing.T, s SessionStore, userID string) {
	t.Helper()
	ctx := context.Background()

	first, err := s.CreateSession(ctx, userID)
	require.NoError(t, err)
	second, err := s.CreateSession(ctx, userID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	got, err := s.Session(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, userID, got.UserID)

	require.NoError(t, s.DeleteSession(ctx, first.ID))
	require.NoError(t, s.DeleteSession(ctx, first.ID))
	require.NoError(t, s.DeleteSession(ctx, "not-an-id"))

	_, err = s.Session(ctx, first.ID)
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)

	_, err = s.Session(ctx, "not-an-id")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)

	taken, err := s.TakeSession(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, taken.ID)
	assert.Equal(t, userID, taken.UserID)

	_, err = s.TakeSession(ctx, second.ID)
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)

	_, err = s.Session(ctx, second.ID)
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
}

// TakeOnce races workers on TakeSession and checks that exactly one wins.
func TakeOnce(t *testing.T, s SessionStore, userID string, workers int) {
	t.Helper()
	ctx := context.Background()

	session, err := s.CreateSession(ctx, userID)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		won      atomic.Int32
		notFound atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.TakeSession(ctx, session.ID)
			switch {
			case err == nil:
				won.Add(1)
			case assert.ErrorIs(t, err, storage.ErrSessionNotFound):
				notFound.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), won.Load())
	assert.Equal(t, int32(workers-1), notFound.Load())
}

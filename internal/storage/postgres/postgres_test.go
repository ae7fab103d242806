package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"sessionauth/internal/migrator"
	"sessionauth/internal/storage"
	"sessionauth/internal/storage/storagetest"
)

// Integration tests against a real PostgreSQL started with testcontainers-go.
// Run with: GO_TEST_INTEGRATION=1 go test ./internal/storage/postgres -race -count=1

func startPostgres(t *testing.T) *Storage {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": "user", "POSTGRES_PASSWORD": "pass", "POSTGRES_DB": "db"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://user:pass@%s:%s/db?sslmode=disable", host, port.Port())

	require.Eventually(t, func() bool {
		return migrator.Run("postgres", migrator.PostgresURL(dsn), migrator.Up) == nil
	}, 30*time.Second, 500*time.Millisecond)

	st, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	return st
}

func TestIntegration_Users(t *testing.T) {
	st := startPostgres(t)
	storagetest.Users(t, st, "00000000-0000-0000-0000-000000000000")
}

func TestIntegration_Sessions(t *testing.T) {
	st := startPostgres(t)

	id, err := st.SaveUser(context.Background(), storagetest.NewUser())
	require.NoError(t, err)

	storagetest.Sessions(t, st, id)
	storagetest.TakeOnce(t, st, id, 16)
}

func TestIntegration_CreateSession_UnknownUser(t *testing.T) {
	st := startPostgres(t)

	_, err := st.CreateSession(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestParseID(t *testing.T) {
	_, ok := parseID("9f1c1c2e-5d8b-4d3c-9d6e-0a1b2c3d4e5f")
	assert.True(t, ok)

	_, ok = parseID("session-1")
	assert.False(t, ok)
}

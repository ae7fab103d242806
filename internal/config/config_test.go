package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

const validYAML = `
env: "local"
storage:
  driver: "sqlite"
  sqlite_path: "./storage/test.db"
tokens:
  access_secret: "a"
  refresh_secret: "r"
  access_ttl: 1h
  refresh_ttl: 48h
http:
  port: 9090
  base_url: "http://localhost:9090"
`

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, time.Hour, cfg.Tokens.AccessTTL)
	assert.Equal(t, 48*time.Hour, cfg.Tokens.RefreshTTL)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 10, cfg.Password.BcryptCost)
	assert.Equal(t, "/auth/google-redirect", cfg.Google.CallbackPath)
	assert.False(t, cfg.Google.Enabled())
	assert.False(t, cfg.Avatars.Enabled())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("REFRESH_SECRET_JWT", "from-env")
	t.Setenv("HTTP_PORT", "7070")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Tokens.RefreshSecret)
	assert.Equal(t, 7070, cfg.HTTP.Port)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "unknown env",
			body: `
env: "staging"
storage:
  driver: "sqlite"
tokens:
  access_secret: "a"
  refresh_secret: "r"
`,
		},
		{
			name: "equal secrets",
			body: `
storage:
  driver: "sqlite"
tokens:
  access_secret: "same"
  refresh_secret: "same"
`,
		},
		{
			name: "missing secrets",
			body: `
storage:
  driver: "sqlite"
`,
		},
		{
			name: "unknown driver",
			body: `
storage:
  driver: "cassandra"
tokens:
  access_secret: "a"
  refresh_secret: "r"
`,
		},
		{
			name: "mongo without uri",
			body: `
storage:
  driver: "mongodb"
tokens:
  access_secret: "a"
  refresh_secret: "r"
`,
		},
		{
			name: "redis sessions without url",
			body: `
storage:
  driver: "sqlite"
sessions:
  driver: "redis"
tokens:
  access_secret: "a"
  refresh_secret: "r"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadConfig_Panics(t *testing.T) {
	assert.Panics(t, func() {
		LoadConfig("")
	})
}

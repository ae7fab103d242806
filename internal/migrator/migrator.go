// Package migrator applies the embedded SQL migrations with golang-migrate.
package migrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"sessionauth/migrations"
)

const (
	Up   = "up"
	Down = "down"
)

// ErrNoChange is returned when there is nothing to apply in the requested direction.
var ErrNoChange = migrate.ErrNoChange

// SQLiteURL builds the golang-migrate database URL for a SQLite file.
func SQLiteURL(path string) string {
	return "sqlite3://" + path
}

// PostgresURL rewrites a postgres:// DSN to the pgx5 scheme golang-migrate expects.
func PostgresURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

// Run applies the migrations stored under dir ("sqlite" or "postgres") to databaseURL.
// direction must be Up or Down. ErrNoChange is returned when already at the target version.
func Run(dir, databaseURL, direction string) error {
	const op = "migrator.Run"

	if databaseURL == "" {
		return fmt.Errorf("%s: database url is empty", op)
	}
	if direction != Up && direction != Down {
		return fmt.Errorf("%s: direction must be up or down, got %q", op, direction)
	}

	source, err := iofs.New(migrations.FS, dir)
	if err != nil {
		return fmt.Errorf("%s: source: %w", op, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case Up:
		err = m.Up()
	case Down:
		err = m.Down()
	}
	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return ErrNoChange
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

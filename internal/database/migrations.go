package database

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies every pending migration to dsn. migrationsPath is
// accepted for parity with the teacher's ConnectWithMigrations signature but
// is otherwise unused: the schema lives in internal/database/migrations and
// is embedded into the binary so operators never need to ship SQL files
// alongside a deploy.
//
// This is the function the teacher's ConnectWithMigrations called but never
// defined (libs/database/connection.go references RunMigrations with no
// implementation anywhere in that repo) — implemented here against the
// dependency the teacher already carried for it, golang-migrate/migrate/v4.
func RunMigrations(dsn string, _ string) error {
	src, err := iofs.New(embeddedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, postgresURL(dsn))
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// postgresURL ensures dsn carries a scheme golang-migrate's postgres
// driver recognizes. A dsn already starting with postgres:// or
// postgresql:// is returned unchanged; anything else is returned with
// "postgres://" prefixed. A bare keyword DSN is not converted into URL
// form, only prefixed.
func postgresURL(dsn string) string {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return "postgres://" + dsn
	}
	return dsn
}

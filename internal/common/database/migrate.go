package database

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"comm-dispatch/internal/common/config"
	"comm-dispatch/internal/common/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationSource exposes the embedded <version>_<name>.{up,down}.sql files.
func MigrationSource() (source.Driver, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	return src, nil
}

// Migrate brings the schema up to the newest embedded version. The postgres
// driver holds pg_advisory_lock for the whole run, so replicas starting at the
// same time apply each version once. Cancelling ctx stops after the migration
// in flight.
func Migrate(ctx context.Context, cfg config.PostgresConfig, log logger.Logger) error {
	src, err := MigrationSource()
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, cfg.URL())
	if err != nil {
		return fmt.Errorf("init migrations for %s: %w", cfg.Database, err)
	}
	defer m.Close()
	m.Log = migrateLogger{log: log}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", err)
	}
	log.Info("schema up to date", map[string]interface{}{
		"version": version,
		"dirty":   dirty,
	})
	return nil
}

// migrateLogger routes golang-migrate progress lines into the service logger.
type migrateLogger struct {
	log logger.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Info("migration", map[string]interface{}{"detail": fmt.Sprintf(format, v...)})
}

func (l migrateLogger) Verbose() bool {
	return false
}

package database

import (
	"context"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

// SchemaMigrator applies the append-only audit_records schema against the
// audit database, grounded on the teacher's MigrationRunner.
type SchemaMigrator struct {
	migrate *migrate.Migrate
	log     *logrus.Logger
}

// NewSchemaMigrator builds a SchemaMigrator reading .sql files from
// migrationsPath against databaseURL.
func NewSchemaMigrator(databaseURL, migrationsPath string, log *logrus.Logger) (*SchemaMigrator, error) {
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("database: building schema migrator: %w", err)
	}
	return &SchemaMigrator{migrate: m, log: log}, nil
}

// Up applies every pending migration.
func (sm *SchemaMigrator) Up(ctx context.Context) error {
	sm.log.Info("applying audit schema migrations")

	if err := sm.migrate.Up(); err != nil {
		if err == migrate.ErrNoChange {
			sm.log.Info("audit schema already current")
			return nil
		}
		return fmt.Errorf("database: applying migrations: %w", err)
	}

	version, dirty, err := sm.migrate.Version()
	if err != nil {
		sm.log.WithError(err).Warn("could not read schema version after migrating up")
		return nil
	}
	sm.log.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("audit schema migrated")
	if dirty {
		// A dirty audit schema means a prior migration run failed partway
		// through; writing audit records against it risks silently missing
		// columns the repository depends on, so this is treated as a hard
		// failure rather than a log line the operator might not notice.
		return fmt.Errorf("database: audit schema at version %d is dirty, refusing to proceed", version)
	}
	return nil
}

// Down rolls back exactly one migration, used by the reversal side of a bad
// deploy.
func (sm *SchemaMigrator) Down(ctx context.Context) error {
	sm.log.Info("rolling back one audit schema migration")

	if err := sm.migrate.Steps(-1); err != nil {
		if err == migrate.ErrNoChange {
			sm.log.Info("no audit schema migration to roll back")
			return nil
		}
		return fmt.Errorf("database: rolling back migration: %w", err)
	}

	version, dirty, err := sm.migrate.Version()
	if err != nil {
		sm.log.WithError(err).Warn("could not read schema version after rolling back")
	} else {
		sm.log.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("audit schema rolled back")
	}
	return nil
}

// Version reports the current applied migration version.
func (sm *SchemaMigrator) Version() (uint, bool, error) {
	return sm.migrate.Version()
}

// Close releases the migrator's source and database handles.
func (sm *SchemaMigrator) Close() error {
	sourceErr, dbErr := sm.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("database: closing migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("database: closing migration database: %w", dbErr)
	}
	return nil
}

package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
)

// migrateLogger routes golang-migrate's progress output into zerolog.
type migrateLogger struct {
	log zerolog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.log.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool {
	return l.log.GetLevel() <= zerolog.DebugLevel
}

func openMigrator(databaseURL, migrationsPath string, logger zerolog.Logger) (*migrate.Migrate, error) {
	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open migrations at %s: %w", migrationsPath, err)
	}
	m.Log = migrateLogger{log: logger}

	return m, nil
}

func closeMigrator(m *migrate.Migrate, logger zerolog.Logger) {
	srcErr, dbErr := m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		logger.Warn().Err(err).Msg("close migrator")
	}
}

// RunMigrations applies every pending migration. An up-to-date schema is
// not an error.
func RunMigrations(databaseURL, migrationsPath string, logger zerolog.Logger) error {
	m, err := openMigrator(databaseURL, migrationsPath, logger)
	if err != nil {
		return err
	}
	defer closeMigrator(m, logger)

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info().Msg("schema already up to date")
	case err != nil:
		return fmt.Errorf("apply migrations: %w", err)
	default:
		logVersion(m, logger, "schema migrated")
	}

	return nil
}

// RunMigrationsDown rolls back exactly one migration.
func RunMigrationsDown(databaseURL, migrationsPath string, logger zerolog.Logger) error {
	m, err := openMigrator(databaseURL, migrationsPath, logger)
	if err != nil {
		return err
	}
	defer closeMigrator(m, logger)

	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("roll back migration: %w", err)
	}

	logVersion(m, logger, "rolled back one migration")

	return nil
}

// MigrationVersion reports the applied schema version. A database that has
// never been migrated reports version 0.
func MigrationVersion(databaseURL, migrationsPath string, logger zerolog.Logger) (version uint, dirty bool, err error) {
	m, err := openMigrator(databaseURL, migrationsPath, logger)
	if err != nil {
		return 0, false, err
	}
	defer closeMigrator(m, logger)

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}

	return version, dirty, nil
}

func logVersion(m *migrate.Migrate, logger zerolog.Logger, msg string) {
	event := logger.Info()
	if version, dirty, err := m.Version(); err == nil {
		event = event.Uint("version", version).Bool("dirty", dirty)
	}
	event.Msg(msg)
}

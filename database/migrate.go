package database

import (
	"fmt"
	"log/slog"
	"strings"
)

// MigrateUp applies every pending migration
func MigrateUp(connString string) error {
	m, err := GetMigrate(connString)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if err := IgnoreNoChange(m.Up()); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	logVersion(m)
	return nil
}

// MigrateDown rolls back the given number of migrations
func MigrateDown(connString string, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}
	m, err := GetMigrate(connString)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if err := IgnoreNoChange(m.Steps(-steps)); err != nil {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	logVersion(m)
	return nil
}

// pgx5URL rewrites a postgres:// URL to the pgx5:// scheme golang-migrate expects
// for the pgx/v5 driver.
func pgx5URL(connString string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(connString, prefix) {
			return "pgx5://" + strings.TrimPrefix(connString, prefix)
		}
	}
	return connString
}

func logVersion(m Migrator) {
	version, dirty, err := m.Version()
	if err != nil {
		slog.Info("Database has no applied migrations")
		return
	}
	slog.Info("Database migrated", "version", version, "dirty", dirty)
}

func closeMigrator(m Migrator) {
	srcErr, dbErr := m.Close()
	if srcErr != nil || dbErr != nil {
		slog.Warn("Failed to close migrator", "source_error", srcErr, "database_error", dbErr)
	}
}

package history

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file" // File source driver
)

// migrateUp applies all pending up migrations. ErrNoChange is not an error.
//
// The migrator takes ownership of db and closes it; callers reopen the
// database afterwards.
func migrateUp(db *sql.DB, migrationsPath string) error {
	if migrationsPath == "" {
		return errors.New("history: migrations path is required")
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{DatabaseName: "main"})
	if err != nil {
		return fmt.Errorf("history: failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsPath, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("history: failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("history: failed to apply migrations: %w", err)
	}
	return nil
}

package storage

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose"
)

// Migrate применяет SQL-миграции из dir (формат goose)
func Migrate(db *sql.DB, dir string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("apply migrations from %s: %w", dir, err)
	}
	return nil
}

// MigrationStatus печатает состояние миграций
func MigrationStatus(db *sql.DB, dir string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	return goose.Status(db, dir)
}

package postgres

import (
	"fmt"

	"github.com/FooBarWidget/que/migrations"
	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
)

// Migrate brings the schema up to date using the embedded goose migrations.
func Migrate(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(sqlDB, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

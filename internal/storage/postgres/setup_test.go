package postgres

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB opens an in-memory sqlite database with the que_jobs table.
// The schema is created by hand because sqlite cannot express the composite
// primary key with an auto-incremented id; the column set and defaults match
// the Postgres migration. Advisory-lock paths (LockJob/Unlock) are Postgres
// only and covered by the integration tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Disable logs during tests
	})
	require.NoError(t, err)

	err = db.Exec(`
		CREATE TABLE que_jobs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			priority    INTEGER  NOT NULL DEFAULT 100,
			run_at      DATETIME NOT NULL,
			type        TEXT     NOT NULL,
			args        TEXT     NOT NULL DEFAULT '[]',
			error_count INTEGER  NOT NULL DEFAULT 0,
			last_error  TEXT
		)`).Error
	require.NoError(t, err)

	return db
}

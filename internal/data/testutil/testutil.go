package testutil

import (
	"os"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/metagraph-backend/internal/domain"
	"github.com/yungbote/metagraph-backend/internal/platform/logger"
)

// Logger returns a quiet logger for tests.
func Logger(t *testing.T) *logger.Logger {
	t.Helper()
	return logger.NewNop()
}

// DB opens the Postgres database named by TEST_POSTGRES_DSN and migrates
// the aspect tables. Tests that need a real database skip when the variable
// is unset, so the default test run stays hermetic.
func DB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set, skipping Postgres-backed test")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(&domain.EntityAspectRow{}, &domain.NumericIDRow{}); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

// Tx hands the test a transaction that is rolled back on cleanup, so
// Postgres-backed tests leave no rows behind.
func Tx(t *testing.T, db *gorm.DB) *gorm.DB {
	t.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		t.Fatalf("begin test transaction: %v", tx.Error)
	}
	t.Cleanup(func() { _ = tx.Rollback() })
	return tx
}

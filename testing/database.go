// Package testing provides test utilities and database setup for testing the pipeline service
package testing

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/leadpilot/pipeline-journey/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB represents a test database instance
type TestDB struct {
	DB *gorm.DB
}

var dbCounter atomic.Int64

// SetupTestDB creates an isolated in-memory database and runs migrations.
// Each call gets a uniquely named database so tests never share state; the
// shared cache keeps all pooled connections on the same database.
func SetupTestDB() (*TestDB, error) {
	dsn := fmt.Sprintf("file:testdb_%d?mode=memory&cache=shared", dbCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}

	// A single connection avoids sqlite table-lock errors under concurrent
	// test workloads while keeping writes serialized.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.PipelineStage{},
		&models.Lead{},
		&models.JourneyTemplate{},
		&models.ScheduledMessage{},
		&models.DispatchHistoryEntry{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate test database: %w", err)
	}

	return &TestDB{DB: db}, nil
}

// TeardownTestDB closes the underlying connection
func (tdb *TestDB) TeardownTestDB() error {
	sqlDB, err := tdb.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// TestWithDB runs a test function with a fresh database and guaranteed cleanup
func TestWithDB(testFunc func(*TestDB) error) error {
	testDB, err := SetupTestDB()
	if err != nil {
		return fmt.Errorf("failed to setup test database: %w", err)
	}
	defer func() {
		if cleanupErr := testDB.TeardownTestDB(); cleanupErr != nil {
			log.Printf("Warning: failed to cleanup test database: %v", cleanupErr)
		}
	}()

	return testFunc(testDB)
}

// CreateTestContext creates a context for testing
func CreateTestContext() context.Context {
	return context.Background()
}

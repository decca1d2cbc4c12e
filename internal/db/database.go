// Package db provides database and Redis connections for MultiChat.
package db

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"multichat/internal/logging"
	"multichat/pkg/models"
)

// Database wraps the GORM database instance
type Database struct {
	DB *gorm.DB
}

// NewDatabase connects to PostgreSQL using the given DSN. An empty DSN
// falls back to an on-disk SQLite file for local development.
func NewDatabase(dsn string) (*Database, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var db *gorm.DB
	var err error
	if dsn == "" {
		logging.S().Warn("DATABASE_URL not set, using local SQLite file")
		db, err = gorm.Open(sqlite.Open("multichat.db"), gormConfig)
	} else {
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if dsn == "" {
		// SQLite writers must serialize on one connection.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	database := &Database{DB: db}
	if err := database.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logging.S().Info("✅ Database connected successfully")
	return database, nil
}

// Migrate runs database migrations
func (d *Database) Migrate() error {
	logging.S().Info("🔄 Running database migrations...")

	err := d.DB.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.Message{},
		&models.UsageLog{},
		&models.Transaction{},
		&models.StoredFile{},
	)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	logging.S().Info("✅ Database migrations completed successfully")
	return nil
}

// Close closes the underlying connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

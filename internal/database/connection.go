package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/prismgw/prism/internal/config"
	"github.com/prismgw/prism/internal/models"
)

// Initialize opens the postgres connection, configures the pool and runs
// migrations. Returns an error when no DATABASE_URL is configured; the
// caller decides whether that means lite mode or a hard failure.
func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{
		Logger:      gormlogger.Default.LogMode(gormlogger.Warn),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func migrate(db *gorm.DB) error {
	db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"")

	if err := db.AutoMigrate(
		&models.Conversation{},
		&models.ChatMessage{},
		&models.UserMemory{},
		&models.ConversationMemoryState{},
		&models.VideoAsset{},
	); err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}

	db.Exec("CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation_created ON chat_messages(conversation_id, created_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_user_memories_user_created ON user_memories(user_id, created_at DESC)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_video_assets_user_status ON video_assets(user_id, status)")

	return nil
}

// IsHealthy pings the connection for health checks.
func IsHealthy(db *gorm.DB) bool {
	if db == nil {
		return false
	}
	sqlDB, err := db.DB()
	if err != nil {
		return false
	}
	return sqlDB.Ping() == nil
}

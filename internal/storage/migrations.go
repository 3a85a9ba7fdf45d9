package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial merchant learning schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS merchants (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					normalized_name TEXT UNIQUE NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS categorizations (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					merchant_id INTEGER NOT NULL,
					category_name TEXT NOT NULL,
					category_id TEXT,
					confidence REAL DEFAULT 0,
					auto_approved BOOLEAN DEFAULT 0,
					transaction_id TEXT,
					amount REAL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (merchant_id) REFERENCES merchants(id)
				)`,
				`CREATE INDEX idx_categorizations_merchant ON categorizations(merchant_id)`,

				`CREATE TABLE IF NOT EXISTS merchant_confidence (
					merchant_id INTEGER NOT NULL,
					category_name TEXT NOT NULL,
					confidence_score REAL DEFAULT 0,
					success_count INTEGER DEFAULT 0,
					correction_count INTEGER DEFAULT 0,
					last_used DATETIME,
					UNIQUE(merchant_id, category_name),
					FOREIGN KEY (merchant_id) REFERENCES merchants(id)
				)`,

				`CREATE TABLE IF NOT EXISTS learning_events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					merchant_id INTEGER NOT NULL,
					event_type TEXT NOT NULL,
					old_category TEXT,
					new_category TEXT,
					confidence_before REAL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (merchant_id) REFERENCES merchants(id)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add indexes for history and suggestion queries",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE INDEX IF NOT EXISTS idx_categorizations_created ON categorizations(created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_merchant_confidence_score ON merchant_confidence(confidence_score)`,
				`CREATE INDEX IF NOT EXISTS idx_learning_events_merchant ON learning_events(merchant_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

package db

import (
	"fmt"
	"strings"

	"murmur/internal/entry"
	"murmur/internal/jobs"
	"murmur/internal/workspace"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the store. A postgres-looking DSN goes through the
// postgres driver, anything else is treated as an embedded sqlite path.
func Connect(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	if isPostgres(dsn) {
		return gorm.Open(postgres.Open(dsn), cfg)
	}

	gdb, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}

	// SQLite reliability tuning
	_, _ = sqlDB.Exec("PRAGMA journal_mode = WAL;")
	_, _ = sqlDB.Exec("PRAGMA synchronous = NORMAL;")
	_, _ = sqlDB.Exec("PRAGMA foreign_keys = ON;")

	return gdb, nil
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&workspace.Workspace{},
		&entry.Entry{},
		&entry.Tag{},
		&entry.EntryTag{},
		&jobs.AiJob{},
	); err != nil {
		return err
	}

	// Portable DDL only: the same statements must work on sqlite and
	// postgres.
	stmts := []string{
		`create unique index if not exists uq_tags_workspace_name on tags(workspace_id, name);`,
		`create index if not exists idx_entries_workspace_created on entries(workspace_id, created_at desc);`,
		`create index if not exists idx_jobs_claim on ai_jobs(workspace_id, status, created_at);`,
		`create index if not exists idx_jobs_entry_type on ai_jobs(entry_id, type, status);`,
		`create index if not exists idx_entry_tags_workspace_tag on entry_tags(workspace_id, tag_id);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}

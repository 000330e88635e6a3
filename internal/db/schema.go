package db

import (
	"context"
	"fmt"

	"timesaver/internal/types"
)

// EnsureSchema creates the tables owned by this service when they do not
// exist yet. The shared tasks table belongs to the task source's own store
// and is never created here.
func EnsureSchema(ctx context.Context, db DBTX) error {
	stmts := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id                   TEXT PRIMARY KEY,
				team                 TEXT NOT NULL,
				role                 TEXT NOT NULL,
				created_at           TIMESTAMPTZ,
				created_by           TEXT NOT NULL DEFAULT '',
				time_saved           DOUBLE PRECISION NOT NULL DEFAULT 0,
				template_name        TEXT NOT NULL DEFAULT '',
				template_task_id     TEXT NOT NULL,
				template_task_status TEXT NOT NULL DEFAULT ''
			)`, savingsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_team ON %s (team)`, savingsTable, savingsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_task ON %s (template_task_id)`, savingsTable, savingsTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				template_task_id TEXT PRIMARY KEY
			)`, excludedTable),
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to ensure schema", err)
		}
	}

	return nil
}

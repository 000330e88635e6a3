package db

import (
	"context"
	"fmt"

	"timesaver/internal/types"
)

// ExcludedRepo reads the operator-maintained list of task executions that
// the refresh pipeline must skip.
type ExcludedRepo struct {
	db DBTX
}

// NewExcludedRepo creates an ExcludedRepo backed by the given connection.
func NewExcludedRepo(db DBTX) *ExcludedRepo {
	return &ExcludedRepo{db: db}
}

// TaskIDsToExclude returns the excluded task ids as a set. A missing or
// empty table yields an empty set, not an error.
func (r *ExcludedRepo) TaskIDsToExclude(ctx context.Context) (map[string]struct{}, error) {
	query := fmt.Sprintf(`SELECT template_task_id FROM %s`, excludedTable)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query excluded tasks", err)
	}
	defer rows.Close()

	excluded := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan excluded task id", err)
		}
		excluded[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating excluded tasks", err)
	}

	return excluded, nil
}

package db

import (
	"context"
	"fmt"

	"timesaver/internal/types"
)

// TaskSpecRow pairs a task execution id with its raw spec document.
type TaskSpecRow struct {
	ID   string
	Spec string
}

// TaskRepo reads and patches raw task specs in the shared tasks table. It is
// used by the backward migration to retrofit classification metadata onto
// historical executions.
type TaskRepo struct {
	db DBTX
}

// NewTaskRepo creates a TaskRepo backed by the given connection.
func NewTaskRepo(db DBTX) *TaskRepo {
	return &TaskRepo{db: db}
}

// ListSpecs returns the id and spec document of every stored task execution.
func (r *TaskRepo) ListSpecs(ctx context.Context) ([]TaskSpecRow, error) {
	query := fmt.Sprintf(`SELECT id, spec FROM %s`, tasksTable)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query task specs", err)
	}
	defer rows.Close()

	var results []TaskSpecRow
	for rows.Next() {
		var row TaskSpecRow
		if err := rows.Scan(&row.ID, &row.Spec); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan task spec row", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating task specs", err)
	}

	return results, nil
}

// UpdateSpec replaces the spec document of one task execution and reports
// how many rows were touched.
func (r *TaskRepo) UpdateSpec(ctx context.Context, id string, spec string) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s SET spec = $1 WHERE id = $2`, tasksTable)

	tag, err := r.db.Exec(ctx, query, spec, id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to update task spec", err)
	}

	return tag.RowsAffected(), nil
}

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"timesaver/internal/types"
)

// distinctColumns whitelists the columns exposed through GetDistinctColumn.
// Column names are interpolated into SQL, so anything outside this set is
// rejected before the query is built.
var distinctColumns = map[string]struct{}{
	"team":             {},
	"template_name":    {},
	"template_task_id": {},
}

// SavingsRepo provides write and lookup access to the time-savings table.
// The table is a derived cache: every row is created by the refresh pipeline
// and the whole table is truncated at the start of each run.
type SavingsRepo struct {
	db DBTX
}

// NewSavingsRepo creates a SavingsRepo backed by the given connection
// (pool or transaction).
func NewSavingsRepo(db DBTX) *SavingsRepo {
	return &SavingsRepo{db: db}
}

// Insert stores one time-saving row, assigning a generated id. A zero
// CreatedAt is stored as NULL; the pipeline decides whether such rows are
// inserted at all.
func (r *SavingsRepo) Insert(ctx context.Context, rec *types.TimeSavingRecord) error {
	rec.ID = uuid.NewString()

	var createdAt *time.Time
	if !rec.CreatedAt.IsZero() {
		t := rec.CreatedAt
		createdAt = &t
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, team, role, created_at, created_by, time_saved,
		                template_name, template_task_id, template_task_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, savingsTable)

	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.Team, rec.Role, createdAt, rec.CreatedBy, rec.TimeSaved,
		rec.TemplateName, rec.TemplateTaskID, rec.TemplateTaskStatus,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert time-saving row", err)
	}

	return nil
}

// Update modifies the rows matching the given key columns. The key map is
// restricted to whitelisted columns.
func (r *SavingsRepo) Update(ctx context.Context, rec *types.TimeSavingRecord, key map[string]string) error {
	where, args, err := buildKeyClause(key, 4)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE %s SET team = $1, role = $2, time_saved = $3 WHERE %s`,
		savingsTable, where)

	allArgs := append([]any{rec.Team, rec.Role, rec.TimeSaved}, args...)
	if _, err := r.db.Exec(ctx, query, allArgs...); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update time-saving rows", err)
	}

	return nil
}

// Delete removes the rows matching the given key columns and returns the
// number of rows removed.
func (r *SavingsRepo) Delete(ctx context.Context, key map[string]string) (int64, error) {
	where, args, err := buildKeyClause(key, 1)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE %s`, savingsTable, where)
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete time-saving rows", err)
	}

	return tag.RowsAffected(), nil
}

// Truncate clears the whole table. Called unconditionally at the start of
// every refresh run once the upstream fetch has succeeded.
func (r *SavingsRepo) Truncate(ctx context.Context) error {
	query := fmt.Sprintf(`TRUNCATE TABLE %s`, savingsTable)
	if _, err := r.db.Exec(ctx, query); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to truncate time-savings table", err)
	}
	return nil
}

// GetTemplateNameByTaskID resolves the template name recorded for a task
// execution id. Returns "" when no row matches.
func (r *SavingsRepo) GetTemplateNameByTaskID(ctx context.Context, templateTaskID string) (string, error) {
	query := fmt.Sprintf(`SELECT template_name FROM %s WHERE template_task_id = $1 LIMIT 1`, savingsTable)

	var name string
	err := r.db.QueryRow(ctx, query, templateTaskID).Scan(&name)
	if err != nil {
		if isNoRows(err) {
			return "", nil
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to resolve template name", err)
	}

	return name, nil
}

// GetDistinctColumn returns the distinct values of a whitelisted column.
func (r *SavingsRepo) GetDistinctColumn(ctx context.Context, column string) ([]string, error) {
	if _, ok := distinctColumns[column]; !ok {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			fmt.Sprintf("column %q is not queryable", column),
			nil,
		)
	}

	query := fmt.Sprintf(`SELECT DISTINCT %s FROM %s`, column, savingsTable)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query distinct values", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan distinct value", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating distinct values", err)
	}

	return values, nil
}

// buildKeyClause renders `col = $n AND ...` for a whitelisted key map,
// starting the placeholder numbering at startIdx.
func buildKeyClause(key map[string]string, startIdx int) (string, []any, error) {
	if len(key) == 0 {
		return "", nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"match key must not be empty",
			nil,
		)
	}

	clause := ""
	args := make([]any, 0, len(key))
	i := startIdx
	for col, val := range key {
		if _, ok := distinctColumns[col]; !ok {
			return "", nil, types.NewAppError(
				types.ErrCodeValidationMissingField,
				fmt.Sprintf("column %q is not a valid match key", col),
				nil,
			)
		}
		if clause != "" {
			clause += " AND "
		}
		clause += fmt.Sprintf("%s = $%d", col, i)
		args = append(args, val)
		i++
	}

	return clause, args, nil
}

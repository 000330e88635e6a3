package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"timesaver/internal/types"
)

// StatsRepo is the read-only query layer over the time-savings table. Every
// query accepts an optional created_at range and returns a nil/zero result
// when nothing matches; only genuine execution errors propagate.
type StatsRepo struct {
	db DBTX
}

// NewStatsRepo creates a StatsRepo backed by the given connection.
func NewStatsRepo(db DBTX) *StatsRepo {
	return &StatsRepo{db: db}
}

// condBuilder accumulates WHERE conditions with positional placeholders.
type condBuilder struct {
	conds []string
	args  []any
}

func (b *condBuilder) add(expr string, vals ...any) {
	n := len(b.args)
	for i := range vals {
		expr = strings.Replace(expr, "?", fmt.Sprintf("$%d", n+i+1), 1)
		b.args = append(b.args, vals[i])
	}
	b.conds = append(b.conds, expr)
}

func (b *condBuilder) addRange(dr types.DateRange) {
	if dr.Start != nil {
		b.add("created_at >= ?", *dr.Start)
	}
	if dr.End != nil {
		b.add("created_at <= ?", *dr.End)
	}
}

func (b *condBuilder) where() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

// SumByTeamForTask returns time saved per team for one task execution.
func (r *StatsRepo) SumByTeamForTask(ctx context.Context, templateTaskID string, dr types.DateRange) ([]types.TimeSavedStat, error) {
	b := &condBuilder{}
	b.add("template_task_id = ?", templateTaskID)
	b.addRange(dr)

	query := fmt.Sprintf(`
		SELECT team, SUM(time_saved)
		FROM %s%s
		GROUP BY team`, savingsTable, b.where())

	return r.queryStats(ctx, query, b.args, scanTeamSum)
}

// SumByTemplateForTeam returns time saved per template for one team.
func (r *StatsRepo) SumByTemplateForTeam(ctx context.Context, team string, dr types.DateRange) ([]types.TimeSavedStat, error) {
	b := &condBuilder{}
	b.add("team = ?", team)
	b.addRange(dr)

	query := fmt.Sprintf(`
		SELECT team, template_name, SUM(time_saved)
		FROM %s%s
		GROUP BY team, template_name`, savingsTable, b.where())

	return r.queryStats(ctx, query, b.args, scanTeamTemplateSum)
}

// SumByTeamForTemplate returns time saved per team for one template.
func (r *StatsRepo) SumByTeamForTemplate(ctx context.Context, templateName string, dr types.DateRange) ([]types.TimeSavedStat, error) {
	b := &condBuilder{}
	b.add("template_name = ?", templateName)
	b.addRange(dr)

	query := fmt.Sprintf(`
		SELECT team, template_name, SUM(time_saved)
		FROM %s%s
		GROUP BY team, template_name`, savingsTable, b.where())

	return r.queryStats(ctx, query, b.args, scanTeamTemplateSum)
}

// SumAllGrouped returns time saved per (team, template) pair across the
// whole table.
func (r *StatsRepo) SumAllGrouped(ctx context.Context, dr types.DateRange) ([]types.TimeSavedStat, error) {
	b := &condBuilder{}
	b.addRange(dr)

	query := fmt.Sprintf(`
		SELECT team, template_name, SUM(time_saved)
		FROM %s%s
		GROUP BY team, template_name`, savingsTable, b.where())

	return r.queryStats(ctx, query, b.args, scanTeamTemplateSum)
}

// TeamTotals returns the summed time saved per team, used by the group
// savings division.
func (r *StatsRepo) TeamTotals(ctx context.Context, dr types.DateRange) ([]types.TimeSavedStat, error) {
	b := &condBuilder{}
	b.addRange(dr)

	query := fmt.Sprintf(`
		SELECT team, SUM(time_saved)
		FROM %s%s
		GROUP BY team
		ORDER BY team`, savingsTable, b.where())

	return r.queryStats(ctx, query, b.args, scanTeamSum)
}

// DailyByTeam returns per-day totals per team in ascending date order. Rows
// with no creation timestamp are excluded from date buckets.
func (r *StatsRepo) DailyByTeam(ctx context.Context, dr types.DateRange) ([]types.TimeSummary, error) {
	b := &condBuilder{}
	b.add("created_at IS NOT NULL")
	b.addRange(dr)

	query := fmt.Sprintf(`
		SELECT date_trunc('day', created_at) AS date, team, SUM(time_saved)
		FROM %s%s
		GROUP BY date, team
		ORDER BY date ASC`, savingsTable, b.where())

	return r.querySummaries(ctx, query, b.args, true)
}

// DailyByTemplate returns per-day totals per template in ascending date order.
func (r *StatsRepo) DailyByTemplate(ctx context.Context, dr types.DateRange) ([]types.TimeSummary, error) {
	b := &condBuilder{}
	b.add("created_at IS NOT NULL")
	b.addRange(dr)

	query := fmt.Sprintf(`
		SELECT date_trunc('day', created_at) AS date, template_name, SUM(time_saved)
		FROM %s%s
		GROUP BY date, template_name
		ORDER BY date ASC`, savingsTable, b.where())

	return r.querySummaries(ctx, query, b.args, false)
}

// CumulativeByTeam returns the running sum of time saved per team ordered by
// date: each date's value includes all prior dates for the same team.
func (r *StatsRepo) CumulativeByTeam(ctx context.Context, dr types.DateRange) ([]types.TimeSummary, error) {
	b := &condBuilder{}
	b.add("created_at IS NOT NULL")
	b.addRange(dr)

	query := fmt.Sprintf(`
		SELECT DISTINCT ON (team, date_trunc('day', created_at))
		       date_trunc('day', created_at) AS date,
		       team,
		       SUM(time_saved) OVER (PARTITION BY team ORDER BY date_trunc('day', created_at)) AS total_time_saved
		FROM %s%s
		ORDER BY team, date_trunc('day', created_at)`, savingsTable, b.where())

	return r.querySummaries(ctx, query, b.args, true)
}

// CumulativeByTemplate returns the running sum of time saved per template
// ordered by date.
func (r *StatsRepo) CumulativeByTemplate(ctx context.Context, dr types.DateRange) ([]types.TimeSummary, error) {
	b := &condBuilder{}
	b.add("created_at IS NOT NULL")
	b.addRange(dr)

	query := fmt.Sprintf(`
		SELECT DISTINCT ON (template_name, date_trunc('day', created_at))
		       date_trunc('day', created_at) AS date,
		       template_name,
		       SUM(time_saved) OVER (PARTITION BY template_name ORDER BY date_trunc('day', created_at)) AS total_time_saved
		FROM %s%s
		ORDER BY template_name, date_trunc('day', created_at)`, savingsTable, b.where())

	return r.querySummaries(ctx, query, b.args, false)
}

// DistinctTaskCount counts the distinct task executions represented in the
// table.
func (r *StatsRepo) DistinctTaskCount(ctx context.Context, dr types.DateRange) (int64, error) {
	b := &condBuilder{}
	b.addRange(dr)

	query := fmt.Sprintf(`SELECT COUNT(DISTINCT template_task_id) FROM %s%s`, savingsTable, b.where())

	var count int64
	if err := r.db.QueryRow(ctx, query, b.args...).Scan(&count); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count distinct tasks", err)
	}

	return count, nil
}

// TimeSavedSum returns the total time saved across the table, zero when the
// table is empty.
func (r *StatsRepo) TimeSavedSum(ctx context.Context, dr types.DateRange) (float64, error) {
	b := &condBuilder{}
	b.addRange(dr)

	query := fmt.Sprintf(`SELECT COALESCE(SUM(time_saved), 0) FROM %s%s`, savingsTable, b.where())

	var sum float64
	if err := r.db.QueryRow(ctx, query, b.args...).Scan(&sum); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to sum time saved", err)
	}

	return sum, nil
}

// statScanner populates one TimeSavedStat from a result row.
type statScanner func(scan func(dest ...any) error) (types.TimeSavedStat, error)

func scanTeamSum(scan func(dest ...any) error) (types.TimeSavedStat, error) {
	var s types.TimeSavedStat
	err := scan(&s.Team, &s.TimeSaved)
	return s, err
}

func scanTeamTemplateSum(scan func(dest ...any) error) (types.TimeSavedStat, error) {
	var s types.TimeSavedStat
	err := scan(&s.Team, &s.TemplateName, &s.TimeSaved)
	return s, err
}

func (r *StatsRepo) queryStats(ctx context.Context, query string, args []any, scan statScanner) ([]types.TimeSavedStat, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query time-saved stats", err)
	}
	defer rows.Close()

	var results []types.TimeSavedStat
	for rows.Next() {
		s, err := scan(rows.Scan)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan stats row", err)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating stats rows", err)
	}

	return results, nil
}

func (r *StatsRepo) querySummaries(ctx context.Context, query string, args []any, byTeam bool) ([]types.TimeSummary, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query time summaries", err)
	}
	defer rows.Close()

	var results []types.TimeSummary
	for rows.Next() {
		var (
			date  time.Time
			group string
			total float64
		)
		if err := rows.Scan(&date, &group, &total); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan summary row", err)
		}

		s := types.TimeSummary{
			Date:           types.NewDate(date),
			TotalTimeSaved: total,
		}
		if byTeam {
			s.Team = group
		} else {
			s.TemplateName = group
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating summary rows", err)
	}

	return results, nil
}

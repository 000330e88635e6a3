// Package stats is the read side of the savings table: grouped sums,
// percentage divisions, and date-bucketed summaries, shaped for the HTTP
// API. Hours are rounded to two decimals here, at read time, so stored
// values keep full precision.
package stats

import (
	"context"
	"log/slog"

	"timesaver/internal/types"
)

// Aggregator is the query layer the service reads through.
type Aggregator interface {
	SumByTeamForTask(ctx context.Context, templateTaskID string, dr types.DateRange) ([]types.TimeSavedStat, error)
	SumByTemplateForTeam(ctx context.Context, team string, dr types.DateRange) ([]types.TimeSavedStat, error)
	SumByTeamForTemplate(ctx context.Context, templateName string, dr types.DateRange) ([]types.TimeSavedStat, error)
	SumAllGrouped(ctx context.Context, dr types.DateRange) ([]types.TimeSavedStat, error)
	TeamTotals(ctx context.Context, dr types.DateRange) ([]types.TimeSavedStat, error)
	DailyByTeam(ctx context.Context, dr types.DateRange) ([]types.TimeSummary, error)
	DailyByTemplate(ctx context.Context, dr types.DateRange) ([]types.TimeSummary, error)
	CumulativeByTeam(ctx context.Context, dr types.DateRange) ([]types.TimeSummary, error)
	CumulativeByTemplate(ctx context.Context, dr types.DateRange) ([]types.TimeSummary, error)
	DistinctTaskCount(ctx context.Context, dr types.DateRange) (int64, error)
	TimeSavedSum(ctx context.Context, dr types.DateRange) (float64, error)
}

// Lookup is the non-aggregating slice of the savings repository the service
// uses for name resolution and distinct listings.
type Lookup interface {
	GetTemplateNameByTaskID(ctx context.Context, templateTaskID string) (string, error)
	GetDistinctColumn(ctx context.Context, column string) ([]string, error)
}

// Response bodies. Field names match what dashboard clients consume.

type TaskStats struct {
	TemplateTaskID string                `json:"templateTaskId"`
	TemplateName   string                `json:"templateName"`
	Stats          []types.TimeSavedStat `json:"stats"`
}

type TeamStats struct {
	Team  string                `json:"team"`
	Stats []types.TimeSavedStat `json:"stats"`
}

type TemplateStats struct {
	TemplateName string                `json:"template_name"`
	Stats        []types.TimeSavedStat `json:"stats"`
}

type StatsList struct {
	Stats []types.TimeSavedStat `json:"stats"`
}

type DivisionList struct {
	Stats []types.GroupSavingsDivision `json:"stats"`
}

type SummaryList struct {
	Stats []types.TimeSummary `json:"stats"`
}

type GroupList struct {
	Groups []string `json:"groups"`
}

type TemplateList struct {
	Templates []string `json:"templates"`
}

type TemplateTaskList struct {
	TemplateTasks []string `json:"templateTasks"`
}

type TemplateTaskCount struct {
	TemplateTasks int64 `json:"templateTasks"`
}

type TimeSavedTotal struct {
	TimeSaved float64 `json:"timeSaved"`
}

// Service shapes aggregator output for the API.
type Service struct {
	agg    Aggregator
	lookup Lookup
	logger *slog.Logger
}

// NewService wires a read service over the query layer.
func NewService(agg Aggregator, lookup Lookup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{agg: agg, lookup: lookup, logger: logger}
}

// StatsByTask returns per-team sums for one task execution, with the
// template name it resolved to ("" when unknown).
func (s *Service) StatsByTask(ctx context.Context, templateTaskID string, dr types.DateRange) (*TaskStats, error) {
	templateName, err := s.lookup.GetTemplateNameByTaskID(ctx, templateTaskID)
	if err != nil {
		return nil, err
	}
	stats, err := s.agg.SumByTeamForTask(ctx, templateTaskID, dr)
	if err != nil {
		return nil, err
	}
	return &TaskStats{
		TemplateTaskID: templateTaskID,
		TemplateName:   templateName,
		Stats:          roundStats(stats),
	}, nil
}

// StatsByTeam returns per-template sums for one team.
func (s *Service) StatsByTeam(ctx context.Context, team string, dr types.DateRange) (*TeamStats, error) {
	stats, err := s.agg.SumByTemplateForTeam(ctx, team, dr)
	if err != nil {
		return nil, err
	}
	return &TeamStats{Team: team, Stats: roundStats(stats)}, nil
}

// StatsByTemplate returns per-team sums for one template.
func (s *Service) StatsByTemplate(ctx context.Context, templateName string, dr types.DateRange) (*TemplateStats, error) {
	stats, err := s.agg.SumByTeamForTemplate(ctx, templateName, dr)
	if err != nil {
		return nil, err
	}
	return &TemplateStats{TemplateName: templateName, Stats: roundStats(stats)}, nil
}

// AllStats returns sums for every (team, template) pair.
func (s *Service) AllStats(ctx context.Context, dr types.DateRange) (*StatsList, error) {
	stats, err := s.agg.SumAllGrouped(ctx, dr)
	if err != nil {
		return nil, err
	}
	return &StatsList{Stats: roundStats(stats)}, nil
}

// GroupDivision returns each team's percentage share of the grand total.
// With nothing stored (total zero) it returns an empty list rather than
// dividing by zero.
func (s *Service) GroupDivision(ctx context.Context, dr types.DateRange) (*DivisionList, error) {
	totals, err := s.agg.TeamTotals(ctx, dr)
	if err != nil {
		return nil, err
	}

	var grand float64
	for _, t := range totals {
		grand += t.TimeSaved
	}

	divisions := make([]types.GroupSavingsDivision, 0, len(totals))
	if grand == 0 {
		return &DivisionList{Stats: divisions}, nil
	}

	for _, t := range totals {
		divisions = append(divisions, types.GroupSavingsDivision{
			Team:       t.Team,
			Percentage: types.Round2(t.TimeSaved / grand * 100),
		})
	}
	return &DivisionList{Stats: divisions}, nil
}

// DailySummaries returns per-day sums grouped by team or template.
func (s *Service) DailySummaries(ctx context.Context, byTeam bool, dr types.DateRange) (*SummaryList, error) {
	var (
		summaries []types.TimeSummary
		err       error
	)
	if byTeam {
		summaries, err = s.agg.DailyByTeam(ctx, dr)
	} else {
		summaries, err = s.agg.DailyByTemplate(ctx, dr)
	}
	if err != nil {
		return nil, err
	}
	return &SummaryList{Stats: roundSummaries(summaries)}, nil
}

// CumulativeSummaries returns running per-day totals grouped by team or
// template.
func (s *Service) CumulativeSummaries(ctx context.Context, byTeam bool, dr types.DateRange) (*SummaryList, error) {
	var (
		summaries []types.TimeSummary
		err       error
	)
	if byTeam {
		summaries, err = s.agg.CumulativeByTeam(ctx, dr)
	} else {
		summaries, err = s.agg.CumulativeByTemplate(ctx, dr)
	}
	if err != nil {
		return nil, err
	}
	return &SummaryList{Stats: roundSummaries(summaries)}, nil
}

// Groups lists every team present in the table.
func (s *Service) Groups(ctx context.Context) (*GroupList, error) {
	values, err := s.lookup.GetDistinctColumn(ctx, "team")
	if err != nil {
		return nil, err
	}
	return &GroupList{Groups: emptyIfNil(values)}, nil
}

// TemplateNames lists every template present in the table.
func (s *Service) TemplateNames(ctx context.Context) (*TemplateList, error) {
	values, err := s.lookup.GetDistinctColumn(ctx, "template_name")
	if err != nil {
		return nil, err
	}
	return &TemplateList{Templates: emptyIfNil(values)}, nil
}

// TemplateTasks lists every task execution id present in the table.
func (s *Service) TemplateTasks(ctx context.Context) (*TemplateTaskList, error) {
	values, err := s.lookup.GetDistinctColumn(ctx, "template_task_id")
	if err != nil {
		return nil, err
	}
	return &TemplateTaskList{TemplateTasks: emptyIfNil(values)}, nil
}

// TemplateTaskCount counts distinct task executions.
func (s *Service) TemplateTaskCount(ctx context.Context, dr types.DateRange) (*TemplateTaskCount, error) {
	count, err := s.agg.DistinctTaskCount(ctx, dr)
	if err != nil {
		return nil, err
	}
	return &TemplateTaskCount{TemplateTasks: count}, nil
}

// TimeSavedSum returns the total hours saved divided by divider. Callers
// validate the divider at the API boundary; a non-positive value here is
// still an error.
func (s *Service) TimeSavedSum(ctx context.Context, divider float64, dr types.DateRange) (*TimeSavedTotal, error) {
	if divider <= 0 {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidDivider,
			"divider must be a positive number",
			nil,
		)
	}

	sum, err := s.agg.TimeSavedSum(ctx, dr)
	if err != nil {
		return nil, err
	}
	return &TimeSavedTotal{TimeSaved: types.Round2(sum / divider)}, nil
}

func roundStats(stats []types.TimeSavedStat) []types.TimeSavedStat {
	out := make([]types.TimeSavedStat, 0, len(stats))
	for _, s := range stats {
		s.TimeSaved = types.Round2(s.TimeSaved)
		out = append(out, s)
	}
	return out
}

func roundSummaries(summaries []types.TimeSummary) []types.TimeSummary {
	out := make([]types.TimeSummary, 0, len(summaries))
	for _, s := range summaries {
		s.TotalTimeSaved = types.Round2(s.TotalTimeSaved)
		out = append(out, s)
	}
	return out
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

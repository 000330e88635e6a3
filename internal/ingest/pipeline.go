package ingest

import (
	"context"
	"log/slog"

	"timesaver/internal/source"
	"timesaver/internal/types"
)

// Refresh run outcomes, surfaced verbatim in the trigger response.
const (
	StatusSuccess = "SUCCESS"
	StatusFail    = "FAIL"
)

// SavingsWriter is the slice of the savings repository the pipeline writes
// through.
type SavingsWriter interface {
	Truncate(ctx context.Context) error
	Insert(ctx context.Context, rec *types.TimeSavingRecord) error
}

// ExclusionLister supplies the task ids the pipeline must skip.
type ExclusionLister interface {
	TaskIDsToExclude(ctx context.Context) (map[string]struct{}, error)
}

// RefreshResult summarizes one pipeline run.
type RefreshResult struct {
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
	TasksFetched   int    `json:"tasksFetched"`
	TasksProcessed int    `json:"tasksProcessed"`
	TasksExcluded  int    `json:"tasksExcluded"`
	RowsInserted   int    `json:"rowsInserted"`
}

// RefreshPipeline rebuilds the savings table from the task service. The
// table is a derived cache with no upstream change feed, so every run is a
// destructive full refresh: fetch, truncate, reinsert. The table is only
// truncated once the fetch has succeeded, so an unreachable task service
// leaves existing data untouched.
type RefreshPipeline struct {
	fetcher    source.TaskFetcher
	savings    SavingsWriter
	exclusions ExclusionLister
	parser     *ClassificationParser
	normalizer *RecordNormalizer
	logger     *slog.Logger
}

// NewRefreshPipeline wires a pipeline from its collaborators.
func NewRefreshPipeline(
	fetcher source.TaskFetcher,
	savings SavingsWriter,
	exclusions ExclusionLister,
	parser *ClassificationParser,
	normalizer *RecordNormalizer,
	logger *slog.Logger,
) *RefreshPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshPipeline{
		fetcher:    fetcher,
		savings:    savings,
		exclusions: exclusions,
		parser:     parser,
		normalizer: normalizer,
		logger:     logger,
	}
}

// Run executes one full refresh. It never panics or propagates an error to
// the caller; scheduled runs must not crash the host process, so failures
// are folded into the returned result.
//
// Classification and timestamp problems are per-task: they are logged and
// the offending entries dropped while the run continues. A store failure
// aborts the run with a FAIL status.
func (p *RefreshPipeline) Run(ctx context.Context) RefreshResult {
	p.logger.Info("starting savings refresh")

	tasks, err := p.fetcher.FetchTasks(ctx)
	if err != nil {
		p.logger.Error("task fetch failed; savings table left untouched", "error", err)
		return RefreshResult{Status: StatusFail, Message: err.Error()}
	}

	excluded, err := p.exclusions.TaskIDsToExclude(ctx)
	if err != nil {
		p.logger.Error("failed to load excluded task ids; savings table left untouched", "error", err)
		return RefreshResult{Status: StatusFail, Message: err.Error()}
	}

	// The fetch succeeded. An empty upstream genuinely means no savings, so
	// the table is cleared even when there is nothing to insert.
	if err := p.savings.Truncate(ctx); err != nil {
		p.logger.Error("failed to truncate savings table", "error", err)
		return RefreshResult{Status: StatusFail, Message: err.Error()}
	}

	result := RefreshResult{Status: StatusSuccess, TasksFetched: len(tasks)}

	for _, task := range tasks {
		if task.Status != types.TaskStatusCompleted {
			continue
		}
		if _, skip := excluded[task.ID]; skip {
			result.TasksExcluded++
			continue
		}

		entries, parseErr := p.parser.Parse(task.ID, task.Spec.TemplateInfo.Entity.Metadata.Substitute)
		if parseErr != nil {
			// Already logged by the parser; triples produced before the
			// conflict are still inserted.
			result.Message = parseErr.Error()
		}

		records := p.normalizer.Normalize(task, entries)
		for i := range records {
			if err := p.savings.Insert(ctx, &records[i]); err != nil {
				p.logger.Error("failed to insert savings row; aborting run",
					"task_id", task.ID,
					"error", err,
				)
				result.Status = StatusFail
				result.Message = err.Error()
				return result
			}
			result.RowsInserted++
		}

		result.TasksProcessed++
	}

	p.logger.Info("savings refresh finished",
		"tasks_fetched", result.TasksFetched,
		"tasks_processed", result.TasksProcessed,
		"tasks_excluded", result.TasksExcluded,
		"rows_inserted", result.RowsInserted,
	)

	return result
}

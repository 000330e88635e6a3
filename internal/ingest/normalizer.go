package ingest

import (
	"log/slog"
	"time"

	"timesaver/internal/types"
)

// createdAtLayouts are the timestamp formats the task service has been
// observed to emit. Tried in order.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// RecordNormalizer converts a raw task record plus its parsed classification
// triples into storable rows.
type RecordNormalizer struct {
	dropInvalidTimestamp bool
	logger               *slog.Logger
}

// NewRecordNormalizer creates a normalizer. When dropInvalidTimestamp is
// set, rows whose source task carries an unparsable creation time are
// dropped instead of stored with a NULL timestamp.
func NewRecordNormalizer(dropInvalidTimestamp bool, logger *slog.Logger) *RecordNormalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordNormalizer{dropInvalidTimestamp: dropInvalidTimestamp, logger: logger}
}

// Normalize builds one row per classification triple. The task's creation
// time, creator, template reference, and status are copied onto every row.
func (n *RecordNormalizer) Normalize(task types.TaskRecord, entries []types.ClassificationEntry) []types.TimeSavingRecord {
	if len(entries) == 0 {
		return nil
	}

	createdAt, err := parseCreatedAt(task.CreatedAt)
	if err != nil {
		n.logger.Error("task creation time could not be parsed",
			"task_id", task.ID,
			"created_at", task.CreatedAt,
			"dropped", n.dropInvalidTimestamp,
		)
		if n.dropInvalidTimestamp {
			return nil
		}
		createdAt = time.Time{}
	}

	records := make([]types.TimeSavingRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, types.TimeSavingRecord{
			Team:               entry.Team,
			Role:               entry.Role,
			CreatedAt:          createdAt,
			CreatedBy:          task.CreatedBy,
			TimeSaved:          entry.TimeSaved,
			TemplateName:       task.Spec.TemplateInfo.EntityRef,
			TemplateTaskID:     task.ID,
			TemplateTaskStatus: task.Status,
		})
	}

	return records
}

func parseCreatedAt(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range createdAtLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, types.NewAppError(types.ErrCodeIngestTimestamp, "unparsable task creation time", lastErr)
}

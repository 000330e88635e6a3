package ingest

import (
	"context"
	"encoding/json"
	"log/slog"

	"timesaver/internal/db"
	"timesaver/internal/types"
)

// TaskSpecStore is the slice of the task repository the reconciler patches
// through.
type TaskSpecStore interface {
	ListSpecs(ctx context.Context) ([]db.TaskSpecRow, error)
	UpdateSpec(ctx context.Context, id string, spec string) (int64, error)
}

// MigrationReconciler retrofits a classification table onto task executions
// recorded before templates carried classification metadata. Each entry of
// the table names a template by entity reference; every stored task spawned
// from that template gets the entry (minus the reference itself) written
// into its embedded metadata, where the next refresh run will pick it up.
type MigrationReconciler struct {
	tasks  TaskSpecStore
	logger *slog.Logger
}

// NewMigrationReconciler wires a reconciler over the task spec store.
func NewMigrationReconciler(tasks TaskSpecStore, logger *slog.Logger) *MigrationReconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MigrationReconciler{tasks: tasks, logger: logger}
}

// Apply parses the classification JSON (an array of objects, each carrying
// an entityRef plus team/role data) and patches every stored task spec whose
// template matches an entry. The report lists patched task ids under
// updated and unmatched task ids under missing. An empty or unparsable
// classification aborts before anything is touched.
func (m *MigrationReconciler) Apply(ctx context.Context, classificationJSON string) (*types.MigrationReport, error) {
	if classificationJSON == "" {
		return nil, types.NewAppError(
			types.ErrCodeMigrationConfig,
			"no classification provided; supply a request body or configure BACKWARD_CLASSIFICATION",
			nil,
		)
	}

	var classification []map[string]any
	if err := json.Unmarshal([]byte(classificationJSON), &classification); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeMigrationConfig,
			"classification is not a valid JSON array of objects",
			err,
		)
	}
	if len(classification) == 0 {
		return nil, types.NewAppError(
			types.ErrCodeMigrationConfig,
			"classification is empty",
			nil,
		)
	}

	byEntityRef := make(map[string]map[string]any, len(classification))
	for _, entry := range classification {
		ref, ok := entry[types.EntityRefKey].(string)
		if !ok || ref == "" {
			return nil, types.NewAppError(
				types.ErrCodeMigrationConfig,
				"classification entry is missing its entityRef",
				nil,
			)
		}
		byEntityRef[ref] = entry
	}

	m.logger.Info("starting backward migration", "classification_entries", len(byEntityRef))

	specs, err := m.tasks.ListSpecs(ctx)
	if err != nil {
		return nil, err
	}

	report := &types.MigrationReport{}
	for _, row := range specs {
		entityRef, spec, parseErr := decodeSpec(row.Spec)
		if parseErr != nil {
			m.logger.Error("skipping task with unreadable spec", "task_id", row.ID, "error", parseErr)
			continue
		}

		entry, matched := byEntityRef[entityRef]
		if !matched {
			report.MissingTemplates.Total++
			report.MissingTemplates.List = append(report.MissingTemplates.List, row.ID)
			continue
		}

		substitute := make(map[string]any, len(entry))
		for k, v := range entry {
			if k == types.EntityRefKey {
				continue
			}
			substitute[k] = v
		}

		patched, err := patchSpec(spec, substitute)
		if err != nil {
			return nil, err
		}

		affected, err := m.tasks.UpdateSpec(ctx, row.ID, patched)
		if err != nil {
			return nil, err
		}
		if affected > 0 {
			report.UpdatedTemplates.Total++
			report.UpdatedTemplates.List = append(report.UpdatedTemplates.List, row.ID)
			m.logger.Debug("patched task spec", "task_id", row.ID, "entity_ref", entityRef)
		}
	}

	m.logger.Info("backward migration finished",
		"updated", report.UpdatedTemplates.Total,
		"missing", report.MissingTemplates.Total,
	)

	return report, nil
}

// decodeSpec extracts the template entity reference from a raw spec
// document, keeping the rest of the document intact for patching.
func decodeSpec(raw string) (string, map[string]any, error) {
	var spec map[string]any
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return "", nil, err
	}

	templateInfo, _ := spec["templateInfo"].(map[string]any)
	entityRef, _ := templateInfo["entityRef"].(string)
	return entityRef, spec, nil
}

// patchSpec writes the substitute payload at templateInfo.entity.metadata,
// creating the intermediate objects when absent, and re-serializes the spec.
func patchSpec(spec map[string]any, substitute map[string]any) (string, error) {
	templateInfo, ok := spec["templateInfo"].(map[string]any)
	if !ok {
		templateInfo = map[string]any{}
		spec["templateInfo"] = templateInfo
	}
	entity, ok := templateInfo["entity"].(map[string]any)
	if !ok {
		entity = map[string]any{}
		templateInfo["entity"] = entity
	}
	metadata, ok := entity["metadata"].(map[string]any)
	if !ok {
		metadata = map[string]any{}
		entity["metadata"] = metadata
	}
	metadata["substitute"] = substitute

	out, err := json.Marshal(spec)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize patched spec", err)
	}
	return string(out), nil
}

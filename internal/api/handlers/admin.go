package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"timesaver/internal/core"
	"timesaver/internal/ingest"
	"timesaver/internal/types"
)

// RefreshTrigger starts a refresh run (or joins one already in flight).
type RefreshTrigger interface {
	Trigger(ctx context.Context) ingest.RefreshResult
}

// Migrator applies a backward-migration classification document.
type Migrator interface {
	Apply(ctx context.Context, classificationJSON string) (*types.MigrationReport, error)
}

// SampleSource generates sample classification documents.
type SampleSource interface {
	Generate(ctx context.Context, custom map[string]any, useStoredTemplates bool) ([]map[string]any, error)
}

// AdminHandler exposes the operational endpoints: manual refresh, backward
// migration, and the sample-classification generator.
type AdminHandler struct {
	refresh               RefreshTrigger
	migrator              Migrator
	samples               SampleSource
	configuredMigrationJS string
	logger                *slog.Logger
}

// NewAdminHandler creates an AdminHandler. configuredMigration is the
// BACKWARD_CLASSIFICATION document used by GET /migrate; it may be empty.
func NewAdminHandler(
	refresh RefreshTrigger,
	migrator Migrator,
	samples SampleSource,
	configuredMigration string,
	logger *slog.Logger,
) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		refresh:               refresh,
		migrator:              migrator,
		samples:               samples,
		configuredMigrationJS: configuredMigration,
		logger:                logger,
	}
}

// RegisterRoutes mounts the operational endpoints onto the mux.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Get("/savings/refresh", h.HandleRefresh)
	r.Get("/migrate", h.HandleMigrateFromConfig)
	r.Post("/migrate", h.HandleMigrateFromBody)
	r.Get("/sample-classification", h.HandleSampleClassification)
	r.Post("/sample-classification", h.HandleSampleClassificationCustom)
}

// migrationStatus is the body returned by both migrate endpoints.
type migrationStatus struct {
	Status string                 `json:"status"`
	Report *types.MigrationReport `json:"migrationStatisticsReport,omitempty"`
}

// HandleRefresh handles GET /v1/savings/refresh. The run's outcome travels
// in the status field; like a scheduled run, a failed refresh is a 200, not
// a server error.
func (h *AdminHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	result := h.refresh.Trigger(r.Context())

	// A run can succeed overall while individual classifications were
	// skipped; surface that as a warning, not an error.
	var warning string
	if result.Status == ingest.StatusSuccess && result.Message != "" {
		warning = result.Message
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result, Warning: warning})
}

// HandleMigrateFromConfig handles GET /v1/migrate, driving the migration
// from the configured classification document.
func (h *AdminHandler) HandleMigrateFromConfig(w http.ResponseWriter, r *http.Request) {
	h.runMigration(w, r, h.configuredMigrationJS)
}

// HandleMigrateFromBody handles POST /v1/migrate with the classification
// document as the request body.
func (h *AdminHandler) HandleMigrateFromBody(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"failed to read request body",
			err,
		))
		return
	}
	h.runMigration(w, r, strings.TrimSpace(string(body)))
}

func (h *AdminHandler) runMigration(w http.ResponseWriter, r *http.Request, classification string) {
	report, err := h.migrator.Apply(r.Context(), classification)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: migrationStatus{Status: ingest.StatusSuccess, Report: report},
	})
}

// HandleSampleClassification handles GET /v1/sample-classification. With
// useStoredTasks=true the template references come from the savings table.
func (h *AdminHandler) HandleSampleClassification(w http.ResponseWriter, r *http.Request) {
	useStored := r.URL.Query().Get("useStoredTasks") == "true"

	entries, err := h.samples.Generate(r.Context(), nil, useStored)
	respond(w, r, entries, err)
}

// sampleClassificationRequest is the POST body for the sample generator.
type sampleClassificationRequest struct {
	CustomClassification map[string]any `json:"customClassification"`
	Options              struct {
		UseStoredTasks bool `json:"useStoredTasks"`
	} `json:"options"`
}

// HandleSampleClassificationCustom handles POST /v1/sample-classification.
func (h *AdminHandler) HandleSampleClassificationCustom(w http.ResponseWriter, r *http.Request) {
	var req sampleClassificationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	entries, err := h.samples.Generate(r.Context(), req.CustomClassification, req.Options.UseStoredTasks)
	respond(w, r, entries, err)
}

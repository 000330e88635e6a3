// Package handlers contains the HTTP handler implementations for the
// timesaver API. Handlers only parse query parameters and request bodies,
// delegate to services, and serialize results; all domain logic lives below.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"timesaver/internal/core"
	"timesaver/internal/stats"
	"timesaver/internal/types"
)

// StatsServiceInterface is the read-service contract the stats handler
// depends on. Defined locally to keep the handler decoupled from the
// service implementation.
type StatsServiceInterface interface {
	StatsByTask(ctx context.Context, templateTaskID string, dr types.DateRange) (*stats.TaskStats, error)
	StatsByTeam(ctx context.Context, team string, dr types.DateRange) (*stats.TeamStats, error)
	StatsByTemplate(ctx context.Context, templateName string, dr types.DateRange) (*stats.TemplateStats, error)
	AllStats(ctx context.Context, dr types.DateRange) (*stats.StatsList, error)
	GroupDivision(ctx context.Context, dr types.DateRange) (*stats.DivisionList, error)
	DailySummaries(ctx context.Context, byTeam bool, dr types.DateRange) (*stats.SummaryList, error)
	CumulativeSummaries(ctx context.Context, byTeam bool, dr types.DateRange) (*stats.SummaryList, error)
	Groups(ctx context.Context) (*stats.GroupList, error)
	TemplateNames(ctx context.Context) (*stats.TemplateList, error)
	TemplateTasks(ctx context.Context) (*stats.TemplateTaskList, error)
	TemplateTaskCount(ctx context.Context, dr types.DateRange) (*stats.TemplateTaskCount, error)
	TimeSavedSum(ctx context.Context, divider float64, dr types.DateRange) (*stats.TimeSavedTotal, error)
}

// StatsHandler maps HTTP requests to the read service.
type StatsHandler struct {
	service StatsServiceInterface
	logger  *slog.Logger
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(svc StatsServiceInterface, logger *slog.Logger) *StatsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsHandler{service: svc, logger: logger}
}

// RegisterRoutes mounts the read endpoints onto the mux.
func (h *StatsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/stats", h.HandleGetStats)
	r.Get("/stats/group", h.HandleGroupDivision)
	r.Get("/summaries/daily/{groupBy}", h.HandleDailySummaries)
	r.Get("/summaries/total/{groupBy}", h.HandleCumulativeSummaries)
	r.Get("/groups", h.HandleGroups)
	r.Get("/templates", h.HandleTemplates)
	r.Get("/template-tasks", h.HandleTemplateTasks)
	r.Get("/template-count", h.HandleTemplateCount)
	r.Get("/time-saved-sum", h.HandleTimeSavedSum)
}

// HandleGetStats handles GET /v1/stats. With no filter it returns sums for
// every (team, template) pair; templateTaskId, team, and templateName narrow
// it down, checked in that order.
func (h *StatsHandler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	dr, err := parseDateRange(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	q := r.URL.Query()
	switch {
	case q.Get("templateTaskId") != "":
		out, err := h.service.StatsByTask(r.Context(), q.Get("templateTaskId"), dr)
		respond(w, r, out, err)
	case q.Get("team") != "":
		out, err := h.service.StatsByTeam(r.Context(), q.Get("team"), dr)
		respond(w, r, out, err)
	case q.Get("templateName") != "":
		out, err := h.service.StatsByTemplate(r.Context(), q.Get("templateName"), dr)
		respond(w, r, out, err)
	default:
		out, err := h.service.AllStats(r.Context(), dr)
		respond(w, r, out, err)
	}
}

// HandleGroupDivision handles GET /v1/stats/group.
func (h *StatsHandler) HandleGroupDivision(w http.ResponseWriter, r *http.Request) {
	dr, err := parseDateRange(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	out, err := h.service.GroupDivision(r.Context(), dr)
	respond(w, r, out, err)
}

// HandleDailySummaries handles GET /v1/summaries/daily/{groupBy} where
// groupBy is "team" or "template".
func (h *StatsHandler) HandleDailySummaries(w http.ResponseWriter, r *http.Request) {
	byTeam, err := parseGroupBy(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	dr, err := parseDateRange(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	out, err := h.service.DailySummaries(r.Context(), byTeam, dr)
	respond(w, r, out, err)
}

// HandleCumulativeSummaries handles GET /v1/summaries/total/{groupBy}.
func (h *StatsHandler) HandleCumulativeSummaries(w http.ResponseWriter, r *http.Request) {
	byTeam, err := parseGroupBy(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	dr, err := parseDateRange(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	out, err := h.service.CumulativeSummaries(r.Context(), byTeam, dr)
	respond(w, r, out, err)
}

// HandleGroups handles GET /v1/groups.
func (h *StatsHandler) HandleGroups(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Groups(r.Context())
	respond(w, r, out, err)
}

// HandleTemplates handles GET /v1/templates.
func (h *StatsHandler) HandleTemplates(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.TemplateNames(r.Context())
	respond(w, r, out, err)
}

// HandleTemplateTasks handles GET /v1/template-tasks.
func (h *StatsHandler) HandleTemplateTasks(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.TemplateTasks(r.Context())
	respond(w, r, out, err)
}

// HandleTemplateCount handles GET /v1/template-count.
func (h *StatsHandler) HandleTemplateCount(w http.ResponseWriter, r *http.Request) {
	dr, err := parseDateRange(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	out, err := h.service.TemplateTaskCount(r.Context(), dr)
	respond(w, r, out, err)
}

// HandleTimeSavedSum handles GET /v1/time-saved-sum. The optional divider
// defaults to 1 and must be positive.
func (h *StatsHandler) HandleTimeSavedSum(w http.ResponseWriter, r *http.Request) {
	dr, err := parseDateRange(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	divider := 1.0
	if raw := r.URL.Query().Get("divider"); raw != "" {
		divider, err = strconv.ParseFloat(raw, 64)
		if err != nil || divider <= 0 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidDivider,
				"divider must be a positive number",
				nil,
			))
			return
		}
	}

	out, err := h.service.TimeSavedSum(r.Context(), divider, dr)
	respond(w, r, out, err)
}

// respond writes the standard envelope for a service call.
func respond(w http.ResponseWriter, r *http.Request, out any, err error) {
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: out})
}

func parseGroupBy(r *http.Request) (bool, error) {
	switch chi.URLParam(r, "groupBy") {
	case "team":
		return true, nil
	case "template":
		return false, nil
	default:
		return false, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"summaries are grouped by \"team\" or \"template\"",
			nil,
		)
	}
}

// dateOnly is the short form accepted by the start/end filters.
const dateOnly = "2006-01-02"

// parseDateRange reads optional start/end query parameters. Both accept
// RFC 3339 timestamps or plain dates; a plain end date is inclusive of the
// whole day.
func parseDateRange(r *http.Request) (types.DateRange, error) {
	q := r.URL.Query()
	var dr types.DateRange

	if raw := q.Get("start"); raw != "" {
		t, _, err := parseBound(raw)
		if err != nil {
			return dr, err
		}
		dr.Start = &t
	}
	if raw := q.Get("end"); raw != "" {
		t, isDateOnly, err := parseBound(raw)
		if err != nil {
			return dr, err
		}
		if isDateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		dr.End = &t
	}

	return dr, nil
}

func parseBound(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(dateOnly, raw); err == nil {
		return t.UTC(), true, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	return time.Time{}, false, types.NewAppError(
		types.ErrCodeValidationInvalidDate,
		"start and end must be RFC 3339 timestamps or YYYY-MM-DD dates",
		nil,
	)
}

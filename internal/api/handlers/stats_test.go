package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timesaver/internal/stats"
	"timesaver/internal/types"
)

// --- Mock Service ---

type mockStatsService struct {
	taskResult     *stats.TaskStats
	teamResult     *stats.TeamStats
	templateResult *stats.TemplateStats
	allResult      *stats.StatsList
	divisionResult *stats.DivisionList
	summaryResult  *stats.SummaryList
	groupsResult   *stats.GroupList
	namesResult    *stats.TemplateList
	tasksResult    *stats.TemplateTaskList
	countResult    *stats.TemplateTaskCount
	sumResult      *stats.TimeSavedTotal
	err            error

	lastRange   types.DateRange
	lastByTeam  bool
	lastDivider float64
}

func (m *mockStatsService) StatsByTask(_ context.Context, id string, dr types.DateRange) (*stats.TaskStats, error) {
	m.lastRange = dr
	return m.taskResult, m.err
}

func (m *mockStatsService) StatsByTeam(_ context.Context, team string, dr types.DateRange) (*stats.TeamStats, error) {
	m.lastRange = dr
	return m.teamResult, m.err
}

func (m *mockStatsService) StatsByTemplate(_ context.Context, tpl string, dr types.DateRange) (*stats.TemplateStats, error) {
	m.lastRange = dr
	return m.templateResult, m.err
}

func (m *mockStatsService) AllStats(_ context.Context, dr types.DateRange) (*stats.StatsList, error) {
	m.lastRange = dr
	return m.allResult, m.err
}

func (m *mockStatsService) GroupDivision(_ context.Context, dr types.DateRange) (*stats.DivisionList, error) {
	m.lastRange = dr
	return m.divisionResult, m.err
}

func (m *mockStatsService) DailySummaries(_ context.Context, byTeam bool, dr types.DateRange) (*stats.SummaryList, error) {
	m.lastByTeam = byTeam
	m.lastRange = dr
	return m.summaryResult, m.err
}

func (m *mockStatsService) CumulativeSummaries(_ context.Context, byTeam bool, dr types.DateRange) (*stats.SummaryList, error) {
	m.lastByTeam = byTeam
	m.lastRange = dr
	return m.summaryResult, m.err
}

func (m *mockStatsService) Groups(_ context.Context) (*stats.GroupList, error) {
	return m.groupsResult, m.err
}

func (m *mockStatsService) TemplateNames(_ context.Context) (*stats.TemplateList, error) {
	return m.namesResult, m.err
}

func (m *mockStatsService) TemplateTasks(_ context.Context) (*stats.TemplateTaskList, error) {
	return m.tasksResult, m.err
}

func (m *mockStatsService) TemplateTaskCount(_ context.Context, dr types.DateRange) (*stats.TemplateTaskCount, error) {
	m.lastRange = dr
	return m.countResult, m.err
}

func (m *mockStatsService) TimeSavedSum(_ context.Context, divider float64, dr types.DateRange) (*stats.TimeSavedTotal, error) {
	m.lastDivider = divider
	m.lastRange = dr
	return m.sumResult, m.err
}

// --- Helpers ---

func makeStatsRouter(svc StatsServiceInterface) http.Handler {
	h := NewStatsHandler(svc, nil)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func doGet(t *testing.T, handler http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

// --- Tests ---

func TestHandleGetStats_All(t *testing.T) {
	svc := &mockStatsService{
		allResult: &stats.StatsList{Stats: []types.TimeSavedStat{
			{Team: "engineering", TemplateName: "template:default/x", TimeSaved: 8},
		}},
	}
	rec := doGet(t, makeStatsRouter(svc), "/stats")

	require.Equal(t, http.StatusOK, rec.Code)
	var out stats.StatsList
	decodeData(t, rec, &out)
	require.Len(t, out.Stats, 1)
	assert.Equal(t, "engineering", out.Stats[0].Team)
}

func TestHandleGetStats_ByTaskID(t *testing.T) {
	svc := &mockStatsService{
		taskResult: &stats.TaskStats{
			TemplateTaskID: "t1",
			TemplateName:   "template:default/x",
			Stats:          []types.TimeSavedStat{{Team: "engineering", TimeSaved: 8}},
		},
	}
	rec := doGet(t, makeStatsRouter(svc), "/stats?templateTaskId=t1")

	require.Equal(t, http.StatusOK, rec.Code)
	var out stats.TaskStats
	decodeData(t, rec, &out)
	assert.Equal(t, "t1", out.TemplateTaskID)
	assert.Equal(t, "template:default/x", out.TemplateName)
}

func TestHandleGetStats_DateRangeParsing(t *testing.T) {
	svc := &mockStatsService{allResult: &stats.StatsList{}}
	rec := doGet(t, makeStatsRouter(svc), "/stats?start=2026-01-01&end=2026-01-31")

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastRange.Start)
	require.NotNil(t, svc.lastRange.End)
	assert.Equal(t, 2026, svc.lastRange.Start.Year())
	// A plain end date covers the whole day.
	assert.Equal(t, 23, svc.lastRange.End.Hour())
}

func TestHandleGetStats_InvalidDate(t *testing.T) {
	svc := &mockStatsService{allResult: &stats.StatsList{}}
	rec := doGet(t, makeStatsRouter(svc), "/stats?start=last-tuesday")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), string(types.ErrCodeValidationInvalidDate))
}

func TestHandleDailySummaries_GroupBy(t *testing.T) {
	svc := &mockStatsService{summaryResult: &stats.SummaryList{}}
	router := makeStatsRouter(svc)

	rec := doGet(t, router, "/summaries/daily/team")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.lastByTeam)

	rec = doGet(t, router, "/summaries/daily/template")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, svc.lastByTeam)

	rec = doGet(t, router, "/summaries/daily/region")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTimeSavedSum_DefaultDivider(t *testing.T) {
	svc := &mockStatsService{sumResult: &stats.TimeSavedTotal{TimeSaved: 42}}
	rec := doGet(t, makeStatsRouter(svc), "/time-saved-sum")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, svc.lastDivider)
}

func TestHandleTimeSavedSum_RejectsNonPositiveDivider(t *testing.T) {
	svc := &mockStatsService{sumResult: &stats.TimeSavedTotal{}}
	router := makeStatsRouter(svc)

	for _, url := range []string{
		"/time-saved-sum?divider=0",
		"/time-saved-sum?divider=-1",
		"/time-saved-sum?divider=abc",
	} {
		rec := doGet(t, router, url)
		assert.Equal(t, http.StatusBadRequest, rec.Code, url)
		assert.Contains(t, rec.Body.String(), string(types.ErrCodeValidationInvalidDivider), url)
	}
}

func TestHandleGroups(t *testing.T) {
	svc := &mockStatsService{groupsResult: &stats.GroupList{Groups: []string{"engineering"}}}
	rec := doGet(t, makeStatsRouter(svc), "/groups")

	require.Equal(t, http.StatusOK, rec.Code)
	var out stats.GroupList
	decodeData(t, rec, &out)
	assert.Equal(t, []string{"engineering"}, out.Groups)
}

func TestHandleGetStats_ServiceErrorMapsToStatus(t *testing.T) {
	svc := &mockStatsService{
		err: types.NewAppError(types.ErrCodeInternalDB, "query failed", nil),
	}
	rec := doGet(t, makeStatsRouter(svc), "/stats")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), string(types.ErrCodeInternalDB))
}

package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"timesaver/internal/types"
)

// --- Collaborator mocks ---

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchTasks(ctx context.Context) ([]types.TaskRecord, error) {
	args := m.Called(ctx)
	if t := args.Get(0); t != nil {
		return t.([]types.TaskRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSavings struct {
	mock.Mock
	inserted []types.TimeSavingRecord
}

func (m *mockSavings) Truncate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockSavings) Insert(ctx context.Context, rec *types.TimeSavingRecord) error {
	args := m.Called(ctx, rec)
	if args.Error(0) == nil {
		m.inserted = append(m.inserted, *rec)
	}
	return args.Error(0)
}

type mockExclusions struct {
	mock.Mock
}

func (m *mockExclusions) TaskIDsToExclude(ctx context.Context) (map[string]struct{}, error) {
	args := m.Called(ctx)
	if e := args.Get(0); e != nil {
		return e.(map[string]struct{}), args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestPipeline(fetcher *mockFetcher, savings *mockSavings, exclusions *mockExclusions) *RefreshPipeline {
	return NewRefreshPipeline(
		fetcher,
		savings,
		exclusions,
		NewClassificationParser("Global", nil),
		NewRecordNormalizer(true, nil),
		nil,
	)
}

func completedTask(id, entityRef string, substitute map[string]any) types.TaskRecord {
	return types.TaskRecord{
		ID:        id,
		Status:    types.TaskStatusCompleted,
		CreatedAt: "2024-07-17T18:32:48",
		CreatedBy: "user:default/jan",
		Spec: types.TaskSpec{
			TemplateInfo: types.TemplateInfo{
				EntityRef: entityRef,
				Entity: types.TemplateEntity{
					Metadata: types.TemplateMetadata{Substitute: substitute},
				},
			},
		},
	}
}

// --- Tests ---

func TestPipeline_Run_RebuildsTable(t *testing.T) {
	fetcher := new(mockFetcher)
	savings := new(mockSavings)
	exclusions := new(mockExclusions)

	fetcher.On("FetchTasks", mock.Anything).Return([]types.TaskRecord{
		completedTask("t1", "template:default/x", map[string]any{
			"engineering": map[string]any{"devops": 8.0},
		}),
	}, nil)
	exclusions.On("TaskIDsToExclude", mock.Anything).Return(map[string]struct{}{}, nil)
	savings.On("Truncate", mock.Anything).Return(nil)
	savings.On("Insert", mock.Anything, mock.Anything).Return(nil)

	result := newTestPipeline(fetcher, savings, exclusions).Run(context.Background())

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 1, result.TasksFetched)
	assert.Equal(t, 1, result.TasksProcessed)
	assert.Equal(t, 1, result.RowsInserted)

	require.Len(t, savings.inserted, 1)
	row := savings.inserted[0]
	assert.Equal(t, "engineering", row.Team)
	assert.Equal(t, "devops", row.Role)
	assert.Equal(t, 8.0, row.TimeSaved)
	assert.Equal(t, "template:default/x", row.TemplateName)
	assert.Equal(t, "t1", row.TemplateTaskID)

	savings.AssertExpectations(t)
}

func TestPipeline_Run_TwiceWithUnchangedUpstreamIsIdempotent(t *testing.T) {
	fetcher := new(mockFetcher)
	savings := new(mockSavings)
	exclusions := new(mockExclusions)

	fetcher.On("FetchTasks", mock.Anything).Return([]types.TaskRecord{
		completedTask("t1", "template:default/x", map[string]any{
			"engineering": map[string]any{"devops": 8.0, "security": 3.0},
		}),
		completedTask("t2", "template:default/y", map[string]any{
			"frontend": 5.0,
		}),
	}, nil)
	exclusions.On("TaskIDsToExclude", mock.Anything).Return(map[string]struct{}{}, nil)
	// Each run starts with a destructive truncate, so a rerun rebuilds from
	// scratch rather than appending.
	savings.On("Truncate", mock.Anything).Return(nil).Run(func(mock.Arguments) {
		savings.inserted = nil
	})
	savings.On("Insert", mock.Anything, mock.Anything).Return(nil)

	pipeline := newTestPipeline(fetcher, savings, exclusions)

	first := pipeline.Run(context.Background())
	require.Equal(t, StatusSuccess, first.Status)
	firstRows := append([]types.TimeSavingRecord(nil), savings.inserted...)

	second := pipeline.Run(context.Background())
	require.Equal(t, StatusSuccess, second.Status)

	assert.Equal(t, first.RowsInserted, second.RowsInserted)
	assert.Equal(t, firstRows, savings.inserted)
	savings.AssertNumberOfCalls(t, "Truncate", 2)
}

func TestPipeline_Run_FetchFailureLeavesTableUntouched(t *testing.T) {
	fetcher := new(mockFetcher)
	savings := new(mockSavings)
	exclusions := new(mockExclusions)

	fetcher.On("FetchTasks", mock.Anything).
		Return(nil, types.NewAppError(types.ErrCodeUpstreamTaskSource, "unreachable", nil))

	result := newTestPipeline(fetcher, savings, exclusions).Run(context.Background())

	assert.Equal(t, StatusFail, result.Status)
	savings.AssertNotCalled(t, "Truncate", mock.Anything)
	savings.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestPipeline_Run_EmptyUpstreamStillTruncates(t *testing.T) {
	fetcher := new(mockFetcher)
	savings := new(mockSavings)
	exclusions := new(mockExclusions)

	fetcher.On("FetchTasks", mock.Anything).Return([]types.TaskRecord{}, nil)
	exclusions.On("TaskIDsToExclude", mock.Anything).Return(map[string]struct{}{}, nil)
	savings.On("Truncate", mock.Anything).Return(nil)

	result := newTestPipeline(fetcher, savings, exclusions).Run(context.Background())

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Zero(t, result.RowsInserted)
	savings.AssertCalled(t, "Truncate", mock.Anything)
}

func TestPipeline_Run_FiltersNonCompletedTasks(t *testing.T) {
	fetcher := new(mockFetcher)
	savings := new(mockSavings)
	exclusions := new(mockExclusions)

	processing := completedTask("t2", "template:default/x", map[string]any{"frontend": 5.0})
	processing.Status = "processing"

	fetcher.On("FetchTasks", mock.Anything).Return([]types.TaskRecord{
		completedTask("t1", "template:default/x", map[string]any{"frontend": 5.0}),
		processing,
	}, nil)
	exclusions.On("TaskIDsToExclude", mock.Anything).Return(map[string]struct{}{}, nil)
	savings.On("Truncate", mock.Anything).Return(nil)
	savings.On("Insert", mock.Anything, mock.Anything).Return(nil)

	result := newTestPipeline(fetcher, savings, exclusions).Run(context.Background())

	assert.Equal(t, 1, result.TasksProcessed)
	require.Len(t, savings.inserted, 1)
	assert.Equal(t, "t1", savings.inserted[0].TemplateTaskID)
}

func TestPipeline_Run_SkipsExcludedTasks(t *testing.T) {
	fetcher := new(mockFetcher)
	savings := new(mockSavings)
	exclusions := new(mockExclusions)

	fetcher.On("FetchTasks", mock.Anything).Return([]types.TaskRecord{
		completedTask("t1", "template:default/x", map[string]any{"frontend": 5.0}),
		completedTask("t2", "template:default/x", map[string]any{"frontend": 5.0}),
	}, nil)
	exclusions.On("TaskIDsToExclude", mock.Anything).
		Return(map[string]struct{}{"t1": {}}, nil)
	savings.On("Truncate", mock.Anything).Return(nil)
	savings.On("Insert", mock.Anything, mock.Anything).Return(nil)

	result := newTestPipeline(fetcher, savings, exclusions).Run(context.Background())

	assert.Equal(t, 1, result.TasksExcluded)
	assert.Equal(t, 1, result.TasksProcessed)
	require.Len(t, savings.inserted, 1)
	assert.Equal(t, "t2", savings.inserted[0].TemplateTaskID)
}

func TestPipeline_Run_ExclusionLookupFailureLeavesTableUntouched(t *testing.T) {
	fetcher := new(mockFetcher)
	savings := new(mockSavings)
	exclusions := new(mockExclusions)

	fetcher.On("FetchTasks", mock.Anything).Return([]types.TaskRecord{}, nil)
	exclusions.On("TaskIDsToExclude", mock.Anything).
		Return(nil, types.NewAppError(types.ErrCodeInternalDB, "boom", nil))

	result := newTestPipeline(fetcher, savings, exclusions).Run(context.Background())

	assert.Equal(t, StatusFail, result.Status)
	savings.AssertNotCalled(t, "Truncate", mock.Anything)
}

func TestPipeline_Run_MixedNestingKeepsEarlierTriples(t *testing.T) {
	fetcher := new(mockFetcher)
	savings := new(mockSavings)
	exclusions := new(mockExclusions)

	fetcher.On("FetchTasks", mock.Anything).Return([]types.TaskRecord{
		completedTask("t1", "template:default/x", map[string]any{
			"engineering": map[string]any{"devops": 8.0},
			"frontend":    5.0,
		}),
	}, nil)
	exclusions.On("TaskIDsToExclude", mock.Anything).Return(map[string]struct{}{}, nil)
	savings.On("Truncate", mock.Anything).Return(nil)
	savings.On("Insert", mock.Anything, mock.Anything).Return(nil)

	result := newTestPipeline(fetcher, savings, exclusions).Run(context.Background())

	// The run as a whole still succeeds; only the conflicting remainder of
	// the task is dropped.
	assert.Equal(t, StatusSuccess, result.Status)
	require.Len(t, savings.inserted, 1)
	assert.Equal(t, "engineering", savings.inserted[0].Team)
	assert.NotEmpty(t, result.Message)
}

func TestPipeline_Run_InsertFailureAbortsRun(t *testing.T) {
	fetcher := new(mockFetcher)
	savings := new(mockSavings)
	exclusions := new(mockExclusions)

	fetcher.On("FetchTasks", mock.Anything).Return([]types.TaskRecord{
		completedTask("t1", "template:default/x", map[string]any{"frontend": 5.0}),
	}, nil)
	exclusions.On("TaskIDsToExclude", mock.Anything).Return(map[string]struct{}{}, nil)
	savings.On("Truncate", mock.Anything).Return(nil)
	savings.On("Insert", mock.Anything, mock.Anything).
		Return(errors.New("connection reset"))

	result := newTestPipeline(fetcher, savings, exclusions).Run(context.Background())

	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "connection reset")
}

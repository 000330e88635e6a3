package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"timesaver/internal/db"
	"timesaver/internal/types"
)

type mockTaskStore struct {
	mock.Mock
}

func (m *mockTaskStore) ListSpecs(ctx context.Context) ([]db.TaskSpecRow, error) {
	args := m.Called(ctx)
	if s := args.Get(0); s != nil {
		return s.([]db.TaskSpecRow), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTaskStore) UpdateSpec(ctx context.Context, id string, spec string) (int64, error) {
	args := m.Called(ctx, id, spec)
	return args.Get(0).(int64), args.Error(1)
}

const sampleClassificationJSON = `[
	{"entityRef": "template:default/x", "engineering": {"devops": 8, "security": 3}}
]`

func TestMigration_Apply_PatchesMatchingTasks(t *testing.T) {
	store := new(mockTaskStore)
	m := NewMigrationReconciler(store, nil)

	store.On("ListSpecs", mock.Anything).Return([]db.TaskSpecRow{
		{ID: "t1", Spec: `{"templateInfo":{"entityRef":"template:default/x","entity":{"metadata":{}}}}`},
		{ID: "t2", Spec: `{"templateInfo":{"entityRef":"template:default/other"}}`},
	}, nil)

	var patched string
	store.On("UpdateSpec", mock.Anything, "t1", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { patched = args.Get(2).(string) }).
		Return(int64(1), nil)

	report, err := m.Apply(context.Background(), sampleClassificationJSON)
	require.NoError(t, err)

	assert.Equal(t, 1, report.UpdatedTemplates.Total)
	assert.Equal(t, []string{"t1"}, report.UpdatedTemplates.List)
	assert.Equal(t, 1, report.MissingTemplates.Total)
	assert.Equal(t, []string{"t2"}, report.MissingTemplates.List)

	// The patched spec carries the classification under metadata.substitute,
	// with the entityRef key stripped.
	var spec map[string]any
	require.NoError(t, json.Unmarshal([]byte(patched), &spec))
	substitute := spec["templateInfo"].(map[string]any)["entity"].(map[string]any)["metadata"].(map[string]any)["substitute"].(map[string]any)
	assert.NotContains(t, substitute, "entityRef")
	require.Contains(t, substitute, "engineering")

	store.AssertExpectations(t)
}

func TestMigration_Apply_EmptyClassificationRejected(t *testing.T) {
	m := NewMigrationReconciler(new(mockTaskStore), nil)

	for _, input := range []string{"", "[]", "not-json"} {
		_, err := m.Apply(context.Background(), input)
		require.Error(t, err, "input %q", input)

		var appErr *types.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, types.ErrCodeMigrationConfig, appErr.Code)
	}
}

func TestMigration_Apply_EntryWithoutEntityRefRejected(t *testing.T) {
	m := NewMigrationReconciler(new(mockTaskStore), nil)

	_, err := m.Apply(context.Background(), `[{"engineering": {"devops": 8}}]`)
	require.Error(t, err)
}

func TestMigration_Apply_ZeroRowsAffectedNotCountedAsUpdated(t *testing.T) {
	store := new(mockTaskStore)
	m := NewMigrationReconciler(store, nil)

	store.On("ListSpecs", mock.Anything).Return([]db.TaskSpecRow{
		{ID: "t1", Spec: `{"templateInfo":{"entityRef":"template:default/x"}}`},
	}, nil)
	store.On("UpdateSpec", mock.Anything, "t1", mock.AnythingOfType("string")).
		Return(int64(0), nil)

	report, err := m.Apply(context.Background(), sampleClassificationJSON)
	require.NoError(t, err)
	assert.Zero(t, report.UpdatedTemplates.Total)
}

func TestMigration_Apply_StoreErrorPropagates(t *testing.T) {
	store := new(mockTaskStore)
	m := NewMigrationReconciler(store, nil)

	store.On("ListSpecs", mock.Anything).
		Return(nil, types.NewAppError(types.ErrCodeInternalDB, "boom", nil))

	_, err := m.Apply(context.Background(), sampleClassificationJSON)
	require.Error(t, err)
}

func TestMigration_Apply_UnreadableSpecSkipped(t *testing.T) {
	store := new(mockTaskStore)
	m := NewMigrationReconciler(store, nil)

	store.On("ListSpecs", mock.Anything).Return([]db.TaskSpecRow{
		{ID: "t1", Spec: `{{{`},
	}, nil)

	report, err := m.Apply(context.Background(), sampleClassificationJSON)
	require.NoError(t, err)
	assert.Zero(t, report.UpdatedTemplates.Total)
	assert.Zero(t, report.MissingTemplates.Total)
}

// --- Sample generator ---

type mockDistinct struct {
	mock.Mock
}

func (m *mockDistinct) GetDistinctColumn(ctx context.Context, column string) ([]string, error) {
	args := m.Called(ctx, column)
	if v := args.Get(0); v != nil {
		return v.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestSampleGenerator_Defaults(t *testing.T) {
	g := NewSampleGenerator(new(mockDistinct), nil)

	entries, err := g.Generate(context.Background(), nil, false)
	require.NoError(t, err)
	require.Len(t, entries, len(DefaultSampleTemplateRefs))

	assert.Equal(t, DefaultSampleTemplateRefs[0], entries[0]["entityRef"])
	assert.Contains(t, entries[0], "engineering")
}

func TestSampleGenerator_EmptyCustomClassificationRejected(t *testing.T) {
	g := NewSampleGenerator(new(mockDistinct), nil)

	_, err := g.Generate(context.Background(), map[string]any{}, false)
	require.Error(t, err)
}

func TestSampleGenerator_StoredTemplates(t *testing.T) {
	distinct := new(mockDistinct)
	g := NewSampleGenerator(distinct, nil)

	distinct.On("GetDistinctColumn", mock.Anything, "template_name").
		Return([]string{"template:default/a"}, nil)

	entries, err := g.Generate(context.Background(), map[string]any{"ops": 2}, true)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "template:default/a", entries[0]["entityRef"])
	assert.Equal(t, 2, entries[0]["ops"])
}

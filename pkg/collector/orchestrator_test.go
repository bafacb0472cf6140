package collector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/querylens/querylens/pkg/config"
	"github.com/querylens/querylens/pkg/dremio"
	qlerrors "github.com/querylens/querylens/pkg/errors"
	"github.com/querylens/querylens/pkg/json"
	"github.com/querylens/querylens/pkg/models"
)

type fakeEngine struct {
	summaries   []dremio.JobSummary
	profiles    map[string]json.RawMessage
	reflections []dremio.Reflection
	entities    []json.RawMessage

	historyErr    error
	reflectionErr error
	datasetErr    error
	failProfiles  map[string]bool
}

func (f *fakeEngine) QueryHistory(ctx context.Context, limit, offset int) ([]dremio.JobSummary, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	if limit > len(f.summaries) {
		limit = len(f.summaries)
	}
	return f.summaries[:limit], nil
}

func (f *fakeEngine) QueryProfile(ctx context.Context, jobID string) (json.RawMessage, error) {
	if f.failProfiles[jobID] {
		return nil, qlerrors.New(qlerrors.ErrorTypeConnection, "profile fetch blew up")
	}
	raw, ok := f.profiles[jobID]
	if !ok {
		return nil, qlerrors.Newf(qlerrors.ErrorTypeNotFound, "no profile for %s", jobID)
	}
	return raw, nil
}

func (f *fakeEngine) QuerySQL(ctx context.Context, jobID string) (*dremio.JobSummary, error) {
	for i := range f.summaries {
		if f.summaries[i].ID == jobID {
			return &f.summaries[i], nil
		}
	}
	return nil, qlerrors.Newf(qlerrors.ErrorTypeNotFound, "no job %s", jobID)
}

func (f *fakeEngine) Reflections(ctx context.Context) ([]dremio.Reflection, error) {
	if f.reflectionErr != nil {
		return nil, f.reflectionErr
	}
	return f.reflections, nil
}

func (f *fakeEngine) SearchDatasets(ctx context.Context, limit int) ([]json.RawMessage, error) {
	if f.datasetErr != nil {
		return nil, f.datasetErr
	}
	return f.entities, nil
}

type fakeSink struct {
	queries     map[string]*models.QueryRecord
	profiles    map[string]*models.ProfileRecord
	reflections map[string]*models.ReflectionRecord
	datasets    map[string]*models.DatasetRecord

	queryStoreErr error
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		queries:     map[string]*models.QueryRecord{},
		profiles:    map[string]*models.ProfileRecord{},
		reflections: map[string]*models.ReflectionRecord{},
		datasets:    map[string]*models.DatasetRecord{},
	}
}

func (s *fakeSink) StoreQueries(ctx context.Context, recs []*models.QueryRecord) (int, int, error) {
	if s.queryStoreErr != nil {
		return 0, 0, s.queryStoreErr
	}
	inserted, skipped := 0, 0
	for _, rec := range recs {
		if _, ok := s.queries[rec.JobID]; ok {
			skipped++
			continue
		}
		s.queries[rec.JobID] = rec
		inserted++
	}
	return inserted, skipped, nil
}

func (s *fakeSink) HasProfile(ctx context.Context, jobID string) (bool, error) {
	_, ok := s.profiles[jobID]
	return ok, nil
}

func (s *fakeSink) StoreProfiles(ctx context.Context, recs []*models.ProfileRecord) (int, int, error) {
	inserted, skipped := 0, 0
	for _, rec := range recs {
		if _, ok := s.profiles[rec.JobID]; ok {
			skipped++
			continue
		}
		s.profiles[rec.JobID] = rec
		inserted++
	}
	return inserted, skipped, nil
}

func (s *fakeSink) StoreReflections(ctx context.Context, recs []*models.ReflectionRecord) (int, int, error) {
	inserted, updated := 0, 0
	for _, rec := range recs {
		if _, ok := s.reflections[rec.ReflectionID]; ok {
			updated++
		} else {
			inserted++
		}
		s.reflections[rec.ReflectionID] = rec
	}
	return inserted, updated, nil
}

func (s *fakeSink) StoreDatasets(ctx context.Context, recs []*models.DatasetRecord) (int, int, error) {
	inserted, updated := 0, 0
	for _, rec := range recs {
		if _, ok := s.datasets[rec.DatasetID]; ok {
			updated++
		} else {
			inserted++
		}
		s.datasets[rec.DatasetID] = rec
	}
	return inserted, updated, nil
}

func testEngine(jobs int) *fakeEngine {
	eng := &fakeEngine{
		profiles:     map[string]json.RawMessage{},
		failProfiles: map[string]bool{},
	}
	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	for i := 0; i < jobs; i++ {
		id := fmt.Sprintf("job-%d", i)
		eng.summaries = append(eng.summaries, dremio.JobSummary{
			ID:        id,
			User:      "alice",
			SQL:       fmt.Sprintf("SELECT %d", i),
			StartTime: dremio.FlexTime{Time: base.Add(time.Duration(i) * time.Minute), Valid: true},
			EndTime:   dremio.FlexTime{Time: base.Add(time.Duration(i)*time.Minute + time.Second), Valid: true},
			JobState:  dremio.JobStateCompleted,
		})
		eng.profiles[id] = json.RawMessage(`{"queryProfile": {"cpuTime": 100}}`)
	}
	eng.reflections = []dremio.Reflection{
		{ID: "refl-1", Name: "agg", Type: "AGGREGATION", DatasetID: "ds-1"},
		{ID: "refl-2", Name: "raw", Type: "RAW", DatasetID: "ds-2"},
	}
	eng.entities = []json.RawMessage{
		json.RawMessage(`{"id": "ds-1", "path": ["prod", "orders"], "type": "PHYSICAL_DATASET"}`),
		json.RawMessage(`{"id": "sp-1", "path": ["prod"], "type": "SPACE"}`),
	}
	return eng
}

func testConfig() config.CollectionConfig {
	return config.CollectionConfig{QueryLimit: 1000, ProfileLimit: 100, DatasetLimit: 100}
}

func TestRunPassCollectsAllStreams(t *testing.T) {
	eng := testEngine(10)
	sink := newFakeSink()
	o := New(eng, sink, testConfig(), zap.NewNop())

	stats, err := o.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, stats.Inserted[models.EntityQueries])
	assert.Equal(t, 10, stats.Inserted[models.EntityProfiles])
	assert.Equal(t, 2, stats.Inserted[models.EntityReflections])
	assert.Equal(t, 1, stats.Inserted[models.EntityDatasets])
	assert.Equal(t, 1, stats.Skipped[models.EntityDatasets], "containers are skipped")
	assert.NotEmpty(t, stats.PassID)
}

func TestRunPassIsIdempotent(t *testing.T) {
	eng := testEngine(5)
	sink := newFakeSink()
	o := New(eng, sink, testConfig(), zap.NewNop())

	_, err := o.RunPass(context.Background())
	require.NoError(t, err)

	stats, err := o.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Inserted[models.EntityQueries])
	assert.Equal(t, 5, stats.Skipped[models.EntityQueries])
	assert.Equal(t, 0, stats.Inserted[models.EntityProfiles])
	assert.Equal(t, 5, stats.Skipped[models.EntityProfiles])
	assert.Equal(t, 0, stats.Inserted[models.EntityReflections])
	assert.Equal(t, 2, stats.Updated[models.EntityReflections])
	assert.Equal(t, 1, stats.Updated[models.EntityDatasets])
	assert.Len(t, sink.queries, 5)
}

func TestRunPassProfileLimitBoundsFetch(t *testing.T) {
	eng := testEngine(10)
	sink := newFakeSink()
	cfg := testConfig()
	cfg.ProfileLimit = 3
	o := New(eng, sink, cfg, zap.NewNop())

	stats, err := o.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, stats.Inserted[models.EntityQueries])
	assert.Equal(t, 3, stats.Inserted[models.EntityProfiles])
}

func TestRunPassIsolatesFailedProfile(t *testing.T) {
	eng := testEngine(10)
	eng.failProfiles["job-5"] = true
	sink := newFakeSink()
	o := New(eng, sink, testConfig(), zap.NewNop())

	stats, err := o.RunPass(context.Background())
	require.NoError(t, err, "one bad item must not fail the pass")

	assert.Equal(t, 9, stats.Inserted[models.EntityProfiles])
	assert.Equal(t, 1, stats.Failed[models.EntityProfiles])
	_, ok := sink.profiles["job-5"]
	assert.False(t, ok)
}

func TestRunPassStreamFailureDoesNotBlockOthers(t *testing.T) {
	eng := testEngine(4)
	eng.reflectionErr = qlerrors.New(qlerrors.ErrorTypeConnection, "reflection endpoint down")
	sink := newFakeSink()
	o := New(eng, sink, testConfig(), zap.NewNop())

	stats, err := o.RunPass(context.Background())
	require.NoError(t, err, "a partial pass still succeeds")

	assert.Equal(t, 4, stats.Inserted[models.EntityQueries])
	assert.Equal(t, 0, stats.Inserted[models.EntityReflections])
	assert.Equal(t, 1, stats.Inserted[models.EntityDatasets], "later streams still run")
}

func TestRunPassHistoryFailureStillCollectsMetadata(t *testing.T) {
	eng := testEngine(4)
	eng.historyErr = qlerrors.New(qlerrors.ErrorTypeTimeout, "history timed out")
	sink := newFakeSink()
	o := New(eng, sink, testConfig(), zap.NewNop())

	stats, err := o.RunPass(context.Background())
	require.NoError(t, err, "the metadata streams carried the pass")

	assert.Equal(t, 0, stats.Inserted[models.EntityQueries])
	assert.Equal(t, 0, stats.Inserted[models.EntityProfiles])
	assert.Equal(t, 2, stats.Inserted[models.EntityReflections])
}

func TestRunPassFailsWhenEngineUnreachable(t *testing.T) {
	eng := testEngine(4)
	down := qlerrors.New(qlerrors.ErrorTypeConnection, "connection refused")
	eng.historyErr = down
	eng.reflectionErr = down
	eng.datasetErr = down
	sink := newFakeSink()
	o := New(eng, sink, testConfig(), zap.NewNop())

	stats, err := o.RunPass(context.Background())
	require.Error(t, err, "every stream failed, the pass must report it")
	assert.Equal(t, 0, stats.Total(stats.Inserted))
}

func TestRunPassQueryStoreFailureRollsBackToZero(t *testing.T) {
	eng := testEngine(4)
	sink := newFakeSink()
	sink.queryStoreErr = qlerrors.New(qlerrors.ErrorTypeConnection, "commit failed")
	o := New(eng, sink, testConfig(), zap.NewNop())

	stats, err := o.RunPass(context.Background())
	require.NoError(t, err, "the remaining streams carried the pass")
	assert.Equal(t, 0, stats.Inserted[models.EntityQueries])
	assert.Empty(t, sink.queries)
}

func TestCollectQuery(t *testing.T) {
	eng := testEngine(3)
	sink := newFakeSink()
	o := New(eng, sink, testConfig(), zap.NewNop())

	result, err := o.CollectQuery(context.Background(), "job-1")
	require.NoError(t, err)
	assert.True(t, result.Query)
	assert.True(t, result.Profile)

	// Repeating changes nothing.
	result, err = o.CollectQuery(context.Background(), "job-1")
	require.NoError(t, err)
	assert.False(t, result.Query)
	assert.False(t, result.Profile)
}

func TestCollectQueryWithoutProfile(t *testing.T) {
	eng := testEngine(3)
	eng.failProfiles["job-2"] = true
	sink := newFakeSink()
	o := New(eng, sink, testConfig(), zap.NewNop())

	result, err := o.CollectQuery(context.Background(), "job-2")
	require.NoError(t, err)
	assert.True(t, result.Query)
	assert.False(t, result.Profile)
	assert.Contains(t, sink.queries, "job-2")
}

func TestCollectQueryRequiresJobID(t *testing.T) {
	o := New(testEngine(0), newFakeSink(), testConfig(), zap.NewNop())

	_, err := o.CollectQuery(context.Background(), "")
	require.Error(t, err)
	assert.True(t, qlerrors.IsType(err, qlerrors.ErrorTypeValidation))
}

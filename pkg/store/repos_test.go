package store

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querylens/querylens/pkg/models"
)

// fakeDB satisfies DBTX with canned rows, recording the last statement
// and its arguments.
type fakeDB struct {
	lastSQL  string
	lastArgs []any
	rows     [][]any
	execTag  string
	queryErr error
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastSQL, f.lastArgs = sql, args
	return pgconn.NewCommandTag(f.execTag), nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.lastSQL, f.lastArgs = sql, args
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &fakeRows{data: f.rows}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.lastSQL, f.lastArgs = sql, args
	return &fakeRow{data: f.rows[0]}
}

type fakeRows struct {
	data [][]any
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx <= len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	return assignRow(r.data[r.idx-1], dest)
}

type fakeRow struct {
	data []any
}

func (r *fakeRow) Scan(dest ...any) error {
	return assignRow(r.data, dest)
}

func assignRow(row []any, dest []any) error {
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(row[i]))
	}
	return nil
}

func ptrTime(t time.Time) *time.Time { return &t }
func ptrInt64(v int64) *int64        { return &v }

func queryRow(jobID, user string, durationMS *int64) []any {
	start := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	return []any{
		jobID, "SELECT 1", user, "default",
		ptrTime(start), ptrTime(start.Add(time.Second)), durationMS, "COMPLETED",
	}
}

func TestQueryRepoInsertReportsConflict(t *testing.T) {
	repo := NewQueryRepo()
	rec := &models.QueryRecord{JobID: "j1", SQLText: "SELECT 1", Status: "COMPLETED"}

	db := &fakeDB{execTag: "INSERT 0 1"}
	inserted, err := repo.Insert(context.Background(), db, rec)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Contains(t, db.lastSQL, "ON CONFLICT (job_id) DO NOTHING")

	db.execTag = "INSERT 0 0"
	inserted, err = repo.Insert(context.Background(), db, rec)
	require.NoError(t, err)
	assert.False(t, inserted, "an existing row is left untouched")
}

func TestQueryRepoRecent(t *testing.T) {
	db := &fakeDB{rows: [][]any{
		queryRow("j2", "alice", ptrInt64(2000)),
		queryRow("j1", "bob", nil),
	}}

	recs, err := NewQueryRepo().Recent(context.Background(), db, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Contains(t, db.lastSQL, "ORDER BY start_time DESC")
	assert.Equal(t, []any{10}, db.lastArgs)
	assert.Equal(t, "j2", recs[0].JobID)
	assert.Equal(t, "alice", recs[0].User)
	require.NotNil(t, recs[0].DurationMS)
	assert.Equal(t, int64(2000), *recs[0].DurationMS)
	assert.Nil(t, recs[1].DurationMS)
}

func TestQueryRepoSlowest(t *testing.T) {
	db := &fakeDB{rows: [][]any{queryRow("j9", "alice", ptrInt64(90000))}}

	recs, err := NewQueryRepo().Slowest(context.Background(), db, 5000, 3)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Contains(t, db.lastSQL, "duration_ms >= $1")
	assert.Contains(t, db.lastSQL, "ORDER BY duration_ms DESC")
	assert.Equal(t, []any{int64(5000), 3}, db.lastArgs)
}

func TestQueryRepoByUser(t *testing.T) {
	db := &fakeDB{rows: [][]any{queryRow("j3", "carol", nil)}}

	recs, err := NewQueryRepo().ByUser(context.Background(), db, "carol", 25)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Contains(t, db.lastSQL, "user_name = $1")
	assert.Equal(t, []any{"carol", 25}, db.lastArgs)
	assert.Equal(t, "carol", recs[0].User)
}

func TestQueryRepoExists(t *testing.T) {
	db := &fakeDB{rows: [][]any{{true}}}

	exists, err := NewQueryRepo().Exists(context.Background(), db, "j1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, []any{"j1"}, db.lastArgs)
}

func TestReflectionRepoList(t *testing.T) {
	refreshed := time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC)
	db := &fakeDB{rows: [][]any{
		{"refl-1", "agg", "AGGREGATION", "ds-1", "prod.orders",
			int64(42), ptrTime(refreshed), "PT1H", ptrTime(refreshed), float64(128.5)},
	}}

	recs, err := NewReflectionRepo().List(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Contains(t, db.lastSQL, "ORDER BY dataset_path, reflection_name")
	assert.Equal(t, "refl-1", recs[0].ReflectionID)
	assert.Equal(t, int64(42), recs[0].HitCount)
	assert.Equal(t, 128.5, recs[0].SizeMB)
}

func TestDatasetRepoList(t *testing.T) {
	db := &fakeDB{rows: [][]any{
		{"ds-1", "prod.orders", "PHYSICAL_DATASET",
			[]byte(`[{"name": "id", "type": "BIGINT"}]`),
			[]string{"region"}, []string{"id"}, "parquet",
			float64(2048), int64(1000000), int64(12)},
	}}

	recs, err := NewDatasetRepo().List(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Contains(t, db.lastSQL, "ORDER BY dataset_path")
	require.Len(t, recs[0].Columns, 1)
	assert.Equal(t, models.Column{Name: "id", Type: "BIGINT"}, recs[0].Columns[0])
	assert.Equal(t, []string{"region"}, recs[0].PartitionColumns)
	assert.Equal(t, int64(1000000), recs[0].RowCount)
}

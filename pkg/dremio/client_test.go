package dremio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	qlerrors "github.com/querylens/querylens/pkg/errors"
	"github.com/querylens/querylens/pkg/json"
)

// newTestClient builds a client against srv with the given dialect and a
// no-op retry sleep.
func newTestClient(t *testing.T, srv *httptest.Server, dialect Dialect) *Client {
	t.Helper()
	router := &Router{baseURL: srv.URL, projectID: "p1", dialect: dialect}
	tokens := NewTokenManager(srv.URL, "", "", "tok-test", newTestHTTPClient(t), zap.NewNop())
	cfg := DefaultClientConfig()
	cfg.PollInterval = time.Millisecond
	cfg.JobDeadline = time.Second
	c := NewClient(newTestHTTPClient(t), router, tokens, DefaultRetryPolicy(), cfg, zap.NewNop())
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func TestClientReAuthenticatesOnceOn401(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/apiv2/login" {
			w.Write([]byte(`{"token": "tok-fresh"}`)) //nolint:errcheck
			return
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "_dremiotok-fresh", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data": []}`)) //nolint:errcheck
	}))
	defer srv.Close()

	router := NewRouter(srv.URL, "")
	tokens := NewTokenManager(srv.URL, "admin", "secret", "", newTestHTTPClient(t), zap.NewNop())
	c := NewClient(newTestHTTPClient(t), router, tokens, DefaultRetryPolicy(), DefaultClientConfig(), zap.NewNop())
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	_, err := c.Reflections(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClientRepeated401IsTerminal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/apiv2/login" {
			w.Write([]byte(`{"token": "tok-stale"}`)) //nolint:errcheck
			return
		}
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	router := NewRouter(srv.URL, "")
	tokens := NewTokenManager(srv.URL, "admin", "secret", "", newTestHTTPClient(t), zap.NewNop())
	c := NewClient(newTestHTTPClient(t), router, tokens, DefaultRetryPolicy(), DefaultClientConfig(), zap.NewNop())
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	_, err := c.Reflections(context.Background())
	require.Error(t, err)
	assert.True(t, qlerrors.IsType(err, qlerrors.ErrorTypeAuthentication))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "one original call plus one refreshed repeat")
}

func TestClientRejectedLoginIsFatal(t *testing.T) {
	var loginCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/apiv2/login" {
			atomic.AddInt32(&loginCalls, 1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		t.Error("no authenticated request should reach the server")
	}))
	defer srv.Close()

	router := NewRouter(srv.URL, "")
	tokens := NewTokenManager(srv.URL, "admin", "wrong", "", newTestHTTPClient(t), zap.NewNop())
	c := NewClient(newTestHTTPClient(t), router, tokens, DefaultRetryPolicy(), DefaultClientConfig(), zap.NewNop())
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	_, err := c.Reflections(context.Background())
	require.Error(t, err)
	assert.True(t, qlerrors.IsType(err, qlerrors.ErrorTypeAuthentication))
	assert.Equal(t, int32(1), atomic.LoadInt32(&loginCalls), "a rejected login is not replayed")
}

func TestClientRetriesTransientServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"data": [{"id": "r1", "name": "agg", "type": "AGGREGATION", "datasetId": "d1", "enabled": true}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(t, srv, DialectLegacy)

	refls, err := c.Reflections(context.Background())
	require.NoError(t, err)
	require.Len(t, refls, 1)
	assert.Equal(t, "agg", refls[0].Name)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientExhaustsRetryBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, DialectLegacy)

	_, err := c.Reflections(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientNeverRetriesClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, DialectLegacy)

	_, err := c.QueryProfile(context.Background(), "no-such-job")
	require.Error(t, err)
	assert.True(t, qlerrors.IsType(err, qlerrors.ErrorTypeValidation))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientEmptyBodyDecodesAsEmptyObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, DialectLegacy)

	summary, err := c.QuerySQL(context.Background(), "job-7")
	require.NoError(t, err)
	assert.Equal(t, "job-7", summary.ID)
}

func TestClientLegacyQueryHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/job", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		assert.Equal(t, "0", r.URL.Query().Get("offset"))
		w.Write([]byte(`{"jobs": [
			{"id": "j1", "user": "alice", "queryText": "SELECT 1",
			 "startTime": "2026-08-26T10:15:00Z", "endTime": "2026-08-26T10:15:02Z",
			 "jobState": "COMPLETED", "queueName": "default"},
			{"id": "j2", "user": "bob", "jobState": "FAILED"}
		]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(t, srv, DialectLegacy)

	jobs, err := c.QueryHistory(context.Background(), 100, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "j1", jobs[0].ID)
	assert.Equal(t, "SELECT 1", jobs[0].SQLText())
	assert.Equal(t, "COMPLETED", jobs[0].State())
	assert.True(t, jobs[0].StartTime.Valid)
	assert.False(t, jobs[1].StartTime.Valid)
}

func TestClientCloudQueryHistory(t *testing.T) {
	var submittedSQL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v0/projects/p1/sql":
			var req struct {
				SQL string `json:"sql"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			submittedSQL = req.SQL
			w.Write([]byte(`{"id": "hist-job"}`)) //nolint:errcheck
		case r.URL.Path == "/v0/projects/p1/job/hist-job":
			w.Write([]byte(`{"id": "hist-job", "jobState": "COMPLETED", "rowCount": 2}`)) //nolint:errcheck
		case r.URL.Path == "/v0/projects/p1/job/hist-job/results":
			w.Write([]byte(`{"rowCount": 2, "rows": [
				{"job_id": "q1", "user_name": "alice", "query": "SELECT a FROM t",
				 "submitted_ts": "2026-08-26 10:15:00.000", "final_state_ts": "2026-08-26 10:15:02.000",
				 "status": "COMPLETED", "query_type": "UI_RUN", "queue_name": "default",
				 "engine": "preview", "rows_returned": 10, "rows_scanned": 1000,
				 "bytes_scanned": 4096, "execution_cpu_time_ns": 1500000, "accelerated": true},
				{"job_id": "q2", "user_name": "bob", "query": "SELECT b FROM t",
				 "submitted_ts": "bogus", "final_state_ts": "2026-08-26 10:16:00.000",
				 "status": "FAILED", "accelerated": false}
			]}`)) //nolint:errcheck
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, DialectCloud)

	jobs, err := c.QueryHistory(context.Background(), 50, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Contains(t, submittedSQL, "sys.project.history.jobs")
	assert.Contains(t, submittedSQL, "ORDER BY submitted_ts DESC")
	assert.Contains(t, submittedSQL, "LIMIT 50")
	assert.False(t, strings.Contains(submittedSQL, "OFFSET"))

	q1 := jobs[0]
	assert.Equal(t, "q1", q1.ID)
	assert.Equal(t, "alice", q1.User)
	assert.Equal(t, "SELECT a FROM t", q1.SQLText())
	assert.Equal(t, "COMPLETED", q1.State())
	assert.Equal(t, int64(1000), q1.RowsScanned)
	assert.Equal(t, int64(4096), q1.BytesScanned)
	assert.Equal(t, int64(1500000), q1.CPUTimeNs)
	assert.True(t, q1.Accelerated)
	require.NotNil(t, q1.DurationMS)
	assert.Equal(t, int64(2000), *q1.DurationMS)

	// Unparsable submitted timestamp means the duration is omitted.
	assert.Nil(t, jobs[1].DurationMS)
	assert.Equal(t, "FAILED", jobs[1].State())
}

func TestClientCloudHistoryOffset(t *testing.T) {
	var submittedSQL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			var req struct {
				SQL string `json:"sql"`
			}
			json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
			submittedSQL = req.SQL
			w.Write([]byte(`{"id": "hist-job"}`)) //nolint:errcheck
		case strings.HasSuffix(r.URL.Path, "/results"):
			w.Write([]byte(`{"rowCount": 0, "rows": []}`)) //nolint:errcheck
		default:
			w.Write([]byte(`{"id": "hist-job", "jobState": "COMPLETED", "rowCount": 0}`)) //nolint:errcheck
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, DialectCloud)

	jobs, err := c.QueryHistory(context.Background(), 25, 100)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Contains(t, submittedSQL, "LIMIT 25 OFFSET 100")
}

func TestClientSubmitSQLUnsupportedOnLegacy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should reach the server")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, DialectLegacy)

	_, err := c.SubmitSQL(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.True(t, qlerrors.IsType(err, qlerrors.ErrorTypeCapability))
}

func TestClientSystemInfoLegacy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apiv2/server_status", r.URL.Path)
		w.Write([]byte(`"OK"`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(t, srv, DialectLegacy)

	info, err := c.SystemInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", info.Status)
	assert.False(t, info.Cloud)
}

func TestClientSystemInfoCloudProbesCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/projects/p1/catalog", r.URL.Path)
		w.Write([]byte(`{"data": []}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(t, srv, DialectCloud)

	info, err := c.SystemInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", info.Status)
	assert.True(t, info.Cloud)
	assert.Equal(t, "p1", info.ProjectID)
}

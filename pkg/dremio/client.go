// Package dremio implements a client for the two Dremio API dialects.
//
// A Client routes each logical operation through a Router, attaches a
// credential from the TokenManager, and executes the HTTP call under a
// RetryPolicy. An expired credential is refreshed and the request is
// repeated exactly once before the failure is surfaced.
package dremio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/querylens/querylens/pkg/clients"
	qlerrors "github.com/querylens/querylens/pkg/errors"
	gojson "github.com/querylens/querylens/pkg/json"
	"github.com/querylens/querylens/pkg/metrics"
)

// JobSummary is a single entry of the engine's query history, normalized
// across both dialects.
type JobSummary struct {
	ID           string   `json:"id"`
	User         string   `json:"user,omitempty"`
	SQL          string   `json:"sql,omitempty"`
	QueryText    string   `json:"queryText,omitempty"`
	StartTime    FlexTime `json:"startTime,omitempty"`
	EndTime      FlexTime `json:"endTime,omitempty"`
	JobState     JobState `json:"jobState,omitempty"`
	Status       string   `json:"status,omitempty"`
	QueryType    string   `json:"queryType,omitempty"`
	QueueName    string   `json:"queueName,omitempty"`
	EngineName   string   `json:"engineName,omitempty"`
	RowsReturned int64    `json:"rowsReturned,omitempty"`
	RowsScanned  int64    `json:"rowsScanned,omitempty"`
	BytesScanned int64    `json:"bytesScanned,omitempty"`
	CPUTimeNs    int64    `json:"cpuTimeNs,omitempty"`
	Accelerated  bool     `json:"accelerated,omitempty"`
	DurationMS   *int64   `json:"durationMs,omitempty"`
}

// State returns the job state regardless of which dialect produced the
// summary. The legacy API reports jobState, the history table reports status.
func (j *JobSummary) State() string {
	if j.JobState != "" {
		return string(j.JobState)
	}
	return j.Status
}

// SQLText returns whichever of the two SQL fields is populated.
func (j *JobSummary) SQLText() string {
	if j.SQL != "" {
		return j.SQL
	}
	return j.QueryText
}

// Reflection is the engine's description of a single reflection.
type Reflection struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	DatasetID   string            `json:"datasetId"`
	DatasetPath []string          `json:"datasetPath,omitempty"`
	Enabled     bool              `json:"enabled"`
	Status      gojson.RawMessage `json:"status,omitempty"`
	HitCount    int64             `json:"hitCount,omitempty"`
	CurrentSize int64             `json:"currentSizeBytes,omitempty"`
	TotalSize   int64             `json:"totalSizeBytes,omitempty"`
	LastAccess  FlexTime          `json:"lastAccessTime,omitempty"`
	LastRefresh FlexTime          `json:"lastRefreshTime,omitempty"`
	CreatedAt   FlexTime          `json:"createdAt,omitempty"`
	UpdatedAt   FlexTime          `json:"updatedAt,omitempty"`

	RefreshPolicy struct {
		RefreshSchedule string `json:"refreshSchedule"`
	} `json:"refreshPolicy,omitempty"`
}

// CatalogEntity is one entry of a catalog listing or lookup response.
type CatalogEntity struct {
	ID   string   `json:"id"`
	Path []string `json:"path,omitempty"`
	Type string   `json:"type,omitempty"`
	Tag  string   `json:"tag,omitempty"`
}

// SystemInfo reports the outcome of a connectivity probe.
type SystemInfo struct {
	Status    string `json:"status"`
	Cloud     bool   `json:"cloud"`
	ProjectID string `json:"project_id,omitempty"`
}

// ClientConfig carries the knobs a Client needs beyond its collaborators.
type ClientConfig struct {
	// RequestTimeout bounds every individual HTTP call.
	RequestTimeout time.Duration
	// PollInterval and JobDeadline configure the poller used for
	// SQL-over-HTTP jobs.
	PollInterval time.Duration
	JobDeadline  time.Duration
}

// DefaultClientConfig returns the production defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RequestTimeout: 30 * time.Second,
		PollInterval:   500 * time.Millisecond,
		JobDeadline:    30 * time.Second,
	}
}

// Client executes logical operations against a Dremio engine.
type Client struct {
	httpc  *clients.HTTPClient
	router *Router
	tokens *TokenManager
	policy *RetryPolicy
	config ClientConfig
	logger *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient wires a Client from its collaborators.
func NewClient(httpc *clients.HTTPClient, router *Router, tokens *TokenManager, policy *RetryPolicy, config ClientConfig, logger *zap.Logger) *Client {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 500 * time.Millisecond
	}
	if config.JobDeadline <= 0 {
		config.JobDeadline = 30 * time.Second
	}
	return &Client{
		httpc:  httpc,
		router: router,
		tokens: tokens,
		policy: policy,
		config: config,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Dialect reports which API dialect the client is speaking.
func (c *Client) Dialect() Dialect {
	return c.router.Dialect()
}

// request resolves op, attaches a credential and executes the call under the
// retry policy. A 401 invalidates the cached credential and repeats the
// request once with a fresh one; that repeat does not consume a retry
// attempt. The parsed JSON body is unmarshaled into out when out is non-nil;
// an empty 2xx body is treated as an empty object.
func (c *Client) request(ctx context.Context, method string, op Operation, params Params, query url.Values, body interface{}, out interface{}) error {
	endpoint, err := c.router.Resolve(op, params)
	if err != nil {
		return err
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		payload, err = gojson.Marshal(body)
		if err != nil {
			return qlerrors.Wrap(err, qlerrors.ErrorTypeInternal, "encoding request body")
		}
	}

	reauthed := false
	for attempt := 1; ; attempt++ {
		status, respBody, err := c.execute(ctx, method, endpoint, payload)

		var outcome Outcome
		switch {
		case err != nil:
			outcome = ClassifyError(err)
		default:
			outcome = ClassifyStatus(status)
		}

		if outcome == OutcomeSuccess {
			metrics.RequestsTotal.WithLabelValues(string(op), "success").Inc()
			return decodeBody(respBody, out)
		}

		metrics.RequestsTotal.WithLabelValues(string(op), outcome.String()).Inc()

		if outcome == OutcomeAuthExpired {
			if reauthed {
				return qlerrors.Newf(qlerrors.ErrorTypeAuthentication, "%s: authentication rejected after refresh", op).
					WithDetail("status", fmt.Sprintf("%d", status))
			}
			reauthed = true
			c.tokens.Invalidate()
			c.logger.Debug("credential expired, re-authenticating",
				zap.String("operation", string(op)))
			attempt-- // the repeat does not consume a retry attempt
			continue
		}

		decision := c.policy.Decide(attempt, outcome)
		if !decision.Retry {
			return c.failure(op, status, respBody, outcome, err)
		}

		metrics.RetriesTotal.WithLabelValues(string(op)).Inc()
		c.logger.Debug("retrying request",
			zap.String("operation", string(op)),
			zap.Int("attempt", attempt),
			zap.String("outcome", outcome.String()),
			zap.Duration("delay", decision.Delay))
		if err := c.sleep(ctx, decision.Delay); err != nil {
			return qlerrors.Wrap(err, qlerrors.ErrorTypeTimeout, "retry interrupted")
		}
	}
}

// execute performs one HTTP round trip and drains the response body. The
// per-call timeout applies here so a stalled read cannot exceed it.
func (c *Client) execute(ctx context.Context, method, endpoint string, payload []byte) (int, []byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	cred, err := c.tokens.GetValidCredential(callCtx)
	if err != nil {
		return 0, nil, err
	}

	headers := map[string]string{
		"Authorization": c.router.AuthHeader(cred.Token),
	}

	var resp *http.Response
	switch method {
	case http.MethodGet:
		resp, err = c.httpc.Get(callCtx, endpoint, headers)
	case http.MethodPost:
		headers["Content-Type"] = "application/json"
		resp, err = c.httpc.Post(callCtx, endpoint, bytes.NewReader(payload), headers)
	default:
		return 0, nil, qlerrors.Newf(qlerrors.ErrorTypeInternal, "unsupported method %s", method)
	}
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, qlerrors.Wrap(err, qlerrors.ErrorTypeConnection, "reading response body")
	}
	return resp.StatusCode, respBody, nil
}

// decodeBody unmarshals a response body, treating an empty body as {}.
func decodeBody(body []byte, out interface{}) error {
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	if raw, ok := out.(*gojson.RawMessage); ok {
		*raw = append((*raw)[:0], body...)
		return nil
	}
	if err := gojson.Unmarshal(body, out); err != nil {
		return qlerrors.Wrap(err, qlerrors.ErrorTypeData, "decoding response body")
	}
	return nil
}

// failure converts a terminal non-success outcome into a typed error.
// A cause that already carries a category keeps it, so a rejected login
// surfaces as authentication rather than the outcome's default label.
func (c *Client) failure(op Operation, status int, body []byte, outcome Outcome, cause error) error {
	if cause != nil {
		typ := outcomeErrorType(outcome)
		var qe *qlerrors.Error
		if errors.As(cause, &qe) {
			typ = qe.Type
		}
		return qlerrors.Wrap(cause, typ, fmt.Sprintf("%s failed", op)).
			WithDetail("operation", string(op))
	}
	snippet := string(body)
	if len(snippet) > 512 {
		snippet = snippet[:512]
	}
	return qlerrors.Newf(outcomeErrorType(outcome), "%s failed with status %d", op, status).
		WithDetail("operation", string(op)).
		WithDetail("status", fmt.Sprintf("%d", status)).
		WithDetail("body", snippet)
}

func outcomeErrorType(o Outcome) qlerrors.ErrorType {
	switch o {
	case OutcomeAuthExpired:
		return qlerrors.ErrorTypeAuthentication
	case OutcomeRateOrTimeout:
		return qlerrors.ErrorTypeTimeout
	case OutcomeTransientServerError:
		return qlerrors.ErrorTypeConnection
	case OutcomeClientError:
		return qlerrors.ErrorTypeValidation
	default:
		return qlerrors.ErrorTypeInternal
	}
}

// SubmitSQL submits a SQL statement for asynchronous execution and returns
// the job id. Only available on the SQL-over-HTTP dialect.
func (c *Client) SubmitSQL(ctx context.Context, sql string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	req := map[string]string{"sql": sql}
	if err := c.request(ctx, http.MethodPost, OpSubmitSQL, Params{}, nil, req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", qlerrors.New(qlerrors.ErrorTypeData, "SQL submission returned no job id")
	}
	return resp.ID, nil
}

// JobStatus fetches the current state of a job. It satisfies the poller's
// fetcher interface.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	var status JobStatus
	if err := c.request(ctx, http.MethodGet, OpJobStatus, Params{ID: jobID}, nil, nil, &status); err != nil {
		return nil, err
	}
	if status.ID == "" {
		status.ID = jobID
	}
	return &status, nil
}

// JobResults fetches one page of a completed job's result rows.
func (c *Client) JobResults(ctx context.Context, jobID string, offset, limit int) (*ResultPage, error) {
	query := url.Values{}
	query.Set("offset", fmt.Sprintf("%d", offset))
	query.Set("limit", fmt.Sprintf("%d", limit))
	var page ResultPage
	if err := c.request(ctx, http.MethodGet, OpJobResults, Params{ID: jobID}, query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ResultPage is one page of result rows from a completed job.
type ResultPage struct {
	RowCount int64                    `json:"rowCount"`
	Schema   gojson.RawMessage        `json:"schema,omitempty"`
	Rows     []map[string]interface{} `json:"rows"`
}

// QueryHistory returns up to limit entries of the engine's query history,
// newest first. On the legacy dialect this is a single REST call; on the
// SQL-over-HTTP dialect the history is reconstructed by querying the
// system history table.
func (c *Client) QueryHistory(ctx context.Context, limit, offset int) ([]JobSummary, error) {
	if c.router.Dialect() == DialectCloud {
		return c.cloudQueryHistory(ctx, limit, offset)
	}

	query := url.Values{}
	query.Set("limit", fmt.Sprintf("%d", limit))
	query.Set("offset", fmt.Sprintf("%d", offset))
	var resp struct {
		Jobs []JobSummary `json:"jobs"`
	}
	if err := c.request(ctx, http.MethodGet, OpQueryHistory, Params{}, query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// QueryProfile fetches the raw execution profile of a job. The payload is
// returned undecoded since its shape varies across engine versions.
func (c *Client) QueryProfile(ctx context.Context, jobID string) (gojson.RawMessage, error) {
	var raw gojson.RawMessage
	if err := c.request(ctx, http.MethodGet, OpQueryProfile, Params{ID: jobID}, nil, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// QuerySQL fetches a single job's summary, primarily to recover its SQL
// text. Both dialects serve this from the job detail endpoint.
func (c *Client) QuerySQL(ctx context.Context, jobID string) (*JobSummary, error) {
	var summary JobSummary
	if err := c.request(ctx, http.MethodGet, OpQueryProfile, Params{ID: jobID}, nil, nil, &summary); err != nil {
		return nil, err
	}
	if summary.ID == "" {
		summary.ID = jobID
	}
	return &summary, nil
}

// Reflections lists all reflections defined on the engine.
func (c *Client) Reflections(ctx context.Context) ([]Reflection, error) {
	var resp struct {
		Data []Reflection `json:"data"`
	}
	if err := c.request(ctx, http.MethodGet, OpReflections, Params{}, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ReflectionByID fetches a single reflection.
func (c *Client) ReflectionByID(ctx context.Context, id string) (*Reflection, error) {
	var refl Reflection
	if err := c.request(ctx, http.MethodGet, OpReflectionByID, Params{ID: id}, nil, nil, &refl); err != nil {
		return nil, err
	}
	return &refl, nil
}

// CatalogRoot lists the top level of the catalog.
func (c *Client) CatalogRoot(ctx context.Context) ([]CatalogEntity, error) {
	var resp struct {
		Data []CatalogEntity `json:"data"`
	}
	if err := c.request(ctx, http.MethodGet, OpCatalogRoot, Params{}, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// CatalogByID fetches a catalog entity with its children. The raw payload
// is preserved alongside the decoded fields for downstream extraction.
func (c *Client) CatalogByID(ctx context.Context, id string) (gojson.RawMessage, error) {
	var raw gojson.RawMessage
	if err := c.request(ctx, http.MethodGet, OpCatalogByID, Params{ID: id}, nil, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// DatasetByPath fetches a dataset's catalog entry by its dotted path.
func (c *Client) DatasetByPath(ctx context.Context, path []string) (gojson.RawMessage, error) {
	encoded := make([]string, len(path))
	for i, part := range path {
		encoded[i] = url.PathEscape(part)
	}
	var raw gojson.RawMessage
	if err := c.request(ctx, http.MethodGet, OpDatasetByPath, Params{Path: strings.Join(encoded, "/")}, nil, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// SearchDatasets lists catalog entities via the search endpoint. Each
// entry is returned raw; containers and datasets are mixed and callers
// filter by entity type.
func (c *Client) SearchDatasets(ctx context.Context, limit int) ([]gojson.RawMessage, error) {
	query := url.Values{}
	query.Set("limit", fmt.Sprintf("%d", limit))
	var resp struct {
		Data []gojson.RawMessage `json:"data"`
	}
	if err := c.request(ctx, http.MethodGet, OpSearchDatasets, Params{}, query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// JobStats fetches the engine's aggregate job statistics.
func (c *Client) JobStats(ctx context.Context) (gojson.RawMessage, error) {
	var raw gojson.RawMessage
	if err := c.request(ctx, http.MethodGet, OpJobStats, Params{}, nil, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// SystemInfo probes the engine for liveness. The legacy dialect exposes a
// server status endpoint; the SQL-over-HTTP dialect has none, so the catalog
// root is used as the probe.
func (c *Client) SystemInfo(ctx context.Context) (*SystemInfo, error) {
	info := &SystemInfo{
		Cloud:     c.router.Dialect() == DialectCloud,
		ProjectID: c.router.projectID,
	}
	if c.router.Dialect() == DialectCloud {
		if _, err := c.CatalogRoot(ctx); err != nil {
			return nil, err
		}
		info.Status = "ok"
		return info, nil
	}
	var raw gojson.RawMessage
	if err := c.request(ctx, http.MethodGet, OpSystemInfo, Params{}, nil, nil, &raw); err != nil {
		return nil, err
	}
	info.Status = "ok"
	return info, nil
}

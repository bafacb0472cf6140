package dremio

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	qlerrors "github.com/querylens/querylens/pkg/errors"
)

// historyColumns are selected from the system history table in this
// order. Result rows are keyed by these names.
var historyColumns = []string{
	"job_id",
	"user_name",
	"query",
	"submitted_ts",
	"final_state_ts",
	"status",
	"query_type",
	"queue_name",
	"engine",
	"rows_returned",
	"rows_scanned",
	"bytes_scanned",
	"execution_cpu_time_ns",
	"accelerated",
}

const historyTable = "sys.project.history.jobs"

// resultPageSize bounds each results fetch; the engine caps pages at 500.
const resultPageSize = 500

// cloudQueryHistory reconstructs query history on the SQL-over-HTTP
// dialect, which has no direct history endpoint: run a query against the
// system history table, drive the job to completion, page through the
// results, and reshape each row into a JobSummary.
func (c *Client) cloudQueryHistory(ctx context.Context, limit, offset int) ([]JobSummary, error) {
	sql := buildHistorySQL(limit, offset)

	jobID, err := c.SubmitSQL(ctx, sql)
	if err != nil {
		return nil, qlerrors.Wrap(err, qlerrors.TypeOf(err), "submitting history query")
	}

	poller := NewJobPoller(c, c.config.PollInterval, c.config.JobDeadline, c.logger)
	status, err := poller.WaitForCompletion(ctx, jobID)
	if err != nil {
		return nil, err
	}

	summaries := make([]JobSummary, 0, limit)
	for fetched := 0; int64(fetched) < status.RowCount; {
		pageLimit := resultPageSize
		if remaining := int(status.RowCount) - fetched; remaining < pageLimit {
			pageLimit = remaining
		}
		page, err := c.JobResults(ctx, jobID, fetched, pageLimit)
		if err != nil {
			return nil, err
		}
		if len(page.Rows) == 0 {
			break
		}
		for _, row := range page.Rows {
			summaries = append(summaries, reshapeHistoryRow(row))
		}
		fetched += len(page.Rows)
	}

	c.logger.Debug("reconstructed cloud query history",
		zap.String("job_id", jobID),
		zap.Int("rows", len(summaries)))
	return summaries, nil
}

// buildHistorySQL renders the system table query, newest submissions
// first.
func buildHistorySQL(limit, offset int) string {
	cols := ""
	for i, col := range historyColumns {
		if i > 0 {
			cols += ", "
		}
		cols += col
	}
	sql := fmt.Sprintf("SELECT %s FROM %s ORDER BY submitted_ts DESC LIMIT %d", cols, historyTable, limit)
	if offset > 0 {
		sql += fmt.Sprintf(" OFFSET %d", offset)
	}
	return sql
}

// reshapeHistoryRow maps one system table row onto the normalized
// summary shape the legacy endpoint produces. Duration is derived from
// the two timestamps and omitted when either fails to parse.
func reshapeHistoryRow(row map[string]interface{}) JobSummary {
	summary := JobSummary{
		ID:           rowString(row, "job_id"),
		User:         rowString(row, "user_name"),
		SQL:          rowString(row, "query"),
		Status:       rowString(row, "status"),
		QueryType:    rowString(row, "query_type"),
		QueueName:    rowString(row, "queue_name"),
		EngineName:   rowString(row, "engine"),
		RowsReturned: rowInt(row, "rows_returned"),
		RowsScanned:  rowInt(row, "rows_scanned"),
		BytesScanned: rowInt(row, "bytes_scanned"),
		CPUTimeNs:    rowInt(row, "execution_cpu_time_ns"),
		Accelerated:  rowBool(row, "accelerated"),
	}

	if ts, ok := ParseTimestamp(row["submitted_ts"]); ok {
		summary.StartTime = FlexTime{Time: ts, Valid: true}
	}
	if ts, ok := ParseTimestamp(row["final_state_ts"]); ok {
		summary.EndTime = FlexTime{Time: ts, Valid: true}
	}
	summary.DurationMS = DurationMillis(row["submitted_ts"], row["final_state_ts"])
	return summary
}

func rowString(row map[string]interface{}, key string) string {
	if v, ok := row[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func rowInt(row map[string]interface{}, key string) int64 {
	switch v := row[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	case interface{ Int64() (int64, error) }:
		if n, err := v.Int64(); err == nil {
			return n
		}
	}
	return 0
}

func rowBool(row map[string]interface{}, key string) bool {
	switch v := row[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "TRUE" || v == "t"
	}
	return false
}

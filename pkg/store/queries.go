package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	qlerrors "github.com/querylens/querylens/pkg/errors"
	"github.com/querylens/querylens/pkg/models"
)

// QueryRepo persists query history rows. The stream is append-only:
// a job id already present is left untouched.
type QueryRepo struct{}

// NewQueryRepo returns a query repository.
func NewQueryRepo() *QueryRepo {
	return &QueryRepo{}
}

// Exists reports whether a job id is already persisted.
func (r *QueryRepo) Exists(ctx context.Context, db DBTX, jobID string) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM queries WHERE job_id = $1)`, jobID).Scan(&exists)
	if err != nil {
		return false, qlerrors.Wrap(err, qlerrors.ErrorTypeConnection, "checking query existence")
	}
	return exists, nil
}

// Insert writes one query record, skipping silently when the job id is
// already present. Returns whether a row was actually inserted.
func (r *QueryRepo) Insert(ctx context.Context, db DBTX, rec *models.QueryRecord) (bool, error) {
	tag, err := db.Exec(ctx, `
		INSERT INTO queries (job_id, sql_text, user_name, queue_name, start_time, end_time, duration_ms, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_id) DO NOTHING`,
		rec.JobID, rec.SQLText, rec.User, rec.QueueName,
		rec.StartTime, rec.EndTime, rec.DurationMS, rec.Status)
	if err != nil {
		return false, qlerrors.Wrap(err, qlerrors.ErrorTypeConnection, "inserting query").
			WithDetail("job_id", rec.JobID)
	}
	return tag.RowsAffected() > 0, nil
}

// Recent returns the newest queries by start time.
func (r *QueryRepo) Recent(ctx context.Context, db DBTX, limit int) ([]models.QueryRecord, error) {
	rows, err := db.Query(ctx, `
		SELECT job_id, sql_text, user_name, queue_name, start_time, end_time, duration_ms, status
		FROM queries
		ORDER BY start_time DESC NULLS LAST
		LIMIT $1`, limit)
	if err != nil {
		return nil, qlerrors.Wrap(err, qlerrors.ErrorTypeConnection, "listing recent queries")
	}
	return scanQueries(rows)
}

// Slowest returns the longest-running queries at or above a duration
// floor, in milliseconds.
func (r *QueryRepo) Slowest(ctx context.Context, db DBTX, minDurationMS int64, limit int) ([]models.QueryRecord, error) {
	rows, err := db.Query(ctx, `
		SELECT job_id, sql_text, user_name, queue_name, start_time, end_time, duration_ms, status
		FROM queries
		WHERE duration_ms >= $1
		ORDER BY duration_ms DESC
		LIMIT $2`, minDurationMS, limit)
	if err != nil {
		return nil, qlerrors.Wrap(err, qlerrors.ErrorTypeConnection, "listing slow queries")
	}
	return scanQueries(rows)
}

// ByUser returns a user's newest queries.
func (r *QueryRepo) ByUser(ctx context.Context, db DBTX, user string, limit int) ([]models.QueryRecord, error) {
	rows, err := db.Query(ctx, `
		SELECT job_id, sql_text, user_name, queue_name, start_time, end_time, duration_ms, status
		FROM queries
		WHERE user_name = $1
		ORDER BY start_time DESC NULLS LAST
		LIMIT $2`, user, limit)
	if err != nil {
		return nil, qlerrors.Wrap(err, qlerrors.ErrorTypeConnection, "listing queries by user")
	}
	return scanQueries(rows)
}

func scanQueries(rows pgx.Rows) ([]models.QueryRecord, error) {
	defer rows.Close()

	var out []models.QueryRecord
	for rows.Next() {
		var rec models.QueryRecord
		if err := rows.Scan(&rec.JobID, &rec.SQLText, &rec.User, &rec.QueueName,
			&rec.StartTime, &rec.EndTime, &rec.DurationMS, &rec.Status); err != nil {
			return nil, qlerrors.Wrap(err, qlerrors.ErrorTypeData, "scanning query row")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, qlerrors.Wrap(err, qlerrors.ErrorTypeConnection, "iterating query rows")
	}
	return out, nil
}

package dremio

import (
	"context"
	"time"

	"go.uber.org/zap"

	qlerrors "github.com/querylens/querylens/pkg/errors"
)

// JobState is the engine-reported lifecycle state of a submitted job.
type JobState string

const (
	JobStateSubmitted JobState = "SUBMITTED"
	JobStateRunning   JobState = "RUNNING"
	JobStateCompleted JobState = "COMPLETED"
	JobStateFailed    JobState = "FAILED"
	JobStateCanceled  JobState = "CANCELED"
)

// Terminal reports whether the state is final. Terminal states are
// never revisited.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateCanceled:
		return true
	default:
		return false
	}
}

// JobStatus is the wire shape of a job status response.
type JobStatus struct {
	ID           string   `json:"id"`
	JobState     JobState `json:"jobState"`
	RowCount     int64    `json:"rowCount"`
	ErrorMessage string   `json:"errorMessage"`
}

// statusFetcher is the slice of the gateway the poller needs.
type statusFetcher interface {
	JobStatus(ctx context.Context, jobID string) (*JobStatus, error)
}

// JobPoller drives a submitted job to a terminal state: poll at a fixed
// interval until the job completes, fails, is canceled, or the
// wall-clock deadline elapses. Polls never overlap; each waits for the
// previous response before sleeping.
type JobPoller struct {
	fetcher  statusFetcher
	interval time.Duration
	deadline time.Duration
	logger   *zap.Logger

	// now is replaceable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewJobPoller creates a poller with the given cadence and wall-clock
// deadline.
func NewJobPoller(fetcher statusFetcher, interval, deadline time.Duration, logger *zap.Logger) *JobPoller {
	return &JobPoller{
		fetcher:  fetcher,
		interval: interval,
		deadline: deadline,
		logger:   logger.With(zap.String("component", "job_poller")),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// WaitForCompletion polls the job until COMPLETED and returns its final
// status. FAILED and CANCELED surface as query errors carrying the
// provider's message. Past the deadline the job's outcome is unknown
// (it may still be running server-side), so the error says timed out,
// not failed, and no further polls are issued.
func (p *JobPoller) WaitForCompletion(ctx context.Context, jobID string) (*JobStatus, error) {
	limit := p.now().Add(p.deadline)
	lastState := JobStateSubmitted

	for p.now().Before(limit) {
		status, err := p.fetcher.JobStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}
		lastState = status.JobState

		switch status.JobState {
		case JobStateCompleted:
			return status, nil
		case JobStateFailed:
			msg := status.ErrorMessage
			if msg == "" {
				msg = "unknown error"
			}
			return nil, qlerrors.Newf(qlerrors.ErrorTypeQuery, "job %s failed: %s", jobID, msg).
				WithDetail("job_id", jobID).
				WithDetail("job_state", string(JobStateFailed))
		case JobStateCanceled:
			return nil, qlerrors.Newf(qlerrors.ErrorTypeQuery, "job %s was canceled", jobID).
				WithDetail("job_id", jobID).
				WithDetail("job_state", string(JobStateCanceled))
		}

		if err := p.sleep(ctx, p.interval); err != nil {
			return nil, qlerrors.Wrap(err, qlerrors.ErrorTypeTimeout, "polling interrupted")
		}
	}

	p.logger.Warn("job polling deadline elapsed",
		zap.String("job_id", jobID),
		zap.Duration("deadline", p.deadline),
		zap.String("last_state", string(lastState)))
	return nil, qlerrors.Newf(qlerrors.ErrorTypeTimeout, "job %s timed out after %s", jobID, p.deadline).
		WithDetail("job_id", jobID).
		WithDetail("last_state", string(lastState))
}

// sleepCtx sleeps for d unless the context is canceled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

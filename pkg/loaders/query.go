// Package loaders transforms provider wire payloads into the canonical
// records the store persists. Transforms are pure: no I/O, no clock, no
// provider calls. A loader never fails a whole record over an optional
// field; absent or unparsable values are omitted.
package loaders

import (
	"github.com/querylens/querylens/pkg/dremio"
	"github.com/querylens/querylens/pkg/models"
)

// QueryFromSummary maps one history entry onto a query record. Duration
// is taken from the summary when the provider reported it, otherwise
// derived from the timestamps when both parsed.
func QueryFromSummary(summary *dremio.JobSummary) *models.QueryRecord {
	record := &models.QueryRecord{
		JobID:      summary.ID,
		SQLText:    summary.SQLText(),
		User:       summary.User,
		QueueName:  summary.QueueName,
		StartTime:  summary.StartTime.Ptr(),
		EndTime:    summary.EndTime.Ptr(),
		DurationMS: summary.DurationMS,
		Status:     summary.State(),
	}

	if record.DurationMS == nil && summary.StartTime.Valid && summary.EndTime.Valid {
		ms := summary.EndTime.Time.Sub(summary.StartTime.Time).Milliseconds()
		record.DurationMS = &ms
	}
	return record
}

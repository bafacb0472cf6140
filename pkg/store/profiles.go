package store

import (
	"context"

	qlerrors "github.com/querylens/querylens/pkg/errors"
	"github.com/querylens/querylens/pkg/models"
)

// ProfileRepo persists execution profiles. Append-only, keyed by job id.
type ProfileRepo struct{}

// NewProfileRepo returns a profile repository.
func NewProfileRepo() *ProfileRepo {
	return &ProfileRepo{}
}

// Exists reports whether a profile is already persisted for the job.
func (r *ProfileRepo) Exists(ctx context.Context, db DBTX, jobID string) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM query_profiles WHERE job_id = $1)`, jobID).Scan(&exists)
	if err != nil {
		return false, qlerrors.Wrap(err, qlerrors.ErrorTypeConnection, "checking profile existence")
	}
	return exists, nil
}

// Insert writes one profile. Returns whether a row was actually
// inserted; an existing job id is left untouched.
func (r *ProfileRepo) Insert(ctx context.Context, db DBTX, rec *models.ProfileRecord) (bool, error) {
	planJSON := rec.PlanJSON
	if len(planJSON) == 0 {
		planJSON = []byte("null")
	}
	tag, err := db.Exec(ctx, `
		INSERT INTO query_profiles (
			job_id, profile_json, plan_json,
			total_memory_mb, peak_memory_mb, rows_scanned, rows_returned, data_scanned_mb,
			reflection_used, reflection_hit, partitions_pruned, partitions_scanned,
			cpu_time_ms, runtime_ms, setup_time_ms, wait_time_ms, disk_spill_mb)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (job_id) DO NOTHING`,
		rec.JobID, []byte(rec.ProfileJSON), []byte(planJSON),
		rec.TotalMemoryMB, rec.PeakMemoryMB, rec.RowsScanned, rec.RowsReturned, rec.DataScannedMB,
		rec.ReflectionUsed, rec.ReflectionHit, rec.PartitionsPruned, rec.PartitionsScanned,
		rec.CPUTimeMS, rec.RuntimeMS, rec.SetupTimeMS, rec.WaitTimeMS, rec.DiskSpillMB)
	if err != nil {
		return false, qlerrors.Wrap(err, qlerrors.ErrorTypeConnection, "inserting profile").
			WithDetail("job_id", rec.JobID)
	}
	return tag.RowsAffected() > 0, nil
}

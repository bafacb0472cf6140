package store

import (
	"context"

	qlerrors "github.com/querylens/querylens/pkg/errors"
	"github.com/querylens/querylens/pkg/models"
)

// ReflectionRepo persists reflection metadata. The stream is mutable:
// every pass re-applies the provider's current state.
type ReflectionRepo struct{}

// NewReflectionRepo returns a reflection repository.
func NewReflectionRepo() *ReflectionRepo {
	return &ReflectionRepo{}
}

// Upsert writes or refreshes one reflection. Returns true when the row
// was newly inserted, false when an existing row was updated.
func (r *ReflectionRepo) Upsert(ctx context.Context, db DBTX, rec *models.ReflectionRecord) (bool, error) {
	var inserted bool
	err := db.QueryRow(ctx, `
		INSERT INTO reflection_metadata (
			reflection_id, reflection_name, reflection_type, dataset_id, dataset_path,
			hit_count, last_used, refresh_frequency, last_refresh, size_mb, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (reflection_id) DO UPDATE SET
			reflection_name   = EXCLUDED.reflection_name,
			reflection_type   = EXCLUDED.reflection_type,
			dataset_id        = EXCLUDED.dataset_id,
			dataset_path      = EXCLUDED.dataset_path,
			hit_count         = EXCLUDED.hit_count,
			last_used         = EXCLUDED.last_used,
			refresh_frequency = EXCLUDED.refresh_frequency,
			last_refresh      = EXCLUDED.last_refresh,
			size_mb           = EXCLUDED.size_mb,
			updated_at        = now()
		RETURNING (xmax = 0)`,
		rec.ReflectionID, rec.Name, rec.Type, rec.DatasetID, rec.DatasetPath,
		rec.HitCount, rec.LastUsed, rec.RefreshFrequency, rec.LastRefresh, rec.SizeMB).Scan(&inserted)
	if err != nil {
		return false, qlerrors.Wrap(err, qlerrors.ErrorTypeConnection, "upserting reflection").
			WithDetail("reflection_id", rec.ReflectionID)
	}
	return inserted, nil
}

// List returns all persisted reflections ordered by path.
func (r *ReflectionRepo) List(ctx context.Context, db DBTX) ([]models.ReflectionRecord, error) {
	rows, err := db.Query(ctx, `
		SELECT reflection_id, reflection_name, reflection_type, dataset_id, dataset_path,
		       hit_count, last_used, refresh_frequency, last_refresh, size_mb
		FROM reflection_metadata
		ORDER BY dataset_path, reflection_name`)
	if err != nil {
		return nil, qlerrors.Wrap(err, qlerrors.ErrorTypeConnection, "listing reflections")
	}
	defer rows.Close()

	var out []models.ReflectionRecord
	for rows.Next() {
		var rec models.ReflectionRecord
		if err := rows.Scan(&rec.ReflectionID, &rec.Name, &rec.Type, &rec.DatasetID, &rec.DatasetPath,
			&rec.HitCount, &rec.LastUsed, &rec.RefreshFrequency, &rec.LastRefresh, &rec.SizeMB); err != nil {
			return nil, qlerrors.Wrap(err, qlerrors.ErrorTypeData, "scanning reflection row")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, qlerrors.Wrap(err, qlerrors.ErrorTypeConnection, "iterating reflection rows")
	}
	return out, nil
}

package store

import (
	"context"

	qlerrors "github.com/querylens/querylens/pkg/errors"
	"github.com/querylens/querylens/pkg/json"
	"github.com/querylens/querylens/pkg/models"
)

// DatasetRepo persists dataset metadata. Mutable, keyed by dataset id.
type DatasetRepo struct{}

// NewDatasetRepo returns a dataset repository.
func NewDatasetRepo() *DatasetRepo {
	return &DatasetRepo{}
}

// Upsert writes or refreshes one dataset. Returns true when the row was
// newly inserted, false when an existing row was updated.
func (r *DatasetRepo) Upsert(ctx context.Context, db DBTX, rec *models.DatasetRecord) (bool, error) {
	columns, err := json.Marshal(rec.Columns)
	if err != nil {
		return false, qlerrors.Wrap(err, qlerrors.ErrorTypeInternal, "encoding dataset columns")
	}

	var inserted bool
	err = db.QueryRow(ctx, `
		INSERT INTO dataset_metadata (
			dataset_id, dataset_path, dataset_type, columns, partition_columns,
			sort_columns, file_format, total_size_mb, row_count, file_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (dataset_id) DO UPDATE SET
			dataset_path      = EXCLUDED.dataset_path,
			dataset_type      = EXCLUDED.dataset_type,
			columns           = EXCLUDED.columns,
			partition_columns = EXCLUDED.partition_columns,
			sort_columns      = EXCLUDED.sort_columns,
			file_format       = EXCLUDED.file_format,
			total_size_mb     = EXCLUDED.total_size_mb,
			row_count         = EXCLUDED.row_count,
			file_count        = EXCLUDED.file_count,
			updated_at        = now()
		RETURNING (xmax = 0)`,
		rec.DatasetID, rec.DatasetPath, rec.DatasetType, columns, rec.PartitionColumns,
		rec.SortColumns, rec.FileFormat, rec.TotalSizeMB, rec.RowCount, rec.FileCount).Scan(&inserted)
	if err != nil {
		return false, qlerrors.Wrap(err, qlerrors.ErrorTypeConnection, "upserting dataset").
			WithDetail("dataset_id", rec.DatasetID)
	}
	return inserted, nil
}

// List returns all persisted datasets ordered by path.
func (r *DatasetRepo) List(ctx context.Context, db DBTX) ([]models.DatasetRecord, error) {
	rows, err := db.Query(ctx, `
		SELECT dataset_id, dataset_path, dataset_type, columns, partition_columns,
		       sort_columns, file_format, total_size_mb, row_count, file_count
		FROM dataset_metadata
		ORDER BY dataset_path`)
	if err != nil {
		return nil, qlerrors.Wrap(err, qlerrors.ErrorTypeConnection, "listing datasets")
	}
	defer rows.Close()

	var out []models.DatasetRecord
	for rows.Next() {
		var rec models.DatasetRecord
		var columns []byte
		if err := rows.Scan(&rec.DatasetID, &rec.DatasetPath, &rec.DatasetType, &columns, &rec.PartitionColumns,
			&rec.SortColumns, &rec.FileFormat, &rec.TotalSizeMB, &rec.RowCount, &rec.FileCount); err != nil {
			return nil, qlerrors.Wrap(err, qlerrors.ErrorTypeData, "scanning dataset row")
		}
		if err := json.Unmarshal(columns, &rec.Columns); err != nil {
			return nil, qlerrors.Wrap(err, qlerrors.ErrorTypeData, "decoding dataset columns")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, qlerrors.Wrap(err, qlerrors.ErrorTypeConnection, "iterating dataset rows")
	}
	return out, nil
}

package loaders

import (
	"strings"

	qlerrors "github.com/querylens/querylens/pkg/errors"
	"github.com/querylens/querylens/pkg/json"
	"github.com/querylens/querylens/pkg/models"
)

// datasetPayload is the slice of a catalog entity the loader reads.
type datasetPayload struct {
	ID   string   `json:"id"`
	Path []string `json:"path"`
	Type string   `json:"type"`

	DatasetConfig struct {
		Fields []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"fields"`
		PartitionColumns []string `json:"partitionColumns"`
		SortColumns      []string `json:"sortColumns"`
		Format           string   `json:"format"`
	} `json:"datasetConfig"`
}

// IsDatasetType reports whether a catalog entity type names a dataset
// as opposed to a container (space, folder, source).
func IsDatasetType(entityType string) bool {
	switch entityType {
	case "DATASET", "PHYSICAL_DATASET", "VIRTUAL_DATASET":
		return true
	default:
		return false
	}
}

// DatasetFromRaw maps a raw catalog entity onto the canonical dataset
// record. Non-dataset entities yield a validation error so callers can
// skip containers without treating them as failures.
func DatasetFromRaw(raw json.RawMessage) (*models.DatasetRecord, error) {
	var payload datasetPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, qlerrors.Wrap(err, qlerrors.ErrorTypeData, "decoding catalog entity")
	}
	if payload.ID == "" {
		return nil, qlerrors.New(qlerrors.ErrorTypeData, "catalog entity carried no id")
	}
	if !IsDatasetType(payload.Type) {
		return nil, qlerrors.Newf(qlerrors.ErrorTypeValidation, "entity %s is a %s, not a dataset", payload.ID, payload.Type).
			WithDetail("dataset_id", payload.ID)
	}

	record := &models.DatasetRecord{
		DatasetID:        payload.ID,
		DatasetPath:      strings.Join(payload.Path, "."),
		DatasetType:      payload.Type,
		Columns:          make([]models.Column, 0, len(payload.DatasetConfig.Fields)),
		PartitionColumns: payload.DatasetConfig.PartitionColumns,
		SortColumns:      payload.DatasetConfig.SortColumns,
		FileFormat:       payload.DatasetConfig.Format,
	}
	for _, f := range payload.DatasetConfig.Fields {
		record.Columns = append(record.Columns, models.Column{Name: f.Name, Type: f.Type})
	}
	return record, nil
}

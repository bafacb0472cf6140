package loaders

import (
	qlerrors "github.com/querylens/querylens/pkg/errors"
	"github.com/querylens/querylens/pkg/json"
	"github.com/querylens/querylens/pkg/models"
)

const bytesPerMB = 1024 * 1024

// profilePayload is the slice of the raw profile the extractor reads.
// The full payload is preserved verbatim in the record; only these
// fields feed the derived metric columns.
type profilePayload struct {
	QueryProfile struct {
		MemoryAllocated float64 `json:"memoryAllocated"`
		PeakMemory      float64 `json:"peakMemory"`
		RowsScanned     int64   `json:"rowsScanned"`
		RowsReturned    int64   `json:"rowsReturned"`
		DataScanned     float64 `json:"dataScanned"`
		CPUTime         int64   `json:"cpuTime"`
		Runtime         int64   `json:"runtime"`
		SetupTime       int64   `json:"setupTime"`
		WaitTime        int64   `json:"waitTime"`
		DiskSpill       float64 `json:"diskSpill"`
	} `json:"queryProfile"`

	PlanPhases json.RawMessage `json:"planPhases"`

	Acceleration struct {
		Reflections []struct {
			ID string `json:"id"`
		} `json:"reflections"`
	} `json:"acceleration"`

	ScanInfo struct {
		TotalPartitions   int64 `json:"totalPartitions"`
		ScannedPartitions int64 `json:"scannedPartitions"`
	} `json:"scanInfo"`
}

// ProfileFromRaw extracts the metric columns from a raw execution
// profile. The raw payload is stored alongside the extracted values so
// later schema changes can re-derive them.
func ProfileFromRaw(jobID string, raw json.RawMessage) (*models.ProfileRecord, error) {
	var payload profilePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, qlerrors.Wrap(err, qlerrors.ErrorTypeData, "decoding execution profile").
			WithDetail("job_id", jobID)
	}

	qp := payload.QueryProfile
	record := &models.ProfileRecord{
		JobID:       jobID,
		ProfileJSON: raw,
		PlanJSON:    payload.PlanPhases,

		TotalMemoryMB: qp.MemoryAllocated / bytesPerMB,
		PeakMemoryMB:  qp.PeakMemory / bytesPerMB,
		RowsScanned:   qp.RowsScanned,
		RowsReturned:  qp.RowsReturned,
		DataScannedMB: qp.DataScanned / bytesPerMB,

		CPUTimeMS:   qp.CPUTime,
		RuntimeMS:   qp.Runtime,
		SetupTimeMS: qp.SetupTime,
		WaitTimeMS:  qp.WaitTime,
		DiskSpillMB: qp.DiskSpill / bytesPerMB,
	}

	if len(payload.Acceleration.Reflections) > 0 {
		record.ReflectionUsed = payload.Acceleration.Reflections[0].ID
		record.ReflectionHit = true
	}

	scanned := payload.ScanInfo.ScannedPartitions
	record.PartitionsScanned = scanned
	if total := payload.ScanInfo.TotalPartitions; total > scanned {
		record.PartitionsPruned = total - scanned
	}

	return record, nil
}

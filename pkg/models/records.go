// Package models defines the canonical records produced by the entity
// loaders and persisted by the store. Every record carries the
// provider-assigned natural key (job id, reflection id, dataset id);
// querylens never generates or mutates those keys.
package models

import (
	"time"

	"github.com/querylens/querylens/pkg/json"
)

// EntityType names one of the independent collection streams.
type EntityType string

const (
	EntityQueries     EntityType = "queries"
	EntityProfiles    EntityType = "profiles"
	EntityReflections EntityType = "reflections"
	EntityDatasets    EntityType = "datasets"
)

// EntityTypes lists the streams in collection order. Later streams
// depend on earlier ones (profiles need the queries just fetched), so
// the order is load-bearing.
var EntityTypes = []EntityType{EntityQueries, EntityProfiles, EntityReflections, EntityDatasets}

// QueryRecord is one row of query history. Append-only: once persisted
// it is never overwritten.
type QueryRecord struct {
	JobID      string     `json:"job_id"`
	SQLText    string     `json:"sql_text"`
	User       string     `json:"user"`
	QueueName  string     `json:"queue_name"`
	StartTime  *time.Time `json:"start_time"`
	EndTime    *time.Time `json:"end_time"`
	DurationMS *int64     `json:"duration_ms"`
	Status     string     `json:"status"`
}

// ProfileRecord is the execution profile of one query, with metrics
// extracted from the raw payload. Append-only.
type ProfileRecord struct {
	JobID       string          `json:"job_id"`
	ProfileJSON json.RawMessage `json:"profile_json"`
	PlanJSON    json.RawMessage `json:"plan_json"`

	// Memory and scan metrics
	TotalMemoryMB float64 `json:"total_memory_mb"`
	PeakMemoryMB  float64 `json:"peak_memory_mb"`
	RowsScanned   int64   `json:"rows_scanned"`
	RowsReturned  int64   `json:"rows_returned"`
	DataScannedMB float64 `json:"data_scanned_mb"`

	// Reflection usage
	ReflectionUsed string `json:"reflection_used"`
	ReflectionHit  bool   `json:"reflection_hit"`

	// Partition info
	PartitionsPruned  int64 `json:"partitions_pruned"`
	PartitionsScanned int64 `json:"partitions_scanned"`

	// Execution timings
	CPUTimeMS   int64   `json:"cpu_time_ms"`
	RuntimeMS   int64   `json:"runtime_ms"`
	SetupTimeMS int64   `json:"setup_time_ms"`
	WaitTimeMS  int64   `json:"wait_time_ms"`
	DiskSpillMB float64 `json:"disk_spill_mb"`
}

// ReflectionRecord describes one materialized acceleration structure.
// Mutable: every pass re-applies the provider's current state.
type ReflectionRecord struct {
	ReflectionID     string     `json:"reflection_id"`
	Name             string     `json:"reflection_name"`
	Type             string     `json:"reflection_type"` // AGGREGATION or RAW
	DatasetID        string     `json:"dataset_id"`
	DatasetPath      string     `json:"dataset_path"`
	HitCount         int64      `json:"hit_count"`
	LastUsed         *time.Time `json:"last_used"`
	RefreshFrequency string     `json:"refresh_frequency"`
	LastRefresh      *time.Time `json:"last_refresh"`
	SizeMB           float64    `json:"size_mb"`
}

// Column is one name/type pair of a dataset schema.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// DatasetRecord describes one catalog dataset. Mutable.
type DatasetRecord struct {
	DatasetID        string   `json:"dataset_id"`
	DatasetPath      string   `json:"dataset_path"`
	DatasetType      string   `json:"dataset_type"`
	Columns          []Column `json:"columns"`
	PartitionColumns []string `json:"partition_columns"`
	SortColumns      []string `json:"sort_columns"`
	FileFormat       string   `json:"file_format"`
	TotalSizeMB      float64  `json:"total_size_mb"`
	RowCount         int64    `json:"row_count"`
	FileCount        int64    `json:"file_count"`
}

// CollectionStats summarizes one pass: per-stream counts of newly
// inserted rows, refreshed rows (upsert streams), already-present rows
// left alone, and items that failed individually. Returned to the
// caller, never persisted.
type CollectionStats struct {
	PassID    string             `json:"pass_id"`
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration"`
	Inserted  map[EntityType]int `json:"inserted"`
	Updated   map[EntityType]int `json:"updated"`
	Skipped   map[EntityType]int `json:"skipped"`
	Failed    map[EntityType]int `json:"failed"`
}

// NewCollectionStats returns stats with zeroed counters for every stream.
func NewCollectionStats(passID string) *CollectionStats {
	stats := &CollectionStats{
		PassID:    passID,
		StartedAt: time.Now().UTC(),
		Inserted:  make(map[EntityType]int, len(EntityTypes)),
		Updated:   make(map[EntityType]int, len(EntityTypes)),
		Skipped:   make(map[EntityType]int, len(EntityTypes)),
		Failed:    make(map[EntityType]int, len(EntityTypes)),
	}
	for _, et := range EntityTypes {
		stats.Inserted[et] = 0
		stats.Updated[et] = 0
		stats.Skipped[et] = 0
		stats.Failed[et] = 0
	}
	return stats
}

// Total returns the sum of a counter map across all streams.
func (s *CollectionStats) Total(counts map[EntityType]int) int {
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}

// QueryCollectionResult reports what the single-query collection path
// newly created. False means the record already existed or the fetch
// failed.
type QueryCollectionResult struct {
	Query   bool `json:"query"`
	Profile bool `json:"profile"`
}

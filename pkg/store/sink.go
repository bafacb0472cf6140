package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/querylens/querylens/pkg/models"
)

// Sink is the write surface the collector drives. Each Store method
// lands its whole batch in one transaction, so a mid-batch failure
// rolls the stream back to nothing.
type Sink struct {
	store       *Store
	queries     *QueryRepo
	profiles    *ProfileRepo
	reflections *ReflectionRepo
	datasets    *DatasetRepo
}

// NewSink bundles the repositories behind the store's transactions.
func NewSink(s *Store) *Sink {
	return &Sink{
		store:       s,
		queries:     NewQueryRepo(),
		profiles:    NewProfileRepo(),
		reflections: NewReflectionRepo(),
		datasets:    NewDatasetRepo(),
	}
}

// StoreQueries inserts a batch of query records, skipping job ids that
// are already present.
func (s *Sink) StoreQueries(ctx context.Context, recs []*models.QueryRecord) (inserted, skipped int, err error) {
	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		for _, rec := range recs {
			ok, err := s.queries.Insert(ctx, tx, rec)
			if err != nil {
				return err
			}
			if ok {
				inserted++
			} else {
				skipped++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, skipped, nil
}

// HasProfile reports whether a profile already exists for the job.
func (s *Sink) HasProfile(ctx context.Context, jobID string) (bool, error) {
	return s.profiles.Exists(ctx, s.store.pool, jobID)
}

// StoreProfiles inserts a batch of profile records, skipping job ids
// that are already present.
func (s *Sink) StoreProfiles(ctx context.Context, recs []*models.ProfileRecord) (inserted, skipped int, err error) {
	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		for _, rec := range recs {
			ok, err := s.profiles.Insert(ctx, tx, rec)
			if err != nil {
				return err
			}
			if ok {
				inserted++
			} else {
				skipped++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, skipped, nil
}

// StoreReflections upserts a batch of reflection records.
func (s *Sink) StoreReflections(ctx context.Context, recs []*models.ReflectionRecord) (inserted, updated int, err error) {
	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		for _, rec := range recs {
			fresh, err := s.reflections.Upsert(ctx, tx, rec)
			if err != nil {
				return err
			}
			if fresh {
				inserted++
			} else {
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, updated, nil
}

// StoreDatasets upserts a batch of dataset records.
func (s *Sink) StoreDatasets(ctx context.Context, recs []*models.DatasetRecord) (inserted, updated int, err error) {
	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		for _, rec := range recs {
			fresh, err := s.datasets.Upsert(ctx, tx, rec)
			if err != nil {
				return err
			}
			if fresh {
				inserted++
			} else {
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, updated, nil
}

// RecentQueries returns the newest persisted queries.
func (s *Sink) RecentQueries(ctx context.Context, limit int) ([]models.QueryRecord, error) {
	return s.queries.Recent(ctx, s.store.pool, limit)
}

// SlowestQueries returns the longest-running persisted queries at or
// above the duration floor, in milliseconds.
func (s *Sink) SlowestQueries(ctx context.Context, minDurationMS int64, limit int) ([]models.QueryRecord, error) {
	return s.queries.Slowest(ctx, s.store.pool, minDurationMS, limit)
}

// QueriesByUser returns a user's newest persisted queries.
func (s *Sink) QueriesByUser(ctx context.Context, user string, limit int) ([]models.QueryRecord, error) {
	return s.queries.ByUser(ctx, s.store.pool, user, limit)
}

// ListReflections returns all persisted reflections.
func (s *Sink) ListReflections(ctx context.Context) ([]models.ReflectionRecord, error) {
	return s.reflections.List(ctx, s.store.pool)
}

// ListDatasets returns all persisted datasets.
func (s *Sink) ListDatasets(ctx context.Context) ([]models.DatasetRecord, error) {
	return s.datasets.List(ctx, s.store.pool)
}

// Package collector drives collection passes: fetch each telemetry
// stream from the engine, transform it, and land it in the store. The
// four streams run sequentially; a failed stream contributes nothing
// but never blocks the streams after it.
package collector

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/querylens/querylens/pkg/config"
	"github.com/querylens/querylens/pkg/dremio"
	qlerrors "github.com/querylens/querylens/pkg/errors"
	"github.com/querylens/querylens/pkg/json"
	"github.com/querylens/querylens/pkg/loaders"
	"github.com/querylens/querylens/pkg/logger"
	"github.com/querylens/querylens/pkg/metrics"
	"github.com/querylens/querylens/pkg/models"
)

// Engine is the slice of the gateway the orchestrator drives.
type Engine interface {
	QueryHistory(ctx context.Context, limit, offset int) ([]dremio.JobSummary, error)
	QueryProfile(ctx context.Context, jobID string) (json.RawMessage, error)
	QuerySQL(ctx context.Context, jobID string) (*dremio.JobSummary, error)
	Reflections(ctx context.Context) ([]dremio.Reflection, error)
	SearchDatasets(ctx context.Context, limit int) ([]json.RawMessage, error)
}

// Sink is the transactional write surface. Each Store method commits
// its whole batch or nothing.
type Sink interface {
	StoreQueries(ctx context.Context, recs []*models.QueryRecord) (inserted, skipped int, err error)
	HasProfile(ctx context.Context, jobID string) (bool, error)
	StoreProfiles(ctx context.Context, recs []*models.ProfileRecord) (inserted, skipped int, err error)
	StoreReflections(ctx context.Context, recs []*models.ReflectionRecord) (inserted, updated int, err error)
	StoreDatasets(ctx context.Context, recs []*models.DatasetRecord) (inserted, updated int, err error)
}

// Orchestrator owns the pass lifecycle.
type Orchestrator struct {
	engine Engine
	sink   Sink
	cfg    config.CollectionConfig
	logger *zap.Logger
}

// New wires an orchestrator.
func New(engine Engine, sink Sink, cfg config.CollectionConfig, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		engine: engine,
		sink:   sink,
		cfg:    cfg,
		logger: log.With(zap.String("component", "orchestrator")),
	}
}

// RunPass executes one full collection pass: queries, then profiles for
// the newest of those queries, then reflections, then datasets. The
// returned stats are always populated. Stream-level failures are logged
// and counted but only fail the pass when every stream failed, which
// means the engine or the store was unreachable for the whole pass.
func (o *Orchestrator) RunPass(ctx context.Context) (*models.CollectionStats, error) {
	passID := uuid.NewString()
	stats := models.NewCollectionStats(passID)
	start := time.Now()

	ctx = context.WithValue(ctx, logger.PassIDKey, passID)
	log := o.logger.With(zap.String("pass_id", passID))
	log.Info("collection pass starting")

	var errs error
	failedStreams := 0
	const streamCount = 4

	summaries, qErr := o.collectQueries(ctx, log, stats)
	if qErr != nil {
		errs = multierr.Append(errs, qErr)
		failedStreams++
	}
	if qErr != nil && len(summaries) == 0 {
		// Nothing fetched, so the profile stream has no batch to work on.
		failedStreams++
	} else if err := o.collectProfiles(ctx, log, stats, summaries); err != nil {
		errs = multierr.Append(errs, err)
		failedStreams++
	}
	if err := o.collectReflections(ctx, log, stats); err != nil {
		errs = multierr.Append(errs, err)
		failedStreams++
	}
	if err := o.collectDatasets(ctx, log, stats); err != nil {
		errs = multierr.Append(errs, err)
		failedStreams++
	}

	stats.Duration = time.Since(start)
	metrics.PassDuration.Observe(stats.Duration.Seconds())
	result := "success"
	switch {
	case failedStreams == streamCount:
		result = "failure"
	case errs != nil:
		result = "partial"
	}
	metrics.PassesTotal.WithLabelValues(result).Inc()

	log.Info("collection pass finished",
		zap.Duration("duration", stats.Duration),
		zap.Int("inserted", stats.Total(stats.Inserted)),
		zap.Int("updated", stats.Total(stats.Updated)),
		zap.Int("skipped", stats.Total(stats.Skipped)),
		zap.Int("failed", stats.Total(stats.Failed)),
		zap.String("result", result))
	if failedStreams < streamCount {
		return stats, nil
	}
	return stats, errs
}

// collectQueries fetches and lands the query history stream, returning
// the fetched summaries so the profile stream can reuse them.
func (o *Orchestrator) collectQueries(ctx context.Context, log *zap.Logger, stats *models.CollectionStats) ([]dremio.JobSummary, error) {
	summaries, err := o.engine.QueryHistory(ctx, o.cfg.QueryLimit, 0)
	if err != nil {
		log.Error("query history fetch failed", zap.Error(err))
		return nil, qlerrors.Wrap(err, qlerrors.TypeOf(err), "collecting queries")
	}

	records := make([]*models.QueryRecord, 0, len(summaries))
	for i := range summaries {
		summary := &summaries[i]
		if summary.ID == "" {
			stats.Failed[models.EntityQueries]++
			metrics.RecordsTotal.WithLabelValues(string(models.EntityQueries), "failed").Inc()
			continue
		}
		records = append(records, loaders.QueryFromSummary(summary))
	}

	inserted, skipped, err := o.sink.StoreQueries(ctx, records)
	if err != nil {
		log.Error("query batch store failed", zap.Error(err))
		return summaries, qlerrors.Wrap(err, qlerrors.TypeOf(err), "storing queries")
	}
	stats.Inserted[models.EntityQueries] = inserted
	stats.Skipped[models.EntityQueries] = skipped
	metrics.RecordsTotal.WithLabelValues(string(models.EntityQueries), "inserted").Add(float64(inserted))
	metrics.RecordsTotal.WithLabelValues(string(models.EntityQueries), "skipped").Add(float64(skipped))
	log.Debug("queries collected", zap.Int("inserted", inserted), zap.Int("skipped", skipped))
	return summaries, nil
}

// collectProfiles fetches execution profiles for the newest queries of
// the pass. A single bad profile is logged and counted, never fatal.
func (o *Orchestrator) collectProfiles(ctx context.Context, log *zap.Logger, stats *models.CollectionStats, summaries []dremio.JobSummary) error {
	limit := o.cfg.ProfileLimit
	if limit > len(summaries) {
		limit = len(summaries)
	}

	records := make([]*models.ProfileRecord, 0, limit)
	for _, summary := range summaries[:limit] {
		if summary.ID == "" {
			continue
		}
		exists, err := o.sink.HasProfile(ctx, summary.ID)
		if err != nil {
			log.Error("profile existence check failed", zap.String("job_id", summary.ID), zap.Error(err))
			return qlerrors.Wrap(err, qlerrors.TypeOf(err), "checking stored profiles")
		}
		if exists {
			stats.Skipped[models.EntityProfiles]++
			metrics.RecordsTotal.WithLabelValues(string(models.EntityProfiles), "skipped").Inc()
			continue
		}

		raw, err := o.engine.QueryProfile(ctx, summary.ID)
		if err != nil {
			stats.Failed[models.EntityProfiles]++
			metrics.RecordsTotal.WithLabelValues(string(models.EntityProfiles), "failed").Inc()
			log.Warn("profile fetch failed", zap.String("job_id", summary.ID), zap.Error(err))
			continue
		}
		record, err := loaders.ProfileFromRaw(summary.ID, raw)
		if err != nil {
			stats.Failed[models.EntityProfiles]++
			metrics.RecordsTotal.WithLabelValues(string(models.EntityProfiles), "failed").Inc()
			log.Warn("profile transform failed", zap.String("job_id", summary.ID), zap.Error(err))
			continue
		}
		records = append(records, record)
	}

	inserted, skipped, err := o.sink.StoreProfiles(ctx, records)
	if err != nil {
		log.Error("profile batch store failed", zap.Error(err))
		return qlerrors.Wrap(err, qlerrors.TypeOf(err), "storing profiles")
	}
	stats.Inserted[models.EntityProfiles] = inserted
	stats.Skipped[models.EntityProfiles] += skipped
	metrics.RecordsTotal.WithLabelValues(string(models.EntityProfiles), "inserted").Add(float64(inserted))
	log.Debug("profiles collected", zap.Int("inserted", inserted),
		zap.Int("skipped", stats.Skipped[models.EntityProfiles]),
		zap.Int("failed", stats.Failed[models.EntityProfiles]))
	return nil
}

// collectReflections fetches and upserts the reflection stream.
func (o *Orchestrator) collectReflections(ctx context.Context, log *zap.Logger, stats *models.CollectionStats) error {
	reflections, err := o.engine.Reflections(ctx)
	if err != nil {
		log.Error("reflection fetch failed", zap.Error(err))
		return qlerrors.Wrap(err, qlerrors.TypeOf(err), "collecting reflections")
	}

	records := make([]*models.ReflectionRecord, 0, len(reflections))
	for i := range reflections {
		refl := &reflections[i]
		if refl.ID == "" {
			stats.Failed[models.EntityReflections]++
			metrics.RecordsTotal.WithLabelValues(string(models.EntityReflections), "failed").Inc()
			continue
		}
		records = append(records, loaders.ReflectionFromWire(refl))
	}

	inserted, updated, err := o.sink.StoreReflections(ctx, records)
	if err != nil {
		log.Error("reflection batch store failed", zap.Error(err))
		return qlerrors.Wrap(err, qlerrors.TypeOf(err), "storing reflections")
	}
	stats.Inserted[models.EntityReflections] = inserted
	stats.Updated[models.EntityReflections] = updated
	metrics.RecordsTotal.WithLabelValues(string(models.EntityReflections), "inserted").Add(float64(inserted))
	metrics.RecordsTotal.WithLabelValues(string(models.EntityReflections), "updated").Add(float64(updated))
	log.Debug("reflections collected", zap.Int("inserted", inserted), zap.Int("updated", updated))
	return nil
}

// collectDatasets fetches catalog entities and upserts the datasets
// among them. Containers are skipped without counting as failures.
func (o *Orchestrator) collectDatasets(ctx context.Context, log *zap.Logger, stats *models.CollectionStats) error {
	entities, err := o.engine.SearchDatasets(ctx, o.cfg.DatasetLimit)
	if err != nil {
		log.Error("dataset fetch failed", zap.Error(err))
		return qlerrors.Wrap(err, qlerrors.TypeOf(err), "collecting datasets")
	}

	records := make([]*models.DatasetRecord, 0, len(entities))
	for _, raw := range entities {
		record, err := loaders.DatasetFromRaw(raw)
		if err != nil {
			if qlerrors.IsType(err, qlerrors.ErrorTypeValidation) {
				stats.Skipped[models.EntityDatasets]++
				metrics.RecordsTotal.WithLabelValues(string(models.EntityDatasets), "skipped").Inc()
				continue
			}
			stats.Failed[models.EntityDatasets]++
			metrics.RecordsTotal.WithLabelValues(string(models.EntityDatasets), "failed").Inc()
			log.Warn("dataset transform failed", zap.Error(err))
			continue
		}
		records = append(records, record)
	}

	inserted, updated, err := o.sink.StoreDatasets(ctx, records)
	if err != nil {
		log.Error("dataset batch store failed", zap.Error(err))
		return qlerrors.Wrap(err, qlerrors.TypeOf(err), "storing datasets")
	}
	stats.Inserted[models.EntityDatasets] = inserted
	stats.Updated[models.EntityDatasets] = updated
	metrics.RecordsTotal.WithLabelValues(string(models.EntityDatasets), "inserted").Add(float64(inserted))
	metrics.RecordsTotal.WithLabelValues(string(models.EntityDatasets), "updated").Add(float64(updated))
	log.Debug("datasets collected", zap.Int("inserted", inserted), zap.Int("updated", updated))
	return nil
}

// CollectQuery collects the history entry and execution profile of one
// job. Safe to repeat: records that already exist are left untouched.
func (o *Orchestrator) CollectQuery(ctx context.Context, jobID string) (*models.QueryCollectionResult, error) {
	if jobID == "" {
		return nil, qlerrors.New(qlerrors.ErrorTypeValidation, "job id is required")
	}
	ctx = context.WithValue(ctx, logger.JobIDKey, jobID)
	result := &models.QueryCollectionResult{}

	summary, err := o.engine.QuerySQL(ctx, jobID)
	if err != nil {
		return nil, qlerrors.Wrap(err, qlerrors.TypeOf(err), "fetching job summary")
	}

	inserted, _, err := o.sink.StoreQueries(ctx, []*models.QueryRecord{loaders.QueryFromSummary(summary)})
	if err != nil {
		return nil, qlerrors.Wrap(err, qlerrors.TypeOf(err), "storing query")
	}
	result.Query = inserted > 0

	exists, err := o.sink.HasProfile(ctx, jobID)
	if err != nil {
		return nil, qlerrors.Wrap(err, qlerrors.TypeOf(err), "checking stored profiles")
	}
	if exists {
		return result, nil
	}

	raw, err := o.engine.QueryProfile(ctx, jobID)
	if err != nil {
		// The query record stands on its own; a missing profile is
		// reported but does not undo it.
		o.logger.Warn("profile fetch failed", zap.String("job_id", jobID), zap.Error(err))
		return result, nil
	}
	record, err := loaders.ProfileFromRaw(jobID, raw)
	if err != nil {
		o.logger.Warn("profile transform failed", zap.String("job_id", jobID), zap.Error(err))
		return result, nil
	}

	inserted, _, err = o.sink.StoreProfiles(ctx, []*models.ProfileRecord{record})
	if err != nil {
		return nil, qlerrors.Wrap(err, qlerrors.TypeOf(err), "storing profile")
	}
	result.Profile = inserted > 0
	return result, nil
}

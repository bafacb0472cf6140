package collector

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Runner executes collection passes on a timer. A zero interval means
// one pass and done.
type Runner struct {
	orch     *Orchestrator
	interval time.Duration
	logger   *zap.Logger
}

// NewRunner wires a runner around an orchestrator.
func NewRunner(orch *Orchestrator, interval time.Duration, log *zap.Logger) *Runner {
	return &Runner{
		orch:     orch,
		interval: interval,
		logger:   log.With(zap.String("component", "runner")),
	}
}

// Run executes passes until the context is canceled. The first pass
// starts immediately. A failed pass is logged and the timer keeps
// going; transient engine trouble should not kill the service.
func (r *Runner) Run(ctx context.Context) error {
	for {
		stats, err := r.orch.RunPass(ctx)
		if err != nil {
			r.logger.Error("collection pass had failures",
				zap.String("pass_id", stats.PassID),
				zap.Error(err))
		}

		if r.interval <= 0 {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.interval):
		}
	}
}

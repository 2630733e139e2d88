package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/medbridge/satusehat-bridge/internal/domain"
)

// Runner invokes the pipeline on a fixed interval. A tick that fires while
// a previous run (scheduled or manually triggered) is still executing is
// dropped rather than queued: the next tick picks up whatever is left,
// since unprocessed candidates stay unmarked.
type Runner struct {
	pipeline *Pipeline
	interval time.Duration
	logger   *zap.Logger
}

func NewRunner(p *Pipeline, interval time.Duration, logger *zap.Logger) *Runner {
	return &Runner{pipeline: p, interval: interval, logger: logger}
}

// Run ticks every interval until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("bridging runner started", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("bridging runner stopping")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	_, err := r.pipeline.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrRunInProgress):
		r.logger.Debug("previous bridging run still executing, tick skipped")
	case errors.Is(err, domain.ErrAuth):
		r.logger.Error("bridging run aborted: credential exchange failed", zap.Error(err))
	default:
		r.logger.Error("bridging run aborted", zap.Error(err))
	}
}

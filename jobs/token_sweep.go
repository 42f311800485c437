package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/fynity/fynity/internal/jobs"
)

// TokenSweeper removes refresh registry rows that expired before now-retention.
type TokenSweeper interface {
	Sweep(ctx context.Context, retention time.Duration) (int64, error)
}

// TokenSweepJob handles TaskTokenSweep.
type TokenSweepJob struct {
	Sweeper TokenSweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewTokenSweepJob wires the sweep handler.
func NewTokenSweepJob(sweeper TokenSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *TokenSweepJob {
	return &TokenSweepJob{Sweeper: sweeper, Logger: logger, Metrics: metrics}
}

// Handle runs one sweep.
func (j *TokenSweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sweeper == nil {
		return errors.New("token sweep: handler not configured")
	}
	var payload TokenSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	retention := payload.Retention()

	tracker := j.Metrics.Track(TaskTokenSweep)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.Duration("retention", retention))
	deleted, err := j.Sweeper.Sweep(ctx, retention)
	if err != nil {
		logger.Error("token sweep failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddSwept(deleted)
	logger.Info("token sweep finished", slog.Int64("deleted", deleted))
	return nil
}

func (j *TokenSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

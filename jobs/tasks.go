package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTokenSweep deletes expired refresh registry rows.
	TaskTokenSweep = "auth:token_sweep"
)

// DefaultSweepRetention keeps expired refresh rows around for a day so reuse
// of a just-expired token is still attributed to its family.
const DefaultSweepRetention = 24 * time.Hour

// TokenSweepPayload carries the retention applied by a single sweep run.
type TokenSweepPayload struct {
	RetentionSeconds int64 `json:"retention_seconds"`
}

// Retention converts the payload back to a duration, falling back to the default.
func (p TokenSweepPayload) Retention() time.Duration {
	if p.RetentionSeconds <= 0 {
		return DefaultSweepRetention
	}
	return time.Duration(p.RetentionSeconds) * time.Second
}

// NewTokenSweepTask builds a sweep task for the default queue.
func NewTokenSweepTask(retention time.Duration) (*asynq.Task, error) {
	payload := TokenSweepPayload{RetentionSeconds: int64(retention / time.Second)}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTokenSweep, body, asynq.Queue(QueueDefault)), nil
}

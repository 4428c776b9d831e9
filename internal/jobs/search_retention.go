package jobs

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// SearchLogRetentionName names the search log retention job.
const SearchLogRetentionName = "search-log-retention"

var errMissingTrimmer = errors.New("jobs: search log trimmer is required")

// LogTrimmer drops search log entries older than a retention window.
type LogTrimmer interface {
	TrimLogs(ctx context.Context, retention time.Duration) (int, error)
}

// SearchLogRetention trims the search log on a schedule.
type SearchLogRetention struct {
	trimmer   LogTrimmer
	retention time.Duration
	schedule  string
	logger    *zap.Logger
}

// NewSearchLogRetention constructs the retention job.
func NewSearchLogRetention(trimmer LogTrimmer, retention time.Duration, schedule string, logger *zap.Logger) (*SearchLogRetention, error) {
	if trimmer == nil {
		return nil, errMissingTrimmer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchLogRetention{trimmer: trimmer, retention: retention, schedule: schedule, logger: logger}, nil
}

// Name implements CronJob.
func (j *SearchLogRetention) Name() string {
	return SearchLogRetentionName
}

// Schedule implements CronJob.
func (j *SearchLogRetention) Schedule() string {
	return j.schedule
}

// Run implements CronJob.
func (j *SearchLogRetention) Run(ctx context.Context) error {
	removed, err := j.trimmer.TrimLogs(ctx, j.retention)
	if err != nil {
		return err
	}
	j.logger.Info("search log retention applied",
		zap.Duration("retention", j.retention),
		zap.Int("removed", removed),
	)
	return nil
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	cron "github.com/robfig/cron"
	"go.uber.org/zap"
)

var (
	// ErrUnknownJob indicates RunOnce was asked for a job the runner does not hold.
	ErrUnknownJob = errors.New("jobs: unknown job")
	// ErrInvalidSchedule indicates a cron expression the scheduler cannot parse.
	ErrInvalidSchedule = errors.New("jobs: invalid schedule")
	// ErrDuplicateJob indicates two jobs registered under one name.
	ErrDuplicateJob = errors.New("jobs: duplicate job name")
)

// CronJob is a named maintenance task with a cron schedule.
type CronJob interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

// RunnerConfig describes the jobs and logger of a runner.
type RunnerConfig struct {
	Jobs   []CronJob
	Logger *zap.Logger
}

// Runner schedules cron jobs and never runs the same job twice at once.
type Runner struct {
	cron    *cron.Cron
	jobs    map[string]CronJob
	order   []string
	running mapset.Set[string]
	logger  *zap.Logger

	mu      sync.Mutex
	started bool
}

// NewRunner validates every schedule and returns an idle runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	jobs := make(map[string]CronJob, len(cfg.Jobs))
	order := make([]string, 0, len(cfg.Jobs))
	for _, job := range cfg.Jobs {
		name := strings.TrimSpace(job.Name())
		if _, duplicate := jobs[name]; duplicate {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, name)
		}
		if _, err := cron.Parse(job.Schedule()); err != nil {
			return nil, fmt.Errorf("%w: %s %q: %v", ErrInvalidSchedule, name, job.Schedule(), err)
		}
		jobs[name] = job
		order = append(order, name)
	}
	return &Runner{
		cron:    cron.New(),
		jobs:    jobs,
		order:   order,
		running: mapset.NewSet[string](),
		logger:  logger,
	}, nil
}

// Names lists the registered jobs in registration order.
func (r *Runner) Names() []string {
	return append([]string(nil), r.order...)
}

// Start registers every job with the scheduler and starts it. Jobs run with ctx.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	for _, name := range r.order {
		job := r.jobs[name]
		err := r.cron.AddFunc(job.Schedule(), func() {
			if _, err := r.execute(ctx, job); err != nil {
				r.logger.Error("scheduled job failed", zap.String("job", job.Name()), zap.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidSchedule, name, err)
		}
		r.logger.Info("job scheduled", zap.String("job", name), zap.String("schedule", job.Schedule()))
	}
	r.cron.Start()
	r.started = true
	return nil
}

// Stop halts the scheduler. Running jobs finish on their own.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	r.logger.Info("stopping scheduled jobs")
	r.cron.Stop()
	r.started = false
}

// RunOnce executes the named job immediately. It reports false without
// running when the job is already in progress.
func (r *Runner) RunOnce(ctx context.Context, name string) (bool, error) {
	job, ok := r.jobs[strings.TrimSpace(name)]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return r.execute(ctx, job)
}

func (r *Runner) execute(ctx context.Context, job CronJob) (bool, error) {
	name := job.Name()
	if !r.running.Add(name) {
		r.logger.Warn("job already running, skipping", zap.String("job", name))
		return false, nil
	}
	defer r.running.Remove(name)
	if err := job.Run(ctx); err != nil {
		return true, err
	}
	return true, nil
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"tutordesk/internal/metrics"

	"github.com/robfig/cron/v3"
)

// Job is one unit of scheduled work. Run returns how many students it matched.
type Job interface {
	Name() string
	Run(ctx context.Context) (int, error)
}

var ErrJobNotFound = errors.New("job not found")

type JobResult struct {
	Job        string        `json:"job"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"durationMs"`
	Matched    int           `json:"matched"`
	Skipped    bool          `json:"skipped,omitempty"`
	Error      string        `json:"error,omitempty"`
}

type JobInfo struct {
	Name       string     `json:"name"`
	Schedule   string     `json:"schedule,omitempty"`
	NextRun    *time.Time `json:"nextRun,omitempty"`
	LastResult *JobResult `json:"lastResult,omitempty"`
}

type Options struct {
	Location *time.Location
	Locker   Locker
	LockTTL  time.Duration
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

type scheduledJob struct {
	job      Job
	schedule string
	entry    cron.EntryID
}

type Scheduler struct {
	mu      sync.RWMutex
	cron    *cron.Cron
	jobs    map[string]*scheduledJob
	results map[string]JobResult

	locker  Locker
	lockTTL time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func New(opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Locker == nil {
		opts.Locker = NewLocalLocker()
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}

	cl := cronLogger{logger: opts.Logger}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:    make(map[string]*scheduledJob),
		results: make(map[string]JobResult),
		locker:  opts.Locker,
		lockTTL: opts.LockTTL,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds a job. An empty spec registers it for manual runs only.
func (s *Scheduler) Register(spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %q already registered", job.Name())
	}

	sj := &scheduledJob{job: job, schedule: spec}
	if spec != "" {
		id, err := s.cron.AddFunc(spec, func() {
			_, _ = s.execute(s.ctx, job)
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q for job %s: %w", spec, job.Name(), err)
		}
		sj.entry = id
	}
	s.jobs[job.Name()] = sj

	s.logger.Info("job registered", "job", job.Name(), "schedule", spec)
	return nil
}

func (s *Scheduler) Start() {
	s.logger.Info("scheduler starting", "jobs", len(s.jobs))
	s.cron.Start()
}

// Stop halts the cron loop and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("scheduler stopping")
	done := s.cron.Stop()
	defer s.cancel()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunJob runs a registered job immediately, under the same lock as scheduled runs.
func (s *Scheduler) RunJob(ctx context.Context, name string) (JobResult, error) {
	s.mu.RLock()
	sj, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.execute(ctx, sj.job)
}

func (s *Scheduler) execute(ctx context.Context, job Job) (JobResult, error) {
	name := job.Name()
	result := JobResult{Job: name, StartedAt: s.now()}

	unlock, acquired, err := s.locker.TryLock(ctx, "scheduler:"+name, s.lockTTL)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to acquire job lock", "job", name, "error", err)
		result.Error = err.Error()
		s.store(result)
		return result, nil
	}
	if !acquired {
		s.logger.InfoContext(ctx, "job already running elsewhere, skipping", "job", name)
		result.Skipped = true
		s.store(result)
		return result, nil
	}
	defer unlock()

	s.logger.InfoContext(ctx, "job started", "job", name)
	matched, runErr := job.Run(ctx)

	result.Duration = time.Since(result.StartedAt)
	result.DurationMs = result.Duration.Milliseconds()
	result.Matched = matched
	if runErr != nil {
		result.Error = runErr.Error()
		s.logger.ErrorContext(ctx, "job failed", "job", name, "duration", result.Duration, "error", runErr)
	} else {
		s.logger.InfoContext(ctx, "job completed", "job", name, "duration", result.Duration, "matched", matched)
	}

	s.metrics.RecordSchedulerRun(ctx, name, matched, runErr)
	s.store(result)
	return result, nil
}

func (s *Scheduler) store(result JobResult) {
	s.mu.Lock()
	s.results[result.Job] = result
	s.mu.Unlock()
}

// Jobs lists registered jobs with their last result, sorted by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		info := JobInfo{Name: name, Schedule: sj.schedule}
		if sj.entry != 0 {
			if next := s.cron.Entry(sj.entry).Next; !next.IsZero() {
				info.NextRun = &next
			}
		}
		if r, ok := s.results[name]; ok {
			r := r
			info.LastResult = &r
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

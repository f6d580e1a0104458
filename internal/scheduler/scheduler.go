package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job represents a scheduled task
type Job func(ctx context.Context) error

// Scheduler runs jobs on cron schedules. Runs of the same job never overlap.
type Scheduler struct {
	cron       *cron.Cron
	logger     *zap.Logger
	jobTimeout time.Duration

	mu   sync.Mutex
	jobs map[string]cron.EntryID
	base context.Context
}

// New creates a new scheduler with the given timezone. An empty timezone
// means local time.
func New(timezone string, logger *zap.Logger) (*Scheduler, error) {
	loc := time.Local
	if timezone != "" {
		var err error
		if loc, err = time.LoadLocation(timezone); err != nil {
			return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cron:       cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:     logger.Named("scheduler"),
		jobTimeout: 2 * time.Hour,
		jobs:       make(map[string]cron.EntryID),
		base:       context.Background(),
	}, nil
}

// AddJob adds a job with a cron schedule
// schedule format: "0 7 * * *" (at 7:00 AM daily)
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.mu.Lock()
	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old)
	}
	s.jobs[name] = entryID
	s.mu.Unlock()

	s.logger.Info("added job", zap.String("job", name), zap.String("schedule", schedule))
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	s.mu.Lock()
	base := s.base
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(base, s.jobTimeout)
	defer cancel()

	log := s.logger.With(zap.String("job", name))
	log.Info("starting job")
	start := time.Now()

	if err := job(ctx); err != nil {
		log.Error("job failed", zap.Bool("ok", false), zap.Error(err))
		return
	}
	log.Info("job completed", zap.Bool("ok", true), zap.Duration("elapsed", time.Since(start)))
}

// DailySpec turns "HH:MM" into a daily cron spec.
func DailySpec(at string) (string, error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return "", fmt.Errorf("invalid time format %s: %w", at, err)
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}

// AddDailyJob adds a job that runs every day at a specific time
// timeStr format: "09:30"
func (s *Scheduler) AddDailyJob(name, timeStr string, job Job) error {
	schedule, err := DailySpec(timeStr)
	if err != nil {
		return err
	}
	return s.AddJob(name, schedule, job)
}

// RemoveJob removes a scheduled job
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		s.logger.Info("removed job", zap.String("job", name))
	}
}

// Start begins running scheduled jobs. Jobs get contexts derived from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()
	s.logger.Info("starting scheduler")
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("stopping scheduler")
	return s.cron.Stop()
}

// RunNow immediately executes a job outside its schedule.
func (s *Scheduler) RunNow(name string, job Job) {
	s.logger.Info("running job now", zap.String("job", name))
	s.run(name, job)
}

// ListJobs returns info about scheduled jobs
func (s *Scheduler) ListJobs() []JobInfo {
	entries := s.cron.Entries()

	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]JobInfo, 0, len(s.jobs))
	for name, entryID := range s.jobs {
		for _, entry := range entries {
			if entry.ID == entryID {
				infos = append(infos, JobInfo{
					Name:    name,
					NextRun: entry.Next,
					LastRun: entry.Prev,
				})
				break
			}
		}
	}
	return infos
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}

// RunUntil starts the scheduler and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) RunUntil(ctx context.Context) error {
	s.Start(ctx)
	for _, j := range s.ListJobs() {
		s.logger.Info("next run", zap.String("job", j.Name), zap.Time("at", j.NextRun))
	}
	<-ctx.Done()
	<-s.Stop().Done()
	return ctx.Err()
}

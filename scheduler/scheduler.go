// Package scheduler drives automatic pushes and backups of an engine on a
// cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hupe1980/vecsync/backup"
)

// Job names.
const (
	JobAutoPush = "auto-push"
	JobBackup   = "backup"
)

const stopTimeout = 30 * time.Second

// frequencyCheck is how often a frequency-driven backup job asks the target
// whether a backup is due.
const frequencyCheck = time.Hour

// Target is what the scheduler drives. *vecsync.Engine satisfies it.
type Target interface {
	// Dirty reports whether local writes happened since the last push or pull.
	Dirty() bool
	SyncPush(ctx context.Context) error
	CreateBackup(ctx context.Context) (backup.Info, error)
	PruneBackups(ctx context.Context, keep int) (int, error)
	// BackupDue reports whether the backup frequency elapsed since the last backup.
	BackupDue(now time.Time) bool
}

// Config selects the jobs to run. A zero AutoSyncInterval disables the
// push job; an empty BackupSchedule together with zero BackupFrequencyDays
// disables the backup job. Without a BackupSchedule the backup job checks
// hourly and only backs up when the target reports it due.
type Config struct {
	AutoSyncInterval time.Duration
	// BackupSchedule is a standard 5-field cron spec or descriptor such as "@daily".
	BackupSchedule      string
	BackupFrequencyDays int
	// Prune after each backup, keeping the configured number of backups.
	Prune  bool
	Logger *slog.Logger
}

// JobStatus is the outcome of a job's runs so far.
type JobStatus struct {
	Name     string
	Schedule string
	Runs     int
	Failures int
	LastRun  time.Time
	LastErr  error
	NextRun  time.Time
}

// Scheduler runs jobs against a Target.
type Scheduler struct {
	target Target
	cfg    Config
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.RWMutex
	jobs    map[string]func(context.Context) error
	entries map[string]cron.EntryID
	status  map[string]JobStatus
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// New validates cfg and registers its jobs. Nothing runs until Start.
func New(target Target, cfg Config) (*Scheduler, error) {
	if target == nil {
		return nil, errors.New("scheduler: nil target")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cl := cronLogger{logger}

	s := &Scheduler{
		target:  target,
		cfg:     cfg,
		logger:  logger,
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		jobs:    make(map[string]func(context.Context) error),
		entries: make(map[string]cron.EntryID),
		status:  make(map[string]JobStatus),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if cfg.AutoSyncInterval > 0 {
		if err := s.register(JobAutoPush, fmt.Sprintf("@every %s", cfg.AutoSyncInterval), s.autoPush); err != nil {
			return nil, err
		}
	}
	if spec := backupSpec(cfg); spec != "" {
		if err := s.register(JobBackup, spec, s.backup); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func backupSpec(cfg Config) string {
	if cfg.BackupSchedule != "" {
		return cfg.BackupSchedule
	}
	if cfg.BackupFrequencyDays > 0 {
		return fmt.Sprintf("@every %s", frequencyCheck)
	}
	return ""
}

func (s *Scheduler) register(name, spec string, fn func(context.Context) error) error {
	id, err := s.cron.AddFunc(spec, func() {
		_ = s.execute(s.ctx, name, fn)
	})
	if err != nil {
		return fmt.Errorf("scheduler: job %s: invalid schedule %q: %w", name, spec, err)
	}
	s.jobs[name] = fn
	s.entries[name] = id
	s.status[name] = JobStatus{Name: name, Schedule: spec}
	s.logger.Info("scheduled job", "job", name, "schedule", spec)
	return nil
}

func (s *Scheduler) autoPush(ctx context.Context) error {
	if !s.target.Dirty() {
		return nil
	}
	return s.target.SyncPush(ctx)
}

func (s *Scheduler) backup(ctx context.Context) error {
	if s.cfg.BackupSchedule == "" && !s.target.BackupDue(time.Now()) {
		s.logger.Debug("backup not due", "frequency_days", s.cfg.BackupFrequencyDays)
		return nil
	}
	info, err := s.target.CreateBackup(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("scheduled backup created", "name", info.Name)
	if !s.cfg.Prune {
		return nil
	}
	n, err := s.target.PruneBackups(ctx, -1)
	if n > 0 {
		s.logger.Info("pruned backups", "deleted", n)
	}
	return err
}

func (s *Scheduler) execute(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)

	s.mu.Lock()
	st := s.status[name]
	st.Runs++
	st.LastRun = start
	st.LastErr = err
	if err != nil {
		st.Failures++
	}
	s.status[name] = st
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("job failed", "job", name, "error", err, "duration", time.Since(start))
	} else {
		s.logger.Debug("job finished", "job", name, "duration", time.Since(start))
	}
	return err
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler: already running")
	}
	s.cron.Start()
	s.running = true
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-time.After(stopTimeout):
		s.logger.Warn("scheduler stop timed out")
	}
}

// RunNow runs a registered job synchronously and returns its error.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	fn, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("scheduler: job %s not found", name)
	}
	return s.execute(ctx, name, fn)
}

// Status returns the status of every registered job, sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]JobStatus, 0, len(s.status))
	for name, st := range s.status {
		if id, ok := s.entries[name]; ok {
			st.NextRun = s.cron.Entry(id).Next
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultCleanupSchedule is used when no pairing cleanup schedule is configured.
const DefaultCleanupSchedule = "@every 5m"

// jobTimeout bounds a single job run.
const jobTimeout = 30 * time.Second

// ErrInvalidSchedule is returned for a cron expression the parser rejects.
var ErrInvalidSchedule = errors.New("maintenance: invalid schedule")

// parser accepts standard five-field expressions, an optional seconds field
// and descriptors such as "@every 5m" or "@daily".
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// PairingCleaner deletes expired, unused pairing codes.
type PairingCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Logger defines the logging interface used by the scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps holds the collaborators of the scheduler.
type Deps struct {
	Pairings PairingCleaner

	// CleanupSchedule is the cron expression for pairing cleanup.
	// Empty uses DefaultCleanupSchedule.
	CleanupSchedule string

	// Location is the time zone schedules are evaluated in. Nil means UTC.
	Location *time.Location
}

// Scheduler owns the cron runner and the registered jobs.
//
// Thread Safety:
//   - Start and Stop may be called from any goroutine; SetLogger must be
//     called before Start.
type Scheduler struct {
	cron     *cron.Cron
	pairings PairingCleaner
	logger   Logger
	started  atomic.Bool

	cleaned atomic.Int64
}

// ValidateSchedule reports whether expr is a cron expression the scheduler accepts.
func ValidateSchedule(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, expr, err)
	}
	return nil
}

// New creates a scheduler with every job registered. Jobs do not run until
// Start is called.
//
// Returns:
//   - *Scheduler: ready to start
//   - error: if a dependency is missing or a schedule does not parse
func New(deps Deps) (*Scheduler, error) {
	if deps.Pairings == nil {
		return nil, fmt.Errorf("pairing repository is required")
	}
	schedule := deps.CleanupSchedule
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	if err := ValidateSchedule(schedule); err != nil {
		return nil, err
	}

	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(loc), cron.WithParser(parser)),
		pairings: deps.Pairings,
		logger:   noopLogger{},
	}
	if _, err := s.cron.AddFunc(schedule, s.job("pairing_cleanup", s.CleanupPairings)); err != nil {
		return nil, fmt.Errorf("registering pairing cleanup: %w", err)
	}
	return s, nil
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// Start begins running jobs in the background. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.cron.Start()
	s.logger.Info("maintenance scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop prevents further runs and waits for running jobs to finish, or for
// ctx to be done, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	if !s.started.CompareAndSwap(true, false) {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("maintenance scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for maintenance jobs: %w", ctx.Err())
	}
}

// CleanupPairings deletes expired pairing codes once.
func (s *Scheduler) CleanupPairings(ctx context.Context) error {
	n, err := s.pairings.CleanupExpired(ctx)
	if err != nil {
		return fmt.Errorf("cleaning up pairing codes: %w", err)
	}
	if n > 0 {
		s.cleaned.Add(n)
		s.logger.Info("expired pairing codes removed", "count", n)
	}
	return nil
}

// CleanedPairings returns the number of pairing codes removed since start.
func (s *Scheduler) CleanedPairings() int64 {
	return s.cleaned.Load()
}

// job wraps fn with a timeout, error logging and panic recovery.
func (s *Scheduler) job(name string, fn func(context.Context) error) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("maintenance job panic", "job", name, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := time.Now()
		if err := fn(ctx); err != nil {
			s.logger.Warn("maintenance job failed", "job", name, "error", err)
			return
		}
		s.logger.Debug("maintenance job finished", "job", name, "duration", time.Since(start))
	}
}

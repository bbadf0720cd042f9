package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultSchedule runs the optimizer once a night
const DefaultSchedule = "@daily"

// Optimizer is implemented by *database.DB
type Optimizer interface {
	Optimize(ctx context.Context) error
}

// Scheduler periodically refreshes SQLite planner statistics
type Scheduler struct {
	db          Optimizer
	schedule    string
	timeout     time.Duration
	cron        *cron.Cron
	cronEntryID cron.EntryID
	mu          sync.Mutex
	running     bool
	lastRun     time.Time
	lastErr     error
}

// New creates a scheduler for schedule (standard cron spec or descriptor).
// An empty schedule disables it.
func New(db Optimizer, schedule string, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Scheduler{
		db:       db,
		schedule: schedule,
		timeout:  timeout,
		cron:     cron.New(),
	}
}

// Start registers the job and starts the cron loop. It returns false when
// no schedule is configured.
func (s *Scheduler) Start() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return true, nil
	}
	if s.schedule == "" {
		return false, nil
	}

	id, err := s.cron.AddFunc(s.schedule, s.scheduledRun)
	if err != nil {
		return false, fmt.Errorf("invalid maintenance schedule %q: %w", s.schedule, err)
	}
	s.cronEntryID = id
	s.cron.Start()
	s.running = true

	log.Info().Str("schedule", s.schedule).Msg("Maintenance scheduler started")
	return true, nil
}

// Stop waits for a running job to finish and stops the cron loop
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cron.Remove(s.cronEntryID)
	s.cronEntryID = 0
	s.running = false
	log.Info().Msg("Maintenance scheduler stopped")
}

// NextRun returns the next scheduled run, or the zero time when stopped
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cronEntryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.cronEntryID).Next
}

// LastRun returns when the optimizer last ran and its result
func (s *Scheduler) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

// RunNow runs the optimizer synchronously
func (s *Scheduler) RunNow(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := s.db.Optimize(ctx)

	s.mu.Lock()
	s.lastRun = start
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		return err
	}
	log.Debug().Dur("duration", time.Since(start)).Msg("Database optimized")
	return nil
}

func (s *Scheduler) scheduledRun() {
	if err := s.RunNow(context.Background()); err != nil {
		log.Error().Err(err).Msg("Scheduled database optimize failed")
	}
}

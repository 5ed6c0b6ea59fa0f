package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Job is one unit of scheduled work, typically a full pipeline run.
type Job func(ctx context.Context)

// Scheduler runs a job once at start and then on every interval tick. At most
// one job runs at a time; a tick that arrives while a job is still running is
// skipped, not queued.
type Scheduler struct {
	interval time.Duration
	job      Job
	log      logrus.FieldLogger

	// newTicker is swapped in tests.
	newTicker func(d time.Duration) (<-chan time.Time, func())

	busy atomic.Bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(interval time.Duration, job Job, log logrus.FieldLogger) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		interval: interval,
		job:      job,
		log:      log.WithField("component", "scheduler"),
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// Start launches the loop in the background. Jobs receive a context that is
// cancelled by Stop or when ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("scheduler already running")
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	tick, stopTicker := s.newTicker(s.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer stopTicker()

		s.RunNow(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick:
				if !s.RunNow(ctx) {
					s.log.Warn("previous run still in progress, tick skipped")
				}
			}
		}
	}()

	s.log.WithField("interval", s.interval.String()).Info("scheduler started")
}

// Stop cancels the loop and waits for an in-flight job to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow runs the job synchronously unless one is already in progress, in
// which case it returns false without running.
func (s *Scheduler) RunNow(ctx context.Context) bool {
	if !s.busy.CompareAndSwap(false, true) {
		return false
	}
	defer s.busy.Store(false)

	if ctx.Err() != nil {
		return true
	}
	s.job(ctx)
	return true
}

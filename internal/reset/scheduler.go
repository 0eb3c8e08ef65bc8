package reset

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/focusguild/focusbot/internal/store"
)

// Runner executes one reset at a boundary.
type Runner interface {
	Run(ctx context.Context, trigger string, boundary time.Time) Summary
}

// Scheduler polls the clock and fires the engine once per day when the
// configured boundary time is reached. A missed tick fires on the next
// poll; a reset already in flight is never overlapped.
type Scheduler struct {
	engine       Runner
	pollInterval time.Duration
	hour         int
	minute       int
	logger       zerolog.Logger
	now          func() time.Time

	mu           sync.Mutex
	running      bool
	lastBoundary string
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewScheduler creates a Scheduler firing daily at hour:minute.
func NewScheduler(engine Runner, pollInterval time.Duration, hour, minute int, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		engine:       engine,
		pollInterval: pollInterval,
		hour:         hour,
		minute:       minute,
		logger:       logger.With().Str("component", "scheduler").Logger(),
		now:          time.Now,
	}
}

// Start launches the polling loop in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	// Today's boundary is considered handled at startup; firing it
	// mid-day would sweep tasks users added since midnight.
	if s.lastBoundary == "" {
		s.lastBoundary = store.DateOf(s.now())
	}
	s.mu.Unlock()

	s.logger.Info().
		Int("hour", s.hour).
		Int("minute", s.minute).
		Dur("poll", s.pollInterval).
		Msg("reset scheduler started")

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit. A reset in flight
// finishes with a cancelled context.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Running reports whether a reset is currently in flight.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ForceRun triggers a reset at the current time regardless of the
// schedule. Only the overlap guard applies: a manual run may repeat a
// date the timer already handled, but claims it so the timer stays
// quiet for the rest of the day. Returns false when a run is already
// in flight.
func (s *Scheduler) ForceRun(ctx context.Context) (Summary, bool) {
	boundary := s.now()

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Summary{}, false
	}
	s.running = true
	s.lastBoundary = store.DateOf(boundary)
	s.mu.Unlock()
	defer s.end()

	return s.engine.Run(ctx, "manual", boundary), true
}

// tick fires the engine when the wall clock is at or past today's
// boundary and today has not run yet.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	boundary := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, now.Location())
	if now.Before(boundary) {
		return
	}
	if !s.begin(store.DateOf(boundary)) {
		return
	}
	defer s.end()

	s.engine.Run(ctx, "timer", boundary)
}

// begin claims today's run. Returns false when a run is in flight or
// today already ran.
func (s *Scheduler) begin(date string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.lastBoundary == date {
		return false
	}
	s.running = true
	s.lastBoundary = date
	return true
}

func (s *Scheduler) end() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

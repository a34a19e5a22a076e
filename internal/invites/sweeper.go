package invites

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSweepSchedule runs the expiry sweep every 15 minutes.
const DefaultSweepSchedule = "@every 15m"

// sweepTimeout bounds a single sweep run.
const sweepTimeout = time.Minute

// Sweeper periodically marks expired pending invitations.
type Sweeper struct {
	service  *Service
	schedule string
	cron     *cron.Cron
	logger   zerolog.Logger
	mu       sync.Mutex
	running  bool
}

// NewSweeper creates a sweeper running on schedule, a cron spec or descriptor
// such as "@every 15m". An empty schedule uses DefaultSweepSchedule.
func NewSweeper(service *Service, schedule string, logger zerolog.Logger) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{
		service:  service,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With().Str("component", "invite_sweeper").Logger(),
	}
}

// Start begins the sweep schedule.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("invitation sweeper already running")
	}

	if _, err := s.cron.AddFunc(s.schedule, s.runSweep); err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Str("schedule", s.schedule).Msg("invitation sweeper started")
	return nil
}

// Stop stops the sweeper. The returned context is done once a running sweep finishes.
func (s *Sweeper) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	s.running = false
	s.logger.Info().Msg("stopping invitation sweeper")
	return s.cron.Stop()
}

func (s *Sweeper) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	n, err := s.service.SweepExpired(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("invitation sweep failed")
		return
	}
	if n > 0 {
		s.logger.Info().Int64("expired", n).Msg("expired pending invitations")
	}
}

// RunNow triggers an immediate sweep.
func (s *Sweeper) RunNow() {
	s.runSweep()
}

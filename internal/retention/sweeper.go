package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	pkglogger "github.com/damoang/angple-chat/pkg/logger"
	"github.com/rs/zerolog"
)

// Purger deletes expired rows and reports how many went away
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Sweeper runs a Purger on a cron schedule
type Sweeper struct {
	purger  Purger
	now     func() time.Time
	log     zerolog.Logger
	cron    string
	mu      sync.Mutex
	running bool
}

// NewSweeper validates expr and returns a stopped Sweeper
func NewSweeper(purger Purger, expr string) (*Sweeper, error) {
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid sweep cron %q", expr)
	}
	return &Sweeper{
		purger: purger,
		cron:   expr,
		now:    time.Now,
		log:    pkglogger.WithComponent("retention"),
	}, nil
}

// Start runs the schedule loop until ctx is cancelled
func (s *Sweeper) Start(ctx context.Context) {
	s.log.Info().Str("cron", s.cron).Msg("status sweeper started")
	go s.loop(ctx)
}

func (s *Sweeper) loop(ctx context.Context) {
	for {
		wait, err := s.nextWait(s.now())
		if err != nil {
			s.log.Error().Err(err).Str("cron", s.cron).Msg("next tick failed")
			wait = 30 * time.Second
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err == nil {
				s.run(ctx)
			}
		}
	}
}

// nextWait returns how long to sleep from now until the next tick
func (s *Sweeper) nextWait(now time.Time) (time.Duration, error) {
	next, err := gronx.NextTickAfter(s.cron, now, false)
	if err != nil {
		return 0, err
	}
	return next.Sub(now), nil
}

func (s *Sweeper) run(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if _, err := s.RunOnce(ctx); err != nil {
		s.log.Error().Err(err).Msg("status sweep failed")
	}
}

// RunOnce purges immediately
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now()
	purged, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge expired statuses: %w", err)
	}
	s.log.Info().Int64("purged", purged).Dur("took", time.Since(start)).Msg("status sweep done")
	return purged, nil
}

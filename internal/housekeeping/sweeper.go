// Package housekeeping runs periodic maintenance jobs.
package housekeeping

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Retention is how long expired or revoked refresh tokens are kept.
const Retention = 24 * time.Hour

type TokenSweeper interface {
	DeleteStaleRefreshTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper deletes stale refresh tokens on a cron schedule.
type Sweeper struct {
	cron   *cron.Cron
	tokens TokenSweeper
	now    func() time.Time
}

func NewSweeper(tokens TokenSweeper) *Sweeper {
	return &Sweeper{
		cron:   cron.New(),
		tokens: tokens,
		now:    time.Now,
	}
}

// Start schedules the sweep with spec ("@every 1h", "0 3 * * *", ...).
func (s *Sweeper) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			log.Printf("token sweep: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("token sweep schedule %q: %w", spec, err)
	}
	s.cron.Start()
	log.Printf("token sweep scheduled (%s)", spec)
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.tokens.DeleteStaleRefreshTokens(ctx, s.now().Add(-Retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("token sweep: removed %d refresh tokens", n)
	}
	return n, nil
}

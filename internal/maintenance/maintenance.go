// Package maintenance runs the gateway's periodic background jobs: a
// truncation-cache sweep and, in multi-account mode, a pool health log
// (SPEC_FULL.md §4.O).
package maintenance

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/brgw/gateway/internal/auth"
	"github.com/brgw/gateway/internal/truncation"
)

// Scheduler owns the cron runner for the gateway's maintenance jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// New builds a Scheduler. cache is required; multi is optional (nil in
// single-account mode, in which case no pool health job is registered).
func New(cache *truncation.Cache, multi *auth.MultiTokenManager, logger *zap.Logger) (*Scheduler, error) {
	c := cron.New()
	s := &Scheduler{cron: c, logger: logger}

	if _, err := c.AddFunc("@every 1m", func() {
		purged := cache.PurgeExpired()
		if purged > 0 {
			logger.Info("truncation cache sweep", zap.Int("purged", purged))
		}
	}); err != nil {
		return nil, err
	}

	if multi != nil {
		if _, err := c.AddFunc("@every 5m", func() {
			slots := multi.Status()
			healthy := 0
			for _, st := range slots {
				if !st.IsFailed {
					healthy++
				}
			}
			logger.Info("multi-token pool health", zap.Int("healthy", healthy), zap.Int("total", len(slots)))
		}); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop blocks until any in-flight job finishes, then stops the scheduler.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

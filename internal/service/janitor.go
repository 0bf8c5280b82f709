package service

import (
	"context"
	"time"

	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Janitor removes open sessions older than the retention window from stores
// that do not expire records themselves.
type Janitor struct {
	purger   domain.SessionPurger
	ttl      time.Duration
	interval time.Duration
	clock    clockwork.Clock
	metrics  *Metrics
}

// NewJanitor creates a retention janitor
func NewJanitor(purger domain.SessionPurger, ttl, interval time.Duration, clock clockwork.Clock, metrics *Metrics) *Janitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Janitor{
		purger:   purger,
		ttl:      ttl,
		interval: interval,
		clock:    clock,
		metrics:  metrics,
	}
}

// Sweep purges sessions created before now minus the TTL
func (j *Janitor) Sweep(ctx context.Context) (int64, error) {
	n, err := j.purger.Purge(ctx, j.clock.Now().Add(-j.ttl))
	if err != nil {
		return 0, err
	}
	j.metrics.sessionsPurgedAdd(n)
	return n, nil
}

// Run sweeps on every tick until ctx is done
func (j *Janitor) Run(ctx context.Context) {
	ticker := j.clock.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			n, err := j.Sweep(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Session janitor sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("purged", n).Msg("Expired sessions removed")
			}
		}
	}
}

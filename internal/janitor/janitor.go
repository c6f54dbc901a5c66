package janitor

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"push-dispatch-backend/internal/store"
)

// Service prunes registrations that have not been seen within the
// staleness window.
type Service struct {
	registry   store.Registry
	staleAfter time.Duration
	interval   time.Duration
	now        func() time.Time
}

// NewService creates a janitor. A staleAfter of zero disables pruning.
func NewService(registry store.Registry, staleAfter, interval time.Duration) *Service {
	return &Service{
		registry:   registry,
		staleAfter: staleAfter,
		interval:   interval,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Enabled reports whether a staleness window is configured.
func (s *Service) Enabled() bool {
	return s.staleAfter > 0 && s.interval > 0
}

// Run prunes once immediately and then on every interval until ctx ends.
func (s *Service) Run(ctx context.Context) {
	if !s.Enabled() {
		logrus.Info("stale endpoint pruning is disabled")
		return
	}
	logrus.WithFields(logrus.Fields{
		"stale_after": s.staleAfter.String(),
		"interval":    s.interval.String(),
	}).Info("starting endpoint janitor")

	s.PruneOnce(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("endpoint janitor shutting down")
			return
		case <-timer.C:
			s.PruneOnce(ctx)
			timer.Reset(s.interval)
		}
	}
}

// PruneOnce deletes every registration last seen before now - staleAfter.
func (s *Service) PruneOnce(ctx context.Context) (int64, error) {
	if s.staleAfter <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.staleAfter)
	deleted, err := s.registry.DeleteStale(ctx, cutoff)
	if err != nil {
		logrus.WithError(err).Error("failed to prune stale endpoints")
		return 0, err
	}
	if deleted > 0 {
		logrus.WithFields(logrus.Fields{
			"deleted": deleted,
			"cutoff":  cutoff.Format(time.RFC3339),
		}).Info("pruned stale endpoints")
	}
	return deleted, nil
}

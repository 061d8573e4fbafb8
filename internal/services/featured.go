package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/studex/apiserver/internal/metrics"
)

// FeaturedRepository rotates the featured listing set.
type FeaturedRepository interface {
	DemoteFeatured(ctx context.Context) (int, error)
	PromoteRecent(ctx context.Context, limit int) (int, error)
}

// FeaturedRotator periodically features the most recent published listings.
type FeaturedRotator struct {
	tx       TxRunner
	projects FeaturedRepository
	cache    FeaturedCache
	limit    int
	logger   *slog.Logger
}

// NewFeaturedRotator builds a rotator. cache may be nil.
func NewFeaturedRotator(tx TxRunner, projects FeaturedRepository, cache FeaturedCache, limit int, logger *slog.Logger) *FeaturedRotator {
	if limit <= 0 {
		limit = 6
	}
	return &FeaturedRotator{tx: tx, projects: projects, cache: cache, limit: limit, logger: logger}
}

// Rotate demotes every featured listing and promotes the newest published
// ones in a single transaction.
func (r *FeaturedRotator) Rotate(ctx context.Context) (demoted, promoted int, err error) {
	err = r.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if demoted, err = r.projects.DemoteFeatured(ctx); err != nil {
			return err
		}
		promoted, err = r.projects.PromoteRecent(ctx, r.limit)
		return err
	})
	if err != nil {
		metrics.FeaturedRotationsTotal.WithLabelValues("error").Inc()
		return 0, 0, err
	}
	metrics.FeaturedRotationsTotal.WithLabelValues("ok").Inc()

	if r.cache != nil {
		if err := r.cache.InvalidateFeatured(ctx); err != nil {
			r.logger.Warn("invalidate featured cache", slog.Any("error", err))
		}
	}
	return demoted, promoted, nil
}

// Run rotates once immediately and then on every tick until ctx is done.
func (r *FeaturedRotator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		demoted, promoted, err := r.Rotate(ctx)
		if err != nil {
			r.logger.Error("featured rotation failed", slog.Any("error", err))
		} else {
			r.logger.Info("featured rotation", slog.Int("demoted", demoted), slog.Int("promoted", promoted))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

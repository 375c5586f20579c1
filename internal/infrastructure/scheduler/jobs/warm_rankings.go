// Package jobs contains the scheduled jobs run by the server.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gamifyx/gradehub/internal/domain/leaderboard"
	"github.com/gamifyx/gradehub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// WARM RANKINGS JOB
// ══════════════════════════════════════════════════════════════════════════════

// RankingSource computes a window, reading through the ranking cache.
type RankingSource interface {
	Ranking(ctx context.Context, window leaderboard.Window) (*leaderboard.Ranking, error)
}

// WarmStats summarizes one run.
type WarmStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Windows   int
	Entries   int
	Failed    int
}

// WarmRankingsJob reads every window so expired or invalidated cache entries
// are refilled before the next leaderboard request arrives.
type WarmRankingsJob struct {
	rankings RankingSource
	windows  []leaderboard.Window
	timeout  time.Duration
	log      *logger.Logger

	last atomic.Pointer[WarmStats]
}

// NewWarmRankingsJob creates the job. timeout bounds a whole run; zero means none.
func NewWarmRankingsJob(rankings RankingSource, timeout time.Duration, log *logger.Logger) *WarmRankingsJob {
	if log == nil {
		log = logger.Nop()
	}
	return &WarmRankingsJob{
		rankings: rankings,
		windows:  leaderboard.AllWindows,
		timeout:  timeout,
		log:      log.With(logger.Component("warm_rankings")),
	}
}

func (j *WarmRankingsJob) Name() string { return "warm_rankings" }

func (j *WarmRankingsJob) Description() string {
	return "Recomputes every leaderboard window missing from the ranking cache"
}

// Run computes each window. A failed window does not stop the others.
func (j *WarmRankingsJob) Run(ctx context.Context) error {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	stats := &WarmStats{StartedAt: time.Now()}
	var errs []error
	for _, w := range j.windows {
		r, err := j.rankings.Ranking(ctx, w)
		if err != nil {
			stats.Failed++
			errs = append(errs, fmt.Errorf("window %s: %w", w, err))
			continue
		}
		stats.Windows++
		stats.Entries += r.Count()
	}
	stats.Duration = time.Since(stats.StartedAt)
	j.last.Store(stats)

	j.log.Debug("rankings warmed",
		logger.Int("windows", stats.Windows),
		logger.Int("entries", stats.Entries),
		logger.Int("failed", stats.Failed),
		logger.Duration("duration", stats.Duration),
	)
	return errors.Join(errs...)
}

// LastStats returns the most recent run, or nil before the first one.
func (j *WarmRankingsJob) LastStats() *WarmStats { return j.last.Load() }

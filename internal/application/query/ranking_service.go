// Package query contains read operations. Queries never modify progression
// state; the only write they perform is refreshing the ranking cache.
package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/gamifyx/gradehub/config"
	"github.com/gamifyx/gradehub/internal/domain/leaderboard"
	"github.com/gamifyx/gradehub/internal/domain/shared"
	"github.com/gamifyx/gradehub/pkg/circuitbreaker"
	"github.com/gamifyx/gradehub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKING SERVICE
// Cache-aside over the leaderboard repository. The store is the source of
// truth; any cache failure falls back to a recompute.
// ══════════════════════════════════════════════════════════════════════════════

// RankingService serves ranked lists per window.
type RankingService struct {
	repo    leaderboard.Repository
	cache   leaderboard.Cache
	breaker *circuitbreaker.CircuitBreaker
	flags   *config.FeatureFlags
	log     *logger.Logger
}

// NewRankingService creates the service. cache may be nil.
func NewRankingService(repo leaderboard.Repository, cache leaderboard.Cache, flags *config.FeatureFlags, log *logger.Logger) *RankingService {
	if log == nil {
		log = logger.Nop()
	}
	if flags == nil {
		flags = config.NewFeatureFlags()
	}
	log = log.With(logger.Component("ranking_service"))

	return &RankingService{
		repo:  repo,
		cache: cache,
		breaker: circuitbreaker.RankingCacheBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("ranking cache breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
		flags: flags,
		log:   log,
	}
}

func (s *RankingService) cacheEnabled() bool {
	return s.cache != nil && s.flags.IsEnabled(config.FeatureRankingCache, nil)
}

// Ranking returns the full ranking for window.
func (s *RankingService) Ranking(ctx context.Context, window leaderboard.Window) (*leaderboard.Ranking, error) {
	if s.cacheEnabled() {
		if entries, ok := s.readCache(ctx, window); ok {
			return leaderboard.FromEntries(entries), nil
		}
	}

	standings, err := s.repo.Standings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load standings: %w", err)
	}
	ranking := leaderboard.Build(standings)

	if s.cacheEnabled() {
		s.writeCache(ctx, window, ranking.Entries())
	}
	return ranking, nil
}

// Invalidate deletes every window key. It bypasses the breaker so a
// recovering cache never keeps a stale ranking.
func (s *RankingService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.DeleteAll(ctx, leaderboard.AllWindows); err != nil {
		return shared.WrapError("leaderboard", "Invalidate", shared.ErrTransientStore, "ranking cache delete failed", err)
	}
	return nil
}

// UserRank reads one user's position straight from the store.
func (s *RankingService) UserRank(ctx context.Context, userID string) (shared.Rank, error) {
	rank, err := s.repo.UserRank(ctx, userID)
	if err != nil {
		return shared.Unranked, fmt.Errorf("user rank: %w", err)
	}
	return shared.Rank(rank), nil
}

// BreakerState exposes the cache breaker for health output.
func (s *RankingService) BreakerState() circuitbreaker.State {
	return s.breaker.State()
}

func (s *RankingService) readCache(ctx context.Context, window leaderboard.Window) ([]leaderboard.Entry, bool) {
	var (
		entries []leaderboard.Entry
		miss    bool
	)
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		got, err := s.cache.Get(ctx, window)
		if errors.Is(err, leaderboard.ErrCacheMiss) {
			miss = true
			return nil
		}
		if err != nil {
			return err
		}
		entries = got
		return nil
	})
	if err != nil {
		s.log.Warn("ranking cache read failed; recomputing",
			logger.String("window", window.String()),
			logger.Err(err),
		)
		return nil, false
	}
	return entries, !miss
}

func (s *RankingService) writeCache(ctx context.Context, window leaderboard.Window, entries []leaderboard.Entry) {
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.cache.Set(ctx, window, entries)
	})
	if err != nil {
		s.log.Warn("ranking cache write failed",
			logger.String("window", window.String()),
			logger.Err(err),
		)
	}
}

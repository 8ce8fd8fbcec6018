package services

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/spendsync/src/api"
	"github.com/username/spendsync/src/logger"
)

const (
	DefaultCacheExpiration = 10 * time.Minute
	CacheCleanupInterval   = 15 * time.Minute
)

// AnalyticsService fetches backend aggregations. Results are cached so
// dashboard polling does not hit the network on every render; the cache
// is flushed whenever the record set changes.
type AnalyticsService struct {
	remote *api.ExpenseAPI
	cache  *cache.Cache
}

func NewAnalyticsService(remote *api.ExpenseAPI, c *cache.Cache) *AnalyticsService {
	return &AnalyticsService{remote: remote, cache: c}
}

// MonthlyTotals returns the per-month amount aggregation for a year.
func (s *AnalyticsService) MonthlyTotals(ctx context.Context, year int) (map[string]float64, error) {
	key := fmt.Sprintf("monthlyTotals:%d", year)
	if cached, found := s.cache.Get(key); found {
		if totals, ok := cached.(map[string]float64); ok {
			return totals, nil
		}
	}

	totals, err := s.remote.MonthlyTotals(ctx, year)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, totals, cache.DefaultExpiration)
	return totals, nil
}

// InvalidateCache drops every cached aggregation. Called when local
// records change or an import upload succeeds.
func (s *AnalyticsService) InvalidateCache() {
	s.cache.Flush()
	logger.L.Debug("Analytics cache flushed")
}

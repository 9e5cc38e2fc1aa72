package redis

import (
	"context"
	"errors"
	"time"

	"github.com/medcircle-hub/medcircle-match-engine/internal/application/query"
	"github.com/medcircle-hub/medcircle-match-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUMMARY CACHE
// Read-side cache for terminal run summaries. Entries are keyed by run
// id and expire either after TTLRunSummary or when the current ISO week
// ends, whichever comes first.
// ══════════════════════════════════════════════════════════════════════════════

// SummaryCache implements query.SummaryCache on Redis.
type SummaryCache struct {
	cache *Cache
}

// NewSummaryCache creates a new SummaryCache.
func NewSummaryCache(cache *Cache) *SummaryCache {
	return &SummaryCache{cache: cache}
}

func summaryKey(runID string) string {
	return PrefixRunSummary + runID
}

// GetSummary returns the cached summary for a run, or ErrCacheMiss.
func (s *SummaryCache) GetSummary(ctx context.Context, runID string) (*query.RunSummaryDTO, error) {
	var dto query.RunSummaryDTO
	if err := s.cache.Get(ctx, summaryKey(runID), &dto); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return &dto, nil
}

// SetSummary caches a summary until the week rolls over.
func (s *SummaryCache) SetSummary(ctx context.Context, summary *query.RunSummaryDTO) error {
	ttl := TTLRunSummary
	if left := timeutil.UntilEndOfWeek(timeutil.Now()); left < ttl {
		ttl = left
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return s.cache.Set(ctx, summaryKey(summary.RunID), summary, ttl)
}

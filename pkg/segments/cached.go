package segments

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/segments/pkg/types"
)

// CacheStatus tells whether a cached read was served from the cache.
type CacheStatus string

const (
	CacheHit  CacheStatus = "hit"
	CacheMiss CacheStatus = "miss"
)

// GetSegmentsCached returns the acting owner's segment list (as ListSegments
// with the default limit) from the cache when fresh, or from the store.
// Writes made through the Service invalidate the owner's entry.
func (s *Service) GetSegmentsCached(ctx context.Context) (segs []types.Segment, status CacheStatus, err error) {
	defer s.track("get_segments_cached", time.Now(), &err)

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		return nil, "", err
	}
	if cached, ok := s.cache.Get(owner); ok {
		s.metrics.CacheLookup(true)
		s.log.Debug("segment cache hit", zap.String("owner_id", owner))
		return slices.Clone(cached), CacheHit, nil
	}
	s.metrics.CacheLookup(false)

	segs, err = s.listSegments(ctx, types.Query{Where: map[string]any{"owner_id": owner}}, DefaultListLimit)
	if err != nil {
		return nil, CacheMiss, err
	}
	s.cache.Set(owner, slices.Clone(segs))
	return segs, CacheMiss, nil
}

// InvalidateSegmentsCache drops ownerID's cached list, or every entry when
// ownerID is empty.
func (s *Service) InvalidateSegmentsCache(ownerID string) {
	if ownerID == "" {
		s.cache.InvalidateAll()
		return
	}
	s.cache.Invalidate(ownerID)
}

package segments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/segments/pkg/types"
)

// Repair kinds used in logs and metrics.
const (
	repairOrphaned   = "orphaned_relation"
	repairDuplicates = "duplicate_relation"
)

// DuplicateResult describes a segment copy.
type DuplicateResult struct {
	Segment        *types.Segment `json:"segment" yaml:"segment"`
	ContactsCopied int            `json:"contacts_copied" yaml:"contacts_copied"`
	CopyFailures   int            `json:"copy_failures,omitempty" yaml:"copy_failures,omitempty"`
}

// DuplicateSegment copies a segment's color, description and memberships
// into a new segment. An empty newName means "<source name> (Copy)".
// Membership rows are copied one by one; failed copies are logged and
// skipped.
func (s *Service) DuplicateSegment(ctx context.Context, id, newName string) (res *DuplicateResult, err error) {
	defer s.track("duplicate_segment", time.Now(), &err)

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	src, err := s.ownedSegment(ctx, owner, id, ErrNotFound)
	if err != nil {
		return nil, err
	}
	if newName == "" {
		newName = src.Name + " (Copy)"
	}
	dup, err := s.createSegment(ctx, owner, newName, src.Color, src.Description)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(owner)

	rels, err := s.relationsFor(ctx, []string{src.SegmentID})
	if err != nil {
		return &DuplicateResult{Segment: dup}, err
	}
	res = &DuplicateResult{Segment: dup}
	for _, rel := range rels {
		if _, err := s.insertRelation(ctx, rel.ContactID, dup.SegmentID); err != nil {
			res.CopyFailures++
			s.log.Warn("skipping relation copy",
				zap.String("source", src.SegmentID),
				zap.String("contact_id", rel.ContactID),
				zap.Error(err))
			continue
		}
		res.ContactsCopied++
	}
	return res, nil
}

// MergeResult describes a merge into one target segment.
type MergeResult struct {
	BatchResult    `yaml:",inline"`
	ContactsMoved  int `json:"contacts_moved" yaml:"contacts_moved"`
	SourcesDeleted int `json:"sources_deleted" yaml:"sources_deleted"`
}

// MergeSegments moves every membership of each source segment into the
// target. A contact already in the target keeps its single target row and
// loses its source row. Each source is handled independently and, when
// deleteSources is set, deleted once all its rows were moved.
//
// Per row the target relation is written before the source row is
// deleted, so an interrupted merge can be run again to completion.
func (s *Service) MergeSegments(ctx context.Context, targetID string, sourceIDs []string, deleteSources bool) (res *MergeResult, err error) {
	start := time.Now()
	defer func() {
		var b *BatchResult
		if res != nil {
			b = &res.BatchResult
		}
		s.trackBatch("merge_segments", start, &b, &err)
	}()

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if len(sourceIDs) == 0 {
		return nil, ErrNoSources
	}
	target, err := s.ownedSegment(ctx, owner, targetID, ErrPermission)
	if err != nil {
		return nil, err
	}

	res = &MergeResult{BatchResult: *newBatch(len(sourceIDs))}
	for _, srcID := range sourceIDs {
		moved, deleted, err := s.mergeOne(ctx, owner, target, srcID, deleteSources)
		res.ContactsMoved += moved
		if deleted {
			res.SourcesDeleted++
		}
		res.record(srcID, err).Count = moved
	}
	if res.Succeeded > 0 {
		s.touch(ctx, target)
	}
	s.cache.Invalidate(owner)
	return res, res.finish()
}

func (s *Service) mergeOne(ctx context.Context, owner string, target *types.Segment, srcID string, deleteSource bool) (moved int, deleted bool, err error) {
	if srcID == target.SegmentID {
		return 0, false, ErrSameSegment
	}
	src, err := s.ownedSegment(ctx, owner, srcID, ErrPermission)
	if err != nil {
		return 0, false, err
	}
	rels, err := s.relationsFor(ctx, []string{src.SegmentID})
	if err != nil {
		return 0, false, err
	}

	var errs []error
	for _, rel := range rels {
		existing, err := s.pairRelations(ctx, rel.ContactID, target.SegmentID, 1)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(existing) == 0 {
			_, err := s.insertRelation(ctx, rel.ContactID, target.SegmentID)
			switch {
			case err == nil:
				moved++
			case errors.Is(err, ErrAlreadyExists):
			default:
				errs = append(errs, fmt.Errorf("contact %s: %w", rel.ContactID, err))
				continue
			}
		}
		if err := s.relations.Delete(ctx, rel.RelationID); err != nil && !errors.Is(err, types.ErrNotFound) {
			errs = append(errs, fmt.Errorf("relation %s: %w", rel.RelationID, err))
		}
	}
	if len(errs) > 0 {
		return moved, false, errors.Join(errs...)
	}

	if deleteSource {
		if err := s.segments.Delete(ctx, src.SegmentID); err != nil {
			return moved, false, fmt.Errorf("deleting source segment: %w", err)
		}
		return moved, true, nil
	}
	s.touch(ctx, src)
	return moved, false, nil
}

// CleanupEmptySegments deletes every segment of the acting owner that has
// no memberships. Emptiness is checked with a single-row probe.
func (s *Service) CleanupEmptySegments(ctx context.Context) (res *BatchResult, err error) {
	defer s.trackBatch("cleanup_empty", time.Now(), &res, &err)

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	segs, err := s.ownedSegments(ctx, owner)
	if err != nil {
		return nil, err
	}

	res = newBatch(0)
	for _, seg := range segs {
		page, err := s.relations.Fetch(ctx, types.Query{
			Where: map[string]any{"segment_id": seg.SegmentID},
			Limit: 1,
		})
		if err != nil {
			res.record(seg.SegmentID, fmt.Errorf("probing relations: %w", err))
			continue
		}
		if len(page.Documents) > 0 {
			continue
		}
		if err := s.segments.Delete(ctx, seg.SegmentID); err != nil {
			res.record(seg.SegmentID, fmt.Errorf("deleting segment: %w", err))
			continue
		}
		res.record(seg.SegmentID, nil)
	}
	if res.Succeeded > 0 {
		s.cache.Invalidate(owner)
	}
	return res, res.finish()
}

// CleanupOrphanedRelations deletes relation rows, across all owners, whose
// contact or segment no longer exists. It returns the number deleted.
func (s *Service) CleanupOrphanedRelations(ctx context.Context) (cleaned int, err error) {
	defer s.track("cleanup_orphans", time.Now(), &err)

	if _, err := OwnerFromContext(ctx); err != nil {
		return 0, err
	}
	rels, err := s.allRelations(ctx)
	if err != nil {
		return 0, err
	}
	orphans, err := s.findOrphans(ctx, rels)
	if err != nil {
		return 0, err
	}
	cleaned = s.deleteRelations(ctx, orphans, repairOrphaned)
	if cleaned > 0 {
		s.cache.InvalidateAll()
	}
	return cleaned, nil
}

// findOrphans returns the rows of rels whose contact or segment is
// missing. Each referenced id is probed once, concurrently.
func (s *Service) findOrphans(ctx context.Context, rels []*types.ContactSegment) ([]*types.ContactSegment, error) {
	contactIDs := make(map[string]bool)
	segIDs := make(map[string]bool)
	for _, rel := range rels {
		contactIDs[rel.ContactID] = false
		segIDs[rel.SegmentID] = false
	}
	if err := s.probe(ctx, s.contacts, contactIDs); err != nil {
		return nil, err
	}
	if err := s.probe(ctx, s.segments, segIDs); err != nil {
		return nil, err
	}

	var orphans []*types.ContactSegment
	for _, rel := range rels {
		if !contactIDs[rel.ContactID] || !segIDs[rel.SegmentID] {
			orphans = append(orphans, rel)
		}
	}
	return orphans, nil
}

// probe sets ids[id] to whether table holds id. Lookups run with bounded
// concurrency; any failure other than ErrNotFound aborts the probe.
func (s *Service) probe(ctx context.Context, table types.Table, ids map[string]bool) error {
	keys := make([]string, 0, len(ids))
	for id := range ids {
		keys = append(keys, id)
	}
	found := make([]bool, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.probes)
	for i, id := range keys {
		g.Go(func() error {
			if id == "" {
				return nil
			}
			_, err := table.Get(gctx, id)
			switch {
			case err == nil:
				found[i] = true
			case errors.Is(err, types.ErrNotFound):
			default:
				return fmt.Errorf("probing %s: %w", id, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, id := range keys {
		ids[id] = found[i]
	}
	return nil
}

// RemoveDuplicateRelations scans every relation row, across all owners,
// and deletes all but the first row seen for each (contact, segment) pair.
// It returns the number deleted.
func (s *Service) RemoveDuplicateRelations(ctx context.Context) (removed int, err error) {
	defer s.track("remove_duplicates", time.Now(), &err)

	if _, err := OwnerFromContext(ctx); err != nil {
		return 0, err
	}
	rels, err := s.allRelations(ctx)
	if err != nil {
		return 0, err
	}
	removed = s.deleteRelations(ctx, duplicates(rels), repairDuplicates)
	if removed > 0 {
		s.cache.InvalidateAll()
	}
	return removed, nil
}

// duplicates returns every row after the first for each pair, in input
// order.
func duplicates(rels []*types.ContactSegment) []*types.ContactSegment {
	seen := make(map[string]bool, len(rels))
	var dups []*types.ContactSegment
	for _, rel := range rels {
		key := rel.PairKey()
		if seen[key] {
			dups = append(dups, rel)
			continue
		}
		seen[key] = true
	}
	return dups
}

// deleteRelations deletes rels one at a time, logging failures, and
// returns how many were deleted.
func (s *Service) deleteRelations(ctx context.Context, rels []*types.ContactSegment, kind string) int {
	n := 0
	for _, rel := range rels {
		if err := s.relations.Delete(ctx, rel.RelationID); err != nil {
			if !errors.Is(err, types.ErrNotFound) {
				s.log.Warn("relation delete failed",
					zap.String("kind", kind),
					zap.String("relation_id", rel.RelationID),
					zap.Error(err))
			}
			continue
		}
		n++
	}
	s.metrics.Repaired(kind, n)
	if n > 0 {
		s.log.Info("relations removed", zap.String("kind", kind), zap.Int("count", n))
	}
	return n
}

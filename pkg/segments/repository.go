package segments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/segments/pkg/types"
)

// SegmentUpdate lists the fields to change; nil fields are left alone.
type SegmentUpdate struct {
	Name        *string
	Color       *string
	Description *string
}

// CreateSegment creates a segment for the acting owner. The trimmed name
// must be non-empty and unused by the owner's other segments, and color
// must be one of types.SegmentColors.
func (s *Service) CreateSegment(ctx context.Context, name, color, description string) (seg *types.Segment, err error) {
	defer s.track("create_segment", time.Now(), &err)

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	seg, err = s.createSegment(ctx, owner, name, color, description)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(owner)
	return seg, nil
}

func (s *Service) createSegment(ctx context.Context, owner, name, color, description string) (*types.Segment, error) {
	name, err := types.NormalizeName(name)
	if err != nil {
		return nil, err
	}
	if !types.ValidColor(color) {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidColor, color)
	}
	if err := s.checkNameFree(ctx, owner, name, ""); err != nil {
		return nil, err
	}

	now := s.now()
	seg := &types.Segment{
		OwnerID:     owner,
		Name:        name,
		Color:       color,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.segments.Set(ctx, "", seg); err != nil {
		return nil, fmt.Errorf("creating segment: %w", err)
	}
	return seg, nil
}

// checkNameFree fails with ErrDuplicateName when another segment of owner,
// other than exceptID, is named exactly name.
func (s *Service) checkNameFree(ctx context.Context, owner, name, exceptID string) error {
	page, err := s.segments.Fetch(ctx, types.Query{
		Where: map[string]any{"owner_id": owner, "name": name},
		Limit: 2,
	})
	if err != nil {
		return fmt.Errorf("checking segment name: %w", err)
	}
	for _, doc := range page.Documents {
		if seg, ok := doc.(*types.Segment); ok && seg.SegmentID != exceptID {
			return fmt.Errorf("%q: %w", name, ErrDuplicateName)
		}
	}
	return nil
}

// GetSegment returns one of the acting owner's segments. Segments of other
// owners read as not found.
func (s *Service) GetSegment(ctx context.Context, id string) (seg *types.Segment, err error) {
	defer s.track("get_segment", time.Now(), &err)

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.ownedSegment(ctx, owner, id, ErrNotFound)
}

// ListSegments returns up to limit of the acting owner's segments, newest
// first. limit <= 0 means DefaultListLimit.
func (s *Service) ListSegments(ctx context.Context, limit int) (segs []types.Segment, err error) {
	defer s.track("list_segments", time.Now(), &err)

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.listSegments(ctx, types.Query{Where: map[string]any{"owner_id": owner}}, limit)
}

func (s *Service) listSegments(ctx context.Context, q types.Query, limit int) ([]types.Segment, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q.OrderBy = "created_at"
	q.Descending = true
	q.Limit = limit

	page, err := s.segments.Fetch(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing segments: %w", err)
	}
	out := make([]types.Segment, 0, len(page.Documents))
	for _, doc := range page.Documents {
		seg, ok := doc.(*types.Segment)
		if !ok {
			return nil, fmt.Errorf("%w: %T", errUnexpectedDoc, doc)
		}
		out = append(out, *seg)
	}
	return out, nil
}

// SearchSegments returns the acting owner's segments whose name contains
// term, case-insensitively, newest first and capped at DefaultSearchLimit.
// A blank term lists segments instead.
func (s *Service) SearchSegments(ctx context.Context, term string) (segs []types.Segment, err error) {
	defer s.track("search_segments", time.Now(), &err)

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	q := types.Query{Where: map[string]any{"owner_id": owner}}
	term = strings.TrimSpace(term)
	if term == "" {
		return s.listSegments(ctx, q, DefaultListLimit)
	}
	q.SearchField = "name"
	q.SearchTerm = term
	return s.listSegments(ctx, q, DefaultSearchLimit)
}

// UpdateSegment applies a partial update and bumps updated_at. A new name
// is held to the same rules as CreateSegment.
func (s *Service) UpdateSegment(ctx context.Context, id string, upd SegmentUpdate) (seg *types.Segment, err error) {
	defer s.track("update_segment", time.Now(), &err)

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	seg, err = s.ownedSegment(ctx, owner, id, ErrNotFound)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name, err := types.NormalizeName(*upd.Name)
		if err != nil {
			return nil, err
		}
		if name != seg.Name {
			if err := s.checkNameFree(ctx, owner, name, seg.SegmentID); err != nil {
				return nil, err
			}
		}
		seg.Name = name
	}
	if upd.Color != nil {
		if !types.ValidColor(*upd.Color) {
			return nil, fmt.Errorf("%w: %q", types.ErrInvalidColor, *upd.Color)
		}
		seg.Color = *upd.Color
	}
	if upd.Description != nil {
		seg.Description = *upd.Description
	}
	seg.UpdatedAt = s.now()

	if _, err := s.segments.Set(ctx, seg.SegmentID, seg); err != nil {
		return nil, fmt.Errorf("updating segment: %w", err)
	}
	s.cache.Invalidate(owner)
	return seg, nil
}

// DeleteSegment deletes a segment and every relation row referencing it.
// Individual relation deletes may fail without stopping the cascade; the
// returned count covers the rows actually removed.
func (s *Service) DeleteSegment(ctx context.Context, id string) (removed int, err error) {
	defer s.track("delete_segment", time.Now(), &err)

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		return 0, err
	}
	seg, err := s.ownedSegment(ctx, owner, id, ErrNotFound)
	if err != nil {
		return 0, err
	}
	removed, err = s.deleteWithRelations(ctx, seg)
	s.cache.Invalidate(owner)
	return removed, err
}

// deleteWithRelations cascades relation deletes, then removes seg.
func (s *Service) deleteWithRelations(ctx context.Context, seg *types.Segment) (int, error) {
	rels, err := s.relationsFor(ctx, []string{seg.SegmentID})
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, rel := range rels {
		err := s.relations.Delete(ctx, rel.RelationID)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, types.ErrNotFound):
			// Removed concurrently.
		default:
			s.log.Warn("cascade delete of relation failed",
				zap.String("segment_id", seg.SegmentID),
				zap.String("relation_id", rel.RelationID),
				zap.Error(err))
		}
	}
	if err := s.segments.Delete(ctx, seg.SegmentID); err != nil {
		return removed, fmt.Errorf("deleting segment %s: %w", seg.SegmentID, err)
	}
	return removed, nil
}

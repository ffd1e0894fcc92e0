package segments

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/segments/pkg/types"
)

// scan pages through table with q and calls fn for every document. Paging
// uses the query's order, or the store's natural order.
func (s *Service) scan(ctx context.Context, table types.Table, q types.Query, fn func(doc any) error) error {
	q.Limit = s.pageSize
	q.Offset = 0
	for {
		page, err := table.Fetch(ctx, q)
		if err != nil {
			return err
		}
		for _, doc := range page.Documents {
			if err := fn(doc); err != nil {
				return err
			}
		}
		q.Offset += len(page.Documents)
		if len(page.Documents) < q.Limit || q.Offset >= page.Total {
			return nil
		}
	}
}

// collect scans table into a typed slice.
func collect[T types.Document](ctx context.Context, s *Service, table types.Table, q types.Query) ([]T, error) {
	var out []T
	err := s.scan(ctx, table, q, func(doc any) error {
		v, ok := doc.(T)
		if !ok {
			return fmt.Errorf("%w: %T", errUnexpectedDoc, doc)
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

// ownedSegments returns every segment of owner, newest first.
func (s *Service) ownedSegments(ctx context.Context, owner string) ([]*types.Segment, error) {
	segs, err := collect[*types.Segment](ctx, s, s.segments, types.Query{
		Where:      map[string]any{"owner_id": owner},
		OrderBy:    "created_at",
		Descending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("listing segments: %w", err)
	}
	return segs, nil
}

// relationsFor returns every relation row whose segment is in segmentIDs,
// filtered by the store in chunks.
func (s *Service) relationsFor(ctx context.Context, segmentIDs []string) ([]*types.ContactSegment, error) {
	var out []*types.ContactSegment
	for start := 0; start < len(segmentIDs); start += inChunk {
		end := min(start+inChunk, len(segmentIDs))
		rels, err := collect[*types.ContactSegment](ctx, s, s.relations, types.In("segment_id", segmentIDs[start:end]))
		if err != nil {
			return nil, fmt.Errorf("listing relations: %w", err)
		}
		out = append(out, rels...)
	}
	return out, nil
}

// allRelations reads the whole relation table in store order.
func (s *Service) allRelations(ctx context.Context) ([]*types.ContactSegment, error) {
	rels, err := collect[*types.ContactSegment](ctx, s, s.relations, types.Query{})
	if err != nil {
		return nil, fmt.Errorf("scanning relations: %w", err)
	}
	return rels, nil
}

// pairRelations returns up to limit relation rows for the pair. limit <= 0
// returns them all.
func (s *Service) pairRelations(ctx context.Context, contactID, segmentID string, limit int) ([]*types.ContactSegment, error) {
	page, err := s.relations.Fetch(ctx, types.Query{
		Where: map[string]any{"contact_id": contactID, "segment_id": segmentID},
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("looking up relation: %w", err)
	}
	out := make([]*types.ContactSegment, 0, len(page.Documents))
	for _, doc := range page.Documents {
		rel, ok := doc.(*types.ContactSegment)
		if !ok {
			return nil, fmt.Errorf("%w: %T", errUnexpectedDoc, doc)
		}
		out = append(out, rel)
	}
	return out, nil
}

// ownedSegment loads a segment and checks it belongs to owner. A foreign
// segment yields mismatch.
func (s *Service) ownedSegment(ctx context.Context, owner, id string, mismatch error) (*types.Segment, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	doc, err := s.segments.Get(ctx, id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("segment %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("loading segment %s: %w", id, err)
	}
	seg, ok := doc.(*types.Segment)
	if !ok {
		return nil, fmt.Errorf("%w: %T", errUnexpectedDoc, doc)
	}
	if seg.OwnerID != owner {
		return nil, fmt.Errorf("segment %s: %w", id, mismatch)
	}
	return seg, nil
}

// ownedContact loads a contact and checks it belongs to owner.
func (s *Service) ownedContact(ctx context.Context, owner, id string) (*types.Contact, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	doc, err := s.contacts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("contact %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("loading contact %s: %w", id, err)
	}
	c, ok := doc.(*types.Contact)
	if !ok {
		return nil, fmt.Errorf("%w: %T", errUnexpectedDoc, doc)
	}
	if c.OwnerID != owner {
		return nil, fmt.Errorf("contact %s: %w", id, ErrPermission)
	}
	return c, nil
}

// touch bumps updated_at on seg. Failures are logged; the membership change
// that triggered the touch already happened.
func (s *Service) touch(ctx context.Context, seg *types.Segment) {
	seg.UpdatedAt = s.now()
	if _, err := s.segments.Set(ctx, seg.SegmentID, seg); err != nil {
		s.log.Warn("bumping segment updated_at",
			zap.String("segment_id", seg.SegmentID), zap.Error(err))
	}
}

func segmentIDs(segs []*types.Segment) []string {
	ids := make([]string, len(segs))
	for i, seg := range segs {
		ids[i] = seg.SegmentID
	}
	return ids
}

func values(segs []*types.Segment) []types.Segment {
	out := make([]types.Segment, len(segs))
	for i, seg := range segs {
		out[i] = *seg
	}
	return out
}

package segments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/segments/pkg/types"
)

// AddContactToSegment adds the contact to the segment. Both must belong to
// the acting owner. An existing row for the pair fails with
// ErrAlreadyExists; the check is a single lookup, so concurrent adds on a
// store without a unique index can still create duplicates.
func (s *Service) AddContactToSegment(ctx context.Context, contactID, segmentID string) (rel *types.ContactSegment, err error) {
	defer s.track("add_contact", time.Now(), &err)

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	seg, err := s.ownedSegment(ctx, owner, segmentID, ErrPermission)
	if err != nil {
		return nil, err
	}
	rel, err = s.addContact(ctx, owner, contactID, seg.SegmentID)
	if err != nil {
		return nil, err
	}
	s.touch(ctx, seg)
	s.cache.Invalidate(owner)
	return rel, nil
}

// addContact checks the contact and the pair, then writes the relation.
// The segment has already been checked.
func (s *Service) addContact(ctx context.Context, owner, contactID, segmentID string) (*types.ContactSegment, error) {
	if _, err := s.ownedContact(ctx, owner, contactID); err != nil {
		return nil, err
	}
	existing, err := s.pairRelations(ctx, contactID, segmentID, 1)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("contact %s in segment %s: %w", contactID, segmentID, ErrAlreadyExists)
	}
	return s.insertRelation(ctx, contactID, segmentID)
}

func (s *Service) insertRelation(ctx context.Context, contactID, segmentID string) (*types.ContactSegment, error) {
	rel := &types.ContactSegment{ContactID: contactID, SegmentID: segmentID, CreatedAt: s.now()}
	if _, err := s.relations.Set(ctx, "", rel); err != nil {
		if errors.Is(err, types.ErrDuplicate) {
			return nil, fmt.Errorf("contact %s in segment %s: %w", contactID, segmentID, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("creating relation: %w", err)
	}
	return rel, nil
}

// RemoveContactFromSegment removes the contact from the segment. When
// duplicate rows exist for the pair only the first one found is deleted;
// RemoveDuplicateRelations clears the rest.
func (s *Service) RemoveContactFromSegment(ctx context.Context, contactID, segmentID string) (err error) {
	defer s.track("remove_contact", time.Now(), &err)

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		return err
	}
	seg, err := s.ownedSegment(ctx, owner, segmentID, ErrPermission)
	if err != nil {
		return err
	}
	if err := s.removeContact(ctx, owner, contactID, seg.SegmentID); err != nil {
		return err
	}
	s.touch(ctx, seg)
	s.cache.Invalidate(owner)
	return nil
}

func (s *Service) removeContact(ctx context.Context, owner, contactID, segmentID string) error {
	if _, err := s.ownedContact(ctx, owner, contactID); err != nil {
		return err
	}
	rows, err := s.pairRelations(ctx, contactID, segmentID, 1)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("contact %s in segment %s: %w", contactID, segmentID, ErrNotFound)
	}
	if err := s.relations.Delete(ctx, rows[0].RelationID); err != nil {
		return fmt.Errorf("deleting relation %s: %w", rows[0].RelationID, err)
	}
	return nil
}

// AddContactsToSegment adds each contact in turn, continuing past
// failures. updated_at is bumped once if any add succeeded.
func (s *Service) AddContactsToSegment(ctx context.Context, contactIDs []string, segmentID string) (res *BatchResult, err error) {
	defer s.trackBatch("add_contacts", time.Now(), &res, &err)
	return s.applyToSegment(ctx, contactIDs, segmentID, func(owner, contactID string) error {
		_, err := s.addContact(ctx, owner, contactID, segmentID)
		return err
	})
}

// RemoveContactsFromSegment removes each contact in turn, continuing past
// failures. updated_at is bumped once if any removal succeeded.
func (s *Service) RemoveContactsFromSegment(ctx context.Context, contactIDs []string, segmentID string) (res *BatchResult, err error) {
	defer s.trackBatch("remove_contacts", time.Now(), &res, &err)
	return s.applyToSegment(ctx, contactIDs, segmentID, func(owner, contactID string) error {
		return s.removeContact(ctx, owner, contactID, segmentID)
	})
}

func (s *Service) applyToSegment(ctx context.Context, contactIDs []string, segmentID string, apply func(owner, contactID string) error) (*BatchResult, error) {
	owner, err := OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if len(contactIDs) == 0 {
		return nil, ErrNoContacts
	}
	seg, err := s.ownedSegment(ctx, owner, segmentID, ErrPermission)
	if err != nil {
		return nil, err
	}

	res := newBatch(len(contactIDs))
	for _, id := range contactIDs {
		res.record(id, apply(owner, id))
	}
	if res.Succeeded > 0 {
		s.touch(ctx, seg)
		s.cache.Invalidate(owner)
	}
	return res, res.finish()
}

// MoveContacts moves each contact from one segment to another by removing
// and then adding it. A contact counts as moved only when both steps
// succeed. If the add fails after the remove, the contact is put back into
// the source segment and the item is marked Restored.
func (s *Service) MoveContacts(ctx context.Context, contactIDs []string, fromID, toID string) (res *BatchResult, err error) {
	defer s.trackBatch("move_contacts", time.Now(), &res, &err)

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if fromID == toID {
		return nil, ErrSameSegment
	}
	if len(contactIDs) == 0 {
		return nil, ErrNoContacts
	}
	from, err := s.ownedSegment(ctx, owner, fromID, ErrPermission)
	if err != nil {
		return nil, err
	}
	to, err := s.ownedSegment(ctx, owner, toID, ErrPermission)
	if err != nil {
		return nil, err
	}

	res = newBatch(len(contactIDs))
	for _, id := range contactIDs {
		if err := s.removeContact(ctx, owner, id, from.SegmentID); err != nil {
			res.record(id, fmt.Errorf("remove from source: %w", err))
			continue
		}
		if _, err := s.addContact(ctx, owner, id, to.SegmentID); err != nil {
			item := res.record(id, fmt.Errorf("add to target: %w", err))
			if _, rerr := s.insertRelation(ctx, id, from.SegmentID); rerr != nil {
				s.log.Error("contact left outside both segments",
					zap.String("contact_id", id),
					zap.String("from", from.SegmentID),
					zap.String("to", to.SegmentID),
					zap.Error(rerr))
			} else {
				item.Restored = true
			}
			continue
		}
		res.record(id, nil)
	}
	if res.Succeeded > 0 {
		s.touch(ctx, from)
		s.touch(ctx, to)
		s.cache.Invalidate(owner)
	}
	return res, res.finish()
}

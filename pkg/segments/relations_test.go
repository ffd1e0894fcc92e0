package segments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/segments/pkg/types"
)

func TestAddContactToSegment(t *testing.T) {
	f := newFixture(t)
	seg := f.segment(t, f.ctx, "VIP", types.ColorRed)
	c := f.contact(t, "u1", "a@example.com")

	rel, err := f.svc.AddContactToSegment(f.ctx, c, seg.SegmentID)
	require.NoError(t, err)
	assert.NotEmpty(t, rel.RelationID)
	assert.Equal(t, c, rel.ContactID)
	assert.True(t, f.reload(t, seg.SegmentID).UpdatedAt.After(seg.UpdatedAt), "updated_at bumped")

	_, err = f.svc.AddContactToSegment(f.ctx, c, seg.SegmentID)
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, KindAlreadyExists, KindOf(err))
	assert.Equal(t, 1, f.pairCount(t, c, seg.SegmentID))
}

func TestAddContactToSegment_Ownership(t *testing.T) {
	f := newFixture(t)
	mine := f.segment(t, f.ctx, "VIP", types.ColorRed)
	theirs := f.segment(t, f.as("u2"), "VIP", types.ColorRed)
	myContact := f.contact(t, "u1", "a@example.com")
	theirContact := f.contact(t, "u2", "b@example.com")

	tests := []struct {
		name      string
		contactID string
		segmentID string
		wantErr   error
	}{
		{name: "foreign segment", contactID: myContact, segmentID: theirs.SegmentID, wantErr: ErrPermission},
		{name: "foreign contact", contactID: theirContact, segmentID: mine.SegmentID, wantErr: ErrPermission},
		{name: "missing segment", contactID: myContact, segmentID: "nope", wantErr: ErrNotFound},
		{name: "missing contact", contactID: "nope", segmentID: mine.SegmentID, wantErr: ErrNotFound},
		{name: "empty contact id", contactID: "", segmentID: mine.SegmentID, wantErr: ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AddContactToSegment(f.ctx, tt.contactID, tt.segmentID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, 0, f.relationCount(t, ""))
}

func TestRemoveContactFromSegment_RemovesOneRow(t *testing.T) {
	f := newFixture(t)
	seg := f.segment(t, f.ctx, "VIP", types.ColorRed)
	c := f.contact(t, "u1", "a@example.com")
	f.rawRelation(t, c, seg.SegmentID)
	f.rawRelation(t, c, seg.SegmentID)

	require.NoError(t, f.svc.RemoveContactFromSegment(f.ctx, c, seg.SegmentID))
	assert.Equal(t, 1, f.pairCount(t, c, seg.SegmentID), "only the first duplicate is removed")

	require.NoError(t, f.svc.RemoveContactFromSegment(f.ctx, c, seg.SegmentID))
	assert.Equal(t, 0, f.pairCount(t, c, seg.SegmentID))

	err := f.svc.RemoveContactFromSegment(f.ctx, c, seg.SegmentID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddContactsToSegment(t *testing.T) {
	f := newFixture(t)
	seg := f.segment(t, f.ctx, "VIP", types.ColorRed)
	a := f.contact(t, "u1", "a@example.com")
	b := f.contact(t, "u1", "b@example.com")
	foreign := f.contact(t, "u2", "x@example.com")
	_, err := f.svc.AddContactToSegment(f.ctx, b, seg.SegmentID)
	require.NoError(t, err)
	before := f.reload(t, seg.SegmentID).UpdatedAt

	res, err := f.svc.AddContactsToSegment(f.ctx, []string{a, b, foreign, "missing"}, seg.SegmentID)
	require.NoError(t, err, "partial success is not an error")
	assert.Equal(t, PartialSuccess, res.Outcome)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 3, res.Failed)
	require.Len(t, res.Items, 4)
	assert.True(t, res.Items[0].Success)
	assert.Equal(t, KindAlreadyExists, res.Items[1].Kind)
	assert.Equal(t, KindPermission, res.Items[2].Kind)
	assert.Equal(t, KindNotFound, res.Items[3].Kind)
	assert.True(t, f.reload(t, seg.SegmentID).UpdatedAt.After(before))

	t.Run("all failed", func(t *testing.T) {
		before := f.reload(t, seg.SegmentID).UpdatedAt
		res, err := f.svc.AddContactsToSegment(f.ctx, []string{a, b}, seg.SegmentID)
		assert.ErrorIs(t, err, ErrBatchFailed)
		assert.Equal(t, AllFailed, res.Outcome)
		assert.Equal(t, before, f.reload(t, seg.SegmentID).UpdatedAt, "no bump without a success")
	})

	t.Run("no contacts", func(t *testing.T) {
		_, err := f.svc.AddContactsToSegment(f.ctx, nil, seg.SegmentID)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestRemoveContactsFromSegment(t *testing.T) {
	f := newFixture(t)
	seg := f.segment(t, f.ctx, "VIP", types.ColorRed)
	a := f.contact(t, "u1", "a@example.com")
	b := f.contact(t, "u1", "b@example.com")
	res, err := f.svc.AddContactsToSegment(f.ctx, []string{a, b}, seg.SegmentID)
	require.NoError(t, err)
	require.Equal(t, AllSucceeded, res.Outcome)

	res, err = f.svc.RemoveContactsFromSegment(f.ctx, []string{a, b}, seg.SegmentID)
	require.NoError(t, err)
	assert.Equal(t, AllSucceeded, res.Outcome)
	assert.Equal(t, 0, f.relationCount(t, seg.SegmentID))
}

func TestMoveContacts(t *testing.T) {
	f := newFixture(t)
	from := f.segment(t, f.ctx, "Leads", types.ColorBlue)
	to := f.segment(t, f.ctx, "VIP", types.ColorRed)
	a := f.contact(t, "u1", "a@example.com")
	b := f.contact(t, "u1", "b@example.com")
	c := f.contact(t, "u1", "c@example.com")
	for _, id := range []string{a, b} {
		_, err := f.svc.AddContactToSegment(f.ctx, id, from.SegmentID)
		require.NoError(t, err)
	}

	res, err := f.svc.MoveContacts(f.ctx, []string{a, b, c}, from.SegmentID, to.SegmentID)
	require.NoError(t, err)
	assert.Equal(t, PartialSuccess, res.Outcome)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, KindNotFound, res.Items[2].Kind, "c was never in the source")
	assert.Equal(t, 0, f.relationCount(t, from.SegmentID))
	assert.Equal(t, 2, f.relationCount(t, to.SegmentID))

	_, err = f.svc.MoveContacts(f.ctx, []string{a}, to.SegmentID, to.SegmentID)
	assert.ErrorIs(t, err, ErrSameSegment)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestMoveContacts_RestoresSourceWhenAddFails(t *testing.T) {
	f := newFixture(t)
	from := f.segment(t, f.ctx, "Leads", types.ColorBlue)
	to := f.segment(t, f.ctx, "VIP", types.ColorRed)
	a := f.contact(t, "u1", "a@example.com")
	for _, seg := range []*types.Segment{from, to} {
		_, err := f.svc.AddContactToSegment(f.ctx, a, seg.SegmentID)
		require.NoError(t, err)
	}

	res, err := f.svc.MoveContacts(f.ctx, []string{a}, from.SegmentID, to.SegmentID)
	assert.ErrorIs(t, err, ErrBatchFailed)
	require.Len(t, res.Items, 1)
	item := res.Items[0]
	assert.False(t, item.Success)
	assert.Equal(t, KindAlreadyExists, item.Kind)
	assert.True(t, item.Restored)
	assert.Equal(t, 1, f.pairCount(t, a, from.SegmentID), "contact restored to source")
	assert.Equal(t, 1, f.pairCount(t, a, to.SegmentID))
}

func TestMoveContacts_StoreFailureOnAdd(t *testing.T) {
	rels := &faultyTable{}
	f := newFixtureOn(t, &faultyCupboard{
		Cupboard: attachMemory(t),
		tables:   map[string]*faultyTable{types.ContactSegmentsTable: rels},
	})
	from := f.segment(t, f.ctx, "Leads", types.ColorBlue)
	to := f.segment(t, f.ctx, "VIP", types.ColorRed)
	a := f.contact(t, "u1", "a@example.com")
	f.rawRelation(t, a, from.SegmentID)

	rels.failSet = func(data any) error {
		if rel := data.(*types.ContactSegment); rel.SegmentID == to.SegmentID {
			return errInjected
		}
		return nil
	}

	res, err := f.svc.MoveContacts(f.ctx, []string{a}, from.SegmentID, to.SegmentID)
	assert.ErrorIs(t, err, ErrBatchFailed)
	assert.True(t, res.Items[0].Restored)
	assert.Equal(t, KindStore, res.Items[0].Kind)
	assert.Equal(t, 1, f.pairCount(t, a, from.SegmentID))
	assert.Equal(t, 0, f.pairCount(t, a, to.SegmentID))
}

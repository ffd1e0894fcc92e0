package segments

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/segments/pkg/types"
)

func TestDuplicateSegment(t *testing.T) {
	f := newFixture(t)
	src, err := f.svc.CreateSegment(f.ctx, "VIP", types.ColorPurple, "best customers")
	require.NoError(t, err)
	a := f.contact(t, "u1", "a@example.com")
	b := f.contact(t, "u1", "b@example.com")
	f.rawRelation(t, a, src.SegmentID)
	f.rawRelation(t, b, src.SegmentID)

	res, err := f.svc.DuplicateSegment(f.ctx, src.SegmentID, "")
	require.NoError(t, err)
	assert.Equal(t, "VIP (Copy)", res.Segment.Name)
	assert.Equal(t, types.ColorPurple, res.Segment.Color)
	assert.Equal(t, "best customers", res.Segment.Description)
	assert.Equal(t, 2, res.ContactsCopied)
	assert.Equal(t, 1, f.pairCount(t, a, res.Segment.SegmentID))
	assert.Equal(t, 2, f.relationCount(t, src.SegmentID), "source untouched")

	_, err = f.svc.DuplicateSegment(f.ctx, src.SegmentID, "")
	assert.ErrorIs(t, err, ErrDuplicateName, "second default copy collides")

	named, err := f.svc.DuplicateSegment(f.ctx, src.SegmentID, "VIP 2026")
	require.NoError(t, err)
	assert.Equal(t, "VIP 2026", named.Segment.Name)

	_, err = f.svc.DuplicateSegment(f.as("u2"), src.SegmentID, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDuplicateSegment_SkipsFailedCopies(t *testing.T) {
	rels := &faultyTable{}
	f := newFixtureOn(t, &faultyCupboard{
		Cupboard: attachMemory(t),
		tables:   map[string]*faultyTable{types.ContactSegmentsTable: rels},
	})
	src := f.segment(t, f.ctx, "VIP", types.ColorRed)
	a := f.contact(t, "u1", "a@example.com")
	b := f.contact(t, "u1", "b@example.com")
	f.rawRelation(t, a, src.SegmentID)
	f.rawRelation(t, b, src.SegmentID)

	rels.failSet = func(data any) error {
		if data.(*types.ContactSegment).ContactID == a {
			return errInjected
		}
		return nil
	}
	res, err := f.svc.DuplicateSegment(f.ctx, src.SegmentID, "Copy")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ContactsCopied)
	assert.Equal(t, 1, res.CopyFailures)
}

func TestMergeSegments_OverlapKeepsSingleTargetRow(t *testing.T) {
	f := newFixture(t)
	target := f.segment(t, f.ctx, "B", types.ColorBlue)
	source := f.segment(t, f.ctx, "A", types.ColorRed)
	x := f.contact(t, "u1", "x@example.com")
	y := f.contact(t, "u1", "y@example.com")
	for _, seg := range []*types.Segment{target, source} {
		_, err := f.svc.AddContactToSegment(f.ctx, x, seg.SegmentID)
		require.NoError(t, err)
	}
	_, err := f.svc.AddContactToSegment(f.ctx, y, source.SegmentID)
	require.NoError(t, err)

	res, err := f.svc.MergeSegments(f.ctx, target.SegmentID, []string{source.SegmentID}, false)
	require.NoError(t, err)
	assert.Equal(t, AllSucceeded, res.Outcome)
	assert.Equal(t, 1, res.ContactsMoved)
	assert.Equal(t, 0, res.SourcesDeleted)
	assert.Equal(t, 1, res.Items[0].Count)

	assert.Equal(t, 1, f.pairCount(t, x, target.SegmentID))
	assert.Equal(t, 0, f.pairCount(t, x, source.SegmentID))
	assert.Equal(t, 1, f.pairCount(t, y, target.SegmentID))
	_, err = f.svc.GetSegment(f.ctx, source.SegmentID)
	assert.NoError(t, err, "source kept when deleteSources is false")
}

func TestMergeSegments_PerSourceOutcomes(t *testing.T) {
	f := newFixture(t)
	target := f.segment(t, f.ctx, "Target", types.ColorBlue)
	good := f.segment(t, f.ctx, "Good", types.ColorRed)
	foreign := f.segment(t, f.as("u2"), "Foreign", types.ColorRed)
	c := f.contact(t, "u1", "c@example.com")
	f.rawRelation(t, c, good.SegmentID)
	f.rawRelation(t, c, good.SegmentID) // duplicate rows collapse into one target row
	before := f.reload(t, target.SegmentID).UpdatedAt

	res, err := f.svc.MergeSegments(f.ctx, target.SegmentID,
		[]string{good.SegmentID, target.SegmentID, foreign.SegmentID, "missing"}, true)
	require.NoError(t, err)
	assert.Equal(t, PartialSuccess, res.Outcome)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.SourcesDeleted)
	assert.Equal(t, []Kind{KindNone, KindValidation, KindPermission, KindNotFound},
		[]Kind{res.Items[0].Kind, res.Items[1].Kind, res.Items[2].Kind, res.Items[3].Kind})

	assert.Equal(t, 1, f.pairCount(t, c, target.SegmentID))
	assert.Equal(t, 0, f.relationCount(t, good.SegmentID))
	_, err = f.svc.GetSegment(f.ctx, good.SegmentID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, f.reload(t, target.SegmentID).UpdatedAt.After(before))
}

func TestMergeSegments_KeepsSourceWhenRowsFail(t *testing.T) {
	rels := &faultyTable{}
	f := newFixtureOn(t, &faultyCupboard{
		Cupboard: attachMemory(t),
		tables:   map[string]*faultyTable{types.ContactSegmentsTable: rels},
	})
	target := f.segment(t, f.ctx, "Target", types.ColorBlue)
	source := f.segment(t, f.ctx, "Source", types.ColorRed)
	a := f.contact(t, "u1", "a@example.com")
	b := f.contact(t, "u1", "b@example.com")
	f.rawRelation(t, a, source.SegmentID)
	f.rawRelation(t, b, source.SegmentID)

	rels.failSet = func(data any) error {
		if data.(*types.ContactSegment).ContactID == b {
			return errInjected
		}
		return nil
	}

	res, err := f.svc.MergeSegments(f.ctx, target.SegmentID, []string{source.SegmentID}, true)
	assert.ErrorIs(t, err, ErrBatchFailed)
	assert.Equal(t, AllFailed, res.Outcome)
	assert.Equal(t, 1, res.ContactsMoved)
	assert.Equal(t, 0, res.SourcesDeleted)
	assert.Equal(t, 1, f.pairCount(t, b, source.SegmentID), "unmoved row stays in the source")

	// Re-running after the fault clears converges.
	rels.failSet = nil
	res, err = f.svc.MergeSegments(f.ctx, target.SegmentID, []string{source.SegmentID}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SourcesDeleted)
	assert.Equal(t, 2, f.relationCount(t, target.SegmentID))
}

func TestMergeSegments_Validation(t *testing.T) {
	f := newFixture(t)
	target := f.segment(t, f.ctx, "Target", types.ColorBlue)

	_, err := f.svc.MergeSegments(f.ctx, target.SegmentID, nil, true)
	assert.ErrorIs(t, err, ErrNoSources)

	_, err = f.svc.MergeSegments(f.as("u2"), target.SegmentID, []string{"x"}, true)
	assert.ErrorIs(t, err, ErrPermission)
}

func TestCleanupEmptySegments(t *testing.T) {
	f := newFixture(t)
	empty1 := f.segment(t, f.ctx, "Empty 1", types.ColorGray)
	full := f.segment(t, f.ctx, "Full", types.ColorRed)
	empty2 := f.segment(t, f.ctx, "Empty 2", types.ColorGray)
	foreign := f.segment(t, f.as("u2"), "Foreign empty", types.ColorGray)
	f.rawRelation(t, f.contact(t, "u1", "a@example.com"), full.SegmentID)

	res, err := f.svc.CleanupEmptySegments(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, AllSucceeded, res.Outcome)
	assert.ElementsMatch(t, []string{empty1.SegmentID, empty2.SegmentID},
		[]string{res.Items[0].ID, res.Items[1].ID})

	segs, err := f.svc.ListSegments(f.ctx, 0)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "Full", segs[0].Name)
	_, err = f.svc.GetSegment(f.as("u2"), foreign.SegmentID)
	assert.NoError(t, err, "other owners are untouched")

	res, err = f.svc.CleanupEmptySegments(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, AllSucceeded, res.Outcome)
	assert.Empty(t, res.Items)
}

// orphanFixture seeds valid rows and rows pointing at deleted contacts and
// segments, across two owners. It returns the ids of the orphaned rows.
func orphanFixture(t *testing.T, f *fixture) (valid, orphans []string) {
	t.Helper()
	seg := f.segment(t, f.ctx, "VIP", types.ColorRed)
	gone := f.segment(t, f.ctx, "Gone", types.ColorGray)
	foreignSeg := f.segment(t, f.as("u2"), "Theirs", types.ColorBlue)
	a := f.contact(t, "u1", "a@example.com")
	b := f.contact(t, "u1", "b@example.com")
	x := f.contact(t, "u2", "x@example.com")

	valid = append(valid,
		f.rawRelation(t, a, seg.SegmentID),
		f.rawRelation(t, x, foreignSeg.SegmentID))
	orphans = append(orphans,
		f.rawRelation(t, b, seg.SegmentID),
		f.rawRelation(t, a, gone.SegmentID),
		f.rawRelation(t, "ghost", foreignSeg.SegmentID),
		f.rawRelation(t, "ghost", "nowhere"))

	require.NoError(t, f.table(types.ContactsTable).Delete(f.ctx, b))
	require.NoError(t, f.table(types.SegmentsTable).Delete(f.ctx, gone.SegmentID))
	return valid, orphans
}

func relationIDs(t *testing.T, f *fixture) []string {
	t.Helper()
	rels, err := f.svc.allRelations(f.ctx)
	require.NoError(t, err)
	var ids []string
	for _, r := range rels {
		ids = append(ids, r.RelationID)
	}
	return ids
}

func TestCleanupOrphanedRelations(t *testing.T) {
	f := newFixture(t, WithProbeConcurrency(2))
	valid, orphans := orphanFixture(t, f)

	cleaned, err := f.svc.CleanupOrphanedRelations(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, len(orphans), cleaned)
	assert.ElementsMatch(t, valid, relationIDs(t, f))

	cleaned, err = f.svc.CleanupOrphanedRelations(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, cleaned, "second run finds nothing")
}

func TestCleanupOrphanedRelations_ProbeFailureAborts(t *testing.T) {
	contacts := &faultyTable{}
	f := newFixtureOn(t, &faultyCupboard{
		Cupboard: attachMemory(t),
		tables:   map[string]*faultyTable{types.ContactsTable: contacts},
	})
	_, orphans := orphanFixture(t, f)
	contacts.failGet = func(string) error { return errInjected }

	_, err := f.svc.CleanupOrphanedRelations(f.ctx)
	assert.ErrorIs(t, err, errInjected)
	assert.Len(t, relationIDs(t, f), len(orphans)+2, "nothing deleted on probe failure")
}

func TestRemoveDuplicateRelations(t *testing.T) {
	for _, seed := range []uint64{1, 2, 3} {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			f := newFixture(t)
			s1 := f.segment(t, f.ctx, "S1", types.ColorRed)
			s2 := f.segment(t, f.as("u2"), "S2", types.ColorBlue)
			c := f.contact(t, "u1", "c@example.com")
			d := f.contact(t, "u1", "d@example.com")

			// 4 rows for (c,s1), 2 for (d,s2), 1 for (d,s1), shuffled.
			pairs := [][2]string{}
			for range 4 {
				pairs = append(pairs, [2]string{c, s1.SegmentID})
			}
			pairs = append(pairs, [2]string{d, s2.SegmentID}, [2]string{d, s2.SegmentID}, [2]string{d, s1.SegmentID})
			rng := rand.New(rand.NewPCG(seed, seed))
			rng.Shuffle(len(pairs), func(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] })
			for _, p := range pairs {
				f.rawRelation(t, p[0], p[1])
			}

			removed, err := f.svc.RemoveDuplicateRelations(f.ctx)
			require.NoError(t, err)
			assert.Equal(t, 4, removed)
			assert.Equal(t, 1, f.pairCount(t, c, s1.SegmentID))
			assert.Equal(t, 1, f.pairCount(t, d, s2.SegmentID), "global sweep covers other owners")
			assert.Equal(t, 1, f.pairCount(t, d, s1.SegmentID))
			assert.Equal(t, 3, f.relationCount(t, ""))
		})
	}
}

func TestRemoveDuplicateRelations_KeepsFirstSeen(t *testing.T) {
	f := newFixture(t)
	seg := f.segment(t, f.ctx, "S", types.ColorRed)
	c := f.contact(t, "u1", "c@example.com")
	first := f.rawRelation(t, c, seg.SegmentID)
	f.rawRelation(t, c, seg.SegmentID)
	f.rawRelation(t, c, seg.SegmentID)

	_, err := f.svc.RemoveDuplicateRelations(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{first}, relationIDs(t, f))
}

func TestRemoveDuplicateRelations_DeleteFailuresLogged(t *testing.T) {
	rels := &faultyTable{}
	f := newFixtureOn(t, &faultyCupboard{
		Cupboard: attachMemory(t),
		tables:   map[string]*faultyTable{types.ContactSegmentsTable: rels},
	})
	seg := f.segment(t, f.ctx, "S", types.ColorRed)
	c := f.contact(t, "u1", "c@example.com")
	f.rawRelation(t, c, seg.SegmentID)
	f.rawRelation(t, c, seg.SegmentID)
	rels.failDelete = func(string) error { return errInjected }

	removed, err := f.svc.RemoveDuplicateRelations(f.ctx)
	require.NoError(t, err, "delete failures are logged, not returned")
	assert.Zero(t, removed)
	assert.Equal(t, 2, f.relationCount(t, seg.SegmentID))
}

package segments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mesh-intelligence/segments/internal/memory"
	"github.com/mesh-intelligence/segments/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var baseTime = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

// testClock ticks one second per reading so creation order is observable.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock { return &testClock{t: baseTime} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fixture is a Service over a fresh memory cupboard.
type fixture struct {
	svc   *Service
	clock *testClock
	ctx   context.Context // acts as owner "u1"
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixtureOn(t, attachMemory(t), opts...)
}

func attachMemory(t *testing.T) *memory.Backend {
	t.Helper()
	b := memory.NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendMemory}))
	t.Cleanup(func() { b.Detach() })
	return b
}

func newFixtureOn(t *testing.T, c types.Cupboard, opts ...Option) *fixture {
	t.Helper()
	clock := newTestClock()
	opts = append([]Option{WithClock(clock.Now), WithPageSize(3)}, opts...)
	svc, err := New(c, opts...)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return &fixture{svc: svc, clock: clock, ctx: WithOwner(context.Background(), "u1")}
}

func (f *fixture) as(owner string) context.Context {
	return WithOwner(context.Background(), owner)
}

func (f *fixture) table(name string) types.Table {
	switch name {
	case types.ContactsTable:
		return f.svc.contacts
	case types.ContactSegmentsTable:
		return f.svc.relations
	default:
		return f.svc.segments
	}
}

// contact stores a contact for owner and returns its id.
func (f *fixture) contact(t *testing.T, owner, email string) string {
	t.Helper()
	id, err := f.table(types.ContactsTable).Set(context.Background(), "", &types.Contact{OwnerID: owner, Email: email})
	require.NoError(t, err)
	return id
}

// segment creates a segment for the owner in ctx.
func (f *fixture) segment(t *testing.T, ctx context.Context, name, color string) *types.Segment {
	t.Helper()
	seg, err := f.svc.CreateSegment(ctx, name, color, "")
	require.NoError(t, err)
	return seg
}

// rawRelation writes a relation row directly, bypassing the duplicate check.
func (f *fixture) rawRelation(t *testing.T, contactID, segmentID string) string {
	t.Helper()
	id, err := f.table(types.ContactSegmentsTable).Set(context.Background(), "",
		&types.ContactSegment{ContactID: contactID, SegmentID: segmentID})
	require.NoError(t, err)
	return id
}

// pairCount counts rows for a pair.
func (f *fixture) pairCount(t *testing.T, contactID, segmentID string) int {
	t.Helper()
	page, err := f.table(types.ContactSegmentsTable).Fetch(context.Background(), types.Query{
		Where: map[string]any{"contact_id": contactID, "segment_id": segmentID},
	})
	require.NoError(t, err)
	return page.Total
}

// relationCount counts all relation rows, optionally for one segment.
func (f *fixture) relationCount(t *testing.T, segmentID string) int {
	t.Helper()
	q := types.Query{}
	if segmentID != "" {
		q = types.Eq("segment_id", segmentID)
	}
	page, err := f.table(types.ContactSegmentsTable).Fetch(context.Background(), q)
	require.NoError(t, err)
	return page.Total
}

func (f *fixture) reload(t *testing.T, id string) *types.Segment {
	t.Helper()
	doc, err := f.table(types.SegmentsTable).Get(context.Background(), id)
	require.NoError(t, err)
	return doc.(*types.Segment)
}

// faultyCupboard wraps selected tables of a cupboard with fault injection.
type faultyCupboard struct {
	types.Cupboard
	tables map[string]*faultyTable
}

func (c *faultyCupboard) GetTable(name string) (types.Table, error) {
	t, err := c.Cupboard.GetTable(name)
	if err != nil {
		return nil, err
	}
	if ft, ok := c.tables[name]; ok {
		ft.Table = t
		return ft, nil
	}
	return t, nil
}

var errInjected = errors.New("injected failure")

// faultyTable fails the operations whose hooks return an error and counts
// Fetch calls.
type faultyTable struct {
	types.Table
	mu         sync.Mutex
	fetches    int
	failSet    func(data any) error
	failDelete func(id string) error
	failGet    func(id string) error
}

func (t *faultyTable) Get(ctx context.Context, id string) (any, error) {
	if t.failGet != nil {
		if err := t.failGet(id); err != nil {
			return nil, err
		}
	}
	return t.Table.Get(ctx, id)
}

func (t *faultyTable) Set(ctx context.Context, id string, data any) (string, error) {
	if t.failSet != nil {
		if err := t.failSet(data); err != nil {
			return "", err
		}
	}
	return t.Table.Set(ctx, id, data)
}

func (t *faultyTable) Delete(ctx context.Context, id string) error {
	if t.failDelete != nil {
		if err := t.failDelete(id); err != nil {
			return err
		}
	}
	return t.Table.Delete(ctx, id)
}

func (t *faultyTable) Fetch(ctx context.Context, q types.Query) (types.Page, error) {
	t.mu.Lock()
	t.fetches++
	t.mu.Unlock()
	return t.Table.Fetch(ctx, q)
}

func (t *faultyTable) Fetches() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fetches
}

func TestNew(t *testing.T) {
	t.Run("detached cupboard", func(t *testing.T) {
		_, err := New(memory.NewBackend())
		assert.ErrorIs(t, err, types.ErrCupboardDetached)
	})

	t.Run("registers metrics", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		f := newFixture(t, WithRegisterer(reg))
		f.segment(t, f.ctx, "VIP", types.ColorRed)

		families, err := reg.Gather()
		require.NoError(t, err)
		var names []string
		for _, mf := range families {
			names = append(names, mf.GetName())
		}
		assert.Contains(t, names, "segments_operations_total")
	})
}

func TestOwnerFromContext(t *testing.T) {
	_, err := OwnerFromContext(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = OwnerFromContext(WithOwner(context.Background(), ""))
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	owner, err := OwnerFromContext(WithOwner(context.Background(), "u1"))
	require.NoError(t, err)
	assert.Equal(t, "u1", owner)
}

func TestOperations_RequireOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ops := map[string]func() error{
		"CreateSegment":             func() error { _, err := f.svc.CreateSegment(ctx, "VIP", types.ColorRed, ""); return err },
		"GetSegment":                func() error { _, err := f.svc.GetSegment(ctx, "s1"); return err },
		"ListSegments":              func() error { _, err := f.svc.ListSegments(ctx, 0); return err },
		"SearchSegments":            func() error { _, err := f.svc.SearchSegments(ctx, "v"); return err },
		"UpdateSegment":             func() error { _, err := f.svc.UpdateSegment(ctx, "s1", SegmentUpdate{}); return err },
		"DeleteSegment":             func() error { _, err := f.svc.DeleteSegment(ctx, "s1"); return err },
		"GetSegmentsCached":         func() error { _, _, err := f.svc.GetSegmentsCached(ctx); return err },
		"AddContactToSegment":       func() error { _, err := f.svc.AddContactToSegment(ctx, "c1", "s1"); return err },
		"RemoveContactFromSegment":  func() error { return f.svc.RemoveContactFromSegment(ctx, "c1", "s1") },
		"AddContactsToSegment":      func() error { _, err := f.svc.AddContactsToSegment(ctx, []string{"c1"}, "s1"); return err },
		"RemoveContactsFromSegment": func() error { _, err := f.svc.RemoveContactsFromSegment(ctx, []string{"c1"}, "s1"); return err },
		"MoveContacts":              func() error { _, err := f.svc.MoveContacts(ctx, []string{"c1"}, "s1", "s2"); return err },
		"AnalyzeSegmentUsage":       func() error { _, err := f.svc.AnalyzeSegmentUsage(ctx); return err },
		"GetSegmentStats":           func() error { _, err := f.svc.GetSegmentStats(ctx); return err },
		"GetColorDistribution":      func() error { _, err := f.svc.GetColorDistribution(ctx); return err },
		"DuplicateSegment":          func() error { _, err := f.svc.DuplicateSegment(ctx, "s1", ""); return err },
		"MergeSegments":             func() error { _, err := f.svc.MergeSegments(ctx, "s1", []string{"s2"}, true); return err },
		"CleanupEmptySegments":      func() error { _, err := f.svc.CleanupEmptySegments(ctx); return err },
		"CleanupOrphanedRelations":  func() error { _, err := f.svc.CleanupOrphanedRelations(ctx); return err },
		"RemoveDuplicateRelations":  func() error { _, err := f.svc.RemoveDuplicateRelations(ctx); return err },
		"ValidateSegmentIntegrity":  func() error { _, err := f.svc.ValidateSegmentIntegrity(ctx); return err },
		"CheckSegmentConsistency":   func() error { _, err := f.svc.CheckSegmentConsistency(ctx); return err },
		"AutoRepairSegmentIssues":   func() error { _, err := f.svc.AutoRepairSegmentIssues(ctx); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			assert.ErrorIs(t, err, ErrNotAuthenticated)
			assert.Equal(t, KindAuthentication, KindOf(err))
		})
	}
}

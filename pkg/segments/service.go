// Package segments manages owner-scoped segments and their contact
// memberships over a types.Cupboard: segment CRUD, membership changes, a
// read-through segment list cache, usage analytics, bulk maintenance and
// integrity repair.
//
// The relation table carries no owner field and may lack a unique index on
// (contact_id, segment_id), so duplicate and orphaned rows are treated as
// recoverable anomalies that the cleanup and repair operations remove.
//
// Every operation reads the acting owner from the context (see WithOwner)
// and fails with ErrNotAuthenticated when none is present.
package segments

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/segments/internal/metrics"
	"github.com/mesh-intelligence/segments/pkg/cache"
	"github.com/mesh-intelligence/segments/pkg/types"
)

// Version is the release of the segments module.
const Version = "0.1.0"

// Defaults for Service options.
const (
	DefaultListLimit        = 100
	DefaultSearchLimit      = 50
	DefaultPageSize         = 500
	DefaultProbeConcurrency = 8
	// inChunk caps the number of ids in one membership filter.
	inChunk = 500
)

// Service implements the segment operations. It is safe for concurrent use;
// individual operations issue their store mutations sequentially.
type Service struct {
	segments  types.Table
	contacts  types.Table
	relations types.Table

	cache     cache.Store[[]types.Segment]
	cacheTTL  time.Duration
	ownsCache bool
	log      *zap.Logger
	metrics  *metrics.Metrics
	reg      prometheus.Registerer
	now      func() time.Time

	pageSize int
	probes   int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithCache injects the segment list cache. It overrides WithCacheTTL. The
// caller keeps ownership of c; Service.Close does not close it.
func WithCache(c cache.Store[[]types.Segment]) Option {
	return func(s *Service) { s.cache = c }
}

// WithCacheTTL sets the lifetime of the default cache's entries.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cacheTTL = ttl }
}

// WithClock overrides the clock used for timestamps and day arithmetic.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRegisterer registers the service metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Service) { s.reg = reg }
}

// WithProbeConcurrency bounds the parallel lookups made while checking
// relations for dangling references.
func WithProbeConcurrency(n int) Option {
	return func(s *Service) { s.probes = n }
}

// WithPageSize sets how many documents a full-table scan reads per Fetch.
func WithPageSize(n int) Option {
	return func(s *Service) { s.pageSize = n }
}

// New binds a Service to the segments, contacts and contact_segments tables
// of an attached cupboard.
func New(c types.Cupboard, opts ...Option) (*Service, error) {
	s := &Service{
		log:      zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
		pageSize: DefaultPageSize,
		probes:   DefaultProbeConcurrency,
		cacheTTL: cache.DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pageSize <= 0 {
		s.pageSize = DefaultPageSize
	}
	if s.probes <= 0 {
		s.probes = DefaultProbeConcurrency
	}

	var err error
	if s.segments, err = c.GetTable(types.SegmentsTable); err != nil {
		return nil, fmt.Errorf("segments table: %w", err)
	}
	if s.contacts, err = c.GetTable(types.ContactsTable); err != nil {
		return nil, fmt.Errorf("contacts table: %w", err)
	}
	if s.relations, err = c.GetTable(types.ContactSegmentsTable); err != nil {
		return nil, fmt.Errorf("contact_segments table: %w", err)
	}

	if s.cache == nil {
		s.cache = cache.NewTTL[[]types.Segment](cache.DefaultSize, s.cacheTTL, cache.WithClock(s.now))
		s.ownsCache = true
	}
	if s.metrics, err = metrics.New(s.reg); err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	return s, nil
}

// Close releases the cache the Service created. An injected cache is left
// to its owner. The cupboard is not detached.
func (s *Service) Close() {
	if s.ownsCache {
		s.cache.Close()
	}
}

type ownerKey struct{}

// WithOwner returns a context acting on behalf of ownerID.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerFromContext returns the acting owner, or ErrNotAuthenticated.
func OwnerFromContext(ctx context.Context) (string, error) {
	owner, _ := ctx.Value(ownerKey{}).(string)
	if owner == "" {
		return "", ErrNotAuthenticated
	}
	return owner, nil
}

// track records an operation's outcome. Use with a named error return:
//
//	defer s.track("create_segment", time.Now(), &err)
func (s *Service) track(op string, start time.Time, err *error) {
	status := metrics.StatusOK
	if *err != nil {
		status = metrics.StatusError
		s.log.Debug("operation failed", zap.String("op", op), zap.Error(*err))
	}
	s.metrics.Observe(op, status, start)
}

// trackBatch is track for operations returning a BatchResult.
func (s *Service) trackBatch(op string, start time.Time, b **BatchResult, err *error) {
	status := metrics.StatusOK
	switch {
	case *err != nil:
		status = metrics.StatusError
	case *b != nil && (*b).Outcome == PartialSuccess:
		status = metrics.StatusPartial
	}
	s.metrics.Observe(op, status, start)
}

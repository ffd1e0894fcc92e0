package segments

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/mesh-intelligence/segments/pkg/types"
)

// Analytics thresholds.
const (
	topN           = 5
	staleAfterDays = 30
	manySegments   = 20
	day            = 24 * time.Hour
)

// SegmentUsage is one segment's line in a usage report.
type SegmentUsage struct {
	SegmentID        string `json:"segment_id" yaml:"segment_id"`
	Name             string `json:"name" yaml:"name"`
	Color            string `json:"color" yaml:"color"`
	ContactCount     int    `json:"contact_count" yaml:"contact_count"`
	DaysSinceCreated int    `json:"days_since_created" yaml:"days_since_created"`
	DaysSinceUpdated int    `json:"days_since_updated" yaml:"days_since_updated"`
}

// Recommendation is a suggested follow-up derived from a usage report.
type Recommendation struct {
	Type     string `json:"type" yaml:"type"`
	Priority string `json:"priority" yaml:"priority"`
	Message  string `json:"message" yaml:"message"`
}

// UsageReport summarises how the owner's segments are used.
type UsageReport struct {
	Segments                  []SegmentUsage   `json:"segments" yaml:"segments"`
	MostUsed                  []SegmentUsage   `json:"most_used" yaml:"most_used"`
	LeastUsed                 []SegmentUsage   `json:"least_used" yaml:"least_used"`
	EmptySegments             []SegmentUsage   `json:"empty_segments" yaml:"empty_segments"`
	StaleSegments             []SegmentUsage   `json:"stale_segments" yaml:"stale_segments"`
	TotalSegments             int              `json:"total_segments" yaml:"total_segments"`
	TotalUniqueContacts       int              `json:"total_unique_contacts" yaml:"total_unique_contacts"`
	AverageContactsPerSegment float64          `json:"average_contacts_per_segment" yaml:"average_contacts_per_segment"`
	CreatedThisMonth          int              `json:"created_this_month" yaml:"created_this_month"`
	Recommendations           []Recommendation `json:"recommendations" yaml:"recommendations"`
}

// membership is the owner's segments joined with their relation rows.
type membership struct {
	segments []*types.Segment
	// contacts holds the distinct contact ids per segment id.
	contacts map[string]map[string]bool
	// rows counts relation rows per segment id, duplicates included.
	rows     map[string]int
	unique   map[string]bool
	relCount int
}

// loadMembership reads the owner's segments and, through a segment id
// filter, their relations.
func (s *Service) loadMembership(ctx context.Context, owner string) (*membership, error) {
	segs, err := s.ownedSegments(ctx, owner)
	if err != nil {
		return nil, err
	}
	rels, err := s.relationsFor(ctx, segmentIDs(segs))
	if err != nil {
		return nil, err
	}
	m := &membership{
		segments: segs,
		contacts: make(map[string]map[string]bool, len(segs)),
		rows:     make(map[string]int, len(segs)),
		unique:   make(map[string]bool),
		relCount: len(rels),
	}
	for _, rel := range rels {
		set := m.contacts[rel.SegmentID]
		if set == nil {
			set = make(map[string]bool)
			m.contacts[rel.SegmentID] = set
		}
		set[rel.ContactID] = true
		m.rows[rel.SegmentID]++
		m.unique[rel.ContactID] = true
	}
	return m, nil
}

func (m *membership) count(segmentID string) int { return len(m.contacts[segmentID]) }

func daysBetween(from, to time.Time) int {
	if from.IsZero() || to.Before(from) {
		return 0
	}
	return int(to.Sub(from) / day)
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

// AnalyzeSegmentUsage reports contact counts, staleness and recommendations
// for the acting owner's segments.
func (s *Service) AnalyzeSegmentUsage(ctx context.Context) (rep *UsageReport, err error) {
	defer s.track("analyze_usage", time.Now(), &err)

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	m, err := s.loadMembership(ctx, owner)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rep = &UsageReport{
		Segments:            make([]SegmentUsage, 0, len(m.segments)),
		MostUsed:            []SegmentUsage{},
		LeastUsed:           []SegmentUsage{},
		EmptySegments:       []SegmentUsage{},
		StaleSegments:       []SegmentUsage{},
		TotalSegments:       len(m.segments),
		TotalUniqueContacts: len(m.unique),
		Recommendations:     []Recommendation{},
	}

	total := 0
	for _, seg := range m.segments {
		u := SegmentUsage{
			SegmentID:        seg.SegmentID,
			Name:             seg.Name,
			Color:            seg.Color,
			ContactCount:     m.count(seg.SegmentID),
			DaysSinceCreated: daysBetween(seg.CreatedAt, now),
			DaysSinceUpdated: daysBetween(seg.UpdatedAt, now),
		}
		total += u.ContactCount
		rep.Segments = append(rep.Segments, u)

		if u.ContactCount == 0 {
			rep.EmptySegments = append(rep.EmptySegments, u)
		} else if u.DaysSinceUpdated > staleAfterDays {
			rep.StaleSegments = append(rep.StaleSegments, u)
		}
		if seg.CreatedAt.Year() == now.Year() && seg.CreatedAt.Month() == now.Month() {
			rep.CreatedThisMonth++
		}
	}
	if len(m.segments) > 0 {
		rep.AverageContactsPerSegment = round2(float64(total) / float64(len(m.segments)))
	}

	byCount := slices.Clone(rep.Segments)
	slices.SortStableFunc(byCount, func(a, b SegmentUsage) int { return b.ContactCount - a.ContactCount })
	rep.MostUsed = append(rep.MostUsed, byCount[:min(topN, len(byCount))]...)
	slices.SortStableFunc(byCount, func(a, b SegmentUsage) int { return a.ContactCount - b.ContactCount })
	rep.LeastUsed = append(rep.LeastUsed, byCount[:min(topN, len(byCount))]...)

	rep.Recommendations = recommend(rep)
	return rep, nil
}

func recommend(rep *UsageReport) []Recommendation {
	recs := []Recommendation{}
	if n := len(rep.EmptySegments); n > 0 {
		recs = append(recs, Recommendation{
			Type:     "cleanup",
			Priority: "low",
			Message:  fmt.Sprintf("%d empty segment(s) could be deleted", n),
		})
	}
	if n := len(rep.StaleSegments); n > 0 {
		recs = append(recs, Recommendation{
			Type:     "review",
			Priority: "medium",
			Message:  fmt.Sprintf("%d segment(s) not updated in over %d days", n, staleAfterDays),
		})
	}
	if rep.TotalSegments > manySegments {
		recs = append(recs, Recommendation{
			Type:     "reorganize",
			Priority: "medium",
			Message:  fmt.Sprintf("%d segments; consider merging related ones", rep.TotalSegments),
		})
	}
	if rep.TotalSegments > 0 && rep.TotalUniqueContacts == 0 {
		recs = append(recs, Recommendation{
			Type:     "add_contacts",
			Priority: "high",
			Message:  "segments exist but none has contacts",
		})
	}
	return recs
}

// SegmentCount is a segment with its contact count.
type SegmentCount struct {
	SegmentID    string `json:"segment_id" yaml:"segment_id"`
	Name         string `json:"name" yaml:"name"`
	Color        string `json:"color" yaml:"color"`
	ContactCount int    `json:"contact_count" yaml:"contact_count"`
}

// SegmentStats lists contact counts with overall totals.
type SegmentStats struct {
	Segments            []SegmentCount `json:"segments" yaml:"segments"`
	TotalSegments       int            `json:"total_segments" yaml:"total_segments"`
	TotalRelations      int            `json:"total_relations" yaml:"total_relations"`
	TotalUniqueContacts int            `json:"total_unique_contacts" yaml:"total_unique_contacts"`
	MostPopular         *SegmentCount  `json:"most_popular,omitempty" yaml:"most_popular,omitempty"`
}

// GetSegmentStats returns per-segment contact counts and the most popular
// segment. Ties go to the segment listed first (newest).
func (s *Service) GetSegmentStats(ctx context.Context) (st *SegmentStats, err error) {
	defer s.track("segment_stats", time.Now(), &err)

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	m, err := s.loadMembership(ctx, owner)
	if err != nil {
		return nil, err
	}

	st = &SegmentStats{
		Segments:            make([]SegmentCount, 0, len(m.segments)),
		TotalSegments:       len(m.segments),
		TotalRelations:      m.relCount,
		TotalUniqueContacts: len(m.unique),
	}
	for _, seg := range m.segments {
		st.Segments = append(st.Segments, SegmentCount{
			SegmentID:    seg.SegmentID,
			Name:         seg.Name,
			Color:        seg.Color,
			ContactCount: m.count(seg.SegmentID),
		})
	}
	for i := range st.Segments {
		if st.MostPopular == nil || st.Segments[i].ContactCount > st.MostPopular.ContactCount {
			st.MostPopular = &st.Segments[i]
		}
	}
	return st, nil
}

// ColorShare is one color's line in a distribution report.
type ColorShare struct {
	Color      string  `json:"color" yaml:"color"`
	Count      int     `json:"count" yaml:"count"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

// ColorReport is the distribution of segment colors.
type ColorReport struct {
	TotalSegments int          `json:"total_segments" yaml:"total_segments"`
	Colors        []ColorShare `json:"colors" yaml:"colors"`
	// LeastUsed lists colors used by exactly one segment.
	LeastUsed []string `json:"least_used" yaml:"least_used"`
	// Unused lists palette colors no segment uses.
	Unused []string `json:"unused" yaml:"unused"`
}

// GetColorDistribution counts the acting owner's segments per color, most
// used first.
func (s *Service) GetColorDistribution(ctx context.Context) (rep *ColorReport, err error) {
	defer s.track("color_distribution", time.Now(), &err)

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	segs, err := s.ownedSegments(ctx, owner)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	var order []string
	for _, seg := range segs {
		if counts[seg.Color] == 0 {
			order = append(order, seg.Color)
		}
		counts[seg.Color]++
	}

	rep = &ColorReport{
		TotalSegments: len(segs),
		Colors:        make([]ColorShare, 0, len(order)),
		LeastUsed:     []string{},
		Unused:        []string{},
	}
	for _, c := range order {
		rep.Colors = append(rep.Colors, ColorShare{
			Color:      c,
			Count:      counts[c],
			Percentage: round2(100 * float64(counts[c]) / float64(len(segs))),
		})
	}
	slices.SortStableFunc(rep.Colors, func(a, b ColorShare) int { return b.Count - a.Count })
	for _, cs := range rep.Colors {
		if cs.Count == 1 {
			rep.LeastUsed = append(rep.LeastUsed, cs.Color)
		}
	}
	for _, c := range types.SegmentColors {
		if counts[c] == 0 {
			rep.Unused = append(rep.Unused, c)
		}
	}
	return rep, nil
}

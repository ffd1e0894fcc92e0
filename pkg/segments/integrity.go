package segments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mesh-intelligence/segments/pkg/types"
)

// IssueType tags an integrity finding.
type IssueType string

const (
	IssueMissingUserID     IssueType = "missing_user_id"
	IssueOrphanedRelation  IssueType = "orphaned_relation"
	IssueDuplicateRelation IssueType = "duplicate_relation"
	IssueDuplicateName     IssueType = "duplicate_name"
)

// Issue is one integrity finding.
type Issue struct {
	Type       IssueType `json:"type" yaml:"type"`
	SegmentID  string    `json:"segment_id,omitempty" yaml:"segment_id,omitempty"`
	RelationID string    `json:"relation_id,omitempty" yaml:"relation_id,omitempty"`
	ContactID  string    `json:"contact_id,omitempty" yaml:"contact_id,omitempty"`
	Message    string    `json:"message" yaml:"message"`
}

// IntegrityReport is the result of ValidateSegmentIntegrity.
type IntegrityReport struct {
	Issues      []Issue           `json:"issues" yaml:"issues"`
	IssueCounts map[IssueType]int `json:"issue_counts" yaml:"issue_counts"`
	HealthScore int               `json:"health_score" yaml:"health_score"`
}

func (r *IntegrityReport) add(is Issue) {
	r.Issues = append(r.Issues, is)
	r.IssueCounts[is.Type]++
}

// HealthScore maps an issue count to 0..100, five points per issue.
func HealthScore(issues int) int {
	return max(0, 100-5*issues)
}

// ValidateSegmentIntegrity audits the acting owner's segments without
// changing anything. It reports segments stored without an owner,
// memberships pointing at missing contacts, repeated memberships, and
// segment names that collide case-insensitively.
func (s *Service) ValidateSegmentIntegrity(ctx context.Context) (rep *IntegrityReport, err error) {
	defer s.track("validate_integrity", time.Now(), &err)

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rep = &IntegrityReport{Issues: []Issue{}, IssueCounts: make(map[IssueType]int)}

	unowned, err := collect[*types.Segment](ctx, s, s.segments, types.Eq("owner_id", ""))
	if err != nil {
		return nil, fmt.Errorf("listing unowned segments: %w", err)
	}
	for _, seg := range unowned {
		rep.add(Issue{
			Type:      IssueMissingUserID,
			SegmentID: seg.SegmentID,
			Message:   fmt.Sprintf("segment %q has no owner", seg.Name),
		})
	}

	segs, err := s.ownedSegments(ctx, owner)
	if err != nil {
		return nil, err
	}
	rels, err := s.relationsFor(ctx, segmentIDs(segs))
	if err != nil {
		return nil, err
	}

	orphans, err := s.findOrphans(ctx, rels)
	if err != nil {
		return nil, err
	}
	for _, rel := range orphans {
		rep.add(Issue{
			Type:       IssueOrphanedRelation,
			SegmentID:  rel.SegmentID,
			RelationID: rel.RelationID,
			ContactID:  rel.ContactID,
			Message:    fmt.Sprintf("contact %s no longer exists", rel.ContactID),
		})
	}
	for _, rel := range duplicates(rels) {
		rep.add(Issue{
			Type:       IssueDuplicateRelation,
			SegmentID:  rel.SegmentID,
			RelationID: rel.RelationID,
			ContactID:  rel.ContactID,
			Message:    fmt.Sprintf("contact %s is in segment %s more than once", rel.ContactID, rel.SegmentID),
		})
	}

	byName := make(map[string][]*types.Segment)
	var names []string
	for _, seg := range segs {
		key := strings.ToLower(strings.TrimSpace(seg.Name))
		if byName[key] == nil {
			names = append(names, key)
		}
		byName[key] = append(byName[key], seg)
	}
	for _, key := range names {
		group := byName[key]
		if len(group) < 2 {
			continue
		}
		for _, seg := range group[1:] {
			rep.add(Issue{
				Type:      IssueDuplicateName,
				SegmentID: seg.SegmentID,
				Message:   fmt.Sprintf("segment name %q collides with %q", seg.Name, group[0].Name),
			})
		}
	}

	rep.HealthScore = HealthScore(len(rep.Issues))
	s.metrics.HealthScore(rep.HealthScore)
	return rep, nil
}

// Consistency issue categories.
const (
	ConsistencyDuplicateRelations = "duplicate_relations"
	ConsistencyEmptySegment       = "empty_segment"
	ConsistencyMissingDescription = "missing_description"
)

// SegmentConsistency is one segment's line in a consistency report.
type SegmentConsistency struct {
	SegmentID          string `json:"segment_id" yaml:"segment_id"`
	Name               string `json:"name" yaml:"name"`
	RelationCount      int    `json:"relation_count" yaml:"relation_count"`
	UniqueContacts     int    `json:"unique_contacts" yaml:"unique_contacts"`
	DuplicateRelations int    `json:"duplicate_relations" yaml:"duplicate_relations"`
}

// ConsistencyIssue flags one segment.
type ConsistencyIssue struct {
	Type        string `json:"type" yaml:"type"`
	SegmentID   string `json:"segment_id" yaml:"segment_id"`
	SegmentName string `json:"segment_name" yaml:"segment_name"`
	Message     string `json:"message" yaml:"message"`
}

// ConsistencyReport is the result of CheckSegmentConsistency.
type ConsistencyReport struct {
	Segments            []SegmentConsistency `json:"segments" yaml:"segments"`
	Issues              []ConsistencyIssue   `json:"issues" yaml:"issues"`
	TotalSegments       int                  `json:"total_segments" yaml:"total_segments"`
	TotalRelations      int                  `json:"total_relations" yaml:"total_relations"`
	TotalUniqueContacts int                  `json:"total_unique_contacts" yaml:"total_unique_contacts"`
	TotalDuplicates     int                  `json:"total_duplicates" yaml:"total_duplicates"`
	Consistent          bool                 `json:"consistent" yaml:"consistent"`
}

// CheckSegmentConsistency reports per-segment relation counts and flags
// segments with repeated memberships, no memberships, or no description.
func (s *Service) CheckSegmentConsistency(ctx context.Context) (rep *ConsistencyReport, err error) {
	defer s.track("check_consistency", time.Now(), &err)

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	m, err := s.loadMembership(ctx, owner)
	if err != nil {
		return nil, err
	}

	rep = &ConsistencyReport{
		Segments:            make([]SegmentConsistency, 0, len(m.segments)),
		Issues:              []ConsistencyIssue{},
		TotalSegments:       len(m.segments),
		TotalRelations:      m.relCount,
		TotalUniqueContacts: len(m.unique),
	}
	for _, seg := range m.segments {
		sc := SegmentConsistency{
			SegmentID:      seg.SegmentID,
			Name:           seg.Name,
			RelationCount:  m.rows[seg.SegmentID],
			UniqueContacts: m.count(seg.SegmentID),
		}
		sc.DuplicateRelations = sc.RelationCount - sc.UniqueContacts
		rep.Segments = append(rep.Segments, sc)
		rep.TotalDuplicates += sc.DuplicateRelations

		flag := func(kind, msg string) {
			rep.Issues = append(rep.Issues, ConsistencyIssue{
				Type: kind, SegmentID: seg.SegmentID, SegmentName: seg.Name, Message: msg,
			})
		}
		if sc.DuplicateRelations > 0 {
			flag(ConsistencyDuplicateRelations, fmt.Sprintf("%d duplicate membership row(s)", sc.DuplicateRelations))
		}
		if sc.RelationCount == 0 {
			flag(ConsistencyEmptySegment, "segment has no contacts")
		}
		if strings.TrimSpace(seg.Description) == "" {
			flag(ConsistencyMissingDescription, "segment has no description")
		}
	}
	rep.Consistent = len(rep.Issues) == 0
	return rep, nil
}

// RepairReport counts rows removed by AutoRepairSegmentIssues.
type RepairReport struct {
	OrphanedRelations  int `json:"orphaned_relations" yaml:"orphaned_relations"`
	DuplicateRelations int `json:"duplicate_relations" yaml:"duplicate_relations"`
	Total              int `json:"total" yaml:"total"`
}

// AutoRepairSegmentIssues deletes orphaned relations across all owners and
// duplicate relations within the acting owner's segments.
func (s *Service) AutoRepairSegmentIssues(ctx context.Context) (rep *RepairReport, err error) {
	defer s.track("auto_repair", time.Now(), &err)

	owner, err := OwnerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rep = &RepairReport{}

	all, err := s.allRelations(ctx)
	if err != nil {
		return nil, err
	}
	orphans, err := s.findOrphans(ctx, all)
	if err != nil {
		return nil, err
	}
	rep.OrphanedRelations = s.deleteRelations(ctx, orphans, repairOrphaned)

	segs, err := s.ownedSegments(ctx, owner)
	if err != nil {
		return rep, err
	}
	owned, err := s.relationsFor(ctx, segmentIDs(segs))
	if err != nil {
		return rep, err
	}
	rep.DuplicateRelations = s.deleteRelations(ctx, duplicates(owned), repairDuplicates)

	rep.Total = rep.OrphanedRelations + rep.DuplicateRelations
	if rep.OrphanedRelations > 0 {
		s.cache.InvalidateAll()
	} else if rep.DuplicateRelations > 0 {
		s.cache.Invalidate(owner)
	}
	return rep, nil
}

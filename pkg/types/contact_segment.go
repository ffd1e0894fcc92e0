package types

import (
	"fmt"
	"time"
)

// ContactSegment records one contact's membership in one segment.
// The identity is an opaque RelationID, not the (ContactID, SegmentID)
// pair, so a store without a composite unique index can hold duplicates.
type ContactSegment struct {
	// RelationID is a UUID v7, generated on creation.
	RelationID string `json:"relation_id" yaml:"relation_id"`

	// ContactID is the member contact. It may dangle after the contact is
	// deleted elsewhere.
	ContactID string `json:"contact_id" yaml:"contact_id"`

	// SegmentID is the segment the contact belongs to.
	SegmentID string `json:"segment_id" yaml:"segment_id"`

	// CreatedAt is the timestamp of creation.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

var contactSegmentFields = []string{"relation_id", "contact_id", "segment_id", "created_at"}

// PairKey identifies the (contact, segment) pair the relation records.
func (r *ContactSegment) PairKey() string {
	return r.ContactID + "_" + r.SegmentID
}

func (r *ContactSegment) DocumentID() string      { return r.RelationID }
func (r *ContactSegment) SetDocumentID(id string) { r.RelationID = id }
func (r *ContactSegment) Fields() []string        { return contactSegmentFields }

func (r *ContactSegment) Field(name string) (string, bool) {
	switch name {
	case "relation_id":
		return r.RelationID, true
	case "contact_id":
		return r.ContactID, true
	case "segment_id":
		return r.SegmentID, true
	case "created_at":
		return FormatTime(r.CreatedAt), true
	}
	return "", false
}

func (r *ContactSegment) SetField(name, value string) error {
	var err error
	switch name {
	case "relation_id":
		r.RelationID = value
	case "contact_id":
		r.ContactID = value
	case "segment_id":
		r.SegmentID = value
	case "created_at":
		r.CreatedAt, err = ParseTime(value)
	default:
		return fmt.Errorf("contact segment %q: %w", name, ErrUnknownField)
	}
	return err
}

func (r *ContactSegment) Stamp(now time.Time) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
}

func (r *ContactSegment) Clone() Document {
	c := *r
	return &c
}

package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Segment colors. The palette is fixed; any other value is rejected.
const (
	ColorBlue   = "blue"
	ColorGreen  = "green"
	ColorRed    = "red"
	ColorYellow = "yellow"
	ColorPurple = "purple"
	ColorPink   = "pink"
	ColorOrange = "orange"
	ColorGray   = "gray"
)

// SegmentColors lists the palette in display order.
var SegmentColors = []string{
	ColorBlue,
	ColorGreen,
	ColorRed,
	ColorYellow,
	ColorPurple,
	ColorPink,
	ColorOrange,
	ColorGray,
}

var validColors = map[string]bool{
	ColorBlue:   true,
	ColorGreen:  true,
	ColorRed:    true,
	ColorYellow: true,
	ColorPurple: true,
	ColorPink:   true,
	ColorOrange: true,
	ColorGray:   true,
}

// ValidColor reports whether c is one of the palette colors.
func ValidColor(c string) bool {
	return validColors[c]
}

// Segment is a named, owner-scoped group of contacts.
type Segment struct {
	// SegmentID is a UUID v7, generated on creation.
	SegmentID string `json:"segment_id" yaml:"segment_id"`

	// OwnerID is the user the segment belongs to. Empty only for rows
	// written outside the service.
	OwnerID string `json:"owner_id" yaml:"owner_id"`

	// Name is trimmed and unique per owner, compared case-insensitively.
	Name string `json:"name" yaml:"name"`

	// Color is one of SegmentColors.
	Color string `json:"color" yaml:"color"`

	// Description is optional free text.
	Description string `json:"description" yaml:"description"`

	// CreatedAt is the timestamp of creation.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	// UpdatedAt is bumped by every change to the segment or its memberships.
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

var segmentFields = []string{"segment_id", "owner_id", "name", "color", "description", "created_at", "updated_at"}

// NormalizeName trims surrounding whitespace from a segment name.
// Returns ErrInvalidName when nothing is left.
func NormalizeName(name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return "", ErrInvalidName
	}
	return n, nil
}

func (s *Segment) DocumentID() string      { return s.SegmentID }
func (s *Segment) SetDocumentID(id string) { s.SegmentID = id }
func (s *Segment) Fields() []string        { return segmentFields }

func (s *Segment) Field(name string) (string, bool) {
	switch name {
	case "segment_id":
		return s.SegmentID, true
	case "owner_id":
		return s.OwnerID, true
	case "name":
		return s.Name, true
	case "color":
		return s.Color, true
	case "description":
		return s.Description, true
	case "created_at":
		return FormatTime(s.CreatedAt), true
	case "updated_at":
		return FormatTime(s.UpdatedAt), true
	}
	return "", false
}

func (s *Segment) SetField(name, value string) error {
	var err error
	switch name {
	case "segment_id":
		s.SegmentID = value
	case "owner_id":
		s.OwnerID = value
	case "name":
		s.Name = value
	case "color":
		s.Color = value
	case "description":
		s.Description = value
	case "created_at":
		s.CreatedAt, err = ParseTime(value)
	case "updated_at":
		s.UpdatedAt, err = ParseTime(value)
	default:
		return fmt.Errorf("segment %q: %w", name, ErrUnknownField)
	}
	return err
}

func (s *Segment) Stamp(now time.Time) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
}

func (s *Segment) Clone() Document {
	c := *s
	return &c
}

// Entity errors.
var (
	ErrInvalidName  = errors.New("segment name must not be empty")
	ErrInvalidColor = errors.New("segment color is not in the palette")
)

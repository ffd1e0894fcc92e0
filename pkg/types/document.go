package types

import (
	"fmt"
	"time"
)

// TimeLayout is the fixed-width UTC layout used when timestamps are stored
// as text. Lexical order of formatted values equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Document is implemented by every entity stored in a Table. Field and
// SetField expose the entity as flat string columns so that backends can
// filter, order and persist it without knowing the concrete type.
type Document interface {
	// DocumentID returns the primary key, empty before the first Set.
	DocumentID() string

	// SetDocumentID assigns the primary key.
	SetDocumentID(id string)

	// Field returns the string form of the named field. The second result
	// is false when the entity has no such field.
	Field(name string) (string, bool)

	// SetField parses value into the named field.
	// Returns ErrUnknownField for names the entity does not have.
	SetField(name, value string) error

	// Fields lists the field names in storage order, primary key first.
	Fields() []string

	// Stamp fills zero creation and modification timestamps with now.
	Stamp(now time.Time)

	// Clone returns a deep copy.
	Clone() Document
}

// FormatTime renders t with TimeLayout in UTC. The zero time renders as "".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a value produced by FormatTime. RFC 3339 input is also
// accepted so hand-edited data files load cleanly.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

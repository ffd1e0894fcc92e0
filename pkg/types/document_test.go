package types

import (
	"testing"
	"time"
)

func TestFormatTimeSortsChronologically(t *testing.T) {
	a := time.Date(2026, 1, 1, 0, 0, 0, 5, time.UTC)
	b := time.Date(2026, 1, 1, 0, 0, 0, 50, time.UTC)
	c := time.Date(2026, 1, 1, 0, 0, 1, 0, time.FixedZone("x", 3600))

	fa, fb, fc := FormatTime(a), FormatTime(b), FormatTime(c)
	if len(fa) != len(fb) {
		t.Fatalf("formatted values must be fixed width: %q vs %q", fa, fb)
	}
	// c is 2025-12-31T23:00:01Z in UTC, so it sorts first.
	if !(fc < fa && fa < fb) {
		t.Fatalf("unexpected order: %q %q %q", fc, fa, fb)
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2026, 5, 6, 7, 8, 9, 123, time.UTC)

	got, err := ParseTime(FormatTime(want))
	if err != nil || !got.Equal(want) {
		t.Fatalf("ParseTime(FormatTime) = %v, %v", got, err)
	}

	got, err = ParseTime("2026-05-06T09:08:09+02:00")
	if err != nil {
		t.Fatalf("RFC 3339 input rejected: %v", err)
	}
	if !got.Equal(time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)) {
		t.Fatalf("unexpected parse result %v", got)
	}

	zero, err := ParseTime("")
	if err != nil || !zero.IsZero() {
		t.Fatalf("empty input should parse to zero time, got %v, %v", zero, err)
	}

	if _, err := ParseTime("yesterday"); err == nil {
		t.Fatalf("expected error for garbage input")
	}
	if FormatTime(time.Time{}) != "" {
		t.Fatalf("zero time should format as empty string")
	}
}

func TestNewDocument(t *testing.T) {
	for _, name := range StandardTableNames {
		doc := NewDocument(name)
		if doc == nil {
			t.Fatalf("NewDocument(%q) returned nil", name)
		}
		if doc.Fields()[0] != IDField(name) {
			t.Errorf("%s: first field %q, want id field %q", name, doc.Fields()[0], IDField(name))
		}
	}
	if NewDocument("tags") != nil {
		t.Fatalf("unknown table should return nil")
	}
}

// Package sqldoc implements types.Table over database/sql for any backend
// that stores documents as flat text columns. Backends supply a Dialect for
// placeholder syntax and constraint-error detection.
package sqldoc

import (
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between supported databases.
type Dialect struct {
	// Name is used in error messages.
	Name string

	// Numbered selects $1, $2 placeholders instead of ?.
	Numbered bool

	// UnboundedLimit is the LIMIT operand meaning "no limit", needed when an
	// OFFSET is given without a limit.
	UnboundedLimit string

	// IsUniqueViolation reports whether err is a unique constraint failure.
	IsUniqueViolation func(err error) bool

	// Match renders a case-insensitive LIKE condition on col with one
	// placeholder for the lowercased pattern. Nil falls back to LOWER(col),
	// which folds ASCII only on some databases.
	Match func(col string) string
}

// Rebind rewrites ? placeholders into the dialect's form.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) match(col string) string {
	if d.Match != nil {
		return d.Match(col)
	}
	return "LOWER(" + col + ") LIKE ? ESCAPE '\\'"
}

func (d Dialect) uniqueViolation(err error) bool {
	return err != nil && d.IsUniqueViolation != nil && d.IsUniqueViolation(err)
}

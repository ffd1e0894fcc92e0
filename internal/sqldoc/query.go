package sqldoc

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mesh-intelligence/segments/pkg/types"
)

// where renders the WHERE clause and its arguments for q. Column names are
// checked against the document's field list, so user input never reaches
// the SQL text.
func where(table string, fields []string, d Dialect, q types.Query) (string, []any, error) {
	var conds []string
	var args []any

	keys := make([]string, 0, len(q.Where))
	for k := range q.Where {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, field := range keys {
		if !slices.Contains(fields, field) {
			return "", nil, fmt.Errorf("%s.%s: %w", table, field, types.ErrInvalidFilter)
		}
		switch v := q.Where[field].(type) {
		case string:
			conds = append(conds, field+" = ?")
			args = append(args, v)
		case []string:
			if len(v) == 0 {
				conds = append(conds, "1 = 0")
				continue
			}
			marks := strings.TrimSuffix(strings.Repeat("?, ", len(v)), ", ")
			conds = append(conds, field+" IN ("+marks+")")
			for _, s := range v {
				args = append(args, s)
			}
		default:
			return "", nil, fmt.Errorf("%s.%s has type %T: %w", table, field, v, types.ErrInvalidFilter)
		}
	}

	if q.SearchTerm != "" {
		if !slices.Contains(fields, q.SearchField) {
			return "", nil, fmt.Errorf("search on %s.%q: %w", table, q.SearchField, types.ErrInvalidFilter)
		}
		conds = append(conds, d.match(q.SearchField))
		args = append(args, "%"+escapeLike(strings.ToLower(q.SearchTerm))+"%")
	}

	if len(conds) == 0 {
		return "", args, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// orderAndPage renders ORDER BY, LIMIT and OFFSET. Without an explicit order
// rows come back by creation time then id, the closest SQL analogue of a
// document store's natural order.
func orderAndPage(table string, fields []string, d Dialect, q types.Query) (string, error) {
	var b strings.Builder
	if q.OrderBy != "" {
		if !slices.Contains(fields, q.OrderBy) {
			return "", fmt.Errorf("order by %s.%s: %w", table, q.OrderBy, types.ErrInvalidFilter)
		}
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s, %s %s", q.OrderBy, dir, types.IDField(table), dir)
	} else {
		fmt.Fprintf(&b, " ORDER BY created_at ASC, %s ASC", types.IDField(table))
	}

	switch {
	case q.Limit > 0:
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	case q.Offset > 0:
		fmt.Fprintf(&b, " LIMIT %s", d.UnboundedLimit)
	}
	if q.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", q.Offset)
	}
	return b.String(), nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

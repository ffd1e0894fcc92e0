package types

// Standard table names for Cupboard.GetTable.
const (
	SegmentsTable        = "segments"
	ContactsTable        = "contacts"
	ContactSegmentsTable = "contact_segments"
)

// StandardTableNames lists all standard table names for enumeration.
var StandardTableNames = []string{
	SegmentsTable,
	ContactsTable,
	ContactSegmentsTable,
}

// NewDocument returns an empty entity for the named table, or nil when the
// name is not a standard table.
func NewDocument(table string) Document {
	switch table {
	case SegmentsTable:
		return &Segment{}
	case ContactsTable:
		return &Contact{}
	case ContactSegmentsTable:
		return &ContactSegment{}
	default:
		return nil
	}
}

// IDField returns the primary key field name for the named table.
func IDField(table string) string {
	switch table {
	case SegmentsTable:
		return "segment_id"
	case ContactsTable:
		return "contact_id"
	case ContactSegmentsTable:
		return "relation_id"
	default:
		return ""
	}
}

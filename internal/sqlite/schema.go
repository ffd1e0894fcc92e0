package sqlite

// Schema DDL for the three collections. Every column is TEXT; timestamps use
// types.TimeLayout so text order is chronological.
const (
	createSegments = `CREATE TABLE segments (
    segment_id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL,
    color TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createContacts = `CREATE TABLE contacts (
    contact_id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL DEFAULT '',
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    phone TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createContactSegments = `CREATE TABLE contact_segments (
    relation_id TEXT PRIMARY KEY,
    contact_id TEXT NOT NULL,
    segment_id TEXT NOT NULL,
    created_at TEXT NOT NULL
);`
)

// Index DDL for common queries.
const (
	idxSegmentsOwner         = `CREATE INDEX idx_segments_owner ON segments(owner_id, created_at);`
	idxContactsOwner         = `CREATE INDEX idx_contacts_owner ON contacts(owner_id);`
	idxContactSegmentsSeg    = `CREATE INDEX idx_contact_segments_segment ON contact_segments(segment_id);`
	idxContactSegmentsPair   = `CREATE INDEX idx_contact_segments_pair ON contact_segments(contact_id, segment_id);`
	idxContactSegmentsUnique = `CREATE UNIQUE INDEX idx_contact_segments_unique ON contact_segments(contact_id, segment_id);`
)

// schemaDDL lists all CREATE TABLE statements.
var schemaDDL = []string{
	createSegments,
	createContacts,
	createContactSegments,
}

// indexDDL returns the CREATE INDEX statements. The unique pair index
// replaces the plain pair index when unique is set.
func indexDDL(unique bool) []string {
	pair := idxContactSegmentsPair
	if unique {
		pair = idxContactSegmentsUnique
	}
	return []string{
		idxSegmentsOwner,
		idxContactsOwner,
		idxContactSegmentsSeg,
		pair,
	}
}

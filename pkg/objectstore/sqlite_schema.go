package objectstore

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the object store schema.
// Timestamps are stored as Unix nanoseconds so both drivers read them back
// identically.
const Schema = `
-- Current version of every object
CREATE TABLE IF NOT EXISTS objects (
    kind TEXT NOT NULL,
    namespace TEXT NOT NULL,
    name TEXT NOT NULL,
    uid TEXT NOT NULL UNIQUE,
    resource_version INTEGER NOT NULL,
    body TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (kind, namespace, name)
);

-- Trace contexts replaced by later writers
CREATE TABLE IF NOT EXISTS links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    uid TEXT NOT NULL,
    resource_version INTEGER NOT NULL,
    context TEXT NOT NULL,
    reason TEXT NOT NULL,
    recorded_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_links_uid ON links(uid, id);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);
`

// InsertSchemaVersion records the schema version on first start.
const InsertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`

// GetSchemaVersion reads the highest recorded schema version.
const GetSchemaVersion = `SELECT MAX(version) FROM schema_version`

const (
	selectObjectSQL = `SELECT uid, resource_version, body FROM objects WHERE kind = ? AND namespace = ? AND name = ?`

	insertObjectSQL = `INSERT INTO objects (kind, namespace, name, uid, resource_version, body, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`

	updateObjectSQL = `UPDATE objects SET resource_version = ?, body = ?, updated_at = ?
		WHERE kind = ? AND namespace = ? AND name = ? AND resource_version = ?`

	insertLinkSQL = `INSERT INTO links (uid, resource_version, context, reason, recorded_at) VALUES (?, ?, ?, ?, ?)`

	selectLinksSQL = `SELECT resource_version, context, reason, recorded_at FROM links WHERE uid = ? ORDER BY id`
)

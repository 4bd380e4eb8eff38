package sqlite

import "database/sql"

// EnsureSchema creates the document tables if they do not exist.
// owner_id, is_default and created_at are lifted out of the JSON document
// so queries and the default write can use them.
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS avatars (
            id TEXT PRIMARY KEY,
            owner_id TEXT NOT NULL,
            is_default INTEGER NOT NULL DEFAULT 0,
            created_at INTEGER NOT NULL,
            updated_at INTEGER NOT NULL,
            doc TEXT NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS avatars_owner_idx ON avatars(owner_id, created_at, id);`,
		`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            created_at INTEGER NOT NULL,
            updated_at INTEGER NOT NULL,
            doc TEXT NOT NULL
        );`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

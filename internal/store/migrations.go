package store

import (
	"database/sql"
	"fmt"

	"mocksmith/internal/logging"
)

// Migration adds a column to an existing table. Used when an older store
// predates a schema addition; CREATE TABLE IF NOT EXISTS covers new stores.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists column additions applied to existing databases.
var pendingMigrations = []Migration{
	// Knowledge access tracking (added after the initial schema)
	{"shared_knowledge", "relevance_score", "REAL DEFAULT 0.5"},
	{"shared_knowledge", "access_count", "INTEGER DEFAULT 0"},
}

func runMigrations(db *sql.DB) error {
	log := logging.Get(logging.CategoryStore)

	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) {
			continue
		}
		if columnExists(db, m.Table, m.Column) {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(query); err != nil {
			// Column may already exist in a different form; don't fail the open.
			log.Warn("Migration failed for %s.%s: %v", m.Table, m.Column, err)
			continue
		}
		log.Info("Migration applied: added %s.%s", m.Table, m.Column)
	}
	return nil
}

func tableExists(db *sql.DB, table string) bool {
	var name string
	err := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
	).Scan(&name)
	return err == nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

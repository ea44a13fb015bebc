// Package store implements the append-only shared memory for mocksmith.
//
// Three logical tables back inter-component coordination:
//   - coordination_messages: messages exchanged between roles and the hub
//   - shared_knowledge: knowledge entries contributed by roles
//   - collaborative_objectives: long-lived objectives with progress tracking
//
// The core exposes append and query only. Retention and pruning are an
// out-of-band maintenance concern. Every append is atomic; a mutex
// serializes writers so the executor and the hub can append concurrently.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mocksmith/internal/logging"
)

// SharedMemory is the SQLite-backed append-only store.
type SharedMemory struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// Entry is one coordination message. Target defaults to "ALL".
type Entry struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source"`
	Target      string    `json:"target"`
	MessageType string    `json:"message_type"`
	Content     string    `json:"content"`
	Priority    int       `json:"priority"`
}

// KnowledgeEntry is one shared knowledge record.
type KnowledgeEntry struct {
	ID          int64     `json:"id"`
	Type        string    `json:"knowledge_type"`
	Content     string    `json:"content"`
	Contributor string    `json:"contributor"`
	Timestamp   time.Time `json:"timestamp"`
	Relevance   float64   `json:"relevance_score"`
	AccessCount int       `json:"access_count"`
}

// Objective is one collaborative objective.
type Objective struct {
	ID            int64     `json:"id"`
	Description   string    `json:"description"`
	AssignedRoles string    `json:"assigned_roles"` // comma-separated role names
	Status        string    `json:"status"`
	Progress      float64   `json:"progress"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MessageFilter narrows QueryMessages. Zero values match everything.
type MessageFilter struct {
	Source      string
	Target      string
	MessageType string
	Since       time.Time
	Until       time.Time
	Limit       int
}

// NewSharedMemory opens (creating if needed) the store at path.
// ":memory:" is supported for tests.
func NewSharedMemory(path string) (*SharedMemory, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSharedMemory")
	defer timer.Stop()

	log := logging.Get(logging.CategoryStore)
	log.Info("Opening shared memory at %s", path)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debug("Failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debug("Failed to set journal_mode=WAL: %v", err)
	}
	// NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		log.Debug("Failed to set synchronous=NORMAL: %v", err)
	}

	s := &SharedMemory{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SharedMemory) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS coordination_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			source TEXT NOT NULL,
			target TEXT DEFAULT 'ALL',
			message_type TEXT NOT NULL,
			content TEXT NOT NULL,
			priority INTEGER DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS shared_knowledge (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			knowledge_type TEXT NOT NULL,
			content TEXT NOT NULL,
			contributor TEXT NOT NULL,
			timestamp TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS collaborative_objectives (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			description TEXT NOT NULL,
			assigned_roles TEXT NOT NULL,
			status TEXT DEFAULT 'active',
			progress REAL DEFAULT 0.0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_source ON coordination_messages(source)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_type ON coordination_messages(message_type)`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_contributor ON shared_knowledge(contributor)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// AppendMessage appends one coordination message and returns its id.
func (s *SharedMemory) AppendMessage(e Entry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Target == "" {
		e.Target = "ALL"
	}

	logging.Get(logging.CategoryStore).Debug("Appending message: source=%s type=%s", e.Source, e.MessageType)

	res, err := s.db.Exec(
		`INSERT INTO coordination_messages (timestamp, source, target, message_type, content, priority)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Timestamp.Format(time.RFC3339Nano), e.Source, e.Target, e.MessageType, e.Content, e.Priority,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to append message: %v", err)
		return 0, fmt.Errorf("failed to append message: %w", err)
	}
	return res.LastInsertId()
}

// QueryMessages returns messages matching the filter, ordered by append
// order (which is also timestamp order for a single store).
func (s *SharedMemory) QueryMessages(f MessageFilter) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT id, timestamp, source, target, message_type, content, priority
		 FROM coordination_messages WHERE 1=1`
	var args []interface{}

	if f.Source != "" {
		query += " AND source = ?"
		args = append(args, f.Source)
	}
	if f.Target != "" {
		query += " AND target = ?"
		args = append(args, f.Target)
	}
	if f.MessageType != "" {
		query += " AND message_type = ?"
		args = append(args, f.MessageType)
	}
	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}
	if !f.Until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, f.Until.UTC().Format(time.RFC3339Nano))
	}
	query += " ORDER BY id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.Source, &e.Target, &e.MessageType, &e.Content, &e.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// AppendKnowledge appends one shared knowledge entry and returns its id.
func (s *SharedMemory) AppendKnowledge(k KnowledgeEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if k.Timestamp.IsZero() {
		k.Timestamp = time.Now().UTC()
	}
	if k.Relevance == 0 {
		k.Relevance = 0.5
	}

	res, err := s.db.Exec(
		`INSERT INTO shared_knowledge (knowledge_type, content, contributor, timestamp, relevance_score, access_count)
		 VALUES (?, ?, ?, ?, ?, 0)`,
		k.Type, k.Content, k.Contributor, k.Timestamp.Format(time.RFC3339Nano), k.Relevance,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to append knowledge: %v", err)
		return 0, fmt.Errorf("failed to append knowledge: %w", err)
	}
	return res.LastInsertId()
}

// QueryKnowledge returns knowledge entries by contributor, oldest first.
// Reads bump access_count; that bookkeeping is internal to the store and
// not part of the append-only surface.
func (s *SharedMemory) QueryKnowledge(contributor string, limit int) ([]KnowledgeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT id, knowledge_type, content, contributor, timestamp, relevance_score, access_count
		 FROM shared_knowledge`
	var args []interface{}
	if contributor != "" {
		query += " WHERE contributor = ?"
		args = append(args, contributor)
	}
	query += " ORDER BY id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge: %w", err)
	}
	defer rows.Close()

	var out []KnowledgeEntry
	for rows.Next() {
		var k KnowledgeEntry
		var ts string
		if err := rows.Scan(&k.ID, &k.Type, &k.Content, &k.Contributor, &ts, &k.Relevance, &k.AccessCount); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge: %w", err)
		}
		k.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, k := range out {
		if _, err := s.db.Exec(`UPDATE shared_knowledge SET access_count = access_count + 1 WHERE id = ?`, k.ID); err != nil {
			logging.Get(logging.CategoryStore).Warn("Failed to bump access count for %d: %v", k.ID, err)
		}
	}
	return out, nil
}

// AddObjective creates a collaborative objective and returns its id.
func (s *SharedMemory) AddObjective(description, assignedRoles string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.Exec(
		`INSERT INTO collaborative_objectives (description, assigned_roles, status, progress, created_at, updated_at)
		 VALUES (?, ?, 'active', 0.0, ?, ?)`,
		description, assignedRoles, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add objective: %w", err)
	}
	return res.LastInsertId()
}

// UpdateObjective sets status and progress for an objective. Progress is
// only updated through this explicit call, clamped to [0,1].
func (s *SharedMemory) UpdateObjective(id int64, status string, progress float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	res, err := s.db.Exec(
		`UPDATE collaborative_objectives SET status = ?, progress = ?, updated_at = ? WHERE id = ?`,
		status, progress, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update objective: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("objective %d not found", id)
	}
	return nil
}

// ListObjectives returns all objectives, oldest first.
func (s *SharedMemory) ListObjectives() ([]Objective, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, description, assigned_roles, status, progress, created_at, updated_at
		 FROM collaborative_objectives ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list objectives: %w", err)
	}
	defer rows.Close()

	var out []Objective
	for rows.Next() {
		var o Objective
		var created, updated string
		if err := rows.Scan(&o.ID, &o.Description, &o.AssignedRoles, &o.Status, &o.Progress, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan objective: %w", err)
		}
		o.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		o.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, o)
	}
	return out, rows.Err()
}

// Stats returns row counts per table.
func (s *SharedMemory) Stats() (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[string]int)
	for _, table := range []string{"coordination_messages", "shared_knowledge", "collaborative_objectives"} {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table] = count
	}
	return stats, nil
}

// Close closes the underlying database.
func (s *SharedMemory) Close() error {
	logging.Get(logging.CategoryStore).Info("Closing shared memory")
	return s.db.Close()
}

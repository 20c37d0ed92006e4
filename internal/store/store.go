package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// pragmas are set on every open. The event log is written by one engine
// and read by the hits command while a session may still be recording.
var pragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

// migration upgrades a log from the previous user_version.
type migration struct {
	desc string
	stmt string
}

// migrations[i] brings a log to user_version i+1.
var migrations = []migration{
	{
		desc: "hit idempotency index",
		stmt: `CREATE UNIQUE INDEX IF NOT EXISTS idx_hits_session_cycle_victim
			ON hits(session_id, cycle, victim)`,
	},
	{
		desc: "per-victim hit lookup",
		stmt: `CREATE INDEX IF NOT EXISTS idx_hits_session_victim
			ON hits(session_id, victim, cycle)`,
	},
}

var currentSchemaVersion = len(migrations)

// Store is the append-only SQLite event log. It implements engine.Sink.
//
// All methods are safe for concurrent use. The pool holds a single
// connection, so writes never contend inside the process.
type Store struct {
	db *sql.DB

	mu       sync.Mutex
	sessions map[string]bool // sessions already inserted
}

// Open opens the event log at path, creating it when missing. The schema
// is applied and older logs are migrated in place; opening the same path
// repeatedly is harmless.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open event log %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := prepare(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open event log %s: %w", path, err)
	}
	return &Store{db: db, sessions: make(map[string]bool)}, nil
}

func prepare(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("pragma %s: %w", p.name, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return migrate(db)
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for v := version; v < len(migrations); v++ {
		m := migrations[v]
		if _, err := db.Exec(m.stmt); err != nil {
			return fmt.Errorf("migrate to v%d (%s): %w", v+1, m.desc, err)
		}
	}
	if version == currentSchemaVersion {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("write user_version: %w", err)
	}
	return nil
}

// Close closes the log. A zero Store closes cleanly.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) verifyPragma(name, want string) error {
	var got string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&got); err != nil {
		return fmt.Errorf("read pragma %s: %w", name, err)
	}
	if got != want {
		return fmt.Errorf("pragma %s = %q, want %q", name, got, want)
	}
	return nil
}

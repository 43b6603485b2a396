// Package journal records the mutations of editing sessions in a SQLite
// database. A Journal subscribes to the event bus of a save document and
// writes one row per mutation event.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/crystal-mush/palsave/pkg/events"
	"github.com/crystal-mush/palsave/pkg/gvas"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	started  TEXT NOT NULL,
	save_dir TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	session INTEGER NOT NULL REFERENCES sessions(id),
	at      TEXT NOT NULL,
	type    TEXT NOT NULL,
	subject TEXT NOT NULL,
	owner   TEXT NOT NULL,
	text    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS entries_subject ON entries(subject);
`

// Journal is a SQLite-backed mutation log.
type Journal struct {
	db      *sql.DB
	mu      sync.Mutex
	path    string
	session int64
	closed  bool
	timeout time.Duration

	// Now stamps entries; tests replace it.
	Now func() time.Time
}

// Session is one editing session.
type Session struct {
	ID      int64
	Started time.Time
	SaveDir string
	Entries int
}

// Entry is one recorded mutation.
type Entry struct {
	ID      int64
	Session int64
	At      time.Time
	Type    string
	Subject gvas.GUID
	Owner   gvas.GUID
	Text    string
}

// Open opens a SQLite database, sets WAL mode and busy timeout, and
// creates the tables.
func Open(path string, timeoutSec int) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: opening sqlite %s: %w", path, err)
	}
	// Set WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: setting WAL mode: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", timeoutSec*1000)); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: creating tables: %w", err)
	}
	return &Journal{
		db:      db,
		path:    path,
		timeout: time.Duration(timeoutSec) * time.Second,
		Now:     time.Now,
	}, nil
}

// Close closes the database. Later events are dropped.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed = true
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Path returns the filesystem path of the SQLite database.
func (j *Journal) Path() string { return j.path }

// Checkpoint forces a WAL checkpoint to flush all writes to the main database file.
func (j *Journal) Checkpoint() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return fmt.Errorf("journal: closed")
	}
	_, err := j.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Begin starts a new session for saveDir. Events received afterwards are
// recorded under it.
func (j *Journal) Begin(saveDir string) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	res, err := j.db.ExecContext(ctx, "INSERT INTO sessions (started, save_dir) VALUES (?, ?)",
		j.Now().UTC().Format(time.RFC3339Nano), saveDir)
	if err != nil {
		return 0, fmt.Errorf("journal: begin session: %w", err)
	}
	j.session, err = res.LastInsertId()
	return j.session, err
}

// recorded reports whether an event type is a mutation worth keeping.
func recorded(t events.EventType) bool {
	switch t {
	case events.EvProgress, events.EvLoaded:
		return false
	}
	return true
}

// Receive records ev. Progress events are ignored. Write errors are logged;
// the editing session goes on without its journal.
func (j *Journal) Receive(ev events.Event) {
	if !recorded(ev.Type) {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	if j.session == 0 {
		log.Printf("journal: dropping %s event, no session", ev.Type)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO entries (session, at, type, subject, owner, text) VALUES (?, ?, ?, ?, ?, ?)",
		j.session, j.Now().UTC().Format(time.RFC3339Nano), ev.Type.String(),
		guidText(ev.Subject), guidText(ev.Owner), ev.Text)
	if err != nil {
		log.Printf("journal: recording %s: %v", ev.Type, err)
	}
}

// Closed reports whether the journal stopped accepting events.
func (j *Journal) Closed() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closed
}

func guidText(g gvas.GUID) string {
	if g.IsZero() {
		return ""
	}
	return g.String()
}

// Filter narrows an Entries query. Zero fields match everything.
type Filter struct {
	Session int64
	Type    string
	Subject gvas.GUID
	Limit   int
}

// Entries returns recorded entries in insertion order.
func (j *Journal) Entries(ctx context.Context, f Filter) ([]Entry, error) {
	var where []string
	var args []any
	if f.Session != 0 {
		where = append(where, "session = ?")
		args = append(args, f.Session)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if !f.Subject.IsZero() {
		where = append(where, "(subject = ? OR owner = ?)")
		args = append(args, f.Subject.String(), f.Subject.String())
	}
	q := "SELECT id, session, at, type, subject, owner, text FROM entries"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: query entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var at, subject, owner string
		if err := rows.Scan(&e.ID, &e.Session, &at, &e.Type, &subject, &owner, &e.Text); err != nil {
			return nil, fmt.Errorf("journal: scan entry: %w", err)
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.Subject = parseGUID(subject)
		e.Owner = parseGUID(owner)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Sessions lists the recorded sessions, newest first, with entry counts.
func (j *Journal) Sessions(ctx context.Context) ([]Session, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rows, err := j.db.QueryContext(ctx, `
		SELECT s.id, s.started, s.save_dir, COUNT(e.id)
		FROM sessions s LEFT JOIN entries e ON e.session = s.id
		GROUP BY s.id ORDER BY s.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("journal: query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var started string
		if err := rows.Scan(&s.ID, &started, &s.SaveDir, &s.Entries); err != nil {
			return nil, fmt.Errorf("journal: scan session: %w", err)
		}
		s.Started, _ = time.Parse(time.RFC3339Nano, started)
		out = append(out, s)
	}
	return out, rows.Err()
}

func parseGUID(s string) gvas.GUID {
	if s == "" {
		return gvas.GUID{}
	}
	g, err := gvas.ParseGUID(s)
	if err != nil {
		log.Printf("journal: bad guid %q in database", s)
	}
	return g
}

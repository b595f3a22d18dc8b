package session

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Index is a SQLite summary table over the session directories, used for
// fast listing and filtering. The directories remain the source of truth;
// the index can always be rebuilt from them.
type Index struct {
	conn *sql.DB
}

// IndexRow is one session summary as stored in the index.
type IndexRow struct {
	SessionID  string    `json:"session_id"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
	Identified int       `json:"identified"`
	Ambiguous  int       `json:"ambiguous"`
	NoMatch    int       `json:"no_match"`
	Rejected   int       `json:"rejected"`
	Total      int       `json:"total"`
}

// OpenIndex opens or creates the index database at path.
func OpenIndex(path string) (*Index, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session index: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping session index: %w", err)
	}
	idx := &Index{conn: conn}
	if err := idx.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create session index tables: %w", err)
	}
	return idx, nil
}

func (idx *Index) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		source     TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		identified INTEGER NOT NULL,
		ambiguous  INTEGER NOT NULL,
		no_match   INTEGER NOT NULL,
		rejected   INTEGER NOT NULL,
		total      INTEGER NOT NULL
	);
	`
	_, err := idx.conn.Exec(query)
	return err
}

// Insert upserts one session's summary row.
func (idx *Index) Insert(sess *ScanSession) error {
	sum := sess.Summary()
	_, err := idx.conn.Exec(`
		INSERT OR REPLACE INTO sessions
		(session_id, source, created_at, identified, ambiguous, no_match, rejected, total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.SessionID, string(sess.Source), sess.CreatedAt,
		sum.Identified, sum.Ambiguous, sum.NoMatch, sum.Rejected, sum.Total)
	return err
}

// List returns session summaries, most recent first.
func (idx *Index) List(limit int) ([]IndexRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := idx.conn.Query(`
		SELECT session_id, source, created_at, identified, ambiguous, no_match, rejected, total
		FROM sessions ORDER BY session_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying session index: %w", err)
	}
	defer rows.Close()

	var out []IndexRow
	for rows.Next() {
		var r IndexRow
		if err := rows.Scan(&r.SessionID, &r.Source, &r.CreatedAt,
			&r.Identified, &r.Ambiguous, &r.NoMatch, &r.Rejected, &r.Total); err != nil {
			return nil, fmt.Errorf("scanning session index row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Rebuild repopulates the index from the recorder's directories, dropping
// rows whose directories no longer exist.
func (idx *Index) Rebuild(rec *Recorder) error {
	ids, err := rec.ListSessions()
	if err != nil {
		return err
	}
	if _, err := idx.conn.Exec(`DELETE FROM sessions`); err != nil {
		return fmt.Errorf("clearing session index: %w", err)
	}
	for _, id := range ids {
		sess, err := rec.LoadSession(id)
		if err != nil {
			return err
		}
		if err := idx.Insert(sess); err != nil {
			return fmt.Errorf("re-indexing session %s: %w", id, err)
		}
	}
	return nil
}

// Close releases the database handle.
func (idx *Index) Close() error {
	return idx.conn.Close()
}

// Package manifest persists the record of previously synced notes used
// for incremental diffing, backed by SQLite at <root>/.sync-manifest.
//
// Commits run in a transaction, so a crash mid-write never leaves a
// partial entry: a note either has its full manifest record or none.
package manifest

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/willingning/minote-sync/internal/models"
)

// Filename is the manifest's location relative to the sync root.
const Filename = ".sync-manifest"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS entries (
	note_id           TEXT PRIMARY KEY,
	content_hash      TEXT NOT NULL,
	local_path        TEXT NOT NULL,
	attachment_hashes TEXT NOT NULL DEFAULT '[]',
	revision          TEXT NOT NULL DEFAULT '',
	synced_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store is the local manifest store. The orchestrator is its single
// writer; workers report results and never touch it directly.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the manifest database and applies the schema.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("manifest: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("manifest: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("manifest: apply schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Load returns every entry keyed by note id.
func (s *Store) Load() (map[string]models.ManifestEntry, error) {
	rows, err := s.conn.Query(`SELECT note_id, content_hash, local_path, attachment_hashes, revision, synced_at FROM entries`)
	if err != nil {
		return nil, fmt.Errorf("manifest: load: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.ManifestEntry)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out[e.NoteID] = *e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: load: %w", err)
	}
	return out, nil
}

// Get returns the entry for noteID, or nil when absent.
func (s *Store) Get(noteID string) (*models.ManifestEntry, error) {
	row := s.conn.QueryRow(`SELECT note_id, content_hash, local_path, attachment_hashes, revision, synced_at FROM entries WHERE note_id = ?`, noteID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// Commit inserts or replaces the entry atomically. Called only after
// the note file and all of its attachments are durably on disk.
func (s *Store) Commit(e models.ManifestEntry) error {
	hashes := append([]string(nil), e.AttachmentHashes...)
	sort.Strings(hashes)
	blob, err := json.Marshal(hashes)
	if err != nil {
		return fmt.Errorf("manifest: encode hashes: %w", err)
	}
	syncedAt := e.SyncedAt
	if syncedAt.IsZero() {
		syncedAt = time.Now().UTC()
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("manifest: begin: %w", err)
	}
	_, err = tx.Exec(`INSERT OR REPLACE INTO entries (note_id, content_hash, local_path, attachment_hashes, revision, synced_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.NoteID, e.ContentHash, e.LocalPath, string(blob), e.LastSyncedRevision, syncedAt)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("manifest: commit %s: %w", e.NoteID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("manifest: commit %s: %w", e.NoteID, err)
	}
	return nil
}

// Orphans returns ids present in the store but absent from the
// current remote catalog. They are reported, never deleted here.
func (s *Store) Orphans(current map[string]struct{}) ([]string, error) {
	rows, err := s.conn.Query(`SELECT note_id FROM entries ORDER BY note_id`)
	if err != nil {
		return nil, fmt.Errorf("manifest: orphans: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("manifest: orphans: %w", err)
		}
		if _, ok := current[id]; !ok {
			out = append(out, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: orphans: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*models.ManifestEntry, error) {
	var e models.ManifestEntry
	var blob string
	if err := row.Scan(&e.NoteID, &e.ContentHash, &e.LocalPath, &blob, &e.LastSyncedRevision, &e.SyncedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("manifest: scan: %w", err)
	}
	if err := json.Unmarshal([]byte(blob), &e.AttachmentHashes); err != nil {
		return nil, fmt.Errorf("manifest: decode hashes: %w", err)
	}
	return &e, nil
}

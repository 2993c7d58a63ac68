package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	driver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mfenderov/patent-novelty/internal/corpus"
	"github.com/mfenderov/patent-novelty/internal/sqlite/migrations"
	"github.com/mfenderov/patent-novelty/pkg/models"
)

// timeLayout is fixed-width UTC so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store persists the corpus and the score audit log in one SQLite file.
type Store struct {
	db   *sql.DB
	path string
}

var _ corpus.Store = (*Store)(nil)

// busyTimeout is how long a write waits on another connection's lock.
const busyTimeout = 5 * time.Second

// Open opens (creating if needed) the database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	return open(path, busyTimeout)
}

func open(path string, busy time.Duration) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", path, busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().UTC().Format(timeLayout)); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	return v, err
}

// Put inserts or replaces a record. A replacement keeps its original position
// in List order.
func (s *Store) Put(ctx context.Context, rec corpus.Record) error {
	if rec.Key == "" {
		return fmt.Errorf("record key is required")
	}
	if rec.AdmittedAt.IsZero() {
		rec.AdmittedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patents (token, filename, raw_text, title, abstract, claim_1, embedding, dimensions, admitted_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM patents))
		ON CONFLICT(token) DO UPDATE SET
			filename = excluded.filename,
			raw_text = excluded.raw_text,
			title = excluded.title,
			abstract = excluded.abstract,
			claim_1 = excluded.claim_1,
			embedding = excluded.embedding,
			dimensions = excluded.dimensions,
			admitted_at = excluded.admitted_at
	`, rec.Key, rec.Filename, rec.RawText,
		rec.Sections.Title, rec.Sections.Abstract, rec.Sections.Claim1,
		float32SliceToBytes(rec.Embedding), len(rec.Embedding),
		rec.AdmittedAt.UTC().Format(timeLayout))
	if err != nil {
		if isBusy(err) {
			return fmt.Errorf("saving patent %s: %w: %w", models.DocumentIDFromToken(rec.Key), models.ErrCorpusWriteConflict, err)
		}
		return fmt.Errorf("saving patent %s: %w", models.DocumentIDFromToken(rec.Key), err)
	}
	return nil
}

// isBusy reports whether err is SQLite lock contention that outlasted busy_timeout.
func isBusy(err error) bool {
	var serr *driver.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

const patentColumns = "token, filename, raw_text, title, abstract, claim_1, embedding, admitted_at"

// Get returns the record stored under key.
func (s *Store) Get(ctx context.Context, key string) (*corpus.Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+patentColumns+" FROM patents WHERE token = ?", key)
	rec, err := scanPatent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("patent %s: %w", models.DocumentIDFromToken(key), models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting patent: %w", err)
	}
	return rec, nil
}

// List returns all records in admission order.
func (s *Store) List(ctx context.Context) ([]corpus.Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+patentColumns+" FROM patents ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("querying patents: %w", err)
	}
	defer rows.Close()

	var out []corpus.Record
	for rows.Next() {
		rec, err := scanPatent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning patent: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Delete removes the record stored under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM patents WHERE token = ?", key)
	if err != nil {
		return fmt.Errorf("deleting patent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting patent: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("patent %s: %w", models.DocumentIDFromToken(key), models.ErrNotFound)
	}
	return nil
}

// Count returns the number of stored patents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM patents").Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPatent(row scanner) (*corpus.Record, error) {
	var (
		rec        corpus.Record
		embedding  []byte
		admittedAt string
	)
	if err := row.Scan(&rec.Key, &rec.Filename, &rec.RawText,
		&rec.Sections.Title, &rec.Sections.Abstract, &rec.Sections.Claim1,
		&embedding, &admittedAt); err != nil {
		return nil, err
	}
	rec.Embedding = bytesToFloat32Slice(embedding)

	t, err := time.Parse(timeLayout, admittedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing admitted_at %q: %w", admittedAt, err)
	}
	rec.AdmittedAt = t
	return &rec, nil
}

// float32SliceToBytes converts a []float32 to a little-endian byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

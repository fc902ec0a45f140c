// Package history persists completed triage assessments to SQLite so
// past analyses survive restarts and can be audited.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	// SQLite driver (required for database/sql registration).
	_ "github.com/mattn/go-sqlite3"

	"github.com/medsage-ai/medsage/internal/errors"
	"github.com/medsage-ai/medsage/internal/triage"
)

// Entry is one recorded assessment.
type Entry struct {
	ID        string          `json:"id"`
	Query     string          `json:"query"`
	HasImage  bool            `json:"has_image"`
	Simulated bool            `json:"simulated"`
	Analysis  triage.Analysis `json:"analysis"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store manages the assessment history database.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database at the given path.
// Creates the database and tables if they don't exist.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeHistoryStoreFailed, "failed to open history database", errors.CategorySystem)
	}

	// Set performance pragmas
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrap(err, errors.CodeHistoryStoreFailed, "failed to configure history database", errors.CategorySystem)
		}
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS analyses (
		id                TEXT PRIMARY KEY,
		query             TEXT NOT NULL,
		has_image         INTEGER NOT NULL DEFAULT 0,
		simulated         INTEGER NOT NULL DEFAULT 0,
		severity          TEXT NOT NULL,
		urgency           TEXT NOT NULL,
		analysis_json     TEXT NOT NULL,
		raw_response      TEXT NOT NULL,
		inference_time_ms INTEGER NOT NULL DEFAULT 0,
		created_at        INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_analyses_urgency ON analyses(urgency, created_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return errors.Wrap(err, errors.CodeHistoryStoreFailed, "failed to initialize history schema", errors.CategorySystem)
	}
	return ensureSchemaVersion(s.db, 1, "Initial history schema")
}

func ensureSchemaVersion(db *sql.DB, version int, description string) error {
	var current sql.NullInt64
	if err := db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&current); err != nil {
		return errors.Wrap(err, errors.CodeHistoryStoreFailed, "failed to read schema version", errors.CategorySystem)
	}

	if !current.Valid || int(current.Int64) < version {
		_, err := db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			version,
			description,
		)
		if err != nil {
			return errors.Wrap(err, errors.CodeHistoryStoreFailed, "failed to record schema version", errors.CategorySystem)
		}
	}
	return nil
}

// Record stores one completed assessment and returns its id.
func (s *Store) Record(ctx context.Context, query string, hasImage, simulated bool, a *triage.Analysis) (string, error) {
	analysisJSON, err := json.Marshal(a)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeHistoryStoreFailed, "failed to encode analysis", errors.CategoryPermanent)
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyses (id, query, has_image, simulated, severity, urgency, analysis_json, raw_response, inference_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, query, boolToInt(hasImage), boolToInt(simulated),
		string(a.Severity), string(a.Urgency),
		string(analysisJSON), a.RawResponse, a.InferenceTimeMs,
	)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeHistoryStoreFailed, "failed to record analysis", errors.CategorySystem)
	}
	return id, nil
}

// Recent returns up to limit assessments, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, has_image, simulated, analysis_json, created_at
		FROM analyses ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeHistoryStoreFailed, "failed to query history", errors.CategorySystem)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeHistoryStoreFailed, "failed to iterate history rows", errors.CategorySystem)
	}
	return entries, nil
}

// Get returns one assessment by id.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, query, has_image, simulated, analysis_json, created_at
		FROM analyses WHERE id = ?`, id)

	e, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.User(errors.CodeHistoryStoreFailed, "assessment not found: "+id)
		}
		return nil, err
	}
	return &e, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (Entry, error) {
	var (
		e            Entry
		hasImage     int
		simulated    int
		analysisJSON string
		createdAt    int64
	)
	if err := r.Scan(&e.ID, &e.Query, &hasImage, &simulated, &analysisJSON, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, err
		}
		return Entry{}, errors.Wrap(err, errors.CodeHistoryStoreFailed, "failed to scan history row", errors.CategorySystem)
	}

	e.HasImage = hasImage != 0
	e.Simulated = simulated != 0
	e.CreatedAt = time.Unix(createdAt, 0).UTC()

	if err := json.Unmarshal([]byte(analysisJSON), &e.Analysis); err != nil {
		return Entry{}, errors.Wrap(err, errors.CodeHistoryStoreFailed, "failed to decode stored analysis", errors.CategoryPermanent)
	}
	return e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/doeshing/qw/internal/domain"
	"github.com/doeshing/qw/internal/ports"
)

// SQLiteStore persists run records in a SQLite database.
// The database is opened lazily on the first Append.
type SQLiteStore struct {
	path string
	mu   sync.Mutex
}

// NewSQLiteStore creates a store writing to the database at path.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

const createRunsTable = `CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	timestamp TEXT,
	prompt TEXT,
	model TEXT,
	stages TEXT,
	errors TEXT
);`

func (s *SQLiteStore) open() (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), domain.DirectoryPermissions); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(createRunsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("init runs table: %w", err)
	}
	return db, nil
}

// Append implements ports.RunLogger.
func (s *SQLiteStore) Append(record domain.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stages, err := json.Marshal(record.Stages)
	if err != nil {
		return err
	}
	var errs []byte
	if len(record.Errors) > 0 {
		if errs, err = json.Marshal(record.Errors); err != nil {
			return err
		}
	}

	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(`INSERT INTO runs (id, timestamp, prompt, model, stages, errors) VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Timestamp.Format(domain.TimestampFormat),
		record.Prompt,
		record.Model,
		string(stages),
		string(errs),
	)
	return err
}

// records returns all runs, newest first.
func (s *SQLiteStore) records() ([]domain.LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query("SELECT id, timestamp, prompt, model, stages, errors FROM runs ORDER BY datetime(timestamp) DESC, rowid DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.LogRecord
	for rows.Next() {
		var rec domain.LogRecord
		var ts, stages, errs string
		if err := rows.Scan(&rec.ID, &ts, &rec.Prompt, &rec.Model, &stages, &errs); err != nil {
			return nil, err
		}
		if t, err := time.Parse(domain.TimestampFormat, ts); err == nil {
			rec.Timestamp = t
		}
		if err := json.Unmarshal([]byte(stages), &rec.Stages); err != nil {
			return nil, fmt.Errorf("decode stages for %s: %w", rec.ID, err)
		}
		if errs != "" {
			if err := json.Unmarshal([]byte(errs), &rec.Errors); err != nil {
				return nil, fmt.Errorf("decode errors for %s: %w", rec.ID, err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

var _ ports.RunLogger = (*SQLiteStore)(nil)

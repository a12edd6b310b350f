package history

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/doeshing/qw/internal/domain"
	"github.com/doeshing/qw/internal/pkg/filesystem"
	"github.com/doeshing/qw/internal/ports"
)

// FileStore appends run records to a JSON Lines file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store appending to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Open picks the sink for path: SQLite for .db/.sqlite/.sqlite3, JSON Lines otherwise.
func Open(path string) ports.RunLogger {
	path = filesystem.ExpandPath(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return NewSQLiteStore(path)
	default:
		return NewFileStore(path)
	}
}

// Append implements ports.RunLogger. The record is written with a single write call on
// an O_APPEND descriptor so concurrent invocations do not split lines.
func (f *FileStore) Append(record domain.LogRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), domain.DirectoryPermissions); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, domain.LogFilePermissions)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// records loads all log entries, skipping lines that do not parse.
func (f *FileStore) records() ([]domain.LogRecord, error) {
	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var records []domain.LogRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec domain.LogRecord
		if err := json.Unmarshal(line, &rec); err == nil {
			records = append(records, rec)
		}
	}
	return records, scanner.Err()
}

var _ ports.RunLogger = (*FileStore)(nil)

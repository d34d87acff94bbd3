package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

const recordPrefix = "account_"

// FileStore writes one JSON document per attempt into a directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
	log *zap.Logger
}

// NewFileStore creates the output directory if needed. A leading ~ is expanded.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store requires an output directory")
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand output directory %q: %w", dir, err)
	}
	if err := os.MkdirAll(expanded, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{dir: expanded, log: logger.Named("store")}, nil
}

// Dir is the resolved output directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(attemptID string) (string, error) {
	if attemptID == "" || strings.ContainsAny(attemptID, `/\`) || attemptID == "." || attemptID == ".." {
		return "", fmt.Errorf("%w %q", ErrInvalidID, attemptID)
	}
	return filepath.Join(s.dir, recordPrefix+attemptID+".json"), nil
}

// Save writes rec atomically, replacing any earlier record for the same attempt.
func (s *FileStore) Save(_ context.Context, rec Record) error {
	p, err := s.path(rec.AttemptID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+recordPrefix)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("failed to set record permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}
	s.log.Debug("Saved provisioning record", zap.String("path", p))
	return nil
}

// Get reads the record for attemptID.
func (s *FileStore) Get(_ context.Context, attemptID string) (Record, error) {
	p, err := s.path(attemptID)
	if err != nil {
		return Record{}, err
	}
	return readRecord(p)
}

func readRecord(p string) (Record, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("failed to read record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to decode %s: %w", filepath.Base(p), err)
	}
	return rec, nil
}

// List returns stored records, newest first. Unreadable files are skipped.
func (s *FileStore) List(_ context.Context, limit int) ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list output directory: %w", err)
	}

	var records []Record
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, recordPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		rec, err := readRecord(filepath.Join(s.dir, name))
		if err != nil {
			s.log.Warn("Skipping unreadable record", zap.String("file", name), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

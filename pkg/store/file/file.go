// Package file provides file-based store implementation for local development
// and tests.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pitchwire/pitchwire/pkg/store"
)

const (
	tracesDir     = "traces"
	executionsDir = "executions"
	topicsDir     = "topics"

	dirPerm  = 0o755
	filePerm = 0o600
)

// Store implements store.Store on top of a directory of JSON files. One file
// per record; a process-wide RWMutex serializes writers, which is enough for
// the single-process development setups this backend targets.
type Store struct {
	root string
	mu   sync.RWMutex
}

// NewStore creates a file store rooted at the given directory, accepting
// plain paths and file:// URLs.
func NewStore(root string) (*Store, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, sub := range []string{tracesDir, executionsDir, topicsDir} {
		err := os.MkdirAll(filepath.Join(cleanRoot, sub), dirPerm)
		if err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	return &Store{root: cleanRoot}, nil
}

// Close performs any necessary cleanup. Nothing to do for files.
func (s *Store) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory still exists.
func (s *Store) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (s *Store) path(sub, id string) string {
	return filepath.Join(s.root, sub, id+".json")
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}

	return id.String(), nil
}

// writeRecord marshals a record to its file. Callers hold the write lock.
func (s *Store) writeRecord(sub, id string, record any) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", id, err)
	}

	err = os.WriteFile(s.path(sub, id), data, filePerm)
	if err != nil {
		return fmt.Errorf("failed to write record %s: %w", id, err)
	}

	return nil
}

// readRecord unmarshals a record from its file. Callers hold a read lock.
func (s *Store) readRecord(sub, id string, record any) error {
	data, err := os.ReadFile(s.path(sub, id))
	if err != nil {
		if os.IsNotExist(err) {
			return os.ErrNotExist
		}

		return fmt.Errorf("failed to read record %s: %w", id, err)
	}

	err = json.Unmarshal(data, record)
	if err != nil {
		return fmt.Errorf("failed to unmarshal record %s: %w", id, err)
	}

	return nil
}

// eachRecord walks every record file of a kind, decoding into a fresh value
// produced by newRecord and handing it to visit. Callers hold a read lock.
func (s *Store) eachRecord(sub string, newRecord func() any, visit func(record any) error) error {
	entries, err := os.ReadDir(filepath.Join(s.root, sub))
	if err != nil {
		return fmt.Errorf("failed to read %s directory: %w", sub, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		record := newRecord()

		err = s.readRecord(sub, strings.TrimSuffix(entry.Name(), ".json"), record)
		if err != nil {
			return err
		}

		err = visit(record)
		if err != nil {
			return err
		}
	}

	return nil
}

var _ store.Store = (*Store)(nil)

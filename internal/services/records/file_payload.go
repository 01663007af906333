package records

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// FilePayloadStore keeps each payload in its own file under baseDir.
// Intended for local development.
type FilePayloadStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFilePayloadStore creates baseDir if needed.
func NewFilePayloadStore(baseDir string) (*FilePayloadStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create payload directory: %w", err)
	}
	return &FilePayloadStore{baseDir: baseDir}, nil
}

func (s *FilePayloadStore) Name() string {
	return "file"
}

// payloadPath escapes the id so it always names a single file in baseDir.
func (s *FilePayloadStore) payloadPath(recordID string) string {
	return filepath.Join(s.baseDir, url.PathEscape(recordID)+".json")
}

func (s *FilePayloadStore) Get(ctx context.Context, recordID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.payloadPath(recordID))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read payload: %w", err)
	}
	return string(data), true, nil
}

func (s *FilePayloadStore) Put(ctx context.Context, recordID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.payloadPath(recordID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0644); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return nil
}

var _ PayloadStore = (*FilePayloadStore)(nil)

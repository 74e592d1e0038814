package transcript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// FileStore writes one JSONL file per session under a directory.
type FileStore struct {
	dir string

	mu    sync.Mutex
	files map[string]*os.File
}

type fileRecord struct {
	SessionID string    `json:"session_id"`
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"ts"`
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}
	return &FileStore{dir: dir, files: make(map[string]*os.File)}, nil
}

// Path returns the file used for a session.
func (s *FileStore) Path(sessionID string) string {
	shortID := sessionID
	if len(sessionID) > 8 {
		shortID = sessionID[:8]
	}
	return filepath.Join(s.dir, fmt.Sprintf("session_%s.jsonl", shortID))
}

func (s *FileStore) Append(ctx context.Context, sessionID string, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.files == nil {
		return fmt.Errorf("transcript file store closed")
	}

	f, ok := s.files[sessionID]
	if !ok {
		var err error
		f, err = os.OpenFile(s.Path(sessionID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		s.files[sessionID] = f
	}

	var b strings.Builder
	for _, entry := range entries {
		line, err := sonic.MarshalString(fileRecord{
			SessionID: sessionID,
			ID:        entry.ID,
			Role:      entry.Role,
			Text:      strings.TrimSpace(entry.Text),
			Timestamp: entry.Timestamp,
		})
		if err != nil {
			return err
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	_, err := f.WriteString(b.String())
	return err
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for id, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.files, id)
	}
	s.files = nil
	return firstErr
}

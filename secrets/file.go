package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
)

// FileStore implements the secret store on the local file system. It exists
// for local development and tests only: values are written 0600 but not
// encrypted, so it must never back a production deployment.
type FileStore struct {
	baseDir string
	log     *slog.Logger
}

// NewFileStore creates a file-backed secret store rooted at baseDir.
func NewFileStore(baseDir string, log *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FileStore{baseDir: baseDir, log: log}, nil
}

func (s *FileStore) filePath(path string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(strings.TrimPrefix(path, "/")))
}

// PutSecret writes the value to a 0600 file, overwriting if present.
func (s *FileStore) PutSecret(ctx context.Context, path, value string) error {
	filePath := s.filePath(path)
	if err := os.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(filePath, []byte(value), 0600); err != nil {
		return fmt.Errorf("failed to write secret file: %w", err)
	}

	s.log.Debug("Stored secret in file", slog.String("path", path))
	return nil
}

// GetSecret reads the value back.
func (s *FileStore) GetSecret(ctx context.Context, path string, decrypt bool) (string, error) {
	data, err := os.ReadFile(s.filePath(path))
	if os.IsNotExist(err) {
		return "", fmt.Errorf("secret %s: %w", path, interfaces.ErrNotFound)
	}
	if os.IsPermission(err) {
		return "", fmt.Errorf("secret %s: %w", path, interfaces.ErrAccessDenied)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}
	return string(data), nil
}

// DeleteSecret removes the file. Idempotent.
func (s *FileStore) DeleteSecret(ctx context.Context, path string) error {
	err := os.Remove(s.filePath(path))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete secret file: %w", err)
	}
	return nil
}

// Name returns a unique identifier for this backend.
func (s *FileStore) Name() string {
	return fmt.Sprintf("file-%s", s.baseDir)
}

// Package storage implements local-filesystem storage for generated report
// files. Paths are always relative to a base directory; anything resolving
// outside it is rejected.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mstrand/ai-mailtriage/internal/application/port"
)

// LocalFileStorage stores files under a base directory.
type LocalFileStorage struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalFileStorage creates a file store rooted at baseDir.
func NewLocalFileStorage(baseDir string, logger *zap.Logger) *LocalFileStorage {
	return &LocalFileStorage{baseDir: baseDir, logger: logger}
}

// Save writes content to the relative path, creating parent directories.
func (s *LocalFileStorage) Save(ctx context.Context, path string, content []byte) error {
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		s.logger.Error("Failed to create directories",
			zap.String("path", fullPath),
			zap.Error(err))
		return fmt.Errorf("create directories: %w", err)
	}

	if err := os.WriteFile(fullPath, content, 0o644); err != nil {
		s.logger.Error("Failed to write file",
			zap.String("path", fullPath),
			zap.Error(err))
		return fmt.Errorf("write file: %w", err)
	}

	s.logger.Debug("File saved",
		zap.String("path", fullPath),
		zap.Int("size", len(content)))
	return nil
}

// Read returns the content of the file at the relative path.
func (s *LocalFileStorage) Read(ctx context.Context, path string) ([]byte, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return content, nil
}

// Exists reports whether a file exists at the relative path.
func (s *LocalFileStorage) Exists(ctx context.Context, path string) bool {
	fullPath, err := s.resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && !info.IsDir()
}

// Delete removes the file at the relative path.
func (s *LocalFileStorage) Delete(ctx context.Context, path string) error {
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// GetFullPath resolves the relative path under the base directory without
// checking existence.
func (s *LocalFileStorage) GetFullPath(relativePath string) string {
	return filepath.Join(s.baseDir, relativePath)
}

// resolve joins the path onto the base directory and rejects traversal out
// of it.
func (s *LocalFileStorage) resolve(path string) (string, error) {
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("resolve base path: %w", err)
	}

	absPath, err := filepath.Abs(filepath.Join(absBase, path))
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	if absPath != absBase && !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes storage directory: %s", path)
	}
	return absPath, nil
}

var _ port.FileStorage = (*LocalFileStorage)(nil)

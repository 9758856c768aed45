package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalTarget mirrors backup sets into a second local directory, typically
// an external disk or network mount.
type LocalTarget struct {
	basePath string
}

func NewLocal(basePath string) (*LocalTarget, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create mirror directory: %w", err)
	}
	return &LocalTarget{basePath: basePath}, nil
}

func (l *LocalTarget) Name() string { return "local" }

func (l *LocalTarget) SyncSet(ctx context.Context, localDir string, remotePrefix string) error {
	destDir := filepath.Join(l.basePath, filepath.FromSlash(remotePrefix))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create mirror set directory: %w", err)
	}

	entries, err := os.ReadDir(localDir)
	if err != nil {
		return fmt.Errorf("failed to read set directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(localDir, entry.Name()), filepath.Join(destDir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (l *LocalTarget) DeletePrefix(ctx context.Context, remotePrefix string) error {
	dir := filepath.Join(l.basePath, filepath.FromSlash(remotePrefix))
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete mirror directory: %w", err)
	}
	return nil
}

func copyFile(srcPath, destPath string) error {
	source, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create dest: %w", err)
	}
	defer dest.Close()

	if _, err := dest.ReadFrom(source); err != nil {
		return fmt.Errorf("failed to copy: %w", err)
	}
	return nil
}

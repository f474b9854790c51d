package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Stores the snapshot as a single file. Writes go to a temporary
// file in the same directory, which is then renamed over the target.
type FileStorage struct {
	Path string
}

func NewFileStorage(path string) (*FileStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot path is required")
	}

	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}

	return &FileStorage{Path: path}, nil
}

func (s *FileStorage) ReadSnapshot() (*Snapshot, error) {
	info, err := os.Stat(s.Path)
	if os.IsNotExist(err) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}

	buf, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("reading: %w", err)
	}

	return &Snapshot{
		Data:      buf,
		WrittenAt: info.ModTime().UTC(),
	}, nil
}

func (s *FileStorage) WriteSnapshot(snapshot *Snapshot) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, err = tmp.Write(snapshot.Data)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}

	err = os.Rename(tmpPath, s.Path)
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming: %w", err)
	}

	return nil
}

func (s *FileStorage) Close() error {
	return nil
}

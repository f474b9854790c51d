package storage

import (
	"sync"
	"time"
)

// In memory implementation of Storage. Mostly useful for tests.
type MemoryStorage struct {
	mutex    sync.Mutex
	snapshot *Snapshot
	writes   int

	TimeNow func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		TimeNow: time.Now,
	}
}

func (s *MemoryStorage) ReadSnapshot() (*Snapshot, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.snapshot == nil {
		return nil, ErrNoSnapshot
	}

	return &Snapshot{
		Data:      append([]byte{}, s.snapshot.Data...),
		WrittenAt: s.snapshot.WrittenAt,
	}, nil
}

func (s *MemoryStorage) WriteSnapshot(snapshot *Snapshot) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	writtenAt := snapshot.WrittenAt
	if writtenAt.IsZero() {
		writtenAt = s.TimeNow().UTC()
	}

	s.snapshot = &Snapshot{
		Data:      append([]byte{}, snapshot.Data...),
		WrittenAt: writtenAt,
	}
	s.writes++

	return nil
}

// Number of snapshots written so far.
func (s *MemoryStorage) WriteCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.writes
}

func (s *MemoryStorage) Close() error {
	return nil
}

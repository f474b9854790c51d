package storage

import (
	"errors"
	"time"
)

var ErrNoSnapshot = errors.New("no snapshot found")

// Persists state snapshots. Only the most recent snapshot is kept.
//
// Snapshots are written by a single writer (the feed consumer) and
// read once at startup, before the writer starts.
type Storage interface {
	// Retrieves the most recent snapshot. Returns ErrNoSnapshot if
	// none has been written.
	ReadSnapshot() (*Snapshot, error)

	// Writes a snapshot, replacing any previous one. A reader
	// must never observe a partially written snapshot.
	WriteSnapshot(snapshot *Snapshot) error

	Close() error
}

// A serialized state snapshot.
type Snapshot struct {
	Data      []byte
	WrittenAt time.Time
}

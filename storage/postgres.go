package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type PSQLStorage struct {
	db      *sql.DB
	TimeNow func() time.Time
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if clearDB {
		_, err = db.Exec(`DROP TABLE IF EXISTS darwin_snapshot;`)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS darwin_snapshot (
    id INTEGER NOT NULL CHECK (id = 1),
    data BYTEA NOT NULL,
    written_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (id)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating snapshot table: %w", err)
	}

	return &PSQLStorage{
		db:      db,
		TimeNow: time.Now,
	}, nil
}

func (s *PSQLStorage) ReadSnapshot() (*Snapshot, error) {
	row := s.db.QueryRow(`SELECT data, written_at FROM darwin_snapshot WHERE id = 1`)

	snapshot := &Snapshot{}
	err := row.Scan(&snapshot.Data, &snapshot.WrittenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	snapshot.WrittenAt = snapshot.WrittenAt.UTC()

	return snapshot, nil
}

func (s *PSQLStorage) WriteSnapshot(snapshot *Snapshot) error {
	writtenAt := snapshot.WrittenAt
	if writtenAt.IsZero() {
		writtenAt = s.TimeNow()
	}

	_, err := s.db.Exec(`
INSERT INTO darwin_snapshot (id, data, written_at)
VALUES (1, $1, $2)
ON CONFLICT (id) DO UPDATE SET
    data = EXCLUDED.data,
    written_at = EXCLUDED.written_at`,
		snapshot.Data,
		writtenAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	return nil
}

func (s *PSQLStorage) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	return nil
}

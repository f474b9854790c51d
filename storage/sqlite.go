package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

type SQLiteStorage struct {
	SQLiteConfig

	db      *sql.DB
	TimeNow func() time.Time
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	onDisk := false
	directory := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		directory = cfg[0].Directory
	}

	sourceName := ":memory:"
	if onDisk {
		sourceName = filepath.Join(directory, "darwin.db")
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Each connection to :memory: is a separate database
	if !onDisk {
		db.SetMaxOpenConns(1)
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS snapshot (
    id INTEGER NOT NULL CHECK (id = 1),
    data BLOB NOT NULL,
    written_at TIMESTAMP NOT NULL,
PRIMARY KEY (id)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating snapshot table: %w", err)
	}

	return &SQLiteStorage{
		SQLiteConfig: SQLiteConfig{
			OnDisk:    onDisk,
			Directory: directory,
		},
		db:      db,
		TimeNow: time.Now,
	}, nil
}

func (s *SQLiteStorage) ReadSnapshot() (*Snapshot, error) {
	row := s.db.QueryRow(`SELECT data, written_at FROM snapshot WHERE id = 1`)

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

func (s *SQLiteStorage) WriteSnapshot(snapshot *Snapshot) error {
	writtenAt := snapshot.WrittenAt
	if writtenAt.IsZero() {
		writtenAt = s.TimeNow()
	}

	_, err := s.db.Exec(`
INSERT INTO snapshot (id, data, written_at)
VALUES (1, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    data = excluded.data,
    written_at = excluded.written_at`,
		snapshot.Data,
		writtenAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

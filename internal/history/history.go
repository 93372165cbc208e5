// Package history keeps a queryable record of hg invocations in sqlite.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Entry is one finished invocation. Args are already redacted.
type Entry struct {
	ID         string
	Repo       string
	Subcommand string
	Args       []string
	ExitCode   int
	ErrorKind  string
	Duration   time.Duration
	StartedAt  time.Time
}

// Recorder accepts finished invocations.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Invocation is the table row.
type Invocation struct {
	ID         string `gorm:"primaryKey;size:36"`
	Repo       string `gorm:"index:idx_repo_started,priority:1"`
	Subcommand string `gorm:"size:64"`
	Args       string `gorm:"type:text"`
	ExitCode   int
	ErrorKind  string `gorm:"size:64"`
	DurationMs int64
	StartedAt  time.Time `gorm:"index:idx_repo_started,priority:2"`
}

// Store is a Recorder backed by gorm.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the sqlite database at path.
// "file::memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	if path != "file::memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	// A single connection keeps in-memory databases alive and serializes writers.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.Exec("PRAGMA busy_timeout=5000")

	s, err := New(db)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	if path != "file::memory:" {
		os.Chmod(path, 0600)
	}
	return s, nil
}

// New wraps an open gorm handle and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Invocation{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Record(ctx context.Context, e Entry) error {
	args, err := json.Marshal(e.Args)
	if err != nil {
		return fmt.Errorf("failed to encode args: %w", err)
	}
	row := Invocation{
		ID:         e.ID,
		Repo:       e.Repo,
		Subcommand: e.Subcommand,
		Args:       string(args),
		ExitCode:   e.ExitCode,
		ErrorKind:  e.ErrorKind,
		DurationMs: e.Duration.Milliseconds(),
		StartedAt:  e.StartedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to record invocation: %w", err)
	}
	return nil
}

// Recent returns up to n entries for repo, newest first. An empty repo
// means all repositories.
func (s *Store) Recent(ctx context.Context, repo string, n int) ([]Entry, error) {
	q := s.db.WithContext(ctx).Order("started_at DESC").Order("rowid DESC")
	if repo != "" {
		q = q.Where("repo = ?", repo)
	}
	if n > 0 {
		q = q.Limit(n)
	}
	var rows []Invocation
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		var args []string
		if r.Args != "" {
			if err := json.Unmarshal([]byte(r.Args), &args); err != nil {
				return nil, fmt.Errorf("failed to decode args of %s: %w", r.ID, err)
			}
		}
		out = append(out, Entry{
			ID:         r.ID,
			Repo:       r.Repo,
			Subcommand: r.Subcommand,
			Args:       args,
			ExitCode:   r.ExitCode,
			ErrorKind:  r.ErrorKind,
			Duration:   time.Duration(r.DurationMs) * time.Millisecond,
			StartedAt:  r.StartedAt,
		})
	}
	return out, nil
}

// Prune deletes entries that started before cutoff and returns how many
// were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("started_at < ?", cutoff.UTC()).Delete(&Invocation{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune history: %w", res.Error)
	}
	return res.RowsAffected, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"livetodo/internal/model"

	_ "modernc.org/sqlite"
)

// TodoStore persists backend todos in a SQLite file.
type TodoStore struct {
	path string
	db   *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and migrates it.
func Open(ctx context.Context, path string) (*TodoStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: empty path")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL enables one writer + many readers; busy_timeout helps avoid "database is locked" flakiness.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	s := &TodoStore{path: path, db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *TodoStore) Path() string { return s.path }

func (s *TodoStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *TodoStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS todos (
			id INTEGER PRIMARY KEY,
			user_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			created_at_unixms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_todos_user ON todos(user_id);`,
	}
	for _, st := range stmts {
		if _, err := s.db.ExecContext(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// Load returns all todos ordered by id.
func (s *TodoStore) Load(ctx context.Context) ([]model.Todo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, title, completed, created_at_unixms FROM todos ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Todo
	for rows.Next() {
		var (
			t         model.Todo
			completed int
			createdMs int64
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &completed, &createdMs); err != nil {
			return nil, err
		}
		t.Completed = completed != 0
		t.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveTodo inserts or replaces a todo by id.
func (s *TodoStore) SaveTodo(ctx context.Context, t model.Todo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO todos(id, user_id, title, completed, created_at_unixms) VALUES(?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Title, boolToInt(t.Completed), t.CreatedAt.UTC().UnixMilli())
	return err
}

func (s *TodoStore) DeleteTodo(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

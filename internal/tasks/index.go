package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// IndexFile is the SQLite database filename inside the data directory.
const IndexFile = "tasks.db"

// timeLayout keeps created_at lexically sortable.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Index is the SQLite-backed task catalog.
type Index struct {
	db *sql.DB
}

// OpenIndex creates dataDir if needed, opens tasks.db with WAL mode and
// runs migrations.
func OpenIndex(dataDir string) (*Index, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("tasks: create data dir: %w", err)
	}

	db, err := openDB("sqlite", filepath.Join(dataDir, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("tasks: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("tasks: pragma %q: %w", p, err)
		}
	}

	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tasks: migration: %w", err)
	}
	return idx, nil
}

// Close closes the underlying database connection.
func (idx *Index) Close() error {
	return idx.db.Close()
}

func (idx *Index) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tasks (
			id          TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			context     TEXT NOT NULL DEFAULT '',
			priority    TEXT NOT NULL,
			status      TEXT NOT NULL DEFAULT 'open',
			file        TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, created_at);
	`
	_, err := idx.db.Exec(schema)
	return err
}

// Insert adds a task row. Inserting an existing ID is an error.
func (idx *Index) Insert(ctx context.Context, t *Task) error {
	_, err := idx.db.ExecContext(ctx,
		`INSERT INTO tasks (id, description, context, priority, status, file, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Description, t.Context, string(t.Priority), string(t.Status), t.File,
		t.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting task %s: %w", t.ID, err)
	}
	return nil
}

// ListByStatus returns tasks with the given status, newest first. A limit
// of zero or less means no limit.
func (idx *Index) ListByStatus(ctx context.Context, status Status, limit int) ([]Task, error) {
	query := `SELECT id, description, context, priority, status, file, created_at
	          FROM tasks WHERE status = ? ORDER BY created_at DESC, id DESC`
	args := []any{string(status)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []Task
	for rows.Next() {
		var (
			t         Task
			priority  string
			status    string
			createdAt string
		)
		if err := rows.Scan(&t.ID, &t.Description, &t.Context, &priority, &status, &t.File, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		t.Priority = Priority(priority)
		t.Status = Status(status)
		if ts, err := time.Parse(timeLayout, createdAt); err == nil {
			t.CreatedAt = ts
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// Ping checks the database connection.
func (idx *Index) Ping(ctx context.Context) error {
	return idx.db.PingContext(ctx)
}

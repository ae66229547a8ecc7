package tasks

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoIndex is returned by queries when the SQLite index is disabled.
var ErrNoIndex = errors.New("task index unavailable")

// Store persists tasks to Markdown files and, optionally, the SQLite index.
type Store struct {
	files *FileStore
	index *Index
}

// NewStore combines a FileStore with an optional Index. A nil index
// disables listing; writes still produce Markdown files.
func NewStore(files *FileStore, index *Index) *Store {
	return &Store{files: files, index: index}
}

// Save writes the task file, sets t.File, then indexes the task. If the
// file was written but indexing failed, t.File is still set and the error
// is returned.
func (s *Store) Save(ctx context.Context, t *Task) error {
	path, err := s.files.Write(t)
	if err != nil {
		return err
	}
	t.File = path

	if s.index == nil {
		return nil
	}
	if err := s.index.Insert(ctx, t); err != nil {
		return fmt.Errorf("indexing task: %w", err)
	}
	return nil
}

// Open lists open tasks, newest first.
func (s *Store) Open(ctx context.Context, limit int) ([]Task, error) {
	if s.index == nil {
		return nil, ErrNoIndex
	}
	return s.index.ListByStatus(ctx, StatusOpen, limit)
}

// Ping checks the tasks directory is writable and the index is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.files.CheckWritable(); err != nil {
		return err
	}
	if s.index == nil {
		return nil
	}
	if err := s.index.Ping(ctx); err != nil {
		return fmt.Errorf("task index: %w", err)
	}
	return nil
}

// GroupByPriority buckets tasks by priority, preserving input order within
// each bucket.
func GroupByPriority(list []Task) map[Priority][]Task {
	groups := make(map[Priority][]Task)
	for _, t := range list {
		groups[t.Priority] = append(groups[t.Priority], t)
	}
	return groups
}

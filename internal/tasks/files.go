package tasks

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/HendryAvila/toolrelay/internal/templates"
)

// FileStore writes one Markdown file per task into a directory.
type FileStore struct {
	dir      string
	renderer templates.Renderer
}

// NewFileStore creates a FileStore rooted at dir. The directory is created
// lazily on the first write.
func NewFileStore(dir string, renderer templates.Renderer) *FileStore {
	return &FileStore{dir: dir, renderer: renderer}
}

// Dir returns the directory task files are written to.
func (fs *FileStore) Dir() string {
	return fs.dir
}

// TaskPath returns the path of the Markdown record for a task ID.
func (fs *FileStore) TaskPath(id string) string {
	return filepath.Join(fs.dir, id+".md")
}

// Write renders the task and writes it to <dir>/<id>.md, returning the path.
func (fs *FileStore) Write(t *Task) (string, error) {
	content, err := fs.renderer.Render(templates.Task, templates.TaskData{
		ID:          t.ID,
		Title:       t.Title(),
		Description: t.Description,
		Context:     t.Context,
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		NextSteps:   DefaultNextSteps,
	})
	if err != nil {
		return "", fmt.Errorf("rendering task %s: %w", t.ID, err)
	}

	if err := os.MkdirAll(fs.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating tasks directory: %w", err)
	}

	path := fs.TaskPath(t.ID)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// CheckWritable verifies a file can be created in the tasks directory.
func (fs *FileStore) CheckWritable() error {
	if err := os.MkdirAll(fs.dir, 0o755); err != nil {
		return fmt.Errorf("creating tasks directory: %w", err)
	}
	f, err := os.CreateTemp(fs.dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("tasks directory not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

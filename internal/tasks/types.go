// Package tasks persists the task records produced by the create_task tool.
//
// Each task is written as a Markdown file under the tasks directory and,
// when the SQLite index is available, as a row in tasks.db so status
// queries can list open work without scanning the filesystem.
package tasks

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// --- Priority enum ---

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every priority, most pressing first.
var Priorities = []Priority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow}

// PriorityNames returns the priorities as plain strings, lowest first, in
// the order the tool schema advertises them.
func PriorityNames() []string {
	return []string{
		string(PriorityLow),
		string(PriorityMedium),
		string(PriorityHigh),
		string(PriorityUrgent),
	}
}

// ValidatePriority returns an error if p is not a known priority.
func ValidatePriority(p Priority) error {
	for _, known := range Priorities {
		if p == known {
			return nil
		}
	}
	return fmt.Errorf("invalid priority %q: must be one of: %s", p, strings.Join(PriorityNames(), ", "))
}

// --- Status enum ---

// Status tracks a task's lifecycle.
type Status string

const (
	StatusOpen Status = "open"
	StatusDone Status = "done"
)

// DefaultNextSteps is the guidance attached to every new task.
var DefaultNextSteps = []string{
	"The request will be analyzed",
	"Code changes will be implemented",
	"Changes will be tested",
	"Updates will be deployed",
}

// Task is a single unit of requested development work.
type Task struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Context     string    `json:"context,omitempty"`
	Priority    Priority  `json:"priority"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	// File is the Markdown record's path once written.
	File string `json:"file,omitempty"`
}

// NewTask builds an open task with a timestamp-derived ID.
func NewTask(description, context string, priority Priority) *Task {
	now := timeNow().UTC()
	return &Task{
		ID:          NewID(now),
		Description: description,
		Context:     context,
		Priority:    priority,
		Status:      StatusOpen,
		CreatedAt:   now,
	}
}

// NewID returns "task_" followed by a ULID for t. IDs sort by creation time.
func NewID(t time.Time) string {
	return "task_" + ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// Title is the first line of the description, shortened for headings.
func (t *Task) Title() string {
	title := strings.TrimSpace(t.Description)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	const maxTitle = 80
	if r := []rune(title); len(r) > maxTitle {
		title = strings.TrimSpace(string(r[:maxTitle])) + "..."
	}
	return title
}

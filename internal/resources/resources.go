// Package resources implements MCP resource handlers for the relay.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (tasks://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/HendryAvila/toolrelay/internal/tasks"
	"github.com/mark3labs/mcp-go/mcp"
)

// OpenTasksURI addresses the open task list.
const OpenTasksURI = "tasks://open"

const openTasksLimit = 100

// TaskLister lists open tasks, newest first.
type TaskLister interface {
	Open(ctx context.Context, limit int) ([]tasks.Task, error)
}

// Handler manages task resource endpoints.
type Handler struct {
	tasks TaskLister
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(lister TaskLister) *Handler {
	return &Handler{tasks: lister}
}

// OpenTasksResource returns the MCP resource definition for open tasks.
func (h *Handler) OpenTasksResource() mcp.Resource {
	return mcp.NewResource(
		OpenTasksURI,
		"Open Tasks",
		mcp.WithResourceDescription("Tasks created through create_task that are still open, newest first"),
		mcp.WithMIMEType("application/json"),
	)
}

// taskView is the JSON shape of one listed task.
type taskView struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Priority  string `json:"priority"`
	CreatedAt string `json:"created_at"`
	File      string `json:"file,omitempty"`
}

// HandleOpenTasks returns the open tasks as JSON.
func (h *Handler) HandleOpenTasks(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if h.tasks == nil {
		return errorResource(req.Params.URI, "task index is not available"), nil
	}

	open, err := h.tasks.Open(ctx, openTasksLimit)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}

	views := make([]taskView, 0, len(open))
	for _, t := range open {
		views = append(views, taskView{
			ID:        t.ID,
			Title:     t.Title(),
			Priority:  string(t.Priority),
			CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
			File:      t.File,
		})
	}

	data, err := json.MarshalIndent(map[string]any{
		"count": len(views),
		"tasks": views,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling tasks: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}

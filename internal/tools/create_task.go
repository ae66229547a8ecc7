package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/HendryAvila/toolrelay/internal/logging"
	"github.com/HendryAvila/toolrelay/internal/tasks"
	"github.com/mark3labs/mcp-go/mcp"
)

// TaskSaver persists task records.
type TaskSaver interface {
	Save(ctx context.Context, t *tasks.Task) error
}

// CreateTaskTool handles the create_task MCP tool.
type CreateTaskTool struct {
	store           TaskSaver
	defaultPriority tasks.Priority
	log             logging.Logger
}

// NewCreateTaskTool creates a CreateTaskTool. A nil store skips persistence.
func NewCreateTaskTool(store TaskSaver, defaultPriority tasks.Priority, log logging.Logger) *CreateTaskTool {
	if defaultPriority == "" {
		defaultPriority = tasks.PriorityMedium
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &CreateTaskTool{store: store, defaultPriority: defaultPriority, log: log}
}

// Definition returns the MCP tool definition for registration.
func (t *CreateTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("create_task",
		mcp.WithDescription(
			"Create a development task. Use this when you need to build features, "+
				"fix bugs, or make changes to the codebase. The task is recorded as a "+
				"Markdown file and added to the open task list.",
		),
		mcp.WithString("task_description",
			mcp.Required(),
			mcp.Description("Clear description of what needs to be built or fixed. Be specific about the feature, bug, or change required."),
		),
		mcp.WithString("priority",
			mcp.Description("Priority level of the task"),
			mcp.Enum(tasks.PriorityNames()...),
		),
		mcp.WithString("context",
			mcp.Description("Additional context about why this task is needed or what problem it solves"),
		),
	)
}

// taskResponse is the JSON body returned to the caller.
type taskResponse struct {
	TaskID        string   `json:"task_id"`
	Status        string   `json:"status"`
	Message       string   `json:"message"`
	Priority      string   `json:"priority"`
	EstimatedTime string   `json:"estimated_time"`
	NextSteps     []string `json:"next_steps"`
	File          string   `json:"file,omitempty"`
	Persisted     bool     `json:"persisted"`
	Note          string   `json:"note,omitempty"`
}

// Handle processes the create_task tool call.
func (t *CreateTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	description := strings.TrimSpace(req.GetString("task_description", ""))
	if description == "" {
		description = strings.TrimSpace(req.GetString("title", ""))
	}
	if description == "" {
		return mcp.NewToolResultError("task_description is required"), nil
	}

	taskContext := req.GetString("context", "")
	if taskContext == "" {
		taskContext = req.GetString("description", "")
	}

	priority := tasks.Priority(strings.ToLower(req.GetString("priority", "")))
	if priority == "" {
		priority = t.defaultPriority
	}
	if err := tasks.ValidatePriority(priority); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	task := tasks.NewTask(description, taskContext, priority)

	resp := taskResponse{
		TaskID:        task.ID,
		Status:        "created",
		Message:       fmt.Sprintf("Task created successfully: \"%s\"", description),
		Priority:      string(priority),
		EstimatedTime: "Task will be picked up by the development queue",
		NextSteps:     tasks.DefaultNextSteps,
	}

	if t.store == nil {
		resp.Note = "Task persistence is disabled; this acknowledgment is the only record."
	} else if err := t.store.Save(ctx, task); err != nil {
		t.log.Error("persisting task", err, logging.String("task_id", task.ID))
		// The Markdown file may exist even when indexing failed.
		resp.Persisted = task.File != ""
		resp.File = task.File
		if resp.Persisted {
			resp.Note = fmt.Sprintf("The task file was written but not indexed (%v).", err)
		} else {
			resp.Note = fmt.Sprintf("The task could not be saved (%v); this acknowledgment is the only record.", err)
		}
	} else {
		resp.Persisted = true
		resp.File = task.File
	}

	return jsonResult(resp)
}

// jsonResult renders v as indented JSON text. HTML characters are kept
// literal so code excerpts and descriptions read as written.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	return mcp.NewToolResultText(strings.TrimSuffix(buf.String(), "\n")), nil
}

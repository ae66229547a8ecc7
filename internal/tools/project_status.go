package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/HendryAvila/toolrelay/internal/logging"
	"github.com/HendryAvila/toolrelay/internal/tasks"
	"github.com/HendryAvila/toolrelay/internal/workspace"
	"github.com/hashicorp/go-multierror"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"
)

// Query types accepted by query_project_status.
const (
	QueryRecentChanges  = "recent_changes"
	QueryActiveFeatures = "active_features"
	QuerySystemHealth   = "system_health"
	QueryTodoList       = "todo_list"
)

const (
	recentCommitLimit = 10
	todoLimit         = 50
)

// --- Fallback status text ---
//
// Returned when the live source for a query is unavailable.

var (
	staticRecentFeatures = []string{
		"Voice booking interface with Leiah AI",
		"Interactive hero orb with vehicle selection",
		"Tinder-style driver swipe cards",
		"Real-time chat interface",
	}
	staticCompleted = []string{
		"Hero orb with animations",
		"AI chat interface",
		"Driver swipe cards",
		"Booking form",
		"Authentication system",
	}
	staticInProgress = []string{
		"Supabase database integration",
		"MCP server connections",
		"Payment processing",
	}
	staticPlanned = []string{
		"Real-time notifications",
		"SMS confirmations",
		"Advanced analytics",
	}
	staticTodo = map[string][]string{
		"high_priority": {
			"Complete Supabase MCP integration",
			"Connect Manus MCP to Leiah",
			"Test end-to-end booking flow",
		},
		"medium_priority": {
			"Add payment processing",
			"Implement notifications",
			"Build admin dashboard features",
		},
		"low_priority": {
			"Performance optimization",
			"Additional animations",
			"Extended analytics",
		},
	}
)

// TaskLister lists open tasks, newest first.
type TaskLister interface {
	Open(ctx context.Context, limit int) ([]tasks.Task, error)
}

// HealthCheck is one named dependency probe for system_health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// StatusDeps are the collaborators of ProjectStatusTool. Nil fields turn
// the corresponding live lookup off.
type StatusDeps struct {
	Runner      workspace.Runner
	ProjectRoot string
	Tasks       TaskLister
	Checks      []HealthCheck
	// Sessions reports the number of open sessions.
	Sessions func() int
	Log      logging.Logger
}

// ProjectStatusTool handles the query_project_status MCP tool.
type ProjectStatusTool struct {
	deps StatusDeps
}

// NewProjectStatusTool creates a ProjectStatusTool.
func NewProjectStatusTool(deps StatusDeps) *ProjectStatusTool {
	if deps.ProjectRoot == "" {
		deps.ProjectRoot = "."
	}
	if deps.Log == nil {
		deps.Log = logging.NewNop()
	}
	return &ProjectStatusTool{deps: deps}
}

// Definition returns the MCP tool definition for registration.
func (t *ProjectStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("query_project_status",
		mcp.WithDescription(
			"Check the current status of the project, including recent changes, "+
				"active features, system health and the open task list.",
		),
		mcp.WithString("query_type",
			mcp.Required(),
			mcp.Description("Type of status information to retrieve"),
			mcp.Enum(QueryRecentChanges, QueryActiveFeatures, QuerySystemHealth, QueryTodoList),
		),
	)
}

// Handle processes the query_project_status tool call.
func (t *ProjectStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	queryType := req.GetString("query_type", "")

	var (
		status map[string]any
		errs   *multierror.Error
	)

	switch queryType {
	case QueryRecentChanges:
		status, errs = t.recentChanges(ctx)
	case QueryActiveFeatures:
		status, errs = t.activeFeatures()
	case QuerySystemHealth:
		status = t.systemHealth(ctx)
	case QueryTodoList:
		status, errs = t.todoList(ctx)
	case "":
		return mcp.NewToolResultError("query_type is required"), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf(
			"unknown query_type %q: must be one of %s, %s, %s, %s",
			queryType, QueryRecentChanges, QueryActiveFeatures, QuerySystemHealth, QueryTodoList,
		)), nil
	}

	if err := errs.ErrorOrNil(); err != nil {
		t.deps.Log.Warn("status query degraded",
			logging.String("query_type", queryType),
			logging.String("error", err.Error()),
		)
		status["warnings"] = errorStrings(errs)
	}

	return jsonResult(status)
}

func (t *ProjectStatusTool) recentChanges(ctx context.Context) (map[string]any, *multierror.Error) {
	var errs *multierror.Error
	status := map[string]any{
		"last_updated":    timeNow().UTC().Format(time.RFC3339),
		"last_deployment": "Active development",
	}

	if t.deps.Runner != nil {
		commits, err := workspace.RecentCommits(ctx, t.deps.Runner, t.deps.ProjectRoot, recentCommitLimit)
		if err == nil && len(commits) > 0 {
			status["source"] = "git"
			status["recent_commits"] = commits
			return status, nil
		}
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	status["source"] = "static"
	status["recent_features"] = staticRecentFeatures
	return status, errs
}

func (t *ProjectStatusTool) activeFeatures() (map[string]any, *multierror.Error) {
	var errs *multierror.Error
	status := map[string]any{
		"completed":   staticCompleted,
		"in_progress": staticInProgress,
		"planned":     staticPlanned,
	}

	dirs, err := workspace.ListDirs(t.deps.ProjectRoot)
	if err != nil {
		errs = multierror.Append(errs, err)
	} else {
		if dirs == nil {
			dirs = []string{}
		}
		status["directories"] = dirs
	}
	return status, errs
}

func (t *ProjectStatusTool) systemHealth(ctx context.Context) map[string]any {
	results := make([]error, len(t.deps.Checks))

	var g errgroup.Group
	for i, c := range t.deps.Checks {
		g.Go(func() error {
			results[i] = runCheck(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	checks := make(map[string]string, len(results))
	var issues []string
	for i, c := range t.deps.Checks {
		if err := results[i]; err != nil {
			checks[c.Name] = "failing"
			issues = append(issues, fmt.Sprintf("%s: %v", c.Name, err))
			continue
		}
		checks[c.Name] = "ok"
	}

	status := map[string]any{
		"status":        "healthy",
		"api_endpoints": "operational",
		"checks":        checks,
		"last_check":    timeNow().UTC().Format(time.RFC3339),
	}
	if len(issues) > 0 {
		status["status"] = "degraded"
		status["issues"] = issues
	}
	if t.deps.Sessions != nil {
		status["active_sessions"] = t.deps.Sessions()
	}
	return status
}

// runCheck recovers a panicking check into an error.
func runCheck(ctx context.Context, c HealthCheck) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return c.Check(ctx)
}

func (t *ProjectStatusTool) todoList(ctx context.Context) (map[string]any, *multierror.Error) {
	var errs *multierror.Error

	if t.deps.Tasks != nil {
		open, err := t.deps.Tasks.Open(ctx, todoLimit)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("listing open tasks: %w", err))
		} else if len(open) > 0 {
			status := map[string]any{
				"source":     "tasks",
				"open_tasks": len(open),
			}
			groups := tasks.GroupByPriority(open)
			for _, p := range tasks.Priorities {
				items := make([]string, 0, len(groups[p]))
				for _, task := range groups[p] {
					items = append(items, fmt.Sprintf("%s (%s)", task.Title(), task.ID))
				}
				status[string(p)+"_priority"] = items
			}
			return status, nil
		}
	}

	status := map[string]any{"source": "static"}
	for k, v := range staticTodo {
		status[k] = v
	}
	return status, errs
}

func errorStrings(errs *multierror.Error) []string {
	out := make([]string, 0, len(errs.Errors))
	for _, err := range errs.Errors {
		out = append(out, err.Error())
	}
	return out
}


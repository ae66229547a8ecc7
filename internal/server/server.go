// Package server wires all relay components and serves them over HTTP.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools, resources and session manager that depend
// on abstractions. No business logic lives here, only wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/HendryAvila/toolrelay/internal/config"
	"github.com/HendryAvila/toolrelay/internal/geocode"
	"github.com/HendryAvila/toolrelay/internal/logging"
	"github.com/HendryAvila/toolrelay/internal/metrics"
	"github.com/HendryAvila/toolrelay/internal/resources"
	"github.com/HendryAvila/toolrelay/internal/session"
	"github.com/HendryAvila/toolrelay/internal/tasks"
	"github.com/HendryAvila/toolrelay/internal/templates"
	"github.com/HendryAvila/toolrelay/internal/tools"
	"github.com/HendryAvila/toolrelay/internal/workspace"
	"github.com/go-chi/chi/v5"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Name identifies the relay in health output and the MCP handshake.
const Name = "toolrelay"

// Server is the assembled relay.
type Server struct {
	cfg      config.Config
	log      logging.Logger
	registry *tools.Registry
	protocol *tools.Protocol
	sessions *session.Manager
	metrics  *metrics.Metrics
	router   chi.Router
}

// New creates and configures the relay with all tools and resources
// registered. This is the single place where all dependencies are
// resolved.
//
// The returned cleanup function closes the task index and the geocoder
// cache and must be called on shutdown. It is always non-nil.
func New(cfg config.Config, log logging.Logger) (*Server, func(), error) {
	if log == nil {
		log = logging.NewNop()
	}
	srv := &Server{cfg: cfg, log: log}

	// --- Collaborators ---

	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, noop, fmt.Errorf("creating template renderer: %w", err)
	}
	files := tasks.NewFileStore(cfg.TasksDir, renderer)

	// The index is an independent subsystem: if it fails to open, tasks
	// are still written as Markdown and listing falls back to static text.
	index, err := tasks.OpenIndex(cfg.DataDir)
	if err != nil {
		log.Warn("task index disabled", logging.String("error", err.Error()))
		index = nil
	}
	store := tasks.NewStore(files, index)

	searcher, err := workspace.NewFSSearcher(cfg.SourceRoot)
	if err != nil {
		closeIndex(index, log)
		return nil, noop, fmt.Errorf("creating source searcher: %w", err)
	}

	geocoder := geocode.NewClient(cfg.GeocoderURL, cfg.GeocoderCacheTTL,
		geocode.WithUserAgent(fmt.Sprintf("%s/%s", Name, Version)),
	)

	cleanup := func() {
		geocoder.Close()
		closeIndex(index, log)
	}

	// --- Tools ---

	srv.metrics = metrics.New(srv.activeSessions)

	checks := []tools.HealthCheck{
		{Name: "tasks_dir", Check: func(context.Context) error { return files.CheckWritable() }},
	}
	if index != nil {
		checks = append(checks, tools.HealthCheck{Name: "task_index", Check: index.Ping})
	}

	registry, err := tools.NewRegistry([]tools.Handler{
		tools.NewCreateTaskTool(store, cfg.DefaultPriority, log),
		tools.NewProjectStatusTool(tools.StatusDeps{
			Runner:      workspace.ExecRunner{},
			ProjectRoot: cfg.ProjectRoot,
			Tasks:       store,
			Checks:      checks,
			Sessions:    srv.activeSessions,
			Log:         log,
		}),
		tools.NewCodeContextTool(searcher, log),
		tools.NewValidateAddressTool(geocoder, log),
	},
		tools.WithTimeout(cfg.ToolTimeout),
		tools.WithStrictArgs(cfg.StrictArgs),
		tools.WithObserver(srv.metrics),
		tools.WithLogger(log),
	)
	if err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("building tool registry: %w", err)
	}
	srv.registry = registry

	// --- Protocol & sessions ---

	srv.protocol = tools.NewProtocol(Name, Version, registry,
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithInstructions(serverInstructions()),
	)

	resourceHandler := resources.NewHandler(store)
	srv.protocol.Server().AddResource(resourceHandler.OpenTasksResource(), resourceHandler.HandleOpenTasks)

	srv.sessions = session.NewManager(srv.protocol, log)
	srv.router = srv.routes()

	return srv, cleanup, nil
}

// noop is the cleanup returned when construction fails.
func noop() {}

func closeIndex(index *tasks.Index, log logging.Logger) {
	if index == nil {
		return
	}
	if err := index.Close(); err != nil {
		log.Warn("closing task index", logging.String("error", err.Error()))
	}
}

// activeSessions is safe to call before the session manager exists.
func (s *Server) activeSessions() int {
	if s.sessions == nil {
		return 0
	}
	return s.sessions.Count()
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the tool registry.
func (s *Server) Registry() *tools.Registry {
	return s.registry
}

// Sessions returns the session manager.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Run serves HTTP on the configured address until ctx is canceled, then
// closes every session and shuts the listener down within the configured
// shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening",
			logging.String("addr", httpSrv.Addr),
			logging.String("sse", "GET /sse"),
			logging.String("messages", "POST /messages"),
		)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down", logging.Int("active_sessions", s.sessions.Count()))

	// Open SSE streams would hold Shutdown until the deadline.
	s.sessions.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		_ = httpSrv.Close()
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// serverInstructions tells the MCP client how to use the relay.
func serverInstructions() string {
	return `toolrelay exposes developer-assistant tools for the current project.

- create_task records a development task (description, priority, context).
  Open tasks are listed by query_project_status(query_type=todo_list) and
  the tasks://open resource.
- query_project_status reports recent_changes (git history),
  active_features, system_health and todo_list.
- get_code_context returns a numbered excerpt of a file under the source
  root, and the first match for an optional query.
- validate_address checks a free-text address against a geocoder.

Results are JSON text. Failures of external services degrade to an
explanatory message instead of an error where possible.`
}

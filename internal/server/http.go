package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/HendryAvila/toolrelay/internal/logging"
	"github.com/HendryAvila/toolrelay/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	sseEndpoint      = "/sse"
	messagesEndpoint = "/messages"

	// maxMessageSize caps a single POSTed JSON-RPC message.
	maxMessageSize = 4 << 20
)

const description = "MCP tool relay exposing developer-assistant tools over SSE"

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.New(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool { return true },
		AllowedMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:  []string{"*"},
	}).Handler)

	r.Get(sseEndpoint, s.handleSSE)
	r.Post(messagesEndpoint, s.handleMessage)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	r.Get("/", s.handleInfo)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Debug("http request",
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.Int("status", ww.Status()),
				logging.Duration("elapsed", time.Since(start)),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

// handleSSE opens a session and holds the event stream until the client
// goes away or the session is closed.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	conn := session.NewSSEConn(session.DefaultQueueSize, s.cfg.SSEKeepAlive)

	sess, err := s.sessions.Open(conn)
	if err != nil {
		s.log.Error("opening session", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to open session"})
		return
	}

	endpoint := messagesEndpoint + "?sessionId=" + url.QueryEscape(sess.SessionID())
	if err := conn.Serve(r.Context(), w, endpoint); err != nil {
		s.log.Debug("sse stream ended",
			logging.String("session_id", sess.SessionID()),
			logging.String("error", err.Error()),
		)
	}
}

// handleMessage accepts one JSON-RPC message for a session. The response,
// if any, is delivered on the session's event stream.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "sessionId is required"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageSize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "failed to read request body"})
		return
	}

	_, err = s.sessions.Route(r.Context(), id, json.RawMessage(body))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, session.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Session not found"})
	default:
		s.log.Error("routing message", err, logging.String("session_id", id))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

type healthBody struct {
	Status         string `json:"status"`
	Server         string `json:"server"`
	Version        string `json:"version"`
	ActiveSessions int    `json:"active_sessions"`
	Timestamp      string `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthBody{
		Status:         "healthy",
		Server:         Name,
		Version:        Version,
		ActiveSessions: s.sessions.Count(),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	})
}

type toolSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type infoBody struct {
	Name           string            `json:"name"`
	Version        string            `json:"version"`
	Description    string            `json:"description"`
	Endpoints      map[string]string `json:"endpoints"`
	Tools          []toolSummary     `json:"tools"`
	ActiveSessions int               `json:"active_sessions"`
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	defs := s.registry.List()
	summaries := make([]toolSummary, 0, len(defs))
	for _, d := range defs {
		summaries = append(summaries, toolSummary{Name: d.Name, Description: d.Description})
	}

	writeJSON(w, http.StatusOK, infoBody{
		Name:        Name,
		Version:     Version,
		Description: description,
		Endpoints: map[string]string{
			"sse":      "GET " + sseEndpoint,
			"messages": "POST " + messagesEndpoint + "?sessionId=<id>",
			"health":   "GET /health",
			"metrics":  "GET /metrics",
		},
		Tools:          summaries,
		ActiveSessions: s.sessions.Count(),
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

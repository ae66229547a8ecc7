// Package session maps long-lived SSE connections to session ids and
// routes the JSON-RPC messages posted for a session into the protocol
// layer.
//
// A session is OPEN from Open until its connection closes, it is closed
// explicitly, or the manager shuts down. CLOSED is terminal: the id is
// removed and never routed again.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/HendryAvila/toolrelay/internal/logging"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

var (
	// ErrSessionNotFound is returned for ids that were never issued or
	// whose session has been removed.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed is returned when the connection went away while a
	// response was being delivered. The session is removed.
	ErrSessionClosed = errors.New("session closed")
)

// maxIDAttempts bounds regeneration when a fresh id collides.
const maxIDAttempts = 5

// Conn is the server-to-client half of a session.
type Conn interface {
	// Send queues msg for delivery to the client.
	Send(msg mcp.JSONRPCMessage) error
	// Done is closed once the connection can no longer deliver messages.
	Done() <-chan struct{}
	// Close tears the connection down. It is safe to call more than once.
	Close() error
}

// Protocol handles the messages routed to a session.
type Protocol interface {
	HandleMessage(ctx context.Context, raw json.RawMessage) mcp.JSONRPCMessage
	RegisterSession(ctx context.Context, s server.ClientSession) error
	UnregisterSession(ctx context.Context, id string)
	WithSession(ctx context.Context, s server.ClientSession) context.Context
}

// Manager owns the active sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	protocol Protocol
	log      logging.Logger
	newID    func() string
}

// NewManager creates an empty Manager.
func NewManager(p Protocol, log logging.Logger) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		protocol: p,
		log:      log,
		newID:    uuid.NewString,
	}
}

// Open binds conn to a fresh session id and starts watching conn for
// closure. The session is removed exactly once when conn is done.
func (m *Manager) Open(conn Conn) (*Session, error) {
	m.mu.Lock()
	id, err := m.uniqueIDLocked()
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	s := newSession(id, conn)
	m.sessions[id] = s
	m.mu.Unlock()

	if err := m.protocol.RegisterSession(context.Background(), s); err != nil {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil, fmt.Errorf("registering session: %w", err)
	}

	go s.forwardNotifications(m.log)
	go func() {
		select {
		case <-conn.Done():
		case <-s.done:
		}
		m.remove(s)
	}()

	m.log.Info("session opened", logging.String("session_id", id), logging.Int("active_sessions", m.Count()))
	return s, nil
}

func (m *Manager) uniqueIDLocked() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := m.newID()
		if _, taken := m.sessions[id]; !taken && id != "" {
			return id, nil
		}
	}
	return "", errors.New("could not generate a unique session id")
}

// remove deletes s if it is still the session stored under its id. Only
// the first call for a session has any effect.
func (m *Manager) remove(s *Session) {
	s.closeOnce.Do(func() {
		m.mu.Lock()
		if cur, ok := m.sessions[s.id]; ok && cur == s {
			delete(m.sessions, s.id)
		}
		m.mu.Unlock()

		close(s.done)
		m.protocol.UnregisterSession(context.Background(), s.id)
		m.log.Info("session closed", logging.String("session_id", s.id), logging.Int("active_sessions", m.Count()))
	})
}

// Get returns the open session with id, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Route hands raw to the protocol layer on behalf of session id and pushes
// any response onto the session's connection. The response is also
// returned. Nothing is retried.
func (m *Manager) Route(ctx context.Context, id string, raw json.RawMessage) (mcp.JSONRPCMessage, error) {
	s := m.Get(id)
	if s == nil {
		return nil, ErrSessionNotFound
	}
	if s.Closed() {
		// The watcher may not have run yet.
		m.remove(s)
		return nil, ErrSessionNotFound
	}

	resp := m.protocol.HandleMessage(m.protocol.WithSession(ctx, s), raw)
	if resp == nil {
		return nil, nil
	}

	if err := s.conn.Send(resp); err != nil {
		if errors.Is(err, ErrConnClosed) {
			m.remove(s)
			return resp, fmt.Errorf("delivering response: %w", ErrSessionClosed)
		}
		return resp, fmt.Errorf("delivering response: %w", err)
	}
	return resp, nil
}

// Close closes the session's connection and removes it.
func (m *Manager) Close(id string) error {
	s := m.Get(id)
	if s == nil {
		return ErrSessionNotFound
	}
	err := s.conn.Close()
	m.remove(s)
	return err
}

// CloseAll closes every open session. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.RUnlock()

	for _, s := range open {
		if err := s.conn.Close(); err != nil {
			m.log.Warn("closing session connection",
				logging.String("session_id", s.id),
				logging.String("error", err.Error()),
			)
		}
		m.remove(s)
	}
}

package session

import (
	"sync"
	"sync/atomic"

	"github.com/HendryAvila/toolrelay/internal/logging"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// notificationBuffer is how many server notifications may wait for the
// connection.
const notificationBuffer = 16

// Session is one client bound to one connection. It implements
// server.ClientSession so the MCP server can address notifications to it.
type Session struct {
	id            string
	conn          Conn
	notifications chan mcp.JSONRPCNotification
	initialized   atomic.Bool

	done      chan struct{}
	closeOnce sync.Once
}

var _ server.ClientSession = (*Session)(nil)

func newSession(id string, conn Conn) *Session {
	return &Session{
		id:            id,
		conn:          conn,
		notifications: make(chan mcp.JSONRPCNotification, notificationBuffer),
		done:          make(chan struct{}),
	}
}

// SessionID returns the session id.
func (s *Session) SessionID() string { return s.id }

// Initialize marks the session ready for notifications.
func (s *Session) Initialize() { s.initialized.Store(true) }

// Initialized reports whether the client finished the handshake.
func (s *Session) Initialized() bool { return s.initialized.Load() }

// NotificationChannel receives notifications from the MCP server.
func (s *Session) NotificationChannel() chan<- mcp.JSONRPCNotification {
	return s.notifications
}

// Closed reports whether the session's connection is done.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	case <-s.conn.Done():
		return true
	default:
		return false
	}
}

// Done is closed once the session has been removed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) forwardNotifications(log logging.Logger) {
	for {
		select {
		case <-s.done:
			return
		case n := <-s.notifications:
			if err := s.conn.Send(n); err != nil {
				log.Debug("dropping notification",
					logging.String("session_id", s.id),
					logging.String("method", n.Method),
					logging.String("error", err.Error()),
				)
			}
		}
	}
}

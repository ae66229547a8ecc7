package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrConnClosed is returned by Send after the connection has closed.
var ErrConnClosed = errors.New("connection closed")

// DefaultQueueSize is the outbound buffer of an SSEConn.
const DefaultQueueSize = 64

// SSEConn is a Conn backed by a Server-Sent Events response. Messages are
// queued by Send and written by Serve, which runs in the HTTP handler.
type SSEConn struct {
	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
	keepAlive time.Duration
}

var _ Conn = (*SSEConn)(nil)

// NewSSEConn creates a connection with the given queue size. A positive
// keepAlive writes a comment line whenever the stream has been idle that
// long.
func NewSSEConn(queueSize int, keepAlive time.Duration) *SSEConn {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &SSEConn{
		queue:     make(chan []byte, queueSize),
		done:      make(chan struct{}),
		keepAlive: keepAlive,
	}
}

// Send encodes msg and queues it. It blocks while the queue is full and
// fails once the connection is closed, including when the close lands
// while the message is being queued.
func (c *SSEConn) Send(msg mcp.JSONRPCMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.queue <- data:
	case <-c.done:
		return ErrConnClosed
	}

	// Close may have won the race with the enqueue; Serve no longer reads.
	select {
	case <-c.done:
		return ErrConnClosed
	default:
		return nil
	}
}

// Done is closed when the connection closes.
func (c *SSEConn) Done() <-chan struct{} {
	return c.done
}

// Close marks the connection closed and stops Serve.
func (c *SSEConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Serve writes the stream headers and the endpoint event, then copies
// queued messages to w until ctx is done, the connection is closed, or a
// write fails. The connection is closed when Serve returns.
func (c *SSEConn) Serve(ctx context.Context, w http.ResponseWriter, endpoint string) error {
	defer c.Close()

	rc := http.NewResponseController(w)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "endpoint", []byte(endpoint)); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return fmt.Errorf("flushing stream: %w", err)
	}

	var tick <-chan time.Time
	if c.keepAlive > 0 {
		ticker := time.NewTicker(c.keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case data := <-c.queue:
			if err := writeEvent(w, "message", data); err != nil {
				return err
			}
		case <-tick:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return fmt.Errorf("writing keep-alive: %w", err)
			}
		}
		if err := rc.Flush(); err != nil {
			return fmt.Errorf("flushing stream: %w", err)
		}
	}
}

func writeEvent(w io.Writer, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("writing %s event: %w", event, err)
	}
	return nil
}

package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/HendryAvila/toolrelay/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records sent messages in memory.
type fakeConn struct {
	mu      sync.Mutex
	sent    []mcp.JSONRPCMessage
	sendErr error
	done    chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{done: make(chan struct{})}
}

func (c *fakeConn) Send(msg mcp.JSONRPCMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) messages() []mcp.JSONRPCMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]mcp.JSONRPCMessage(nil), c.sent...)
}

// echoTool is a minimal registered tool.
type echoTool struct{ name string }

func (e echoTool) Definition() mcp.Tool {
	return mcp.NewTool(e.name, mcp.WithDescription("echo"), mcp.WithString("text"))
}

func (e echoTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(req.GetString("text", "")), nil
}

func newTestManager(t *testing.T) (*Manager, *tools.Registry) {
	t.Helper()
	reg, err := tools.NewRegistry([]tools.Handler{echoTool{"second"}, echoTool{"first"}})
	require.NoError(t, err)
	return NewManager(tools.NewProtocol("test", "0.0.0", reg), nil), reg
}

const listRequest = `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`

func TestManager_OpenAssignsUniqueIDs(t *testing.T) {
	m, _ := newTestManager(t)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		s, err := m.Open(newFakeConn())
		require.NoError(t, err)
		require.NotEmpty(t, s.SessionID())
		require.False(t, seen[s.SessionID()], "duplicate id %s", s.SessionID())
		seen[s.SessionID()] = true
	}
	assert.Equal(t, 20, m.Count())
}

func TestManager_OpenRetriesOnCollision(t *testing.T) {
	m, _ := newTestManager(t)
	ids := []string{"dup", "dup", "fresh"}
	m.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := m.Open(newFakeConn())
	require.NoError(t, err)
	second, err := m.Open(newFakeConn())
	require.NoError(t, err)

	assert.Equal(t, "dup", first.SessionID())
	assert.Equal(t, "fresh", second.SessionID())
}

func TestManager_RouteUnknownSession(t *testing.T) {
	m, _ := newTestManager(t)

	payloads := []string{listRequest, `{}`, `not json`, ``}
	for _, p := range payloads {
		_, err := m.Route(context.Background(), "never-issued", json.RawMessage(p))
		assert.ErrorIs(t, err, ErrSessionNotFound, "payload %q", p)
	}
	assert.Equal(t, 0, m.Count())
}

func TestManager_RouteToolsListMatchesRegistry(t *testing.T) {
	m, reg := newTestManager(t)
	conn := newFakeConn()
	s, err := m.Open(conn)
	require.NoError(t, err)

	resp, err := m.Route(context.Background(), s.SessionID(), json.RawMessage(listRequest))
	require.NoError(t, err)

	rpc, ok := resp.(mcp.JSONRPCResponse)
	require.True(t, ok, "response is %T", resp)
	result, ok := rpc.Result.(mcp.ListToolsResult)
	require.True(t, ok, "result is %T", rpc.Result)
	assert.Equal(t, reg.List(), result.Tools)

	// The same response went out over the connection.
	sent := conn.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, resp, sent[0])
}

func TestManager_RouteToolCall(t *testing.T) {
	m, _ := newTestManager(t)
	conn := newFakeConn()
	s, err := m.Open(conn)
	require.NoError(t, err)

	msg := `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"first","arguments":{"text":"hello"}}}`
	resp, err := m.Route(context.Background(), s.SessionID(), json.RawMessage(msg))
	require.NoError(t, err)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"text":"hello"`)
}

func TestManager_NotificationHasNoResponse(t *testing.T) {
	m, _ := newTestManager(t)
	conn := newFakeConn()
	s, err := m.Open(conn)
	require.NoError(t, err)

	resp, err := m.Route(context.Background(), s.SessionID(),
		json.RawMessage(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Empty(t, conn.messages())
}

func TestManager_ConnCloseRemovesSession(t *testing.T) {
	m, _ := newTestManager(t)
	conn := newFakeConn()
	s, err := m.Open(conn)
	require.NoError(t, err)
	require.Equal(t, 1, m.Count())

	require.NoError(t, conn.Close())

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session was not removed after its connection closed")
	}
	assert.Equal(t, 0, m.Count())

	_, err = m.Route(context.Background(), s.SessionID(), json.RawMessage(listRequest))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_RouteClosedConnection(t *testing.T) {
	m, _ := newTestManager(t)
	conn := newFakeConn()
	s, err := m.Open(conn)
	require.NoError(t, err)

	conn.sendErr = ErrConnClosed
	_, err = m.Route(context.Background(), s.SessionID(), json.RawMessage(listRequest))
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, err = m.Route(context.Background(), s.SessionID(), json.RawMessage(listRequest))
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, m.Count())
}

func TestManager_RouteAfterCloseIsNotFoundImmediately(t *testing.T) {
	m, _ := newTestManager(t)
	for i := 0; i < 50; i++ {
		conn := newFakeConn()
		s, err := m.Open(conn)
		require.NoError(t, err)

		require.NoError(t, conn.Close())
		_, err = m.Route(context.Background(), s.SessionID(), json.RawMessage(listRequest))
		require.ErrorIs(t, err, ErrSessionNotFound)
		assert.Nil(t, m.Get(s.SessionID()))
	}
	assert.Equal(t, 0, m.Count())
}

func TestManager_CloseIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	conn := newFakeConn()
	s, err := m.Open(conn)
	require.NoError(t, err)

	require.NoError(t, m.Close(s.SessionID()))
	assert.ErrorIs(t, m.Close(s.SessionID()), ErrSessionNotFound)
	assert.True(t, s.Closed())
	assert.Equal(t, 0, m.Count())

	// The watcher firing later must not disturb a new session.
	other, err := m.Open(newFakeConn())
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	time.Sleep(10 * time.Millisecond)
	assert.NotNil(t, m.Get(other.SessionID()))
}

func TestManager_CloseAll(t *testing.T) {
	m, _ := newTestManager(t)
	conns := []*fakeConn{newFakeConn(), newFakeConn(), newFakeConn()}
	for _, c := range conns {
		_, err := m.Open(c)
		require.NoError(t, err)
	}

	m.CloseAll()

	assert.Equal(t, 0, m.Count())
	for _, c := range conns {
		select {
		case <-c.Done():
		default:
			t.Error("connection should be closed")
		}
	}
}

func TestManager_ConcurrentOpenAndClose(t *testing.T) {
	m, _ := newTestManager(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := m.Open(newFakeConn())
			if err != nil {
				t.Error(err)
				return
			}
			_, _ = m.Route(context.Background(), s.SessionID(), json.RawMessage(listRequest))
			_ = m.Close(s.SessionID())
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, m.Count())
}

func TestSession_ForwardsNotifications(t *testing.T) {
	m, _ := newTestManager(t)
	conn := newFakeConn()
	s, err := m.Open(conn)
	require.NoError(t, err)

	s.NotificationChannel() <- mcp.JSONRPCNotification{
		JSONRPC:      mcp.JSONRPC_VERSION,
		Notification: mcp.Notification{Method: "notifications/tools/list_changed"},
	}

	assert.Eventually(t, func() bool { return len(conn.messages()) == 1 }, time.Second, 5*time.Millisecond)
}

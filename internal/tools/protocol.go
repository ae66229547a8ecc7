package tools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Protocol is the MCP message handler for the relay. Lifecycle messages
// and known tool calls go to the mcp-go server; tools/list is answered
// from the registry in registration order, and calls to unknown tools get
// an error envelope instead of a JSON-RPC error.
type Protocol struct {
	mcp      *server.MCPServer
	registry *Registry
}

// NewProtocol creates the mcp-go server and registers every tool of reg
// on it. Extra options are appended after the defaults.
func NewProtocol(name, version string, reg *Registry, opts ...server.ServerOption) *Protocol {
	base := []server.ServerOption{
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	}
	s := server.NewMCPServer(name, version, append(base, opts...)...)

	for _, tool := range reg.List() {
		s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return reg.Invoke(ctx, req.Params.Name, req.GetArguments()), nil
		})
	}

	return &Protocol{mcp: s, registry: reg}
}

// Server exposes the underlying mcp-go server, e.g. to add resources.
func (p *Protocol) Server() *server.MCPServer {
	return p.mcp
}

// Registry returns the tool registry behind the protocol.
func (p *Protocol) Registry() *Registry {
	return p.registry
}

// envelope is the subset of a JSON-RPC message needed for routing.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  mcp.MCPMethod   `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// HandleMessage processes one JSON-RPC message and returns the response,
// or nil for notifications.
func (p *Protocol) HandleMessage(ctx context.Context, raw json.RawMessage) mcp.JSONRPCMessage {
	var msg envelope
	if err := json.Unmarshal(raw, &msg); err != nil || msg.JSONRPC != mcp.JSONRPC_VERSION || msg.ID == nil {
		return p.mcp.HandleMessage(ctx, raw)
	}

	switch msg.Method {
	case mcp.MethodToolsList:
		return mcp.NewJSONRPCResultResponse(mcp.NewRequestId(msg.ID), mcp.ListToolsResult{
			Tools: p.registry.List(),
		})

	case mcp.MethodToolsCall:
		var params struct {
			Name string `json:"name"`
		}
		// Missing or malformed params leave Name empty, which is never registered.
		_ = json.Unmarshal(msg.Params, &params)
		if !p.registry.Has(params.Name) {
			return mcp.NewJSONRPCResultResponse(mcp.NewRequestId(msg.ID), p.registry.Invoke(ctx, params.Name, nil))
		}
	}

	return p.mcp.HandleMessage(ctx, raw)
}

// RegisterSession makes a client session known to the mcp-go server.
func (p *Protocol) RegisterSession(ctx context.Context, s server.ClientSession) error {
	return p.mcp.RegisterSession(ctx, s)
}

// UnregisterSession forgets a client session.
func (p *Protocol) UnregisterSession(ctx context.Context, id string) {
	p.mcp.UnregisterSession(ctx, id)
}

// WithSession attaches a client session to ctx for message handling.
func (p *Protocol) WithSession(ctx context.Context, s server.ClientSession) context.Context {
	return p.mcp.WithContext(ctx, s)
}

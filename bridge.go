package main

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const (
	serverName    = "jetbrains/proxy"
	serverVersion = "0.1.0"

	serverInstructions = "You can interact with an JetBrains IntelliJ IDE and its features through this MCP (Model Context Protocol) server. " +
		"The server provides access to various IDE tools and functionalities. " +
		"All requests should be formatted as JSON objects according to the Model Context Protocol specification."
)

// newMCPServer builds the front-end server. With a non-nil state, tools/list
// fails until an IDE endpoint has been resolved.
func newMCPServer(logger *zap.Logger, state *endpointState) *server.MCPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	hooks := &server.Hooks{}
	hooks.AddOnRegisterSession(func(ctx context.Context, session server.ClientSession) {
		logger.Debug("client session registered", zap.String(fieldSession, session.SessionID()))
	})
	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		logger.Debug("client session closed", zap.String(fieldSession, session.SessionID()))
	})
	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		logger.Debug("handling tool call request", toolField(req.Params.Name))
	})
	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		logger.Warn("request failed", zap.String("method", string(method)), zap.Error(err))
	})
	if state != nil {
		hooks.AddOnRequestInitialization(requireEndpointForList(state))
	}

	return server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
		server.WithInstructions(serverInstructions),
		server.WithHooks(hooks),
		server.WithRecovery(),
	)
}

func requireEndpointForList(state *endpointState) server.OnRequestInitializationFunc {
	return func(_ context.Context, _ any, message any) error {
		raw, ok := message.(json.RawMessage)
		if !ok {
			return nil
		}
		var req struct {
			Method mcp.MCPMethod `json:"method"`
		}
		if err := json.Unmarshal(raw, &req); err != nil || req.Method != mcp.MethodToolsList {
			return nil
		}
		if _, ok := state.Endpoint(); !ok {
			return ErrNoEndpointAvailable
		}
		return nil
	}
}

// toolRegistry mirrors the IDE catalog into the MCP server. Replacing the
// tool set makes the server announce tools/list_changed to every
// initialized session exactly once.
type toolRegistry struct {
	server    *server.MCPServer
	core      *proxyCore
	overrides *ToolOverrideSet
	snapshots *catalogSnapshotWriter
	logger    *zap.Logger

	mu    sync.RWMutex
	tools []proxyTool
}

func newToolRegistry(srv *server.MCPServer, core *proxyCore, overrides *ToolOverrideSet, snapshots *catalogSnapshotWriter, logger *zap.Logger) *toolRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &toolRegistry{
		server:    srv,
		core:      core,
		overrides: overrides,
		snapshots: snapshots,
		logger:    logger,
	}
}

func (r *toolRegistry) CatalogChanged(ctx context.Context, ep Endpoint, catalog string) {
	descriptors, err := parseCatalog(catalog)
	if err != nil {
		r.logger.Warn("ignoring unreadable tool catalog", endpointField(ep), zap.Error(err))
		return
	}
	tools := buildProxyTools(descriptors, r.overrides)

	entries := make([]server.ServerTool, 0, len(tools))
	for _, t := range tools {
		entries = append(entries, server.ServerTool{Tool: t.Tool, Handler: r.handler(t)})
	}

	r.mu.Lock()
	r.tools = tools
	r.mu.Unlock()

	r.server.SetTools(entries...)
	r.logger.Info("registered IDE tools", endpointField(ep), zap.Int("tools", len(tools)))
	r.snapshots.Write(ep, tools, time.Now())
}

// Tools returns the currently advertised tool set.
func (r *toolRegistry) Tools() []proxyTool {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]proxyTool, len(r.tools))
	copy(out, r.tools)
	return out
}

func (r *toolRegistry) handler(t proxyTool) server.ToolHandlerFunc {
	name := t.Tool.Name
	shape := t.Shape
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if err := shape.validate(args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		result, err := r.core.CallTool(ctx, name, args)
		if err != nil {
			return nil, err
		}
		return toCallToolResult(result), nil
	}
}

func toCallToolResult(res ToolCallResult) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(res.Text)},
		IsError: res.IsError,
	}
}

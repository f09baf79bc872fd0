package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// proxyCore holds the two inbound operations every transport serves. It
// reads the cached endpoint and never resolves on its own.
type proxyCore struct {
	state  *endpointState
	client *http.Client
	proxy  *toolCallProxy
	logger *zap.Logger
}

func newProxyCore(state *endpointState, client *http.Client, proxy *toolCallProxy, logger *zap.Logger) *proxyCore {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &proxyCore{state: state, client: client, proxy: proxy, logger: logger}
}

// ListTools fetches the catalog live from the cached endpoint.
func (c *proxyCore) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	ep, ok := c.state.Endpoint()
	if !ok {
		return nil, ErrNoEndpointAvailable
	}
	c.logger.Debug("using cached endpoint to list tools", endpointField(ep))
	body, err := fetchCatalog(ctx, c.client, ep)
	if err != nil {
		return nil, fmt.Errorf("unable to list tools: %w", err)
	}
	tools, err := parseCatalog(body)
	if err != nil {
		return nil, fmt.Errorf("unable to list tools: %w", err)
	}
	return tools, nil
}

func (c *proxyCore) CallTool(ctx context.Context, name string, args map[string]any) (ToolCallResult, error) {
	return c.proxy.Call(ctx, ToolCallRequest{Name: name, Arguments: args}, c.state.endpointRef())
}

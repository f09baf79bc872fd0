package main

import (
	"context"
	"errors"
	"io"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// runStdio serves line-delimited JSON-RPC until stdin closes or ctx ends.
func runStdio(ctx context.Context, srv *server.MCPServer, in io.Reader, out io.Writer, logger *zap.Logger) error {
	stdio := server.NewStdioServer(srv)
	errLog, err := zap.NewStdLogAt(logger.Named("stdio"), zapcore.ErrorLevel)
	if err != nil {
		return err
	}
	stdio.SetErrorLogger(errLog)

	logger.Info("proxy MCP server running on stdio", zap.String(fieldTransport, "stdio"))
	err = stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

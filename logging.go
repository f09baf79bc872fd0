package main

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	fieldEndpoint   = "endpoint"
	fieldPort       = "port"
	fieldTool       = "tool"
	fieldCallID     = "call_id"
	fieldDurationMs = "duration_ms"
	fieldTransport  = "transport"
	fieldSession    = "session"
)

// newLogger builds the process logger. Output goes to stderr because the
// stdio transport owns stdout.
func newLogger(enabled bool, level string) (*zap.Logger, error) {
	if !enabled {
		return zap.NewNop(), nil
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", level, err)
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}

func endpointField(ep Endpoint) zap.Field {
	return zap.String(fieldEndpoint, ep.String())
}

func portField(port int) zap.Field {
	return zap.Int(fieldPort, port)
}

func toolField(name string) zap.Field {
	return zap.String(fieldTool, name)
}

func durationField(d time.Duration) zap.Field {
	return zap.Int64(fieldDurationMs, d.Milliseconds())
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxResponseBytes = 32 << 20

var ErrNoEndpointAvailable = errors.New("no working IDE endpoint available")

type ToolCallRequest struct {
	Name      string
	Arguments map[string]any
}

type ToolCallResult struct {
	Text    string
	IsError bool
}

// ToolCallHTTPError is a non-2xx answer from the IDE.
type ToolCallHTTPError struct {
	StatusCode int
}

func (e *ToolCallHTTPError) Error() string {
	return fmt.Sprintf("response failed: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// ToolCallTransportError covers everything between "request built" and
// "response decoded": dial failures, dropped connections, malformed bodies
// and IDE answers that break the status/error contract.
type ToolCallTransportError struct {
	Tool string
	Err  error
}

func (e *ToolCallTransportError) Error() string {
	return fmt.Sprintf("call %s: %v", e.Tool, e.Err)
}

func (e *ToolCallTransportError) Unwrap() error { return e.Err }

var errIDEContract = errors.New("IDE response must carry exactly one of status or error")

type ideResponse struct {
	Status *string `json:"status"`
	Error  *string `json:"error"`
}

// result treats an empty error string as absent, the same as null.
func (r ideResponse) result() (ToolCallResult, error) {
	hasError := r.Error != nil && *r.Error != ""
	switch {
	case hasError && r.Status == nil:
		return ToolCallResult{Text: *r.Error, IsError: true}, nil
	case r.Status != nil && !hasError:
		return ToolCallResult{Text: *r.Status}, nil
	default:
		return ToolCallResult{}, errIDEContract
	}
}

type toolCallProxy struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
	metrics *proxyMetrics
}

func newToolCallProxy(client *http.Client, timeout time.Duration, logger *zap.Logger, metrics *proxyMetrics) *toolCallProxy {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &toolCallProxy{client: client, timeout: timeout, logger: logger, metrics: metrics}
}

// Call forwards one invocation. The only error it returns is
// ErrNoEndpointAvailable; every other failure is folded into an error
// result.
func (p *toolCallProxy) Call(ctx context.Context, req ToolCallRequest, ep *Endpoint) (ToolCallResult, error) {
	if ep == nil {
		p.metrics.observeToolCall("no_endpoint", 0)
		return ToolCallResult{}, ErrNoEndpointAvailable
	}

	callID := uuid.NewString()
	logger := p.logger.With(zap.String(fieldCallID, callID), toolField(req.Name), endpointField(*ep))
	started := time.Now()

	result, err := p.do(ctx, req, *ep)
	elapsed := time.Since(started)
	if err != nil {
		logger.Warn("tool call failed", durationField(elapsed), zap.Error(err))
		p.metrics.observeToolCall("failed", elapsed)
		return ToolCallResult{Text: err.Error(), IsError: true}, nil
	}

	outcome := "ok"
	if result.IsError {
		outcome = "tool_error"
	}
	logger.Debug("tool call handled", durationField(elapsed), zap.Bool("is_error", result.IsError))
	p.metrics.observeToolCall(outcome, elapsed)
	return result, nil
}

func (p *toolCallProxy) do(ctx context.Context, req ToolCallRequest, ep Endpoint) (ToolCallResult, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	args := req.Arguments
	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return ToolCallResult{}, &ToolCallTransportError{Tool: req.Name, Err: fmt.Errorf("encode arguments: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.callToolURL(req.Name), bytes.NewReader(body))
	if err != nil {
		return ToolCallResult{}, &ToolCallTransportError{Tool: req.Name, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return ToolCallResult{}, &ToolCallTransportError{Tool: req.Name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return ToolCallResult{}, &ToolCallHTTPError{StatusCode: resp.StatusCode}
	}

	var decoded ideResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
		return ToolCallResult{}, &ToolCallTransportError{Tool: req.Name, Err: fmt.Errorf("decode response: %w", err)}
	}
	result, err := decoded.result()
	if err != nil {
		return ToolCallResult{}, &ToolCallTransportError{Tool: req.Name, Err: err}
	}
	return result, nil
}

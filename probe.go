package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultProbeTimeout = 2 * time.Second
	maxCatalogBytes     = 16 << 20
)

// Prober checks whether an endpoint is a live IDE and returns the raw
// catalog body it served.
type Prober interface {
	Probe(ctx context.Context, ep Endpoint) (string, error)
}

// ProbeError reports a candidate that did not answer the catalog request
// with a 2xx status.
type ProbeError struct {
	Endpoint   Endpoint
	StatusCode int
	Err        error
}

func (e *ProbeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("probe %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("probe %s: status %d", e.Endpoint, e.StatusCode)
}

func (e *ProbeError) Unwrap() error { return e.Err }

type httpProber struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
	metrics *proxyMetrics
}

func newHTTPProber(client *http.Client, timeout time.Duration, logger *zap.Logger, metrics *proxyMetrics) *httpProber {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &httpProber{client: client, timeout: timeout, logger: logger, metrics: metrics}
}

func (p *httpProber) Probe(ctx context.Context, ep Endpoint) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.logger.Debug("sending test request", zap.String("url", ep.listToolsURL()))
	body, err := fetchCatalog(probeCtx, p.client, ep)
	if err != nil {
		p.metrics.observeProbe("unhealthy")
		p.logger.Debug("test request failed", endpointField(ep), zap.Error(err))
		return "", err
	}
	p.metrics.observeProbe("healthy")
	p.logger.Debug("received catalog", endpointField(ep), zap.String("preview", preview(body, 100)))
	return body, nil
}

// fetchCatalog issues GET {endpoint}/mcp/list_tools and returns the body
// of a 2xx answer. Every failure comes back as *ProbeError.
func fetchCatalog(ctx context.Context, client *http.Client, ep Endpoint) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.listToolsURL(), nil)
	if err != nil {
		return "", &ProbeError{Endpoint: ep, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", &ProbeError{Endpoint: ep, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &ProbeError{Endpoint: ep, StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBytes))
	if err != nil {
		return "", &ProbeError{Endpoint: ep, StatusCode: resp.StatusCode, Err: err}
	}
	return string(data), nil
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package main

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeIDE serves the IDE's local API: the catalog at /api/mcp/list_tools and
// tool calls at /api/mcp/{name}.
type fakeIDE struct {
	srv *httptest.Server

	mu        sync.Mutex
	catalog   string
	listCode  int
	responses map[string]fakeResponse
	calls     []recordedCall

	listHits atomic.Int32
	callHits atomic.Int32
}

type fakeResponse struct {
	code int
	body string
}

type recordedCall struct {
	name        string
	contentType string
	body        string
}

func newFakeIDE(t *testing.T, catalog string) *fakeIDE {
	t.Helper()
	ide := &fakeIDE{catalog: catalog, listCode: http.StatusOK, responses: map[string]fakeResponse{}}
	ide.srv = httptest.NewServer(http.HandlerFunc(ide.serve))
	t.Cleanup(ide.srv.Close)
	return ide
}

func (f *fakeIDE) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api"+listToolsPath && r.Method == http.MethodGet {
		f.listHits.Add(1)
		f.mu.Lock()
		code, body := f.listCode, f.catalog
		f.mu.Unlock()
		w.WriteHeader(code)
		_, _ = io.WriteString(w, body)
		return
	}
	if strings.HasPrefix(r.URL.Path, "/api/mcp/") && r.Method == http.MethodPost {
		f.callHits.Add(1)
		name := strings.TrimPrefix(r.URL.Path, "/api/mcp/")
		data, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.calls = append(f.calls, recordedCall{name: name, contentType: r.Header.Get("Content-Type"), body: string(data)})
		resp, ok := f.responses[name]
		f.mu.Unlock()
		if !ok {
			resp = fakeResponse{code: http.StatusOK, body: `{"status":"ok","error":null}`}
		}
		w.WriteHeader(resp.code)
		_, _ = io.WriteString(w, resp.body)
		return
	}
	http.NotFound(w, r)
}

func (f *fakeIDE) setCatalog(catalog string) {
	f.mu.Lock()
	f.catalog = catalog
	f.mu.Unlock()
}

func (f *fakeIDE) setListStatus(code int) {
	f.mu.Lock()
	f.listCode = code
	f.mu.Unlock()
}

func (f *fakeIDE) respond(name string, code int, body string) {
	f.mu.Lock()
	f.responses[name] = fakeResponse{code: code, body: body}
	f.mu.Unlock()
}

func (f *fakeIDE) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeIDE) endpoint(t *testing.T) Endpoint {
	t.Helper()
	u, err := url.Parse(f.srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return newEndpoint(host, port)
}

// fakeProber answers from a port table and records every probe in order.
type fakeProber struct {
	mu      sync.Mutex
	healthy map[int]string
	probed  []int
}

func newFakeProber() *fakeProber {
	return &fakeProber{healthy: map[int]string{}}
}

func (f *fakeProber) Probe(ctx context.Context, ep Endpoint) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probed = append(f.probed, ep.Port)
	if catalog, ok := f.healthy[ep.Port]; ok {
		return catalog, nil
	}
	return "", &ProbeError{Endpoint: ep, StatusCode: http.StatusServiceUnavailable}
}

func (f *fakeProber) up(port int, catalog string) {
	f.mu.Lock()
	f.healthy[port] = catalog
	f.mu.Unlock()
}

func (f *fakeProber) down(port int) {
	f.mu.Lock()
	delete(f.healthy, port)
	f.mu.Unlock()
}

func (f *fakeProber) takeProbed() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.probed
	f.probed = nil
	return out
}

const sampleCatalog = `[
  {"name":"get_open_in_editor_file_text","description":"Read the open file","inputSchema":{"type":"object","properties":{}}},
  {"name":"replace_selected_text","inputSchema":{"type":"object","properties":{"text":{"type":"string","description":"replacement"}},"required":["text"]}}
]`

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

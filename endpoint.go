package main

import (
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
)

const (
	endpointPathPrefix = "/api"
	listToolsPath      = "/mcp/list_tools"
	callToolPathPrefix = "/mcp/"
)

// Endpoint is the base URL of one IDE instance's local API. It is a plain
// value: two endpoints are the same instance when they compare equal.
type Endpoint struct {
	Host string
	Port int
}

func newEndpoint(host string, port int) Endpoint {
	return Endpoint{Host: host, Port: port}
}

// String renders the base URL, e.g. http://127.0.0.1:63342/api.
func (e Endpoint) String() string {
	return "http://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port)) + endpointPathPrefix
}

func (e Endpoint) listToolsURL() string {
	return e.String() + listToolsPath
}

func (e Endpoint) callToolURL(name string) string {
	return e.String() + callToolPathPrefix + url.PathEscape(name)
}

// endpointState is the process-wide cache shared by the scheduler, the
// call proxy and the transports. The endpoint is swapped as a whole value
// through an atomic pointer; the catalog snapshot has its own lock because
// compare-and-replace must happen in one step.
type endpointState struct {
	endpoint atomic.Pointer[Endpoint]

	mu       sync.Mutex
	snapshot *string
}

func newEndpointState() *endpointState {
	return &endpointState{}
}

// Endpoint returns the cached endpoint, if any resolution has succeeded.
func (s *endpointState) Endpoint() (Endpoint, bool) {
	p := s.endpoint.Load()
	if p == nil {
		return Endpoint{}, false
	}
	return *p, true
}

func (s *endpointState) endpointRef() *Endpoint {
	ep, ok := s.Endpoint()
	if !ok {
		return nil
	}
	return &ep
}

// setEndpoint replaces the cached endpoint and reports whether it differs
// from the previous one.
func (s *endpointState) setEndpoint(ep Endpoint) bool {
	next := ep
	prev := s.endpoint.Swap(&next)
	return prev == nil || *prev != ep
}

func (s *endpointState) clearEndpoint() bool {
	return s.endpoint.Swap(nil) != nil
}

// observeCatalog runs change detection against the stored snapshot and
// persists the new one.
func (s *endpointState) observeCatalog(current string) catalogObservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	obs := observeCatalog(s.snapshot, current)
	next := obs.Next
	s.snapshot = &next
	return obs
}

// resetCatalog marks the snapshot as present but empty, so the next
// successful probe of any IDE is reported as a change.
func (s *endpointState) resetCatalog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	empty := ""
	s.snapshot = &empty
}

func (s *endpointState) catalogSnapshot() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return "", false
	}
	return *s.snapshot, true
}

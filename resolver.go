package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	defaultScanBasePort  = 63342
	defaultScanPortCount = 11
)

var (
	ErrExplicitEndpointUnhealthy = errors.New("specified IDE port is not responding correctly")
	ErrNoEndpointFound           = errors.New("no working IDE endpoint found")
)

// Resolution is the outcome of one successful discovery pass.
type Resolution struct {
	Endpoint Endpoint
	Catalog  string
	// CatalogChanged reports a catalog that differs from the last one seen.
	CatalogChanged bool
	// InitialCatalog is set when this is the first catalog the process saw.
	InitialCatalog bool
}

type resolverOptions struct {
	Host      string
	BasePort  int
	PortCount int
}

// Resolver owns the discovery policy: explicit port, then the cached
// endpoint, then a linear scan where the first responder wins.
type Resolver struct {
	prober  Prober
	state   *endpointState
	opts    resolverOptions
	logger  *zap.Logger
	metrics *proxyMetrics
}

func newResolver(prober Prober, state *endpointState, opts resolverOptions, logger *zap.Logger, metrics *proxyMetrics) *Resolver {
	if opts.Host == "" {
		opts.Host = defaultHost
	}
	if opts.BasePort <= 0 {
		opts.BasePort = defaultScanBasePort
	}
	if opts.PortCount <= 0 {
		opts.PortCount = defaultScanPortCount
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{prober: prober, state: state, opts: opts, logger: logger, metrics: metrics}
}

// scanRange returns the first and last port of the scan, inclusive.
func (r *Resolver) scanRange() (int, int) {
	return r.opts.BasePort, r.opts.BasePort + r.opts.PortCount - 1
}

// Resolve runs the policy once. explicitPort <= 0 means no override. A
// failure never touches the cached endpoint; that is the caller's slot.
func (r *Resolver) Resolve(ctx context.Context, explicitPort int, cached *Endpoint) (Resolution, error) {
	r.logger.Debug("attempting to find a working IDE endpoint")

	if explicitPort > 0 {
		ep := newEndpoint(r.opts.Host, explicitPort)
		r.logger.Debug("IDE port is set, testing this port", portField(explicitPort))
		res, err := r.tryCandidate(ctx, ep)
		if err != nil {
			r.metrics.observeResolution("explicit_unhealthy")
			return Resolution{}, fmt.Errorf("%w: port %d: %w", ErrExplicitEndpointUnhealthy, explicitPort, err)
		}
		r.metrics.observeResolution("explicit")
		return res, nil
	}

	if cached != nil {
		if res, err := r.tryCandidate(ctx, *cached); err == nil {
			r.logger.Debug("using cached endpoint, it's still working", endpointField(*cached))
			r.metrics.observeResolution("cached")
			return res, nil
		}
	}

	first, last := r.scanRange()
	for port := first; port <= last; port++ {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}
		ep := newEndpoint(r.opts.Host, port)
		r.logger.Debug("testing port", portField(port))
		res, err := r.tryCandidate(ctx, ep)
		if err != nil {
			continue
		}
		r.logger.Info("found working IDE endpoint", endpointField(ep))
		r.metrics.observeResolution("scanned")
		return res, nil
	}

	r.state.resetCatalog()
	r.metrics.observeResolution("not_found")
	return Resolution{}, fmt.Errorf("%w in range %d-%d", ErrNoEndpointFound, first, last)
}

func (r *Resolver) tryCandidate(ctx context.Context, ep Endpoint) (Resolution, error) {
	catalog, err := r.prober.Probe(ctx, ep)
	if err != nil {
		return Resolution{}, err
	}
	obs := r.state.observeCatalog(catalog)
	if obs.Changed {
		r.logger.Info("tool catalog has changed since the last check", endpointField(ep))
		r.metrics.observeCatalogChange()
	}
	return Resolution{
		Endpoint:       ep,
		Catalog:        catalog,
		CatalogChanged: obs.Changed,
		InitialCatalog: obs.Initial,
	}, nil
}

package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultRefreshInterval = 10 * time.Second

// CatalogListener is told about catalogs that should reach the transports:
// the first one the process sees and every detected change after that.
type CatalogListener interface {
	CatalogChanged(ctx context.Context, ep Endpoint, catalog string)
}

type schedulerOptions struct {
	ExplicitPort int
	Interval     time.Duration
	// EvictAfter clears the cached endpoint after this many consecutive
	// failed refreshes. Zero keeps a stale endpoint forever.
	EvictAfter int
}

// Scheduler re-runs resolution for the lifetime of the process and is the
// only writer of the cached endpoint.
type Scheduler struct {
	resolver *Resolver
	state    *endpointState
	listener CatalogListener
	opts     schedulerOptions
	logger   *zap.Logger
	metrics  *proxyMetrics

	flight singleflight.Group
	// failures is only touched inside the single-flight section.
	failures int
}

func newScheduler(resolver *Resolver, state *endpointState, listener CatalogListener, opts schedulerOptions, logger *zap.Logger, metrics *proxyMetrics) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = defaultRefreshInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		resolver: resolver,
		state:    state,
		listener: listener,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
	}
}

// Refresh runs one resolution. Concurrent callers share the in-flight run
// instead of starting another one.
func (s *Scheduler) Refresh(ctx context.Context) error {
	_, err, _ := s.flight.Do("resolve", func() (any, error) {
		return nil, s.refresh(ctx)
	})
	return err
}

func (s *Scheduler) refresh(ctx context.Context) error {
	res, err := s.resolver.Resolve(ctx, s.opts.ExplicitPort, s.state.endpointRef())
	if err != nil {
		s.failures++
		if s.opts.EvictAfter > 0 && s.failures >= s.opts.EvictAfter && s.state.clearEndpoint() {
			s.logger.Warn("evicted stale IDE endpoint", zap.Int("consecutive_failures", s.failures))
			s.metrics.setEndpointPort(0)
		}
		return err
	}

	s.failures = 0
	if s.state.setEndpoint(res.Endpoint) {
		s.logger.Info("updated cached endpoint", endpointField(res.Endpoint))
	}
	s.metrics.setEndpointPort(res.Endpoint.Port)

	if (res.CatalogChanged || res.InitialCatalog) && s.listener != nil {
		s.listener.CatalogChanged(ctx, res.Endpoint, res.Catalog)
	}
	return nil
}

// Run ticks until ctx is cancelled. The eager first resolution is the
// caller's job so it can finish before transports accept requests.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	s.logger.Debug("scheduled endpoint check", zap.Duration("interval", s.opts.Interval))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("failed to update IDE endpoint", zap.Error(err))
			}
		}
	}
}

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(prober Prober, state *endpointState) *Resolver {
	return newResolver(prober, state, resolverOptions{Host: "127.0.0.1"}, nil, nil)
}

func TestResolveExplicitPortHealthy(t *testing.T) {
	prober := newFakeProber()
	prober.up(63342, "scan-target")
	prober.up(7000, "explicit")
	state := newEndpointState()

	res, err := newTestResolver(prober, state).Resolve(context.Background(), 7000, nil)
	require.NoError(t, err)
	assert.Equal(t, newEndpoint("127.0.0.1", 7000), res.Endpoint)
	assert.Equal(t, "explicit", res.Catalog)
	assert.Equal(t, []int{7000}, prober.takeProbed())
}

func TestResolveExplicitPortUnhealthyNeverScans(t *testing.T) {
	prober := newFakeProber()
	prober.up(63342, "scan-target")
	state := newEndpointState()
	cached := newEndpoint("127.0.0.1", 63342)

	_, err := newTestResolver(prober, state).Resolve(context.Background(), 7000, &cached)
	require.ErrorIs(t, err, ErrExplicitEndpointUnhealthy)
	var probeErr *ProbeError
	assert.ErrorAs(t, err, &probeErr)
	assert.Equal(t, []int{7000}, prober.takeProbed())
}

func TestResolveReusesHealthyCachedEndpoint(t *testing.T) {
	prober := newFakeProber()
	prober.up(63342, "first")
	prober.up(63345, "cached")
	state := newEndpointState()
	cached := newEndpoint("127.0.0.1", 63345)

	res, err := newTestResolver(prober, state).Resolve(context.Background(), 0, &cached)
	require.NoError(t, err)
	assert.Equal(t, cached, res.Endpoint)
	assert.Equal(t, []int{63345}, prober.takeProbed())
}

func TestResolveScanFirstHealthyWins(t *testing.T) {
	prober := newFakeProber()
	prober.up(63344, "a")
	prober.up(63346, "b")
	state := newEndpointState()
	cached := newEndpoint("127.0.0.1", 63350)

	res, err := newTestResolver(prober, state).Resolve(context.Background(), 0, &cached)
	require.NoError(t, err)
	assert.Equal(t, 63344, res.Endpoint.Port)
	assert.Equal(t, []int{63350, 63342, 63343, 63344}, prober.takeProbed())
}

func TestResolveNoEndpointFound(t *testing.T) {
	prober := newFakeProber()
	state := newEndpointState()
	state.observeCatalog("previous")

	_, err := newTestResolver(prober, state).Resolve(context.Background(), 0, nil)
	require.ErrorIs(t, err, ErrNoEndpointFound)
	assert.Contains(t, err.Error(), "63342-63352")

	probed := prober.takeProbed()
	require.Len(t, probed, 11)
	assert.Equal(t, 63342, probed[0])
	assert.Equal(t, 63352, probed[10])

	snap, ok := state.catalogSnapshot()
	require.True(t, ok)
	assert.Equal(t, "", snap)
}

func TestResolveReportsCatalogChanges(t *testing.T) {
	prober := newFakeProber()
	prober.up(63342, "v1")
	state := newEndpointState()
	resolver := newTestResolver(prober, state)
	ctx := context.Background()

	res, err := resolver.Resolve(ctx, 0, nil)
	require.NoError(t, err)
	assert.True(t, res.InitialCatalog)
	assert.False(t, res.CatalogChanged)

	cached := res.Endpoint
	res, err = resolver.Resolve(ctx, 0, &cached)
	require.NoError(t, err)
	assert.False(t, res.InitialCatalog)
	assert.False(t, res.CatalogChanged)

	prober.up(63342, "v2")
	res, err = resolver.Resolve(ctx, 0, &cached)
	require.NoError(t, err)
	assert.True(t, res.CatalogChanged)
}

func TestResolveAfterOutageReportsChange(t *testing.T) {
	prober := newFakeProber()
	prober.up(63342, "same")
	state := newEndpointState()
	resolver := newTestResolver(prober, state)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, 0, nil)
	require.NoError(t, err)

	prober.down(63342)
	_, err = resolver.Resolve(ctx, 0, nil)
	require.ErrorIs(t, err, ErrNoEndpointFound)

	prober.up(63342, "same")
	res, err := resolver.Resolve(ctx, 0, nil)
	require.NoError(t, err)
	assert.True(t, res.CatalogChanged)
}

func TestResolveCustomScanRange(t *testing.T) {
	prober := newFakeProber()
	state := newEndpointState()
	resolver := newResolver(prober, state, resolverOptions{Host: "localhost", BasePort: 9000, PortCount: 3}, nil, nil)

	_, err := resolver.Resolve(context.Background(), 0, nil)
	require.ErrorIs(t, err, ErrNoEndpointFound)
	assert.Equal(t, []int{9000, 9001, 9002}, prober.takeProbed())
}

func TestResolveStopsOnCancelledContext(t *testing.T) {
	prober := newFakeProber()
	state := newEndpointState()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestResolver(prober, state).Resolve(ctx, 0, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, prober.takeProbed())
}

package main

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointURLs(t *testing.T) {
	ep := newEndpoint("127.0.0.1", 63342)

	assert.Equal(t, "http://127.0.0.1:63342/api", ep.String())
	assert.Equal(t, "http://127.0.0.1:63342/api/mcp/list_tools", ep.listToolsURL())
	assert.Equal(t, "http://127.0.0.1:63342/api/mcp/get_file", ep.callToolURL("get_file"))
	assert.Equal(t, "http://127.0.0.1:63342/api/mcp/a%2Fb", ep.callToolURL("a/b"))
	assert.Equal(t, "http://[::1]:63342/api", newEndpoint("::1", 63342).String())
}

func TestEndpointStateSetAndClear(t *testing.T) {
	state := newEndpointState()

	_, ok := state.Endpoint()
	require.False(t, ok)
	require.Nil(t, state.endpointRef())

	ep := newEndpoint("127.0.0.1", 63342)
	assert.True(t, state.setEndpoint(ep))
	assert.False(t, state.setEndpoint(ep), "same endpoint is not a change")
	assert.True(t, state.setEndpoint(newEndpoint("127.0.0.1", 63343)))

	got, ok := state.Endpoint()
	require.True(t, ok)
	assert.Equal(t, 63343, got.Port)

	assert.True(t, state.clearEndpoint())
	assert.False(t, state.clearEndpoint())
	_, ok = state.Endpoint()
	assert.False(t, ok)
}

func TestEndpointStateConcurrentSwap(t *testing.T) {
	state := newEndpointState()
	a := newEndpoint("127.0.0.1", 63342)
	b := newEndpoint("127.0.0.1", 63350)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				if j%2 == 0 {
					state.setEndpoint(a)
				} else {
					state.setEndpoint(b)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				if ep, ok := state.Endpoint(); ok {
					if ep != a && ep != b {
						t.Errorf("observed torn endpoint %+v", ep)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}

func TestEndpointStateCatalogSnapshot(t *testing.T) {
	state := newEndpointState()

	_, ok := state.catalogSnapshot()
	require.False(t, ok)

	obs := state.observeCatalog("abc")
	assert.True(t, obs.Initial)
	assert.False(t, obs.Changed)

	snap, ok := state.catalogSnapshot()
	require.True(t, ok)
	assert.Equal(t, "abc", snap)

	state.resetCatalog()
	snap, ok = state.catalogSnapshot()
	require.True(t, ok)
	assert.Equal(t, "", snap)

	obs = state.observeCatalog("abc")
	assert.False(t, obs.Initial)
	assert.True(t, obs.Changed, "catalog after a reset counts as a change")
}

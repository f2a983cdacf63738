package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySingleInstancePerID(t *testing.T) {
	f := &fakeFactory{}
	r := NewRegistry(testDeps(f, noRetryPolicy()))

	a := r.GetOrCreate("s1")
	b := r.GetOrCreate("s1")
	assert.Same(t, a, b)

	c := r.GetOrCreate("s2")
	assert.NotSame(t, a, c)
}

func TestRegistryRemoveDisconnectsButKeepsCredentials(t *testing.T) {
	f := &fakeFactory{}
	deps := testDeps(f, noRetryPolicy())
	r := NewRegistry(deps)
	require.NoError(t, deps.Creds.Save(context.Background(), "s1", []byte(`{"jid":"x"}`)))

	ds := r.GetOrCreate("s1")
	require.NoError(t, ds.Connect(context.Background(), ConnectOpts{}))
	r.Remove("s1")

	_, live := r.Get("s1")
	assert.False(t, live)
	assert.Equal(t, StateDisconnected, ds.State())

	blob, err := deps.Creds.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.NotEmpty(t, blob)
}

func TestRegistryPurgeDropsCredentials(t *testing.T) {
	f := &fakeFactory{}
	deps := testDeps(f, noRetryPolicy())
	r := NewRegistry(deps)
	require.NoError(t, deps.Creds.Save(context.Background(), "s1", []byte(`{"jid":"x"}`)))

	ds := r.GetOrCreate("s1")
	require.NoError(t, ds.Connect(context.Background(), ConnectOpts{}))

	require.NoError(t, r.Purge(context.Background(), "s1"))
	_, live := r.Get("s1")
	assert.False(t, live)
	assert.Equal(t, 1, f.drops)

	blob, err := deps.Creds.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, blob)
}

func TestRegistryPurgeWithoutLiveInstance(t *testing.T) {
	f := &fakeFactory{}
	deps := testDeps(f, noRetryPolicy())
	r := NewRegistry(deps)
	require.NoError(t, deps.Creds.Save(context.Background(), "cold", []byte(`{"jid":"y"}`)))

	require.NoError(t, r.Purge(context.Background(), "cold"))
	assert.Equal(t, 1, f.drops)
}

func TestRegistrySnapshots(t *testing.T) {
	f := &fakeFactory{}
	r := NewRegistry(testDeps(f, noRetryPolicy()))

	require.NoError(t, r.GetOrCreate("s1").Connect(context.Background(), ConnectOpts{}))
	f.transport(0).ev.Connected("628111@s.whatsapp.net")
	r.GetOrCreate("s2")

	snaps := r.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, StateConnected, snaps["s1"].State)
	assert.Equal(t, StateDisconnected, snaps["s2"].State)
}

func TestRegistryShutdown(t *testing.T) {
	f := &fakeFactory{}
	r := NewRegistry(testDeps(f, NewBackoffPolicy(5*time.Millisecond, 5*time.Millisecond)))

	ds := r.GetOrCreate("s1")
	require.NoError(t, ds.Connect(context.Background(), ConnectOpts{}))
	r.Shutdown()

	assert.Equal(t, StateDisconnected, ds.State())
	_, live := r.Get("s1")
	assert.False(t, live)
}

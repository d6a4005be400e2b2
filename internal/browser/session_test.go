package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedHost_CarriesCallerDeadline(t *testing.T) {
	deadline := time.Now().Add(5 * time.Second)
	callerCtx, callerCancel := context.WithDeadline(context.Background(), deadline)
	defer callerCancel()

	ctx, cancel := boundedHost(context.Background(), callerCtx)
	defer cancel()

	got, ok := ctx.Deadline()
	require.True(t, ok, "derived context must carry the caller's deadline")
	assert.True(t, got.Equal(deadline))
}

func TestBoundedHost_NoCallerDeadlineLeavesHostUnbounded(t *testing.T) {
	ctx, cancel := boundedHost(context.Background(), context.Background())
	defer cancel()

	_, ok := ctx.Deadline()
	assert.False(t, ok)
	assert.NoError(t, ctx.Err())
}

func TestBoundedHost_ExpiryLeavesHostTabAlive(t *testing.T) {
	hostCtx, hostCancel := context.WithCancel(context.Background())
	defer hostCancel()

	callerCtx, callerCancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer callerCancel()

	ctx, cancel := boundedHost(hostCtx, callerCtx)
	defer cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("derived context did not expire with the caller's deadline")
	}

	// Only the one operation times out; the host tab itself stays usable
	assert.NoError(t, hostCtx.Err())
}

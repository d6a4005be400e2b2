package rpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func newTestTable() *Table {
	return NewTable(arbor.NewLogger())
}

func TestTable_ResolveDeliversPayload(t *testing.T) {
	table := newTestTable()
	id, ch := table.Register("request-detail", time.Second)

	ok := table.Resolve(Envelope{ID: id, Kind: "request-detail", OK: true, Payload: json.RawMessage(`{"title":"x"}`)})
	require.True(t, ok)

	res := <-ch
	require.NoError(t, res.Err)
	assert.JSONEq(t, `{"title":"x"}`, string(res.Payload))
	assert.Equal(t, 0, table.Pending())
}

func TestTable_ResolveDeliversAgentError(t *testing.T) {
	table := newTestTable()
	id, ch := table.Register("request-detail", time.Second)

	table.Resolve(Envelope{ID: id, Kind: "request-detail", OK: false, Error: "panel never appeared"})

	res := <-ch
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "panel never appeared")
}

func TestTable_TimeoutClearsSlot(t *testing.T) {
	table := newTestTable()
	_, ch := table.Register("collect-items", 20*time.Millisecond)

	res := <-ch
	assert.ErrorIs(t, res.Err, ErrCallTimeout)
	assert.Equal(t, 0, table.Pending())

	// An immediately subsequent call of the same kind must be issuable and
	// resolvable independently.
	id2, ch2 := table.Register("collect-items", time.Second)
	table.Resolve(Envelope{ID: id2, Kind: "collect-items", OK: true, Payload: json.RawMessage(`[]`)})
	res2 := <-ch2
	require.NoError(t, res2.Err)
}

func TestTable_OverlappingCallsOfSameKind(t *testing.T) {
	table := newTestTable()
	id1, ch1 := table.Register("request-secondary", time.Second)
	id2, ch2 := table.Register("request-secondary", time.Second)

	// Resolve out of order; each continuation must survive.
	table.Resolve(Envelope{ID: id2, Kind: "request-secondary", OK: true, Payload: json.RawMessage(`"second"`)})
	table.Resolve(Envelope{ID: id1, Kind: "request-secondary", OK: true, Payload: json.RawMessage(`"first"`)})

	res1 := <-ch1
	res2 := <-ch2
	require.NoError(t, res1.Err)
	require.NoError(t, res2.Err)
	assert.Equal(t, `"first"`, string(res1.Payload))
	assert.Equal(t, `"second"`, string(res2.Payload))
}

func TestTable_LateResponseDropped(t *testing.T) {
	table := newTestTable()
	id, ch := table.Register("request-detail", 20*time.Millisecond)

	<-ch // wait out the timeout

	ok := table.Resolve(Envelope{ID: id, Kind: "request-detail", OK: true})
	assert.False(t, ok, "response after timeout must be dropped")
}

func TestTable_AwaitContextCancellation(t *testing.T) {
	table := newTestTable()
	ctx, cancel := context.WithCancel(context.Background())

	id, ch := table.Register("request-detail", time.Minute)
	cancel()

	_, err := table.Await(ctx, id, ch)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, table.Pending(), "cancelled call must not leak an entry")
}

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
)

// ErrCallTimeout is delivered to a waiting caller whose pending call expired
// before a matching response was pushed
var ErrCallTimeout = errors.New("pending call timed out")

// Envelope is the wire format the page-side agent pushes through the CDP
// binding. Responses are matched to callers by correlation id, never by kind,
// so overlapping calls of the same kind each keep their own continuation.
type Envelope struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	OK      bool            `json:"ok"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Result is delivered to the caller when its pending call resolves, fails or
// times out
type Result struct {
	Payload json.RawMessage
	Err     error
}

type pendingCall struct {
	kind  string
	ch    chan Result
	timer *time.Timer
}

// Table is the pending-call registry underlying all orchestrator to worker
// agent exchanges. Each outstanding request holds one entry keyed by a unique
// correlation id with an independent deadline; expiry clears the entry and
// delivers ErrCallTimeout, leaving the table free for an immediate retry.
type Table struct {
	mu     sync.Mutex
	calls  map[string]*pendingCall
	logger arbor.ILogger
}

// NewTable creates an empty pending-call table
func NewTable(logger arbor.ILogger) *Table {
	return &Table{
		calls:  make(map[string]*pendingCall),
		logger: logger,
	}
}

// Register creates a pending call of the given kind and returns its
// correlation id and result channel. The entry expires after timeout.
func (t *Table) Register(kind string, timeout time.Duration) (string, <-chan Result) {
	id := uuid.New().String()
	call := &pendingCall{
		kind: kind,
		ch:   make(chan Result, 1),
	}

	t.mu.Lock()
	t.calls[id] = call
	call.timer = time.AfterFunc(timeout, func() { t.expire(id) })
	t.mu.Unlock()

	t.logger.Debug().
		Str("call_id", id).
		Str("kind", kind).
		Dur("timeout", timeout).
		Msg("Registered pending call")

	return id, call.ch
}

// Resolve matches a pushed envelope to its pending call. Unmatched envelopes
// are dropped with a warning; late responses after a timeout land here.
func (t *Table) Resolve(env Envelope) bool {
	t.mu.Lock()
	call, ok := t.calls[env.ID]
	if ok {
		delete(t.calls, env.ID)
		call.timer.Stop()
	}
	t.mu.Unlock()

	if !ok {
		t.logger.Warn().
			Str("call_id", env.ID).
			Str("kind", env.Kind).
			Msg("Dropping response with no pending call (late or unknown)")
		return false
	}

	if env.OK {
		call.ch <- Result{Payload: env.Payload}
	} else {
		call.ch <- Result{Err: fmt.Errorf("agent error for %s: %s", env.Kind, env.Error)}
	}
	return true
}

// Cancel discards a pending call without delivering a result
func (t *Table) Cancel(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if call, ok := t.calls[id]; ok {
		call.timer.Stop()
		delete(t.calls, id)
	}
}

// Pending returns the number of outstanding calls
func (t *Table) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func (t *Table) expire(id string) {
	t.mu.Lock()
	call, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	t.mu.Unlock()

	if !ok {
		return
	}

	t.logger.Debug().
		Str("call_id", id).
		Str("kind", call.kind).
		Msg("Pending call expired")

	call.ch <- Result{Err: ErrCallTimeout}
}

// Await blocks until the pending call resolves or the context is cancelled.
// A context cancellation discards the call so the table does not leak entries.
func (t *Table) Await(ctx context.Context, id string, ch <-chan Result) (json.RawMessage, error) {
	select {
	case res := <-ch:
		return res.Payload, res.Err
	case <-ctx.Done():
		t.Cancel(id)
		return nil, ctx.Err()
	}
}

package scheduler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

type fakePipeline struct {
	mu     sync.Mutex
	starts int
	err    error
}

func (f *fakePipeline) Start(ctx context.Context, opts interfaces.RunOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.err
}

func (f *fakePipeline) Stop() {}

func (f *fakePipeline) Status() models.RunStatus { return models.RunStatus{} }

func TestScheduler_TriggerStartsRun(t *testing.T) {
	pipeline := &fakePipeline{}
	s := NewScheduler(pipeline, &common.SchedulerConfig{Enabled: true, Schedule: "0 8 * * *"}, arbor.NewLogger())

	s.trigger()
	assert.Equal(t, 1, pipeline.starts)
}

func TestScheduler_TriggerSkipsWhenRunActive(t *testing.T) {
	pipeline := &fakePipeline{err: interfaces.ErrRunActive}
	s := NewScheduler(pipeline, &common.SchedulerConfig{Enabled: true, Schedule: "0 8 * * *"}, arbor.NewLogger())

	// Must not panic or queue; the skip is logged and dropped
	s.trigger()
	s.trigger()
	assert.Equal(t, 2, pipeline.starts)
}

func TestScheduler_DisabledIsNoOp(t *testing.T) {
	s := NewScheduler(&fakePipeline{}, &common.SchedulerConfig{Enabled: false}, arbor.NewLogger())
	require.NoError(t, s.Start())
	s.Stop()
}

func TestScheduler_InvalidScheduleRejected(t *testing.T) {
	s := NewScheduler(&fakePipeline{}, &common.SchedulerConfig{Enabled: true, Schedule: "not a cron"}, arbor.NewLogger())
	assert.Error(t, s.Start())
}

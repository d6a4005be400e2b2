package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/services/events"
)

// mockAgent implements interfaces.WorkerAgent with overridable behavior and
// call recording
type mockAgent struct {
	mu           sync.Mutex
	attached     []string
	navigated    []string
	interactions []int
	reloads      int
	builds       []string

	caps []interfaces.Capability

	collectFn   func() ([]models.WorkItem, error)
	detailFn    func(index int) (*models.DetailFields, error)
	secondaryFn func(kind string) (string, error)
	recoverFn   func(index int) (string, error)
	buildFn     func(record *models.JobRecord) error
	interactFn  func(index int) error
}

func (m *mockAgent) Capabilities() []interfaces.Capability {
	if m.caps != nil {
		return m.caps
	}
	return []interfaces.Capability{
		interfaces.CapabilityEnumerate,
		interfaces.CapabilityInteraction,
		interfaces.CapabilityDetail,
		interfaces.CapabilitySecondary,
		interfaces.CapabilityBuild,
	}
}

func (m *mockAgent) Attach(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attached = append(m.attached, url)
	return nil
}

func (m *mockAgent) CollectItems(ctx context.Context) ([]models.WorkItem, error) {
	if m.collectFn != nil {
		return m.collectFn()
	}
	return nil, nil
}

func (m *mockAgent) SimulateInteraction(ctx context.Context, index int) error {
	m.mu.Lock()
	m.interactions = append(m.interactions, index)
	m.mu.Unlock()
	if m.interactFn != nil {
		return m.interactFn(index)
	}
	return nil
}

func (m *mockAgent) RequestDetail(ctx context.Context, index int) (*models.DetailFields, error) {
	if m.detailFn != nil {
		return m.detailFn(index)
	}
	return &models.DetailFields{
		Title:     fmt.Sprintf("Title %d", index),
		Company:   fmt.Sprintf("Company %d", index),
		TargetURL: fmt.Sprintf("https://careers.example.com/%d", index),
	}, nil
}

func (m *mockAgent) RequestSecondary(ctx context.Context, kind string) (string, error) {
	if m.secondaryFn != nil {
		return m.secondaryFn(kind)
	}
	return "", errors.New("no secondary content")
}

func (m *mockAgent) RecoverTargetURL(ctx context.Context, index int) (string, error) {
	if m.recoverFn != nil {
		return m.recoverFn(index)
	}
	return "", errors.New("nothing intercepted")
}

func (m *mockAgent) Build(ctx context.Context, record *models.JobRecord) error {
	m.mu.Lock()
	m.builds = append(m.builds, record.ID)
	m.mu.Unlock()
	if m.buildFn != nil {
		return m.buildFn(record)
	}
	return nil
}

func (m *mockAgent) NavigateHost(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.navigated = append(m.navigated, url)
	return nil
}

func (m *mockAgent) ReloadHost(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloads++
	return nil
}

type mockExtractor struct {
	fn func(targetURL string) (*models.AuxiliaryFields, string, error)
}

func (m *mockExtractor) Extract(ctx context.Context, targetURL string) (*models.AuxiliaryFields, string, error) {
	if m.fn != nil {
		return m.fn(targetURL)
	}
	return &models.AuxiliaryFields{FullDescription: "desc for " + targetURL}, targetURL, nil
}

type mockSubmitter struct {
	mu        sync.Mutex
	submitted []*models.JobRecord
	submitFn  func(record *models.JobRecord) error
	pending   []*models.JobRecord
	pendingFn func() ([]*models.JobRecord, error)
}

func (m *mockSubmitter) Submit(ctx context.Context, record *models.JobRecord) error {
	if m.submitFn != nil {
		if err := m.submitFn(record); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *record
	m.submitted = append(m.submitted, &copied)
	return nil
}

func (m *mockSubmitter) FetchPending(ctx context.Context) ([]*models.JobRecord, error) {
	if m.pendingFn != nil {
		return m.pendingFn()
	}
	return m.pending, nil
}

func (m *mockSubmitter) submissions() []*models.JobRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.JobRecord(nil), m.submitted...)
}

type mockStorage struct {
	mu        sync.Mutex
	records   map[string]*models.JobRecord
	processed map[string]bool
	stats     *models.RunStats
}

func newMockStorage() *mockStorage {
	return &mockStorage{
		records:   make(map[string]*models.JobRecord),
		processed: make(map[string]bool),
	}
}

func (m *mockStorage) SaveRecord(ctx context.Context, record *models.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *record
	m.records[record.ID] = &copied
	return nil
}

func (m *mockStorage) GetRecord(ctx context.Context, id string) (*models.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[id]; ok {
		return r, nil
	}
	return nil, interfaces.ErrRecordNotFound
}

func (m *mockStorage) ListRecords(ctx context.Context) ([]*models.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.JobRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	return out, nil
}

func (m *mockStorage) MarkProcessed(ctx context.Context, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[fingerprint] = true
	return nil
}

func (m *mockStorage) IsProcessed(ctx context.Context, fingerprint string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processed[fingerprint], nil
}

func (m *mockStorage) GetStats(ctx context.Context) (*models.RunStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stats == nil {
		return &models.RunStats{}, nil
	}
	return m.stats, nil
}

func (m *mockStorage) SaveStats(ctx context.Context, stats *models.RunStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *stats
	m.stats = &copied
	return nil
}

type mockKV struct {
	mu     sync.Mutex
	values map[string]string
}

func newMockKV() *mockKV {
	return &mockKV{values: make(map[string]string)}
}

func (m *mockKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return "", interfaces.ErrKeyNotFound
}

func (m *mockKV) Set(ctx context.Context, key, value, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *mockKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *mockKV) GetAll(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

type testFixture struct {
	service   *Service
	agent     *mockAgent
	extractor *mockExtractor
	submitter *mockSubmitter
	storage   *mockStorage
	kv        *mockKV
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()

	logger := arbor.NewLogger()
	f := &testFixture{
		agent:     &mockAgent{},
		extractor: &mockExtractor{},
		submitter: &mockSubmitter{},
		storage:   newMockStorage(),
		kv:        newMockKV(),
	}

	config := &common.PipelineConfig{
		ListingURL:       "https://listing.example.com/jobs",
		BaselineURL:      "https://listing.example.com/home",
		DetailTimeout:    time.Second,
		LoadTimeout:      time.Second,
		SecondaryTimeout: time.Second,
		ItemDelay:        time.Millisecond,
		BuildTimeout:     time.Second,
		EligibleStatuses: []string{"new", "open"},
		SecondaryTabs:    []string{"about"},
		Source:           "colligo",
	}

	f.service = NewService(
		f.agent, f.extractor, f.submitter, f.storage, f.kv,
		events.NewService(logger), config, logger,
	)
	return f
}

func itemsWithStatus(statuses ...string) []models.WorkItem {
	items := make([]models.WorkItem, len(statuses))
	for i, status := range statuses {
		items[i] = models.WorkItem{
			Index:   i,
			Status:  status,
			Title:   fmt.Sprintf("Role %d", i),
			Company: fmt.Sprintf("Company %d", i),
		}
	}
	return items
}

func waitIdle(t *testing.T, s *Service) {
	t.Helper()
	require.Eventually(t, func() bool {
		return !s.Status().Running
	}, 3*time.Second, 10*time.Millisecond, "run did not finish")
}

func TestService_StartRejectsConcurrentRun(t *testing.T) {
	f := newTestFixture(t)

	release := make(chan struct{})
	f.agent.collectFn = func() ([]models.WorkItem, error) {
		<-release
		return nil, nil
	}

	require.NoError(t, f.service.Start(context.Background(), interfaces.RunOptions{}))
	assert.ErrorIs(t, f.service.Start(context.Background(), interfaces.RunOptions{}), interfaces.ErrRunActive)

	close(release)
	waitIdle(t, f.service)

	// After the run finishes a new start is accepted again
	f.agent.collectFn = func() ([]models.WorkItem, error) { return nil, nil }
	require.NoError(t, f.service.Start(context.Background(), interfaces.RunOptions{}))
	waitIdle(t, f.service)
}

func TestService_TwoItemRunCountsSuccessAndFailure(t *testing.T) {
	f := newTestFixture(t)

	f.agent.collectFn = func() ([]models.WorkItem, error) {
		return itemsWithStatus("new", "new"), nil
	}
	f.agent.detailFn = func(index int) (*models.DetailFields, error) {
		if index == 1 {
			return nil, errors.New("panel never appeared")
		}
		return &models.DetailFields{
			Title:     "Backend Engineer",
			Company:   "Acme",
			TargetURL: "https://careers.acme.com/1",
		}, nil
	}

	require.NoError(t, f.service.Start(context.Background(), interfaces.RunOptions{}))
	waitIdle(t, f.service)

	submitted := f.submitter.submissions()
	require.Len(t, submitted, 1)
	assert.Equal(t, "Backend Engineer", submitted[0].Title)
	assert.Equal(t, "colligo", submitted[0].Source)

	require.NotNil(t, f.storage.stats)
	assert.Equal(t, 1, f.storage.stats.SuccessCount)
	assert.Equal(t, 1, f.storage.stats.FailureCount)

	// Finishing cleared the durable flag and returned to baseline
	_, err := f.kv.Get(context.Background(), runActiveKey)
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
	assert.Contains(t, f.agent.navigated, "https://listing.example.com/home")
	assert.Equal(t, models.PhaseIdle, f.service.Status().Phase)
}

func TestService_StopHonoredAtItemBoundary(t *testing.T) {
	f := newTestFixture(t)

	f.agent.collectFn = func() ([]models.WorkItem, error) {
		return itemsWithStatus("new", "new", "new"), nil
	}
	f.agent.detailFn = func(index int) (*models.DetailFields, error) {
		// Request the stop mid-item; the current item must still complete
		f.service.Stop()
		return &models.DetailFields{
			Title:     fmt.Sprintf("Role %d", index),
			Company:   "Acme",
			TargetURL: "https://careers.acme.com/x",
		}, nil
	}

	require.NoError(t, f.service.Start(context.Background(), interfaces.RunOptions{}))
	waitIdle(t, f.service)

	// First item finished, remaining two never started
	assert.Len(t, f.submitter.submissions(), 1)
	assert.Equal(t, []int{0}, f.agent.interactions)
}

func TestService_DegradedExtractionStillSubmits(t *testing.T) {
	f := newTestFixture(t)

	f.agent.collectFn = func() ([]models.WorkItem, error) {
		return itemsWithStatus("new"), nil
	}
	f.extractor.fn = func(targetURL string) (*models.AuxiliaryFields, string, error) {
		return &models.AuxiliaryFields{}, targetURL, errors.New("auxiliary page unavailable")
	}

	require.NoError(t, f.service.Start(context.Background(), interfaces.RunOptions{}))
	waitIdle(t, f.service)

	submitted := f.submitter.submissions()
	require.Len(t, submitted, 1)
	assert.Empty(t, submitted[0].FullDescription)
	assert.Empty(t, submitted[0].ContactEmail)
	assert.NotEmpty(t, submitted[0].TargetURL)

	require.NotNil(t, f.storage.stats)
	assert.Equal(t, 1, f.storage.stats.SuccessCount)
	assert.Equal(t, 0, f.storage.stats.FailureCount)
}

func TestService_EnumerationFailureStillFinishes(t *testing.T) {
	f := newTestFixture(t)

	f.kv.Set(context.Background(), runActiveKey, "true", "")
	f.agent.collectFn = func() ([]models.WorkItem, error) {
		return nil, errors.New("listing page unreadable")
	}

	require.NoError(t, f.service.Start(context.Background(), interfaces.RunOptions{}))
	waitIdle(t, f.service)

	_, err := f.kv.Get(context.Background(), runActiveKey)
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
	assert.Equal(t, models.PhaseIdle, f.service.Status().Phase)
	assert.Empty(t, f.submitter.submissions())
}

func TestService_DuplicateFingerprintSkipped(t *testing.T) {
	f := newTestFixture(t)

	items := itemsWithStatus("new")
	f.agent.collectFn = func() ([]models.WorkItem, error) { return items, nil }

	fingerprint := common.Fingerprint(items[0].Title, items[0].Company)
	require.NoError(t, f.storage.MarkProcessed(context.Background(), fingerprint))

	require.NoError(t, f.service.Start(context.Background(), interfaces.RunOptions{}))
	waitIdle(t, f.service)

	assert.Empty(t, f.submitter.submissions())
	assert.Empty(t, f.agent.interactions, "skipped item must not be interacted with")

	require.NotNil(t, f.storage.stats)
	assert.Equal(t, 0, f.storage.stats.SuccessCount)
	assert.Equal(t, 0, f.storage.stats.FailureCount)
}

func TestService_TargetURLRecoveredWhenMissing(t *testing.T) {
	f := newTestFixture(t)

	f.agent.collectFn = func() ([]models.WorkItem, error) {
		return itemsWithStatus("new"), nil
	}
	f.agent.detailFn = func(index int) (*models.DetailFields, error) {
		return &models.DetailFields{Title: "Role", Company: "Acme"}, nil
	}
	f.agent.recoverFn = func(index int) (string, error) {
		return "https://boards.greenhouse.io/acme/1", nil
	}

	require.NoError(t, f.service.Start(context.Background(), interfaces.RunOptions{}))
	waitIdle(t, f.service)

	submitted := f.submitter.submissions()
	require.Len(t, submitted, 1)
	assert.Equal(t, "https://boards.greenhouse.io/acme/1", submitted[0].TargetURL)
}

func TestService_UnrecoverableTargetURLFailsItem(t *testing.T) {
	f := newTestFixture(t)

	f.agent.collectFn = func() ([]models.WorkItem, error) {
		return itemsWithStatus("new"), nil
	}
	f.agent.detailFn = func(index int) (*models.DetailFields, error) {
		return &models.DetailFields{Title: "Role", Company: "Acme"}, nil
	}

	require.NoError(t, f.service.Start(context.Background(), interfaces.RunOptions{}))
	waitIdle(t, f.service)

	assert.Empty(t, f.submitter.submissions())
	require.NotNil(t, f.storage.stats)
	assert.Equal(t, 1, f.storage.stats.FailureCount)
}

func TestService_EligibilityFilter(t *testing.T) {
	f := newTestFixture(t)

	f.agent.collectFn = func() ([]models.WorkItem, error) {
		return itemsWithStatus("new", "closed", "open", "archived"), nil
	}

	require.NoError(t, f.service.Start(context.Background(), interfaces.RunOptions{}))
	waitIdle(t, f.service)

	// Only "new" and "open" pass the default filter
	assert.Equal(t, []int{0, 2}, f.agent.interactions)
}

func TestService_IncludeAllStatuses(t *testing.T) {
	f := newTestFixture(t)
	f.service.config.IncludeAllStatuses = true

	f.agent.collectFn = func() ([]models.WorkItem, error) {
		return itemsWithStatus("new", "closed"), nil
	}

	require.NoError(t, f.service.Start(context.Background(), interfaces.RunOptions{}))
	waitIdle(t, f.service)

	assert.Equal(t, []int{0, 1}, f.agent.interactions)
}

func TestService_MaxItemsCap(t *testing.T) {
	f := newTestFixture(t)

	f.agent.collectFn = func() ([]models.WorkItem, error) {
		return itemsWithStatus("new", "new", "new", "new"), nil
	}

	require.NoError(t, f.service.Start(context.Background(), interfaces.RunOptions{MaxItems: 2}))
	waitIdle(t, f.service)

	assert.Len(t, f.submitter.submissions(), 2)
}

func TestService_DownstreamBuildsPendingRecords(t *testing.T) {
	f := newTestFixture(t)
	f.service.config.BuilderURL = "https://builder.example.com/compose"

	f.agent.collectFn = func() ([]models.WorkItem, error) { return nil, nil }
	f.submitter.pending = []*models.JobRecord{
		{ID: "job_a", Title: "Role A"},
		{ID: "job_b", Title: "Role B"},
	}

	require.NoError(t, f.service.Start(context.Background(), interfaces.RunOptions{}))
	waitIdle(t, f.service)

	assert.Equal(t, []string{"job_a", "job_b"}, f.agent.builds)
	assert.Equal(t, 1, f.agent.reloads, "builder reloads between records, not before the first")
	assert.Contains(t, f.agent.navigated, "https://builder.example.com/compose")

	// Built flags reported back to the backend
	submitted := f.submitter.submissions()
	require.Len(t, submitted, 2)
	for _, record := range submitted {
		assert.True(t, record.Built)
	}
}

func TestService_SkipDownstreamOption(t *testing.T) {
	f := newTestFixture(t)
	f.service.config.BuilderURL = "https://builder.example.com/compose"

	f.agent.collectFn = func() ([]models.WorkItem, error) { return nil, nil }
	f.submitter.pendingFn = func() ([]*models.JobRecord, error) {
		t.Error("downstream phase must not run when skipped")
		return nil, nil
	}

	require.NoError(t, f.service.Start(context.Background(), interfaces.RunOptions{SkipDownstream: true}))
	waitIdle(t, f.service)

	assert.Empty(t, f.agent.builds)
}

func TestService_StopIgnoredWhenIdle(t *testing.T) {
	f := newTestFixture(t)
	f.service.Stop()
	assert.False(t, f.service.Status().StopRequested)
}

func TestService_ItemDelayAppliesAfterSlowItems(t *testing.T) {
	f := newTestFixture(t)
	f.service.config.ItemDelay = 100 * time.Millisecond

	f.agent.collectFn = func() ([]models.WorkItem, error) {
		return itemsWithStatus("new", "new"), nil
	}

	var mu sync.Mutex
	var starts, completions []time.Time
	f.agent.interactFn = func(index int) error {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return nil
	}
	f.agent.detailFn = func(index int) (*models.DetailFields, error) {
		// Each item takes longer than the configured delay
		time.Sleep(150 * time.Millisecond)
		return &models.DetailFields{
			Title:     fmt.Sprintf("Role %d", index),
			Company:   "Acme",
			TargetURL: "https://careers.acme.com/x",
		}, nil
	}
	f.submitter.submitFn = func(record *models.JobRecord) error {
		mu.Lock()
		completions = append(completions, time.Now())
		mu.Unlock()
		return nil
	}

	require.NoError(t, f.service.Start(context.Background(), interfaces.RunOptions{}))
	waitIdle(t, f.service)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 2)
	require.Len(t, completions, 2)

	// The delay is measured from item completion, so slow items still get
	// the full idle window before the next one starts
	gap := starts[1].Sub(completions[0])
	assert.GreaterOrEqual(t, gap, 100*time.Millisecond)
}

func TestService_MissingRequiredCapabilityAbortsRun(t *testing.T) {
	f := newTestFixture(t)
	f.agent.caps = []interfaces.Capability{interfaces.CapabilityEnumerate}

	require.NoError(t, f.service.Start(context.Background(), interfaces.RunOptions{}))
	waitIdle(t, f.service)

	assert.Empty(t, f.agent.attached, "agent must not attach without the full required capability set")
	assert.Empty(t, f.submitter.submissions())
	assert.Equal(t, models.PhaseIdle, f.service.Status().Phase)

	_, err := f.kv.Get(context.Background(), runActiveKey)
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
}

func TestService_SecondaryTabsSkippedWithoutCapability(t *testing.T) {
	f := newTestFixture(t)
	f.agent.caps = []interfaces.Capability{
		interfaces.CapabilityEnumerate,
		interfaces.CapabilityInteraction,
		interfaces.CapabilityDetail,
	}

	f.agent.collectFn = func() ([]models.WorkItem, error) {
		return itemsWithStatus("new"), nil
	}
	f.agent.secondaryFn = func(kind string) (string, error) {
		t.Errorf("secondary tab %q requested from an agent that does not advertise it", kind)
		return "", nil
	}

	require.NoError(t, f.service.Start(context.Background(), interfaces.RunOptions{}))
	waitIdle(t, f.service)

	submitted := f.submitter.submissions()
	require.Len(t, submitted, 1)
	assert.Nil(t, submitted[0].Secondary)
}

func TestService_DownstreamSkippedWithoutBuildCapability(t *testing.T) {
	f := newTestFixture(t)
	f.service.config.BuilderURL = "https://builder.example.com/compose"
	f.agent.caps = []interfaces.Capability{
		interfaces.CapabilityEnumerate,
		interfaces.CapabilityInteraction,
		interfaces.CapabilityDetail,
	}

	f.agent.collectFn = func() ([]models.WorkItem, error) { return nil, nil }
	f.submitter.pendingFn = func() ([]*models.JobRecord, error) {
		t.Error("downstream phase must not run without the build capability")
		return nil, nil
	}

	require.NoError(t, f.service.Start(context.Background(), interfaces.RunOptions{}))
	waitIdle(t, f.service)

	assert.Empty(t, f.agent.builds)
}

func TestService_StatsAccumulateAcrossRuns(t *testing.T) {
	f := newTestFixture(t)
	f.storage.stats = &models.RunStats{SuccessCount: 2, FailureCount: 1}

	f.agent.collectFn = func() ([]models.WorkItem, error) {
		return itemsWithStatus("new", "new"), nil
	}
	f.agent.detailFn = func(index int) (*models.DetailFields, error) {
		if index == 1 {
			return nil, errors.New("panel never appeared")
		}
		return &models.DetailFields{
			Title:     "Role",
			Company:   "Acme",
			TargetURL: "https://careers.acme.com/1",
		}, nil
	}

	require.NoError(t, f.service.Start(context.Background(), interfaces.RunOptions{}))
	waitIdle(t, f.service)

	require.NotNil(t, f.storage.stats)
	assert.Equal(t, 3, f.storage.stats.SuccessCount)
	assert.Equal(t, 2, f.storage.stats.FailureCount)
}

func TestService_StatsPersistedAfterEachItem(t *testing.T) {
	f := newTestFixture(t)

	f.agent.collectFn = func() ([]models.WorkItem, error) {
		return itemsWithStatus("new", "new"), nil
	}

	var mu sync.Mutex
	var seen *models.RunStats
	f.agent.interactFn = func(index int) error {
		if index == 1 {
			stats, _ := f.storage.GetStats(context.Background())
			mu.Lock()
			seen = stats
			mu.Unlock()
		}
		return nil
	}

	require.NoError(t, f.service.Start(context.Background(), interfaces.RunOptions{}))
	waitIdle(t, f.service)

	// The first item's outcome was already durable when the second started
	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, seen)
	assert.Equal(t, 1, seen.SuccessCount)
	assert.Equal(t, 0, seen.FailureCount)
}

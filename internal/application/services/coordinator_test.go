package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/AtRiskMedia/reportcache-go/internal/domain/events"
	"github.com/AtRiskMedia/reportcache-go/internal/domain/repositories"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/caching/flight"
	schema "github.com/AtRiskMedia/reportcache-go/internal/infrastructure/database"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/persistence/database"
	store "github.com/AtRiskMedia/reportcache-go/internal/infrastructure/persistence/research"
	"github.com/AtRiskMedia/reportcache-go/pkg/config"
	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Started by an init in the Google client dependency tree.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

const staleAge = 20 * 24 * time.Hour

type stubGenerator struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	err     error
}

func newStubGenerator() *stubGenerator {
	return &stubGenerator{started: make(chan struct{}, 64)}
}

func (g *stubGenerator) Name() string { return "stub" }

func (g *stubGenerator) Generate(ctx context.Context, req research.GenerationRequest) (*research.GeneratedContent, error) {
	n := g.calls.Add(1)
	g.started <- struct{}{}
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, research.NewGenerationFailed(research.FailureTimeout, ctx.Err())
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	return &research.GeneratedContent{
		Content:  json.RawMessage(fmt.Sprintf(`{"recommendation":"BUY","run":%d}`, n)),
		Metadata: research.GenerationMetadata{Provider: "stub", Recommendation: "BUY"},
	}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	var types []events.Type
	for _, event := range p.events {
		types = append(types, event.Type)
	}
	return types
}

// hideFirstRead makes the first Get miss, as if the entry was written by
// another instance after it was read.
type hideFirstRead struct {
	repositories.ContentStore
	hidden atomic.Bool
}

func (h *hideFirstRead) Get(ctx context.Context, key research.CacheKey) (*research.CacheEntry, error) {
	if h.hidden.CompareAndSwap(false, true) {
		return nil, nil
	}
	return h.ContentStore.Get(ctx, key)
}

type harness struct {
	coordinator   *Coordinator
	registry      *prometheus.Registry
	notices       *recordingNotifier
	content       *store.ContentRepository
	ledger        *QuotaLedger
	quotaStore    *store.QuotaRepository
	subscriptions *SubscriptionService
	guard         *flight.Guard
	generator     *stubGenerator
	publisher     *recordingPublisher
	clock         *quartz.Mock
	timeout       time.Duration
}

type harnessOptions struct {
	wrapContent func(repositories.ContentStore) repositories.ContentStore
	wrapQuota   func(repositories.QuotaStore) repositories.QuotaStore
}

func newHarness(t *testing.T, generator *stubGenerator, wrap func(repositories.ContentStore) repositories.ContentStore) *harness {
	t.Helper()
	return newHarnessWith(t, generator, harnessOptions{wrapContent: wrap})
}

func newHarnessWith(t *testing.T, generator *stubGenerator, opts harnessOptions) *harness {
	t.Helper()

	cfg, err := config.LoadFrom(map[string]string{
		"DB_PATH":      filepath.Join(t.TempDir(), "reportcache.db"),
		"TIER_CATALOG": "free:1:lifetime,pro:50:monthly",
	})
	require.NoError(t, err)

	logger := logging.NewDiscardLogger()
	db, err := database.Open(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, schema.NewTableCreator().CreateSchema(context.Background(), db.DB))

	clock := quartz.NewMock(t)
	registry := prometheus.NewRegistry()
	m, err := metrics.NewMetrics(registry)
	require.NoError(t, err)

	content := store.NewContentRepository(db)
	var contentStore repositories.ContentStore = content
	if opts.wrapContent != nil {
		contentStore = opts.wrapContent(content)
	}

	subscriptions := NewSubscriptionService(store.NewSubscriptionRepository(db, cfg.Tiers()), cfg.Tiers(), cfg.DefaultTier, nil, clock, logger)
	ctx := context.Background()
	for _, user := range []string{"alice", "bob", "carol", "dave", "erin"} {
		_, err := subscriptions.AssignTier(ctx, user, user+"@example.com", "pro")
		require.NoError(t, err)
	}
	_, err = subscriptions.AssignTier(ctx, "frugal", "", "free")
	require.NoError(t, err)

	quotaStore := store.NewQuotaRepository(db)
	var ledgerStore repositories.QuotaStore = quotaStore
	if opts.wrapQuota != nil {
		ledgerStore = opts.wrapQuota(quotaStore)
	}
	notices := &recordingNotifier{}
	ledger := NewQuotaLedger(ledgerStore, subscriptions, notices, clock, m, logger)
	guard := flight.NewGuard(store.NewLeaseRepository(db), clock, flight.Config{
		LeaseTTL:        cfg.LeaseTTL,
		PollInterval:    time.Millisecond,
		PollMaxInterval: 10 * time.Millisecond,
	}, logger)
	publisher := &recordingPublisher{}

	coordinator := NewCoordinator(contentStore, store.NewAccessRepository(db), subscriptions, ledger, guard, generator,
		publisher, m, performance.NewTracker(nil, logger), clock, CoordinatorConfig{
			FreshnessThresholdDays: cfg.FreshnessThresholdDays,
			GenerationTimeout:      cfg.GenerationTimeout,
		}, logger)

	return &harness{
		coordinator:   coordinator,
		registry:      registry,
		notices:       notices,
		content:       content,
		ledger:        ledger,
		quotaStore:    quotaStore,
		subscriptions: subscriptions,
		guard:         guard,
		generator:     generator,
		publisher:     publisher,
		clock:         clock,
		timeout:       cfg.GenerationTimeout,
	}
}

func (h *harness) consumed(t *testing.T, userID string) int {
	t.Helper()
	usage, err := h.ledger.CurrentUsage(context.Background(), userID)
	require.NoError(t, err)
	return usage.Consumed
}

func (h *harness) counter(t *testing.T, name string) float64 {
	t.Helper()
	families, err := h.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			var total float64
			for _, metric := range family.GetMetric() {
				total += metric.GetCounter().GetValue()
			}
			return total
		}
	}
	return 0
}

func (h *harness) seed(t *testing.T, key research.CacheKey) *research.CacheEntry {
	t.Helper()
	entry, err := h.content.Put(context.Background(), key, json.RawMessage(`{"recommendation":"HOLD"}`),
		research.GenerationMetadata{Provider: "seed", Recommendation: "HOLD"}, h.clock.Now())
	require.NoError(t, err)
	return entry
}

func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return h.guard.InFlight() == 0 }, 5*time.Second, time.Millisecond)
}

func tcsKey(t *testing.T) research.CacheKey {
	t.Helper()
	key, err := research.NewReportKey("NSE:TCS", "en")
	require.NoError(t, err)
	return key
}

func TestDecide(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	fresh := &research.CacheEntry{GeneratedAt: now.Add(-2 * 24 * time.Hour)}
	stale := &research.CacheEntry{GeneratedAt: now.Add(-staleAge)}
	edge := &research.CacheEntry{GeneratedAt: now.Add(-15 * 24 * time.Hour)}

	tests := []struct {
		name      string
		entry     *research.CacheEntry
		firstView bool
		force     bool
		want      Decision
	}{
		{"missing", nil, false, false, Decision{Generate: true, Reason: research.ReasonNoCachedContent}},
		{"missing forced", nil, false, true, Decision{Generate: true, Reason: research.ReasonNoCachedContent}},
		{"fresh", fresh, false, false, Decision{Provenance: research.ProvenanceFresh, Reason: research.ReasonFresh}},
		{"threshold day is fresh", edge, true, false, Decision{Provenance: research.ProvenanceFresh, Reason: research.ReasonFresh}},
		{"fresh forced", fresh, false, true, Decision{Generate: true, Reason: research.ReasonForcedRegenerate}},
		{"stale first view", stale, true, false, Decision{Generate: true, Reason: research.ReasonStaleFirstView}},
		{"stale first view forced", stale, true, true, Decision{Generate: true, Reason: research.ReasonStaleFirstView}},
		{"stale returning", stale, false, false, Decision{Provenance: research.ProvenanceStale, Reason: research.ReasonStaleReturningView}},
		{"stale returning forced", stale, false, true, Decision{Generate: true, Reason: research.ReasonForcedRegenerate}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.entry, tt.firstView, tt.force, now, 15))
		})
	}
}

func TestResolveGeneratesWhenNothingCached(t *testing.T) {
	h := newHarness(t, newStubGenerator(), nil)
	ctx := context.Background()
	key := tcsKey(t)

	result, err := h.coordinator.Resolve(ctx, ResolveRequest{UserID: "alice", Key: key})
	require.NoError(t, err)

	assert.Equal(t, research.ProvenanceRegenerated, result.Provenance)
	assert.Equal(t, research.ReasonNoCachedContent, result.Reason)
	assert.True(t, result.GeneratedNew())
	assert.False(t, result.Joined)
	assert.EqualValues(t, 1, result.GenerationSequence)
	assert.EqualValues(t, 1, h.generator.calls.Load())
	assert.Equal(t, 1, h.consumed(t, "alice"))
	assert.Equal(t, []events.Type{events.GenerationStarted, events.GenerationCompleted}, h.publisher.types())

	stored, err := h.content.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, string(result.Content), string(stored.Content))
}

func TestResolveServesFreshWithoutCharging(t *testing.T) {
	h := newHarness(t, newStubGenerator(), nil)
	key := tcsKey(t)
	h.seed(t, key)

	result, err := h.coordinator.Resolve(context.Background(), ResolveRequest{UserID: "alice", Key: key})
	require.NoError(t, err)

	assert.Equal(t, research.ProvenanceFresh, result.Provenance)
	assert.Equal(t, research.ReasonFresh, result.Reason)
	assert.False(t, result.CanRegenerate)
	assert.Zero(t, h.generator.calls.Load())
	assert.Zero(t, h.consumed(t, "alice"))
}

func TestResolveStaleFirstViewRegenerates(t *testing.T) {
	h := newHarness(t, newStubGenerator(), nil)
	ctx := context.Background()
	key := tcsKey(t)
	h.seed(t, key)
	h.clock.Advance(staleAge).MustWait(ctx)

	result, err := h.coordinator.Resolve(ctx, ResolveRequest{UserID: "alice", Key: key})
	require.NoError(t, err)

	assert.Equal(t, research.ProvenanceRegenerated, result.Provenance)
	assert.Equal(t, research.ReasonStaleFirstView, result.Reason)
	assert.EqualValues(t, 2, result.GenerationSequence)
	assert.Zero(t, result.AgeDays)
	assert.Equal(t, 1, h.consumed(t, "alice"))
}

func TestResolveStaleReturningViewServesStale(t *testing.T) {
	h := newHarness(t, newStubGenerator(), nil)
	ctx := context.Background()
	key := tcsKey(t)
	h.seed(t, key)

	_, err := h.coordinator.Resolve(ctx, ResolveRequest{UserID: "alice", Key: key})
	require.NoError(t, err)
	h.clock.Advance(staleAge).MustWait(ctx)

	result, err := h.coordinator.Resolve(ctx, ResolveRequest{UserID: "alice", Key: key})
	require.NoError(t, err)

	assert.Equal(t, research.ProvenanceStale, result.Provenance)
	assert.Equal(t, research.ReasonStaleReturningView, result.Reason)
	assert.True(t, result.CanRegenerate)
	assert.Equal(t, 20, result.AgeDays)
	assert.Zero(t, h.generator.calls.Load())
	assert.Zero(t, h.consumed(t, "alice"))

	// A different user has never seen the entry.
	result, err = h.coordinator.Resolve(ctx, ResolveRequest{UserID: "bob", Key: key})
	require.NoError(t, err)
	assert.Equal(t, research.ReasonStaleFirstView, result.Reason)
}

func TestResolveForcedRegenerate(t *testing.T) {
	h := newHarness(t, newStubGenerator(), nil)
	key := tcsKey(t)
	h.seed(t, key)

	result, err := h.coordinator.Resolve(context.Background(), ResolveRequest{UserID: "alice", Key: key, ForceRegenerate: true})
	require.NoError(t, err)

	assert.Equal(t, research.ProvenanceRegenerated, result.Provenance)
	assert.Equal(t, research.ReasonForcedRegenerate, result.Reason)
	assert.EqualValues(t, 2, result.GenerationSequence)
	assert.Equal(t, 1, h.consumed(t, "alice"))
}

func TestResolveConcurrentCallersShareOneGeneration(t *testing.T) {
	generator := newStubGenerator()
	generator.release = make(chan struct{})
	h := newHarness(t, generator, nil)
	key := tcsKey(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	trap := h.clock.Trap().NewTimer("flight", "wait")
	defer trap.Close()

	users := []string{"alice", "bob", "carol", "dave", "erin"}
	results := make([]*research.Result, len(users))
	errs := make([]error, len(users))
	var wg sync.WaitGroup
	resolve := func(i int) {
		defer wg.Done()
		results[i], errs[i] = h.coordinator.Resolve(ctx, ResolveRequest{UserID: users[i], Key: key})
	}

	wg.Add(1)
	go resolve(0)
	trap.MustWait(ctx).MustRelease(ctx)
	<-generator.started

	for i := 1; i < len(users); i++ {
		wg.Add(1)
		go resolve(i)
		trap.MustWait(ctx).MustRelease(ctx)
	}
	close(generator.release)
	wg.Wait()

	assert.EqualValues(t, 1, generator.calls.Load())
	regenerated := 0
	for i, user := range users {
		require.NoError(t, errs[i], user)
		assert.EqualValues(t, 1, results[i].GenerationSequence)
		if results[i].Provenance == research.ProvenanceRegenerated {
			regenerated++
			assert.Equal(t, 1, h.consumed(t, user))
			continue
		}
		assert.True(t, results[i].Joined, user)
		assert.Equal(t, research.ProvenanceFresh, results[i].Provenance)
		assert.Zero(t, h.consumed(t, user), user)
	}
	assert.Equal(t, 1, regenerated)
	assert.Equal(t, users[0], firstRegenerated(users, results))
}

func firstRegenerated(users []string, results []*research.Result) string {
	for i, result := range results {
		if result != nil && result.Provenance == research.ProvenanceRegenerated {
			return users[i]
		}
	}
	return ""
}

func TestResolveSkipsGenerationWhenEntryAlreadyRefreshed(t *testing.T) {
	h := newHarness(t, newStubGenerator(), func(content repositories.ContentStore) repositories.ContentStore {
		return &hideFirstRead{ContentStore: content}
	})
	key := tcsKey(t)
	h.seed(t, key)

	result, err := h.coordinator.Resolve(context.Background(), ResolveRequest{UserID: "alice", Key: key})
	require.NoError(t, err)

	assert.Zero(t, h.generator.calls.Load())
	assert.True(t, result.Joined)
	assert.Equal(t, research.ProvenanceFresh, result.Provenance)
	assert.Equal(t, research.ReasonNoCachedContent, result.Reason)
	assert.Zero(t, h.consumed(t, "alice"))
}

func TestResolveQuotaExceededFallsBackToCachedEntry(t *testing.T) {
	h := newHarness(t, newStubGenerator(), nil)
	ctx := context.Background()
	other, err := research.NewReportKey("NSE:INFY", "en")
	require.NoError(t, err)
	key := tcsKey(t)

	_, err = h.coordinator.Resolve(ctx, ResolveRequest{UserID: "frugal", Key: other})
	require.NoError(t, err)
	h.seed(t, key)

	_, err = h.coordinator.Resolve(ctx, ResolveRequest{UserID: "frugal", Key: key, ForceRegenerate: true})
	require.ErrorIs(t, err, research.ErrQuotaExceeded)

	var exceeded *research.QuotaExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 1, exceeded.Usage.Consumed)
	assert.Equal(t, 1, exceeded.Usage.Limit)
	assert.Zero(t, exceeded.Usage.Remaining)
	require.NotNil(t, exceeded.Fallback)
	assert.Equal(t, research.ProvenanceFresh, exceeded.Fallback.Provenance)
	assert.EqualValues(t, 1, exceeded.Fallback.GenerationSequence)
	assert.EqualValues(t, 1, h.generator.calls.Load())
	assert.Contains(t, h.publisher.types(), events.QuotaExceeded)

	_, err = h.coordinator.Resolve(ctx, ResolveRequest{UserID: "frugal", Key: mustKey(t, "NSE:WIPRO")})
	require.ErrorAs(t, err, &exceeded)
	assert.Nil(t, exceeded.Fallback)
}

func mustKey(t *testing.T, subject string) research.CacheKey {
	t.Helper()
	key, err := research.NewReportKey(subject, "en")
	require.NoError(t, err)
	return key
}

func TestResolveGenerationFailureRefundsQuota(t *testing.T) {
	generator := newStubGenerator()
	generator.err = research.NewGenerationFailed(research.FailureMalformedOutput, errors.New("missing recommendation"))
	h := newHarness(t, generator, nil)
	ctx := context.Background()
	key := tcsKey(t)
	seeded := h.seed(t, key)

	_, err := h.coordinator.Resolve(ctx, ResolveRequest{UserID: "alice", Key: key, ForceRegenerate: true})
	require.ErrorIs(t, err, research.ErrGenerationFailed)
	kind, ok := research.FailureKindOf(err)
	require.True(t, ok)
	assert.Equal(t, research.FailureMalformedOutput, kind)
	assert.Zero(t, h.consumed(t, "alice"))

	current, err := h.content.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, seeded.GenerationSequence, current.GenerationSequence)
	assert.Contains(t, h.publisher.types(), events.GenerationFailed)
}

func TestResolvePlainGeneratorErrorIsUpstream(t *testing.T) {
	generator := newStubGenerator()
	generator.err = errors.New("connection reset")
	h := newHarness(t, generator, nil)

	_, err := h.coordinator.Resolve(context.Background(), ResolveRequest{UserID: "alice", Key: tcsKey(t)})
	kind, ok := research.FailureKindOf(err)
	require.True(t, ok)
	assert.Equal(t, research.FailureUpstreamError, kind)
}

func TestResolveWaitTimeoutRefundsQuota(t *testing.T) {
	generator := newStubGenerator()
	generator.release = make(chan struct{})
	h := newHarness(t, generator, nil)
	key := tcsKey(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	trap := h.clock.Trap().NewTimer("flight", "wait")
	defer trap.Close()

	errc := make(chan error, 1)
	go func() {
		_, err := h.coordinator.Resolve(ctx, ResolveRequest{UserID: "alice", Key: key})
		errc <- err
	}()
	trap.MustWait(ctx).MustRelease(ctx)
	<-generator.started
	h.clock.Advance(h.timeout).MustWait(ctx)

	err := <-errc
	kind, ok := research.FailureKindOf(err)
	require.True(t, ok)
	assert.Equal(t, research.FailureTimeout, kind)
	assert.Zero(t, h.consumed(t, "alice"))

	close(generator.release)
	h.waitIdle(t)
}

func TestResolveCallerCancellationDetachesGeneration(t *testing.T) {
	generator := newStubGenerator()
	generator.release = make(chan struct{})
	h := newHarness(t, generator, nil)
	key := tcsKey(t)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := h.coordinator.Resolve(ctx, ResolveRequest{UserID: "alice", Key: key})
		errc <- err
	}()
	<-generator.started
	cancel()

	require.ErrorIs(t, <-errc, context.Canceled)
	assert.Zero(t, h.consumed(t, "alice"))

	close(generator.release)
	h.waitIdle(t)

	entry, err := h.content.Get(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.EqualValues(t, 1, entry.GenerationSequence)
}

func TestResolveUnknownUser(t *testing.T) {
	h := newHarness(t, newStubGenerator(), nil)

	_, err := h.coordinator.Resolve(context.Background(), ResolveRequest{UserID: "mallory", Key: tcsKey(t)})
	require.ErrorIs(t, err, research.ErrUnknownUser)
	assert.Zero(t, h.generator.calls.Load())
}

func TestResolveRejectsInvalidKey(t *testing.T) {
	h := newHarness(t, newStubGenerator(), nil)

	_, err := h.coordinator.Resolve(context.Background(), ResolveRequest{
		UserID: "alice",
		Key:    research.CacheKey{Kind: research.KindReport, SubjectID: "tcs", Language: "en"},
	})
	require.ErrorIs(t, err, research.ErrInvalidKey)
}

func TestLookup(t *testing.T) {
	h := newHarness(t, newStubGenerator(), nil)
	ctx := context.Background()
	key := tcsKey(t)

	_, err := h.coordinator.Lookup(ctx, "alice", key)
	require.ErrorIs(t, err, research.ErrNotFound)

	h.seed(t, key)
	h.clock.Advance(staleAge).MustWait(ctx)

	result, err := h.coordinator.Lookup(ctx, "alice", key)
	require.NoError(t, err)
	assert.Equal(t, research.ProvenanceStale, result.Provenance)
	assert.True(t, result.CanRegenerate)
	assert.Zero(t, h.generator.calls.Load())

	// The lookup counted as a view, so alice is now a returning viewer.
	result, err = h.coordinator.Resolve(ctx, ResolveRequest{UserID: "alice", Key: key})
	require.NoError(t, err)
	assert.Equal(t, research.ReasonStaleReturningView, result.Reason)
}

func TestPurge(t *testing.T) {
	h := newHarness(t, newStubGenerator(), nil)
	ctx := context.Background()
	key := tcsKey(t)
	h.seed(t, key)

	purged, err := h.coordinator.Purge(ctx, key)
	require.NoError(t, err)
	assert.True(t, purged)

	purged, err = h.coordinator.Purge(ctx, key)
	require.NoError(t, err)
	assert.False(t, purged)
	assert.Equal(t, []events.Type{events.CachePurged}, h.publisher.types())
}

func TestResolveFiftySimultaneousCallersGenerateOnce(t *testing.T) {
	generator := newStubGenerator()
	generator.release = make(chan struct{})
	h := newHarness(t, generator, nil)
	ctx := context.Background()
	key := tcsKey(t)

	const callers = 50
	users := make([]string, callers)
	for i := range users {
		users[i] = fmt.Sprintf("user-%02d", i)
		_, err := h.subscriptions.AssignTier(ctx, users[i], "", "pro")
		require.NoError(t, err)
	}

	results := make([]*research.Result, callers)
	errs := make([]error, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results[i], errs[i] = h.coordinator.Resolve(ctx, ResolveRequest{UserID: users[i], Key: key})
		}()
	}
	close(start)
	<-generator.started
	close(generator.release)
	wg.Wait()

	assert.EqualValues(t, 1, generator.calls.Load())
	total := 0
	for i, user := range users {
		require.NoError(t, errs[i], user)
		assert.EqualValues(t, 1, results[i].GenerationSequence, user)
		assert.Equal(t, results[0].GeneratedAt, results[i].GeneratedAt, user)
		total += h.consumed(t, user)
	}
	assert.Equal(t, 1, total)
}

func TestResolveNotifiesWhenLastUnitIsSpent(t *testing.T) {
	h := newHarness(t, newStubGenerator(), nil)

	_, err := h.coordinator.Resolve(context.Background(), ResolveRequest{UserID: "frugal", Key: tcsKey(t)})
	require.NoError(t, err)
	assert.Equal(t, 1, h.consumed(t, "frugal"))
	assert.Equal(t, []string{"frugal"}, h.notices.notified())
}

func TestResolveRefundedUnitSendsNoNotice(t *testing.T) {
	t.Run("generation failed", func(t *testing.T) {
		generator := newStubGenerator()
		generator.err = research.NewGenerationFailed(research.FailureUpstreamError, errors.New("503"))
		h := newHarness(t, generator, nil)

		_, err := h.coordinator.Resolve(context.Background(), ResolveRequest{UserID: "frugal", Key: tcsKey(t)})
		require.ErrorIs(t, err, research.ErrGenerationFailed)
		assert.Zero(t, h.consumed(t, "frugal"))
		assert.Empty(t, h.notices.notified())
	})

	t.Run("entry already refreshed", func(t *testing.T) {
		h := newHarness(t, newStubGenerator(), func(content repositories.ContentStore) repositories.ContentStore {
			return &hideFirstRead{ContentStore: content}
		})
		key := tcsKey(t)
		h.seed(t, key)

		result, err := h.coordinator.Resolve(context.Background(), ResolveRequest{UserID: "frugal", Key: key})
		require.NoError(t, err)
		assert.True(t, result.Joined)
		assert.Zero(t, h.consumed(t, "frugal"))
		assert.Empty(t, h.notices.notified())
	})
}

type failingRelease struct {
	repositories.QuotaStore
}

func (f failingRelease) Release(context.Context, *research.Authorization, time.Time) (bool, error) {
	return false, errors.New("database is locked")
}

func TestResolveCountsLostRefund(t *testing.T) {
	generator := newStubGenerator()
	generator.err = research.NewGenerationFailed(research.FailureUpstreamError, errors.New("503"))
	h := newHarnessWith(t, generator, harnessOptions{
		wrapQuota: func(quota repositories.QuotaStore) repositories.QuotaStore {
			return failingRelease{QuotaStore: quota}
		},
	})

	_, err := h.coordinator.Resolve(context.Background(), ResolveRequest{UserID: "alice", Key: tcsKey(t)})
	require.ErrorIs(t, err, research.ErrGenerationFailed)
	assert.Equal(t, 1, h.consumed(t, "alice"))
	assert.Equal(t, 1.0, h.counter(t, "reportcache_quota_refund_failures_total"))
	assert.Zero(t, h.counter(t, "reportcache_quota_refunds_total"))
}

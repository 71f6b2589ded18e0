package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bestseller/tracker/internal/domain/market"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSleeper records requested delays and advances the clock instead of blocking
type fakeSleeper struct {
	mu     sync.Mutex
	clock  *fakeClock
	delays []time.Duration
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	if s.clock != nil {
		s.clock.Advance(d)
	}
	return ctx.Err()
}

func (s *fakeSleeper) Total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total time.Duration
	for _, d := range s.delays {
		total += d
	}
	return total
}

type fakeAdapter struct {
	platform market.Platform
	mu       sync.Mutex
	calls    int
	fetch    func(call int, category string, limit int) (*market.FetchBatch, error)
}

func (a *fakeAdapter) Platform() market.Platform { return a.platform }

func (a *fakeAdapter) Fetch(ctx context.Context, category string, limit int) (*market.FetchBatch, error) {
	a.mu.Lock()
	a.calls++
	call := a.calls
	a.mu.Unlock()
	return a.fetch(call, category, limit)
}

func (a *fakeAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// memoryStore is a SnapshotRepository keeping snapshots in a map
type memoryStore struct {
	market.SnapshotRepository
	mu      sync.Mutex
	order   []market.SnapshotKey
	records map[market.SnapshotKey]market.ProductRecord
	failIDs map[string]bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[market.SnapshotKey]market.ProductRecord)}
}

func (s *memoryStore) Upsert(ctx context.Context, _ uuid.UUID, r market.ProductRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIDs[r.PlatformProductID] {
		return false, errors.New("disk full")
	}
	if _, ok := s.records[r.Key()]; ok {
		return false, nil
	}
	s.records[r.Key()] = r
	s.order = append(s.order, r.Key())
	return true, nil
}

func (s *memoryStore) Count(p market.Platform) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.records {
		if k.Platform == p {
			n++
		}
	}
	return n
}

func tiktokItems(ids ...string) *market.FetchBatch {
	batch := &market.FetchBatch{}
	for _, id := range ids {
		payload, _ := json.Marshal(map[string]any{
			"id":    id,
			"name":  "Product " + id,
			"price": map[string]any{"original_price": "9.99"},
			"sales": map[string]any{"sales_30_day": 10},
		})
		batch.Items = append(batch.Items, market.RawItem{Platform: market.PlatformTikTok, SourceID: id, Payload: payload})
	}
	return batch
}

func platformItems(p market.Platform, n int) *market.FetchBatch {
	batch := &market.FetchBatch{}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-%d", p, i)
		var payload any
		switch p {
		case market.PlatformAmazon:
			payload = map[string]any{"asin": id, "title": "Item", "price": "5", "rank": i + 1}
		case market.PlatformShopee:
			payload = map[string]any{"item_id": 1000 + i, "item_name": "Item", "price": 500000}
		default:
			payload = map[string]any{"id": id, "name": "Item", "price": map[string]any{"original_price": "5"}}
		}
		b, _ := json.Marshal(payload)
		batch.Items = append(batch.Items, market.RawItem{Platform: p, SourceID: id, Payload: b})
	}
	return batch
}

type harness struct {
	clock   *fakeClock
	sleeper *fakeSleeper
	store   *memoryStore
}

func newHarness() *harness {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	return &harness{clock: clock, sleeper: &fakeSleeper{clock: clock}, store: newMemoryStore()}
}

func (h *harness) coordinator(t *testing.T, opts Options, adapters ...market.SourceAdapter) *Coordinator {
	return NewCoordinator(adapters, NewNormalizer(DefaultScoreWeights()), h.store, opts, zaptest.NewLogger(t),
		WithClock(h.clock), WithSleeper(h.sleeper))
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCoordinator_EndToEnd_InvalidItemsAreSkipped(t *testing.T) {
	h := newHarness()
	batch := tiktokItems("t1", "t2", "t3")
	for _, id := range []string{"bad1", "bad2"} {
		payload, _ := json.Marshal(map[string]any{"id": id, "name": "No price"})
		batch.Items = append(batch.Items, market.RawItem{Platform: market.PlatformTikTok, SourceID: id, Payload: payload})
	}
	adapter := &fakeAdapter{platform: market.PlatformTikTok, fetch: func(int, string, int) (*market.FetchBatch, error) {
		return batch, nil
	}}

	run := h.coordinator(t, Options{Retry: RetryPolicy{MaxAttempts: 3}}, adapter).Run(context.Background())

	assert.Equal(t, 3, h.store.Count(market.PlatformTikTok))
	assert.Equal(t, market.RunStatusPartial, run.Status)
	require.Len(t, run.ErrorSummary, 2)
	for i, id := range []string{"bad1", "bad2"} {
		assert.Equal(t, id, run.ErrorSummary[i].ProductID)
		assert.Equal(t, market.StageValidate, run.ErrorSummary[i].Stage)
	}

	res := run.Platforms[market.PlatformTikTok]
	assert.Equal(t, 5, res.Fetched)
	assert.Equal(t, 3, res.Persisted)
	assert.Equal(t, 2, res.Skipped)
	assert.True(t, run.IsFinalized())
}

func TestCoordinator_PersistsInFetchOrder(t *testing.T) {
	h := newHarness()
	adapter := &fakeAdapter{platform: market.PlatformTikTok, fetch: func(int, string, int) (*market.FetchBatch, error) {
		return tiktokItems("c", "a", "b"), nil
	}}

	run := h.coordinator(t, Options{}, adapter).Run(context.Background())

	assert.Equal(t, market.RunStatusSuccess, run.Status)
	ids := make([]string, len(h.store.order))
	for i, k := range h.store.order {
		ids[i] = k.PlatformProductID
		assert.Equal(t, h.clock.Now(), k.CollectedAt)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestCoordinator_RepeatedItemsCountAsDuplicates(t *testing.T) {
	h := newHarness()
	metrics := &recordingMetrics{attempts: map[string]int{}, items: map[string]int{}}
	adapter := &fakeAdapter{platform: market.PlatformTikTok, fetch: func(int, string, int) (*market.FetchBatch, error) {
		return tiktokItems("a", "b", "a"), nil
	}}
	coordinator := NewCoordinator([]market.SourceAdapter{adapter}, NewNormalizer(DefaultScoreWeights()), h.store,
		Options{}, zaptest.NewLogger(t), WithClock(h.clock), WithSleeper(h.sleeper), WithMetrics(metrics))

	first := coordinator.Run(context.Background())
	res := first.Platforms[market.PlatformTikTok]
	assert.Equal(t, 2, res.Persisted)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, market.RunStatusSuccess, first.Status)

	// same clock, same collected_at: nothing new is stored
	second := coordinator.Run(context.Background())
	res = second.Platforms[market.PlatformTikTok]
	assert.Zero(t, res.Persisted)
	assert.Equal(t, 3, res.Duplicates)
	assert.Equal(t, market.RunStatusSuccess, second.Status)
	assert.Equal(t, 3, second.DuplicateCount())
	assert.Zero(t, second.PersistedCount())

	assert.Equal(t, 2, h.store.Count(market.PlatformTikTok))
	assert.Equal(t, 2, metrics.items[OutcomePersisted])
	assert.Equal(t, 4, metrics.items[OutcomeDuplicate])
}

func TestCoordinator_FaultIsolation(t *testing.T) {
	h := newHarness()
	ok := func(p market.Platform) *fakeAdapter {
		return &fakeAdapter{platform: p, fetch: func(int, string, int) (*market.FetchBatch, error) {
			return platformItems(p, 4), nil
		}}
	}
	broken := &fakeAdapter{platform: market.PlatformAmazon, fetch: func(int, string, int) (*market.FetchBatch, error) {
		return nil, fmt.Errorf("%w: connection refused", market.ErrNetwork)
	}}

	run := h.coordinator(t, Options{Retry: RetryPolicy{MaxAttempts: 2, Delay: time.Second}},
		ok(market.PlatformTikTok), broken, ok(market.PlatformShopee)).Run(context.Background())

	assert.Equal(t, market.RunStatusPartial, run.Status)
	assert.Equal(t, market.RunStatusSuccess, run.Platforms[market.PlatformTikTok].Status)
	assert.Equal(t, market.RunStatusSuccess, run.Platforms[market.PlatformShopee].Status)
	assert.Equal(t, market.RunStatusFailed, run.Platforms[market.PlatformAmazon].Status)
	assert.Equal(t, 4, h.store.Count(market.PlatformTikTok))
	assert.Equal(t, 4, h.store.Count(market.PlatformShopee))
	assert.Equal(t, 0, h.store.Count(market.PlatformAmazon))
	assert.Equal(t, 2, broken.Calls())

	require.Len(t, run.ErrorSummary, 1)
	assert.Equal(t, market.PlatformAmazon, run.ErrorSummary[0].Platform)
	assert.Contains(t, run.ErrorSummary[0].Message, "connection refused")
}

func TestCoordinator_AllPlatformsFail(t *testing.T) {
	h := newHarness()
	failing := func(p market.Platform) *fakeAdapter {
		return &fakeAdapter{platform: p, fetch: func(int, string, int) (*market.FetchBatch, error) {
			return nil, market.ErrNetwork
		}}
	}

	run := h.coordinator(t, Options{Retry: RetryPolicy{MaxAttempts: 1}},
		failing(market.PlatformTikTok), failing(market.PlatformShopee)).Run(context.Background())

	assert.Equal(t, market.RunStatusFailed, run.Status)
	assert.Len(t, run.ErrorSummary, 2)
}

func TestCoordinator_RetryBound(t *testing.T) {
	h := newHarness()
	adapter := &fakeAdapter{platform: market.PlatformShopee, fetch: func(int, string, int) (*market.FetchBatch, error) {
		return nil, fmt.Errorf("%w: 429", market.ErrRateLimited)
	}}
	const retryCount = 4
	delay := 5 * time.Second

	start := h.clock.Now()
	run := h.coordinator(t, Options{Retry: RetryPolicy{MaxAttempts: retryCount, Delay: delay}}, adapter).Run(context.Background())

	assert.Equal(t, retryCount, adapter.Calls())
	assert.Equal(t, []time.Duration{delay, 2 * delay, 3 * delay}, h.sleeper.delays)
	assert.Equal(t, delay*(1+2+3), h.sleeper.Total())
	assert.Equal(t, delay*(1+2+3), h.clock.Now().Sub(start))

	res := run.Platforms[market.PlatformShopee]
	assert.Equal(t, market.RunStatusFailed, res.Status)
	assert.Equal(t, retryCount, res.Attempts)
	assert.Equal(t, market.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorSummary[0].Message, "after 4 attempts")
}

func TestCoordinator_RecoversAfterTransientFailure(t *testing.T) {
	h := newHarness()
	adapter := &fakeAdapter{platform: market.PlatformTikTok, fetch: func(call int, _ string, _ int) (*market.FetchBatch, error) {
		if call == 1 {
			return nil, market.ErrNetwork
		}
		return tiktokItems("x"), nil
	}}

	run := h.coordinator(t, Options{Retry: RetryPolicy{MaxAttempts: 3, Delay: time.Second}}, adapter).Run(context.Background())

	assert.Equal(t, market.RunStatusSuccess, run.Status)
	assert.Equal(t, 2, run.Platforms[market.PlatformTikTok].Attempts)
	assert.Equal(t, []time.Duration{time.Second}, h.sleeper.delays)
	assert.Equal(t, 1, h.store.Count(market.PlatformTikTok))
}

func TestCoordinator_AuthErrorIsNotRetried(t *testing.T) {
	h := newHarness()
	adapter := &fakeAdapter{platform: market.PlatformTikTok, fetch: func(int, string, int) (*market.FetchBatch, error) {
		return nil, fmt.Errorf("%w: bad signature", market.ErrAuth)
	}}

	run := h.coordinator(t, Options{
		DefaultCategories: []string{"home", "toys", "books"},
		Retry:             RetryPolicy{MaxAttempts: 5, Delay: time.Second},
	}, adapter).Run(context.Background())

	assert.Equal(t, 1, adapter.Calls())
	assert.Empty(t, h.sleeper.delays)
	assert.Equal(t, market.RunStatusFailed, run.Platforms[market.PlatformTikTok].Status)
}

func TestCoordinator_CategoryFailureKeepsOtherCategories(t *testing.T) {
	h := newHarness()
	var mu sync.Mutex
	var seen []string
	adapter := &fakeAdapter{platform: market.PlatformTikTok, fetch: func(_ int, category string, limit int) (*market.FetchBatch, error) {
		mu.Lock()
		seen = append(seen, fmt.Sprintf("%s:%d", category, limit))
		mu.Unlock()
		if category == "toys" {
			return nil, market.ErrParse
		}
		return tiktokItems(category + "-1"), nil
	}}

	run := h.coordinator(t, Options{
		Categories:        map[market.Platform][]string{market.PlatformTikTok: {"home", "toys", "books"}},
		DefaultCategories: []string{"ignored"},
		Limit:             7,
		Retry:             RetryPolicy{MaxAttempts: 3},
	}, adapter).Run(context.Background())

	assert.Equal(t, []string{"home:7", "toys:7", "books:7"}, seen)
	res := run.Platforms[market.PlatformTikTok]
	assert.Equal(t, market.RunStatusPartial, res.Status)
	assert.Equal(t, 2, res.Persisted)
	assert.Equal(t, 1, res.FailedCalls)
	assert.Contains(t, res.Errors[0].Message, `category "toys"`)
}

func TestCoordinator_ParseAndPersistErrors(t *testing.T) {
	h := newHarness()
	h.store.failIDs = map[string]bool{"t2": true}
	adapter := &fakeAdapter{platform: market.PlatformTikTok, fetch: func(int, string, int) (*market.FetchBatch, error) {
		batch := tiktokItems("t1", "t2")
		batch.ParseErrors = []market.ItemError{{SourceID: "t9", Err: fmt.Errorf("%w: not an object", market.ErrParse)}}
		return batch, nil
	}}

	run := h.coordinator(t, Options{}, adapter).Run(context.Background())

	res := run.Platforms[market.PlatformTikTok]
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 1, res.Persisted)
	assert.Equal(t, 2, res.Skipped)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, market.StageParse, res.Errors[0].Stage)
	assert.Equal(t, market.StagePersist, res.Errors[1].Stage)
	assert.Equal(t, "t2", res.Errors[1].ProductID)
}

func TestCoordinator_AttemptTimeout(t *testing.T) {
	h := newHarness()
	adapter := &fakeAdapter{platform: market.PlatformTikTok}
	adapter.fetch = func(call int, _ string, _ int) (*market.FetchBatch, error) {
		if call == 1 {
			return nil, context.DeadlineExceeded
		}
		return tiktokItems("x"), nil
	}

	run := h.coordinator(t, Options{Retry: RetryPolicy{MaxAttempts: 2, Timeout: time.Second}}, adapter).Run(context.Background())

	assert.Equal(t, market.RunStatusSuccess, run.Status)
	assert.Equal(t, 2, adapter.Calls())
}

func TestCoordinator_TimeoutBoundsEachCall(t *testing.T) {
	h := newHarness()
	var deadlines []bool
	adapter := &slowAdapter{record: func(ok bool) { deadlines = append(deadlines, ok) }}

	run := h.coordinator(t, Options{Retry: RetryPolicy{MaxAttempts: 2, Timeout: 20 * time.Millisecond}}, adapter).Run(context.Background())

	assert.Equal(t, []bool{true, true}, deadlines)
	assert.Equal(t, market.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorSummary[0].Message, "timed out")
}

// slowAdapter blocks until its call context ends
type slowAdapter struct {
	record func(hasDeadline bool)
}

func (a *slowAdapter) Platform() market.Platform { return market.PlatformAmazon }

func (a *slowAdapter) Fetch(ctx context.Context, _ string, _ int) (*market.FetchBatch, error) {
	_, ok := ctx.Deadline()
	a.record(ok)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCoordinator_Cancelled(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	adapter := &fakeAdapter{platform: market.PlatformTikTok, fetch: func(int, string, int) (*market.FetchBatch, error) {
		cancel()
		return tiktokItems("x", "y"), nil
	}}

	run := h.coordinator(t, Options{}, adapter).Run(ctx)

	assert.Equal(t, 0, h.store.Count(market.PlatformTikTok))
	res := run.Platforms[market.PlatformTikTok]
	assert.Equal(t, market.RunStatusFailed, res.Status)
	assert.Equal(t, market.StageCancelled, res.Errors[len(res.Errors)-1].Stage)
}

func TestCoordinator_AdapterPanicIsIsolated(t *testing.T) {
	h := newHarness()
	panicky := &fakeAdapter{platform: market.PlatformAmazon, fetch: func(int, string, int) (*market.FetchBatch, error) {
		panic("nil map")
	}}
	healthy := &fakeAdapter{platform: market.PlatformTikTok, fetch: func(int, string, int) (*market.FetchBatch, error) {
		return tiktokItems("ok"), nil
	}}

	run := h.coordinator(t, Options{}, panicky, healthy).Run(context.Background())

	assert.Equal(t, market.RunStatusPartial, run.Status)
	assert.Equal(t, market.RunStatusFailed, run.Platforms[market.PlatformAmazon].Status)
	assert.Equal(t, 1, h.store.Count(market.PlatformTikTok))
}

func TestCoordinator_NoAdapters(t *testing.T) {
	h := newHarness()
	run := h.coordinator(t, Options{}).Run(context.Background())
	assert.Equal(t, market.RunStatusFailed, run.Status)
}

type recordingMetrics struct {
	mu       sync.Mutex
	attempts map[string]int
	items    map[string]int
	runs     []market.RunStatus
}

func (m *recordingMetrics) RecordAttempt(_ context.Context, _ market.Platform, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[outcome]++
}

func (m *recordingMetrics) RecordItems(_ context.Context, _ market.Platform, outcome string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[outcome] += n
}

func (m *recordingMetrics) RecordFetchDuration(context.Context, market.Platform, time.Duration) {}

func (m *recordingMetrics) RecordRun(_ context.Context, status market.RunStatus, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, status)
}

func TestCoordinator_Metrics(t *testing.T) {
	h := newHarness()
	metrics := &recordingMetrics{attempts: map[string]int{}, items: map[string]int{}}
	adapter := &fakeAdapter{platform: market.PlatformTikTok, fetch: func(call int, _ string, _ int) (*market.FetchBatch, error) {
		if call == 1 {
			return nil, market.ErrRateLimited
		}
		batch := tiktokItems("a", "b")
		batch.ParseErrors = []market.ItemError{{SourceID: "z", Err: market.ErrParse}}
		return batch, nil
	}}

	NewCoordinator([]market.SourceAdapter{adapter}, NewNormalizer(DefaultScoreWeights()), h.store,
		Options{Retry: RetryPolicy{MaxAttempts: 2}}, nil,
		WithClock(h.clock), WithSleeper(h.sleeper), WithMetrics(metrics)).Run(context.Background())

	assert.Equal(t, map[string]int{OutcomeFailed: 1, OutcomeSuccess: 1}, metrics.attempts)
	assert.Equal(t, 2, metrics.items[OutcomePersisted])
	assert.Equal(t, 1, metrics.items[OutcomeInvalid])
	assert.Equal(t, []market.RunStatus{market.RunStatusPartial}, metrics.runs)
}

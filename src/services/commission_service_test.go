package services

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/username/commissions/src/commission"
	"github.com/username/commissions/src/database"
	"github.com/username/commissions/src/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "rates.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestService(t *testing.T, db *sql.DB, qc QuoteCache, opts Options) *commissionServiceImpl {
	t.Helper()
	svc, err := NewCommissionService(commission.DefaultConfig(), db, qc, opts)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc.(*commissionServiceImpl)
}

// countingCache records hits so tests can tell cached quotes from fresh ones.
type countingCache struct {
	QuoteCache
	mu      sync.Mutex
	hits    int
	flushes int
}

func (c *countingCache) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, ok := c.QuoteCache.Get(ctx, key)
	if ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
	}
	return raw, ok
}

func (c *countingCache) Flush(ctx context.Context) {
	c.mu.Lock()
	c.flushes++
	c.mu.Unlock()
	c.QuoteCache.Flush(ctx)
}

func TestNewCommissionServiceRejectsInvalidSchedule(t *testing.T) {
	t.Parallel()
	cfg := commission.DefaultConfig()
	cfg.Tiers = nil
	if _, err := NewCommissionService(cfg, nil, nil, Options{}); !errors.Is(err, commission.ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
}

func TestQuotesAreCached(t *testing.T) {
	t.Parallel()
	cache := &countingCache{QuoteCache: NewMemoryQuoteCache(time.Minute)}
	svc := newTestService(t, nil, cache, Options{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		got, err := svc.Tiered(ctx, 600000)
		if err != nil {
			t.Fatalf("tiered: %v", err)
		}
		if got.Total.Cents() != 9000000 || len(got.Slices) != 3 {
			t.Fatalf("unexpected tiered result: %+v", got)
		}
		if !got.Slices[2].Bracket.Unbounded() {
			t.Fatalf("cached breakdown lost the unbounded bracket")
		}
	}
	if cache.hits != 1 {
		t.Fatalf("expected one cache hit, got %d", cache.hits)
	}

	if _, err := svc.FlatRate(ctx, -1, commission.SchemeReferral, nil); !errors.Is(err, commission.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.FlatRate(ctx, -1, commission.SchemeReferral, nil); !errors.Is(err, commission.ErrInvalidAmount) {
		t.Fatalf("second call: expected ErrInvalidAmount, got %v", err)
	}
	if cache.hits != 1 {
		t.Fatalf("errors must not be cached, got %d hits", cache.hits)
	}
}

func TestSplitLimits(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, nil, nil, Options{MaxSplitParts: 4})
	ctx := context.Background()

	if _, err := svc.SplitEven(ctx, 100, 5); !errors.Is(err, ErrTooManyParts) {
		t.Fatalf("expected ErrTooManyParts, got %v", err)
	}
	if _, err := svc.SplitCustom(ctx, 100, []float64{0.2, 0.2, 0.2, 0.2, 0.2}, true); !errors.Is(err, ErrTooManyParts) {
		t.Fatalf("expected ErrTooManyParts, got %v", err)
	}

	shares, err := svc.SplitCustom(ctx, 0.07, []float64{0.2, 0.3, 0.5}, true)
	if err != nil {
		t.Fatalf("split custom exact: %v", err)
	}
	if commission.Sum(shares).Cents() != 7 {
		t.Fatalf("expected the exact split to keep every cent, got %v", shares)
	}
	shares, err = svc.SplitCustom(ctx, 0.01, []float64{0.5, 0.5}, false)
	if err != nil {
		t.Fatalf("split custom: %v", err)
	}
	if commission.Sum(shares).Cents() != 2 {
		t.Fatalf("expected the independent rounding to drift to 2 cents, got %v", shares)
	}
}

func TestBatch(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, nil, NewMemoryQuoteCache(time.Minute), Options{BatchConcurrency: 3, MaxBatchSize: 100})
	ctx := context.Background()

	reqs := []QuoteRequest{
		{Kind: QuoteFlat, Amount: 1000, Scheme: commission.SchemeMSP},
		{Kind: QuoteTiered, Amount: 600000},
		{Kind: QuotePartner, Amount: 1000, PartnerID: "nobody"},
		{Kind: QuoteWeighted, Amount: 250000, Probability: 75},
		{Kind: "bonus", Amount: 1},
		{Kind: QuoteFlat, Amount: -5},
	}
	for i := 0; i < 40; i++ {
		reqs = append(reqs, QuoteRequest{Kind: QuoteFlat, Amount: float64(i)})
	}

	results, err := svc.Batch(ctx, reqs)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	want := []int64{25000, 9000000, 15000, 18750000}
	for i, w := range want {
		if results[i].Amount == nil || results[i].Amount.Cents() != w {
			t.Fatalf("item %d: expected %d cents, got %+v", i, w, results[i])
		}
	}
	if results[4].Error == "" || results[5].Error == "" {
		t.Fatalf("expected item errors, got %+v %+v", results[4], results[5])
	}
	for i, res := range results {
		if res.Index != i {
			t.Fatalf("result %d carries index %d", i, res.Index)
		}
	}
	if results[len(results)-1].Amount.Cents() != 585 {
		t.Fatalf("expected 39 * 0.15 = 5.85, got %v", results[len(results)-1].Amount)
	}

	if _, err := svc.Batch(ctx, make([]QuoteRequest, 101)); !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
}

func TestBatchStopsOnCancelledContext(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, nil, nil, Options{BatchConcurrency: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Batch(ctx, []QuoteRequest{{Kind: QuoteTiered, Amount: 1}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestForecastPipeline(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, nil, nil, Options{})

	forecast, err := svc.ForecastPipeline(context.Background(), []PipelineDeal{
		{DealID: "a", Amount: 0.01, Probability: 50},
		{DealID: "b", Amount: 0.01, Probability: 50},
		{DealID: "c", Amount: 1000, Probability: 0},
	})
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	// Each half cent rounds up on its own, so the weighted total is 2 cents.
	if forecast.WeightedTotal.Cents() != 2 {
		t.Fatalf("expected weighted total of 2 cents, got %d", forecast.WeightedTotal.Cents())
	}
	if forecast.TotalValue.Cents() != 100002 {
		t.Fatalf("expected total value of 100002 cents, got %d", forecast.TotalValue.Cents())
	}

	_, err = svc.ForecastPipeline(context.Background(), []PipelineDeal{{Amount: 10, Probability: 120}})
	if !errors.Is(err, commission.ErrInvalidProbability) {
		t.Fatalf("expected ErrInvalidProbability, got %v", err)
	}
}

func TestPartnerRatesReload(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	cache := &countingCache{QuoteCache: NewMemoryQuoteCache(time.Minute)}
	svc := newTestService(t, db, cache, Options{})
	ctx := context.Background()

	quote := func() int64 {
		t.Helper()
		m, err := svc.Partner(ctx, 1000, "acme")
		if err != nil {
			t.Fatalf("partner: %v", err)
		}
		return m.Cents()
	}

	if got := quote(); got != 15000 {
		t.Fatalf("expected referral fallback, got %d", got)
	}
	before := svc.current()

	if err := svc.SetPartnerRate(ctx, model.PartnerRate{PartnerID: "acme", Rate: 0.4}); err != nil {
		t.Fatalf("set partner rate: %v", err)
	}
	if svc.current() == before {
		t.Fatalf("expected a new engine after the override")
	}
	if svc.current().fingerprint == before.fingerprint {
		t.Fatalf("expected a new schedule fingerprint")
	}
	if cache.flushes == 0 {
		t.Fatalf("expected the quote cache to be flushed")
	}
	if got := quote(); got != 40000 {
		t.Fatalf("expected the override, got %d", got)
	}
	if got := svc.Schedule().PartnerRates["acme"]; got != 0.4 {
		t.Fatalf("expected the schedule to expose the override, got %v", got)
	}

	// A row written behind the service's back shows up on reload.
	if err := model.UpsertPartnerRate(db, model.PartnerRate{PartnerID: "acme", Rate: 0.05}); err != nil {
		t.Fatalf("direct upsert: %v", err)
	}
	if got := quote(); got != 40000 {
		t.Fatalf("expected the old engine until reload, got %d", got)
	}
	if err := svc.ReloadPartnerRates(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := quote(); got != 5000 {
		t.Fatalf("expected the reloaded override, got %d", got)
	}

	if err := svc.DeletePartnerRate(ctx, "acme"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := quote(); got != 15000 {
		t.Fatalf("expected fallback after delete, got %d", got)
	}
	if err := svc.DeletePartnerRate(ctx, "acme"); !errors.Is(err, model.ErrPartnerRateNotFound) {
		t.Fatalf("expected ErrPartnerRateNotFound, got %v", err)
	}

	rates, err := svc.ListPartnerRates(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rates) != 0 {
		t.Fatalf("expected no rows, got %+v", rates)
	}
}

func TestStoredRatesOverrideSchedulePartners(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	if err := model.UpsertPartnerRate(db, model.PartnerRate{PartnerID: "acme", Rate: 0.1}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cfg := commission.DefaultConfig()
	cfg.PartnerRates = map[string]float64{"acme": 0.3, "globex": 0.2}

	svc, err := NewCommissionService(cfg, db, nil, Options{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	if err := svc.ReloadPartnerRates(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}

	rates := svc.Schedule().PartnerRates
	if rates["acme"] != 0.1 || rates["globex"] != 0.2 {
		t.Fatalf("unexpected merged partner rates: %v", rates)
	}
}

func TestPartnerStoreNotConfigured(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, nil, nil, Options{})
	ctx := context.Background()

	if _, err := svc.ListPartnerRates(ctx); !errors.Is(err, ErrNoPartnerStore) {
		t.Fatalf("list: expected ErrNoPartnerStore, got %v", err)
	}
	if err := svc.SetPartnerRate(ctx, model.PartnerRate{PartnerID: "acme", Rate: 0.1}); !errors.Is(err, ErrNoPartnerStore) {
		t.Fatalf("set: expected ErrNoPartnerStore, got %v", err)
	}
	if err := svc.ReloadPartnerRates(ctx); err != nil {
		t.Fatalf("reload without a store should be a no-op, got %v", err)
	}
}

func TestStartPartnerReloader(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	svc := newTestService(t, db, nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.StartPartnerReloader(ctx, 10*time.Millisecond)
	if err := model.UpsertPartnerRate(db, model.PartnerRate{PartnerID: "acme", Rate: 0.5}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if svc.Schedule().PartnerRates["acme"] == 0.5 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("periodic reload never picked up the new row")
}

func TestReloadDoesNotInstallStaleSnapshot(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	svc := newTestService(t, db, NewMemoryQuoteCache(time.Minute), Options{})
	ctx := context.Background()

	// The first reload pauses after reading the table while an admin write
	// lands and starts its own reload.
	var paused atomic.Bool
	adminDone := make(chan error, 1)
	svc.afterSnapshot = func() {
		if !paused.CompareAndSwap(false, true) {
			return
		}
		go func() {
			adminDone <- svc.SetPartnerRate(ctx, model.PartnerRate{PartnerID: "acme", Rate: 0.4})
		}()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if _, err := model.GetPartnerRate(db, "acme"); err == nil {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		// Give the admin reload the chance to run ahead if nothing orders it.
		time.Sleep(50 * time.Millisecond)
	}

	if err := svc.ReloadPartnerRates(ctx); err != nil {
		t.Fatalf("periodic reload: %v", err)
	}
	if err := <-adminDone; err != nil {
		t.Fatalf("admin set: %v", err)
	}
	if got := svc.Schedule().PartnerRates["acme"]; got != 0.4 {
		t.Fatalf("expected the admin override to survive the concurrent reload, got %v", got)
	}
}

func TestConcurrentReloadsConverge(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	svc := newTestService(t, db, nil, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := svc.ReloadPartnerRates(ctx); err != nil {
					t.Errorf("reload: %v", err)
					return
				}
			}
		}()
	}
	for j := 1; j <= 10; j++ {
		if err := svc.SetPartnerRate(ctx, model.PartnerRate{PartnerID: "acme", Rate: float64(j) / 100}); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	wg.Wait()

	if got := svc.Schedule().PartnerRates["acme"]; got != 0.1 {
		t.Fatalf("expected the last written rate 0.1, got %v", got)
	}
}

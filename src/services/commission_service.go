package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/username/commissions/src/commission"
	"github.com/username/commissions/src/logger"
	"github.com/username/commissions/src/model"
	"github.com/username/commissions/src/security/validation"
	"github.com/username/commissions/src/utils"
	"golang.org/x/sync/errgroup"
)

var (
	ErrBatchTooLarge    = errors.New("batch too large")
	ErrTooManyParts     = errors.New("too many split parts")
	ErrUnknownQuoteKind = errors.New("unknown quote kind")
	ErrNoPartnerStore   = errors.New("partner rate store not configured")
)

// Options bounds the work a single request can ask for.
type Options struct {
	BatchConcurrency int
	MaxBatchSize     int
	MaxSplitParts    int
}

func (o Options) withDefaults() Options {
	if o.BatchConcurrency < 1 {
		o.BatchConcurrency = 8
	}
	if o.MaxBatchSize < 1 {
		o.MaxBatchSize = 500
	}
	if o.MaxSplitParts < 1 {
		o.MaxSplitParts = 1000
	}
	return o
}

// engineState pairs an engine with a fingerprint of its schedule. The
// fingerprint namespaces cache keys, so quotes computed under an older
// schedule are never served after a reload.
type engineState struct {
	engine      *commission.Engine
	fingerprint string
}

type commissionServiceImpl struct {
	base  commission.Config
	db    *sql.DB
	cache QuoteCache
	opts  Options
	state atomic.Pointer[engineState]

	// reloadMu orders reloads so an older partner snapshot is never
	// installed over a newer one.
	reloadMu sync.Mutex
	// afterSnapshot runs between reading partner rates and installing them.
	afterSnapshot func()
}

// NewCommissionService builds the service over the base schedule. db may be
// nil, in which case partner overrides come from the schedule only.
func NewCommissionService(base commission.Config, db *sql.DB, quoteCache QuoteCache, opts Options) (CommissionService, error) {
	if quoteCache == nil {
		quoteCache = NewNoopQuoteCache()
	}
	s := &commissionServiceImpl{
		base:  base.Clone(),
		db:    db,
		cache: quoteCache,
		opts:  opts.withDefaults(),
	}
	if err := s.install(context.Background(), s.base); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *commissionServiceImpl) install(ctx context.Context, cfg commission.Config) error {
	engine, err := commission.New(cfg)
	if err != nil {
		return err
	}
	fingerprint, err := utils.GenerateETag(engine.Schedule())
	if err != nil {
		return fmt.Errorf("fingerprint schedule: %w", err)
	}
	prev := s.state.Swap(&engineState{engine: engine, fingerprint: fingerprint[:16]})
	if prev != nil && prev.fingerprint != fingerprint[:16] {
		s.cache.Flush(ctx)
	}
	return nil
}

func (s *commissionServiceImpl) current() *engineState { return s.state.Load() }

// cachedQuote runs compute against the live engine, consulting the quote
// cache first. Failed computations are not cached.
func cachedQuote[T any](ctx context.Context, s *commissionServiceImpl, op string, inputs any, compute func(*commission.Engine) (T, error)) (T, error) {
	st := s.current()
	inputHash, err := utils.GenerateETag(inputs)
	if err != nil {
		// NaN or Inf inputs cannot be encoded; the engine rejects them anyway.
		return compute(st.engine)
	}
	key := st.fingerprint + ":" + op + ":" + inputHash

	if raw, ok := s.cache.Get(ctx, key); ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		logger.FromContext(ctx).Warn("Discarding undecodable cached quote", "op", op)
	}

	v, err := compute(st.engine)
	if err != nil {
		return v, err
	}
	if raw, err := json.Marshal(v); err == nil {
		s.cache.Set(ctx, key, raw)
	}
	return v, nil
}

func (s *commissionServiceImpl) FlatRate(ctx context.Context, amount float64, scheme commission.Scheme, rate *float64) (commission.Money, error) {
	inputs := struct {
		Amount float64
		Scheme commission.Scheme
		Rate   *float64
	}{amount, scheme, rate}
	return cachedQuote(ctx, s, "flat", inputs, func(e *commission.Engine) (commission.Money, error) {
		return e.FlatRate(amount, scheme, rate)
	})
}

func (s *commissionServiceImpl) Tiered(ctx context.Context, amount float64) (commission.TierResult, error) {
	return cachedQuote(ctx, s, "tiered", amount, func(e *commission.Engine) (commission.TierResult, error) {
		return e.TieredBreakdown(amount)
	})
}

func (s *commissionServiceImpl) Partner(ctx context.Context, amount float64, partnerID string) (commission.Money, error) {
	inputs := struct {
		Amount    float64
		PartnerID string
	}{amount, partnerID}
	return cachedQuote(ctx, s, "partner", inputs, func(e *commission.Engine) (commission.Money, error) {
		return e.Partner(amount, partnerID)
	})
}

func (s *commissionServiceImpl) Weighted(ctx context.Context, amount, probability float64) (commission.Money, error) {
	return s.current().engine.Weighted(amount, probability)
}

func (s *commissionServiceImpl) Aggregate(ctx context.Context, amounts []float64) (commission.Money, error) {
	return s.current().engine.Aggregate(amounts)
}

func (s *commissionServiceImpl) SplitEven(ctx context.Context, total float64, n int) ([]commission.Money, error) {
	if n > s.opts.MaxSplitParts {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrTooManyParts, n, s.opts.MaxSplitParts)
	}
	return s.current().engine.SplitEven(total, n)
}

func (s *commissionServiceImpl) SplitCustom(ctx context.Context, total float64, weights []float64, exact bool) ([]commission.Money, error) {
	if len(weights) > s.opts.MaxSplitParts {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrTooManyParts, len(weights), s.opts.MaxSplitParts)
	}
	engine := s.current().engine
	if exact {
		return engine.SplitCustomExact(total, weights)
	}
	return engine.SplitCustom(total, weights)
}

// Batch quotes every request concurrently. A failing item is reported in its
// own result and does not abort the others; results keep request order.
func (s *commissionServiceImpl) Batch(ctx context.Context, requests []QuoteRequest) ([]QuoteResult, error) {
	if len(requests) > s.opts.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrBatchTooLarge, len(requests), s.opts.MaxBatchSize)
	}

	results := make([]QuoteResult, len(requests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.BatchConcurrency)

	for i, req := range requests {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = QuoteResult{Index: i}
			amount, err := s.quote(gctx, req)
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			results[i].Amount = &amount
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *commissionServiceImpl) quote(ctx context.Context, req QuoteRequest) (commission.Money, error) {
	switch req.Kind {
	case QuoteFlat:
		return s.FlatRate(ctx, req.Amount, req.Scheme, req.Rate)
	case QuoteTiered:
		res, err := s.Tiered(ctx, req.Amount)
		return res.Total, err
	case QuotePartner:
		partnerID, err := validation.SanitizePartnerID(req.PartnerID)
		if err != nil {
			return 0, err
		}
		return s.Partner(ctx, req.Amount, partnerID)
	case QuoteWeighted:
		return s.Weighted(ctx, req.Amount, req.Probability)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownQuoteKind, req.Kind)
	}
}

// ForecastPipeline values each deal at its closing probability and totals
// both the raw and the weighted pipeline.
func (s *commissionServiceImpl) ForecastPipeline(ctx context.Context, deals []PipelineDeal) (*PipelineForecast, error) {
	if len(deals) > s.opts.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrBatchTooLarge, len(deals), s.opts.MaxBatchSize)
	}
	engine := s.current().engine

	forecast := &PipelineForecast{Deals: make([]WeightedDeal, 0, len(deals))}
	amounts := make([]float64, 0, len(deals))
	weighted := make([]commission.Money, 0, len(deals))
	for i, d := range deals {
		amount, err := commission.NewMoney(d.Amount)
		if err != nil {
			return nil, fmt.Errorf("deals[%d]: %w", i, err)
		}
		w, err := engine.Weighted(d.Amount, d.Probability)
		if err != nil {
			return nil, fmt.Errorf("deals[%d]: %w", i, err)
		}
		forecast.Deals = append(forecast.Deals, WeightedDeal{
			DealID:        d.DealID,
			Amount:        amount,
			Probability:   d.Probability,
			WeightedValue: w,
		})
		amounts = append(amounts, d.Amount)
		weighted = append(weighted, w)
	}

	total, err := engine.Aggregate(amounts)
	if err != nil {
		return nil, err
	}
	weightedTotal, err := commission.Total(weighted)
	if err != nil {
		return nil, err
	}
	forecast.TotalValue = total
	forecast.WeightedTotal = weightedTotal
	return forecast, nil
}

func (s *commissionServiceImpl) Schedule() commission.Config {
	return s.current().engine.Schedule()
}

func (s *commissionServiceImpl) ListPartnerRates(ctx context.Context) ([]model.PartnerRate, error) {
	if s.db == nil {
		return nil, ErrNoPartnerStore
	}
	return model.ListPartnerRates(s.db)
}

// SetPartnerRate stores the override and reloads the engine so it applies to
// the next quote.
func (s *commissionServiceImpl) SetPartnerRate(ctx context.Context, rate model.PartnerRate) error {
	if s.db == nil {
		return ErrNoPartnerStore
	}
	if err := model.UpsertPartnerRate(s.db, rate); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("Partner rate stored", "partnerID", rate.PartnerID, "rate", rate.Rate)
	return s.ReloadPartnerRates(ctx)
}

func (s *commissionServiceImpl) DeletePartnerRate(ctx context.Context, partnerID string) error {
	if s.db == nil {
		return ErrNoPartnerStore
	}
	if err := model.DeletePartnerRate(s.db, partnerID); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("Partner rate deleted", "partnerID", partnerID)
	return s.ReloadPartnerRates(ctx)
}

// ReloadPartnerRates rebuilds the engine from the base schedule overlaid with
// the stored partner overrides, then swaps it in as a whole.
func (s *commissionServiceImpl) ReloadPartnerRates(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	overrides, err := model.GetPartnerRates(s.db)
	if err != nil {
		return fmt.Errorf("load partner rates: %w", err)
	}
	if s.afterSnapshot != nil {
		s.afterSnapshot()
	}
	if err := s.install(ctx, s.base.WithPartnerRates(overrides)); err != nil {
		return fmt.Errorf("rebuild engine: %w", err)
	}
	logger.FromContext(ctx).Info("Partner rates reloaded", "overrides", len(overrides))
	return nil
}

// StartPartnerReloader reloads partner rates every interval until ctx is
// cancelled, picking up rows written by other instances.
func (s *commissionServiceImpl) StartPartnerReloader(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.db == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.ReloadPartnerRates(ctx); err != nil {
					logger.L.Error("Periodic partner rate reload failed", "error", err)
				}
			}
		}
	}()
}

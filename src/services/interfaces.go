package services

import (
	"context"
	"time"

	"github.com/username/commissions/src/commission"
	"github.com/username/commissions/src/model"
)

// QuoteKind selects the scheme for one item of a batch.
type QuoteKind string

const (
	QuoteFlat     QuoteKind = "flat"
	QuoteTiered   QuoteKind = "tiered"
	QuotePartner  QuoteKind = "partner"
	QuoteWeighted QuoteKind = "weighted"
)

// QuoteRequest is one item of a batch. Fields irrelevant to Kind are ignored.
type QuoteRequest struct {
	Kind        QuoteKind         `json:"kind"`
	Amount      float64           `json:"amount"`
	Scheme      commission.Scheme `json:"scheme,omitempty"`
	Rate        *float64          `json:"rate,omitempty"`
	PartnerID   string            `json:"partner_id,omitempty"`
	Probability float64           `json:"probability,omitempty"`
}

// QuoteResult holds either the computed amount or the reason it failed.
type QuoteResult struct {
	Index  int               `json:"index"`
	Amount *commission.Money `json:"amount,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// PipelineDeal is an open deal with its closing probability in percent.
type PipelineDeal struct {
	DealID      string  `json:"deal_id"`
	Amount      float64 `json:"amount"`
	Probability float64 `json:"probability"`
}

// WeightedDeal is a PipelineDeal valued at its probability.
type WeightedDeal struct {
	DealID        string           `json:"deal_id"`
	Amount        commission.Money `json:"amount"`
	Probability   float64          `json:"probability"`
	WeightedValue commission.Money `json:"weighted_value"`
}

// PipelineForecast summarises a pipeline: raw deal value and expected value.
type PipelineForecast struct {
	Deals         []WeightedDeal   `json:"deals"`
	TotalValue    commission.Money `json:"total_value"`
	WeightedTotal commission.Money `json:"weighted_total"`
}

// CommissionService fronts the commission engine for request handlers. It
// owns the live engine and replaces it wholesale when partner rates change.
type CommissionService interface {
	FlatRate(ctx context.Context, amount float64, scheme commission.Scheme, rate *float64) (commission.Money, error)
	Tiered(ctx context.Context, amount float64) (commission.TierResult, error)
	Partner(ctx context.Context, amount float64, partnerID string) (commission.Money, error)
	Weighted(ctx context.Context, amount, probability float64) (commission.Money, error)
	Aggregate(ctx context.Context, amounts []float64) (commission.Money, error)
	SplitEven(ctx context.Context, total float64, n int) ([]commission.Money, error)
	SplitCustom(ctx context.Context, total float64, weights []float64, exact bool) ([]commission.Money, error)

	Batch(ctx context.Context, requests []QuoteRequest) ([]QuoteResult, error)
	ForecastPipeline(ctx context.Context, deals []PipelineDeal) (*PipelineForecast, error)

	Schedule() commission.Config
	ListPartnerRates(ctx context.Context) ([]model.PartnerRate, error)
	SetPartnerRate(ctx context.Context, rate model.PartnerRate) error
	DeletePartnerRate(ctx context.Context, partnerID string) error
	ReloadPartnerRates(ctx context.Context) error
	StartPartnerReloader(ctx context.Context, interval time.Duration)
}

// QuoteCache stores encoded quote results. Implementations must treat
// backend failures as misses; a broken cache never fails a quote.
type QuoteCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Flush(ctx context.Context)
}

package handlers

import (
	"net/http"

	"github.com/username/commissions/src/commission"
	"github.com/username/commissions/src/logger"
	"github.com/username/commissions/src/security/validation"
	"github.com/username/commissions/src/services"
	"github.com/username/commissions/src/utils"
)

type flatRequest struct {
	Amount float64           `json:"amount"`
	Scheme commission.Scheme `json:"scheme"`
	Rate   *float64          `json:"rate,omitempty"`
}

type amountRequest struct {
	Amount float64 `json:"amount"`
}

type partnerRequest struct {
	Amount    float64 `json:"amount"`
	PartnerID string  `json:"partner_id"`
}

type weightedRequest struct {
	Amount      float64 `json:"amount"`
	Probability float64 `json:"probability"`
}

type aggregateRequest struct {
	Amounts []float64 `json:"amounts"`
}

type splitEvenRequest struct {
	Total float64 `json:"total"`
	Parts int     `json:"parts"`
}

type splitCustomRequest struct {
	Total   float64   `json:"total"`
	Weights []float64 `json:"weights"`
	Exact   bool      `json:"exact"`
}

type batchRequest struct {
	Quotes []services.QuoteRequest `json:"quotes"`
}

type forecastRequest struct {
	Deals []services.PipelineDeal `json:"deals"`
}

type commissionResponse struct {
	Commission commission.Money `json:"commission"`
}

type tieredResponse struct {
	Commission commission.Money       `json:"commission"`
	Breakdown  []commission.TierSlice `json:"breakdown"`
}

type splitResponse struct {
	Shares []commission.Money `json:"shares"`
	Sum    commission.Money   `json:"sum"`
}

type CommissionHandler struct {
	service      services.CommissionService
	maxBodyBytes int64
}

func NewCommissionHandler(service services.CommissionService, maxBodyBytes int64) *CommissionHandler {
	return &CommissionHandler{
		service:      service,
		maxBodyBytes: maxBodyBytes,
	}
}

func (h *CommissionHandler) HandleFlatRate(w http.ResponseWriter, r *http.Request) {
	var req flatRequest
	if err := utils.DecodeJSONBody(w, r, &req, h.maxBodyBytes); err != nil {
		writeError(w, r, "flat", err)
		return
	}
	if req.Scheme == "" {
		req.Scheme = commission.SchemeReferral
	}
	amount, err := h.service.FlatRate(r.Context(), req.Amount, req.Scheme, req.Rate)
	if err != nil {
		writeError(w, r, "flat", err)
		return
	}
	utils.SendJSON(w, commissionResponse{Commission: amount}, http.StatusOK)
}

func (h *CommissionHandler) HandleTiered(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := utils.DecodeJSONBody(w, r, &req, h.maxBodyBytes); err != nil {
		writeError(w, r, "tiered", err)
		return
	}
	res, err := h.service.Tiered(r.Context(), req.Amount)
	if err != nil {
		writeError(w, r, "tiered", err)
		return
	}
	utils.SendJSON(w, tieredResponse{Commission: res.Total, Breakdown: res.Slices}, http.StatusOK)
}

func (h *CommissionHandler) HandlePartner(w http.ResponseWriter, r *http.Request) {
	var req partnerRequest
	if err := utils.DecodeJSONBody(w, r, &req, h.maxBodyBytes); err != nil {
		writeError(w, r, "partner", err)
		return
	}
	partnerID, err := validation.SanitizePartnerID(req.PartnerID)
	if err != nil {
		writeError(w, r, "partner", err)
		return
	}
	amount, err := h.service.Partner(r.Context(), req.Amount, partnerID)
	if err != nil {
		writeError(w, r, "partner", err)
		return
	}
	utils.SendJSON(w, commissionResponse{Commission: amount}, http.StatusOK)
}

func (h *CommissionHandler) HandleWeighted(w http.ResponseWriter, r *http.Request) {
	var req weightedRequest
	if err := utils.DecodeJSONBody(w, r, &req, h.maxBodyBytes); err != nil {
		writeError(w, r, "weighted", err)
		return
	}
	amount, err := h.service.Weighted(r.Context(), req.Amount, req.Probability)
	if err != nil {
		writeError(w, r, "weighted", err)
		return
	}
	utils.SendJSON(w, map[string]commission.Money{"weighted_value": amount}, http.StatusOK)
}

func (h *CommissionHandler) HandleAggregate(w http.ResponseWriter, r *http.Request) {
	var req aggregateRequest
	if err := utils.DecodeJSONBody(w, r, &req, h.maxBodyBytes); err != nil {
		writeError(w, r, "aggregate", err)
		return
	}
	total, err := h.service.Aggregate(r.Context(), req.Amounts)
	if err != nil {
		writeError(w, r, "aggregate", err)
		return
	}
	utils.SendJSON(w, map[string]commission.Money{"total": total}, http.StatusOK)
}

func (h *CommissionHandler) HandleSplitEven(w http.ResponseWriter, r *http.Request) {
	var req splitEvenRequest
	if err := utils.DecodeJSONBody(w, r, &req, h.maxBodyBytes); err != nil {
		writeError(w, r, "split_even", err)
		return
	}
	shares, err := h.service.SplitEven(r.Context(), req.Total, req.Parts)
	if err != nil {
		writeError(w, r, "split_even", err)
		return
	}
	utils.SendJSON(w, splitResponse{Shares: shares, Sum: commission.Sum(shares)}, http.StatusOK)
}

func (h *CommissionHandler) HandleSplitCustom(w http.ResponseWriter, r *http.Request) {
	var req splitCustomRequest
	if err := utils.DecodeJSONBody(w, r, &req, h.maxBodyBytes); err != nil {
		writeError(w, r, "split_custom", err)
		return
	}
	shares, err := h.service.SplitCustom(r.Context(), req.Total, req.Weights, req.Exact)
	if err != nil {
		writeError(w, r, "split_custom", err)
		return
	}
	utils.SendJSON(w, splitResponse{Shares: shares, Sum: commission.Sum(shares)}, http.StatusOK)
}

func (h *CommissionHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := utils.DecodeJSONBody(w, r, &req, h.maxBodyBytes); err != nil {
		writeError(w, r, "batch", err)
		return
	}
	results, err := h.service.Batch(r.Context(), req.Quotes)
	if err != nil {
		writeError(w, r, "batch", err)
		return
	}
	logger.FromContext(r.Context()).Info("Batch quoted", "items", len(results))
	utils.SendJSON(w, map[string][]services.QuoteResult{"results": results}, http.StatusOK)
}

func (h *CommissionHandler) HandleForecast(w http.ResponseWriter, r *http.Request) {
	var req forecastRequest
	if err := utils.DecodeJSONBody(w, r, &req, h.maxBodyBytes); err != nil {
		writeError(w, r, "forecast", err)
		return
	}
	forecast, err := h.service.ForecastPipeline(r.Context(), req.Deals)
	if err != nil {
		writeError(w, r, "forecast", err)
		return
	}
	utils.SendJSON(w, forecast, http.StatusOK)
}

func (h *CommissionHandler) HandleGetSchedule(w http.ResponseWriter, r *http.Request) {
	schedule := h.service.Schedule()
	if utils.CheckETag(w, r, schedule) {
		return
	}
	utils.SendJSON(w, schedule, http.StatusOK)
}

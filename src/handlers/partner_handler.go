package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/username/commissions/src/logger"
	"github.com/username/commissions/src/model"
	"github.com/username/commissions/src/security/validation"
	"github.com/username/commissions/src/services"
	"github.com/username/commissions/src/utils"
)

type partnerRateRequest struct {
	Rate  float64 `json:"rate"`
	Label string  `json:"label"`
}

type PartnerHandler struct {
	service      services.CommissionService
	maxBodyBytes int64
}

func NewPartnerHandler(service services.CommissionService, maxBodyBytes int64) *PartnerHandler {
	return &PartnerHandler{
		service:      service,
		maxBodyBytes: maxBodyBytes,
	}
}

func (h *PartnerHandler) HandleListPartnerRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.service.ListPartnerRates(r.Context())
	if err != nil {
		writeError(w, r, "list_partners", err)
		return
	}
	if rates == nil {
		rates = []model.PartnerRate{}
	}
	if utils.CheckETag(w, r, rates) {
		return
	}
	utils.SendJSON(w, rates, http.StatusOK)
}

func (h *PartnerHandler) HandlePutPartnerRate(w http.ResponseWriter, r *http.Request) {
	partnerID, err := validation.SanitizePartnerID(chi.URLParam(r, "partnerID"))
	if err != nil {
		writeError(w, r, "put_partner", err)
		return
	}
	var req partnerRateRequest
	if err := utils.DecodeJSONBody(w, r, &req, h.maxBodyBytes); err != nil {
		writeError(w, r, "put_partner", err)
		return
	}

	rate := model.PartnerRate{
		PartnerID: partnerID,
		Rate:      req.Rate,
		Label:     validation.StripUnprintable(req.Label),
	}
	if err := h.service.SetPartnerRate(r.Context(), rate); err != nil {
		writeError(w, r, "put_partner", err)
		return
	}
	admin, _ := GetAdminFromContext(r.Context())
	logger.FromContext(r.Context()).Info("Partner rate updated via API", "partnerID", partnerID, "admin", admin)
	utils.SendJSON(w, rate, http.StatusOK)
}

func (h *PartnerHandler) HandleDeletePartnerRate(w http.ResponseWriter, r *http.Request) {
	partnerID, err := validation.SanitizePartnerID(chi.URLParam(r, "partnerID"))
	if err != nil {
		writeError(w, r, "delete_partner", err)
		return
	}
	if err := h.service.DeletePartnerRate(r.Context(), partnerID); err != nil {
		writeError(w, r, "delete_partner", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PartnerHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ReloadPartnerRates(r.Context()); err != nil {
		writeError(w, r, "reload", err)
		return
	}
	utils.SendJSON(w, map[string]string{"status": "reloaded"}, http.StatusOK)
}

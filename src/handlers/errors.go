package handlers

import (
	"errors"
	"net/http"

	"github.com/username/commissions/src/commission"
	"github.com/username/commissions/src/logger"
	"github.com/username/commissions/src/model"
	"github.com/username/commissions/src/security/validation"
	"github.com/username/commissions/src/services"
	"github.com/username/commissions/src/utils"
)

func statusForError(err error) int {
	switch {
	case commission.IsValidationError(err),
		errors.Is(err, validation.ErrInvalidPartnerID),
		errors.Is(err, utils.ErrBadRequestBody),
		errors.Is(err, services.ErrBatchTooLarge),
		errors.Is(err, services.ErrTooManyParts),
		errors.Is(err, services.ErrUnknownQuoteKind):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrPartnerRateNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNoPartnerStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto a status code. Internal errors are logged and
// reported without detail. The body carries the request id so a caller can
// quote it when reporting a failure.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("Request failed", "op", op, "error", err)
		message = "internal server error"
	} else {
		logger.FromContext(r.Context()).Warn("Request rejected", "op", op, "status", status, "error", err)
	}

	reqID := GetRequestIDFromContext(r.Context())
	if reqID == "" {
		utils.SendJSONError(w, message, status)
		return
	}
	utils.SendJSON(w, map[string]string{"error": message, "request_id": reqID}, status)
}

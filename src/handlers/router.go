package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/username/commissions/src/security"
	"github.com/username/commissions/src/utils"
)

// NewRouter wires every route. Global middleware such as rate limiting and
// CORS is applied by the caller.
func NewRouter(commissions *CommissionHandler, partners *PartnerHandler, auth *security.AuthService) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(RecoverMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.SendJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/commissions", func(r chi.Router) {
			r.Post("/flat", commissions.HandleFlatRate)
			r.Post("/tiered", commissions.HandleTiered)
			r.Post("/partner", commissions.HandlePartner)
			r.Post("/weighted", commissions.HandleWeighted)
			r.Post("/aggregate", commissions.HandleAggregate)
			r.Post("/split/even", commissions.HandleSplitEven)
			r.Post("/split/custom", commissions.HandleSplitCustom)
			r.Post("/batch", commissions.HandleBatch)
		})
		r.Post("/pipeline/forecast", commissions.HandleForecast)
		r.Get("/schedule", commissions.HandleGetSchedule)

		r.Get("/partners", partners.HandleListPartnerRates)
		r.Group(func(r chi.Router) {
			r.Use(AdminMiddleware(auth))
			r.Put("/partners/{partnerID}", partners.HandlePutPartnerRate)
			r.Delete("/partners/{partnerID}", partners.HandleDeletePartnerRate)
			r.Post("/admin/reload", partners.HandleReload)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		utils.SendJSONError(w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		utils.SendJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	return r
}

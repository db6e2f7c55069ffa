package v1alpha1

import (
	"context"
	"net/http"

	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/taskbridge/marketplace/api/v1alpha1"
	"github.com/taskbridge/marketplace/internal/handlers/v1alpha1/mappers"
	"github.com/taskbridge/marketplace/internal/handlers/validator"
	"github.com/taskbridge/marketplace/internal/payment"
	"github.com/taskbridge/marketplace/internal/service"
	srvMappers "github.com/taskbridge/marketplace/internal/service/mappers"
	"github.com/taskbridge/marketplace/pkg/money"
)

// (GET /api/v1/offers)
func (h *ServiceHandler) ListOffers(w http.ResponseWriter, r *http.Request) {
	party, ok := caller(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter, err := mappers.OfferFilterFromQuery(q.Get("status"), q.Get("task_id"), q.Get("limit"))
	if err != nil {
		renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	offers, err := h.offerSrv.ListOffersFor(r.Context(), party, filter)
	if err != nil {
		renderServiceError(w, r, err, "failed to list offers")
		return
	}

	render.JSON(w, r, srvMappers.OfferListToApi(offers...))
}

// (GET /api/v1/offers/{id})
func (h *ServiceHandler) GetOffer(w http.ResponseWriter, r *http.Request) {
	party, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	offer, err := h.offerSrv.GetOffer(r.Context(), id)
	if err != nil {
		renderServiceError(w, r, err, "failed to get offer")
		return
	}

	// offers are private to their two parties
	if offer.Employer != party && offer.Worker != party {
		renderServiceError(w, r, service.NewErrNotAuthorized(party, "read offer "+id.String()), "")
		return
	}

	render.JSON(w, r, srvMappers.OfferToApi(*offer))
}

// (GET /api/v1/offers/{id}/job)
func (h *ServiceHandler) GetOfferJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	job, err := h.offerSrv.GetJob(r.Context(), id)
	if err != nil {
		renderServiceError(w, r, err, "failed to get job")
		return
	}

	render.JSON(w, r, srvMappers.JobToApi(*job))
}

// (POST /api/v1/offers/{id}/accept)
func (h *ServiceHandler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "accept offer", h.offerSrv.AcceptOffer)
}

// (POST /api/v1/offers/{id}/decline)
func (h *ServiceHandler) DeclineOffer(w http.ResponseWriter, r *http.Request) {
	worker, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	offer, err := h.offerSrv.DeclineOffer(r.Context(), id, worker)
	if err != nil {
		renderServiceError(w, r, err, "failed to decline offer")
		return
	}

	render.JSON(w, r, srvMappers.OfferToApi(*offer))
}

// (POST /api/v1/offers/{id}/cancel)
func (h *ServiceHandler) CancelOffer(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel offer", h.offerSrv.CancelOffer)
}

// (POST /api/v1/offers/{id}/publish)
func (h *ServiceHandler) PublishOffer(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "publish offer", h.offerSrv.ConvertToPublicJob)
}

// (POST /api/v1/offers/{id}/refund)
func (h *ServiceHandler) RefundOffer(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "refund offer", h.offerSrv.CancelAndRefund)
}

// (POST /api/v1/quotes)
func (h *ServiceHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var form v1alpha1.QuoteRequest
	if !decode(w, r, &form) {
		return
	}

	v := newValidator(validator.NewOfferValidationRules())
	if err := v.Struct(form); err != nil {
		renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := money.Parse(form.Amount)
	if err != nil {
		renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.offerSrv.Quote(r.Context(), amount, payment.Mode(form.Mode), form.DurationWeeks)
	if err != nil {
		renderServiceError(w, r, err, "failed to compute quote")
		return
	}

	render.JSON(w, r, srvMappers.QuoteToApi(result))
}

type offerTransition func(ctx context.Context, id uuid.UUID, party string) (service.Outcome, error)

// transition runs an operation that may involve the ledger and answers with its outcome.
func (h *ServiceHandler) transition(w http.ResponseWriter, r *http.Request, action string, fn offerTransition) {
	party, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	outcome, err := fn(r.Context(), id, party)
	if err != nil {
		renderServiceError(w, r, err, "failed to "+action)
		return
	}

	renderOutcome(w, r, outcome, mappers.OutcomeToApi(outcome))
}

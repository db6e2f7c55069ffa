package v1alpha1

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/taskbridge/marketplace/api/v1alpha1"
	"github.com/taskbridge/marketplace/internal/auth"
	"github.com/taskbridge/marketplace/internal/handlers/validator"
	"github.com/taskbridge/marketplace/internal/ledger"
	"github.com/taskbridge/marketplace/internal/payment"
	"github.com/taskbridge/marketplace/internal/service"
	"github.com/taskbridge/marketplace/pkg/money"
	"github.com/taskbridge/marketplace/pkg/requestid"
	"go.uber.org/zap"
)

type ServiceHandler struct {
	taskSrv   *service.TaskService
	offerSrv  *service.OfferService
	healthSrv *service.HealthService
}

func NewServiceHandler(taskService *service.TaskService, offerService *service.OfferService, healthService *service.HealthService) *ServiceHandler {
	return &ServiceHandler{
		taskSrv:   taskService,
		offerSrv:  offerService,
		healthSrv: healthService,
	}
}

// Routes mounts the marketplace API on r. The middlewares only guard /api/v1, /health stays open.
func (h *ServiceHandler) Routes(r chi.Router, middlewares ...func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewares...)

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", h.CreateTask)
			r.Get("/", h.ListTasks)
			r.Get("/{id}", h.GetTask)
			r.Delete("/{id}", h.DeleteTask)
			r.Post("/{id}/offers", h.CreateOffer)
		})

		r.Route("/offers", func(r chi.Router) {
			r.Get("/", h.ListOffers)
			r.Get("/{id}", h.GetOffer)
			r.Get("/{id}/job", h.GetOfferJob)
			r.Post("/{id}/accept", h.AcceptOffer)
			r.Post("/{id}/decline", h.DeclineOffer)
			r.Post("/{id}/cancel", h.CancelOffer)
			r.Post("/{id}/publish", h.PublishOffer)
			r.Post("/{id}/refund", h.RefundOffer)
		})

		r.Post("/quotes", h.Quote)
	})
}

// (GET /health)
func (h *ServiceHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.healthSrv.Check(r.Context()); err != nil {
		zap.S().Named("handler").Warnw("health check failed", "error", err)
		renderError(w, r, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func newValidator(rules ...[]validator.ValidationRule) *validator.Validator {
	v := validator.NewValidator()
	for _, r := range rules {
		v.Register(r...)
	}
	return v
}

// caller returns the authenticated party or answers 401.
func caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	party, found := auth.PartyFromContext(r.Context())
	if !found || party.Address == "" {
		renderError(w, r, http.StatusUnauthorized, "unauthenticated")
		return "", false
	}
	return party.Address, true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		renderError(w, r, http.StatusBadRequest, "empty body")
		return false
	}
	if err := render.DecodeJSON(r.Body, v); err != nil {
		renderError(w, r, http.StatusBadRequest, "malformed body")
		return false
	}
	return true
}

func renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, v1alpha1.Error{Message: msg, RequestId: requestid.FromContextPtr(r.Context())})
}

func renderOutcome(w http.ResponseWriter, r *http.Request, outcome service.Outcome, body any) {
	switch outcome.Status {
	case service.OutcomePending:
		render.Status(r, http.StatusAccepted)
	case service.OutcomeFailed:
		render.Status(r, http.StatusConflict)
	default:
		render.Status(r, http.StatusOK)
	}
	render.JSON(w, r, body)
}

// statusFor maps a service error onto its HTTP status code.
func statusFor(err error) int {
	var (
		notFound      *service.ErrResourceNotFound
		notAuthorized *service.ErrNotAuthorized
		notOpen       *service.ErrTaskNotOpen
		offered       *service.ErrTaskAlreadyOffered
		notPending    *service.ErrOfferNotPending
		notDeclined   *service.ErrOfferNotDeclined
		notFunded     *service.ErrOfferNotFunded
		refundFailed  *service.ErrRefundFailed
		invalid       *validator.ErrInvalidRequest
	)

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &notAuthorized):
		return http.StatusForbidden
	case errors.As(err, &notOpen), errors.As(err, &offered), errors.As(err, &notPending),
		errors.As(err, &notDeclined), errors.As(err, &notFunded):
		return http.StatusConflict
	case errors.As(err, &refundFailed):
		return http.StatusBadGateway
	case errors.Is(err, ledger.ErrRejected):
		return http.StatusUnprocessableEntity
	case errors.As(err, &invalid),
		errors.Is(err, payment.ErrInvalidAmount), errors.Is(err, payment.ErrInvalidDuration),
		errors.Is(err, payment.ErrInvalidMode), errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, money.ErrNegative):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func renderServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zap.S().Named("handler").Errorw(msg, "error", err, "request_id", requestid.FromRequest(r))
		renderError(w, r, status, msg)
		return
	}
	renderError(w, r, status, err.Error())
}

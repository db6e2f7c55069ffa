package v1alpha1

import (
	"net/http"

	"github.com/go-chi/render"
	"github.com/taskbridge/marketplace/api/v1alpha1"
	"github.com/taskbridge/marketplace/internal/handlers/v1alpha1/mappers"
	"github.com/taskbridge/marketplace/internal/handlers/validator"
	srvMappers "github.com/taskbridge/marketplace/internal/service/mappers"
)

// (POST /api/v1/tasks)
func (h *ServiceHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	worker, ok := caller(w, r)
	if !ok {
		return
	}

	var form v1alpha1.TaskCreate
	if !decode(w, r, &form) {
		return
	}

	v := newValidator(validator.NewTaskValidationRules())
	if err := v.Struct(form); err != nil {
		renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.taskSrv.CreateTask(r.Context(), srvMappers.TaskFormFromApi(worker, form))
	if err != nil {
		renderServiceError(w, r, err, "failed to create task")
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, srvMappers.TaskToApi(*task))
}

// (GET /api/v1/tasks)
func (h *ServiceHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := mappers.TaskFilterFromQuery(q.Get("tag"), q.Get("worker"), q.Get("limit"))
	if err != nil {
		renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	tasks, err := h.taskSrv.ListOpenTasks(r.Context(), filter)
	if err != nil {
		renderServiceError(w, r, err, "failed to list tasks")
		return
	}

	render.JSON(w, r, srvMappers.TaskListToApi(tasks...))
}

// (GET /api/v1/tasks/{id})
func (h *ServiceHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	task, err := h.taskSrv.GetTask(r.Context(), id)
	if err != nil {
		renderServiceError(w, r, err, "failed to get task")
		return
	}

	render.JSON(w, r, srvMappers.TaskToApi(*task))
}

// (DELETE /api/v1/tasks/{id})
func (h *ServiceHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	worker, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.taskSrv.DeleteTask(r.Context(), id, worker); err != nil {
		renderServiceError(w, r, err, "failed to delete task")
		return
	}

	render.NoContent(w, r)
}

// (POST /api/v1/tasks/{id}/offers)
func (h *ServiceHandler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	employer, ok := caller(w, r)
	if !ok {
		return
	}
	taskID, ok := pathID(w, r)
	if !ok {
		return
	}

	var form v1alpha1.OfferCreate
	if !decode(w, r, &form) {
		return
	}

	v := newValidator(validator.NewOfferValidationRules())
	if err := v.Struct(form); err != nil {
		renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	offerForm, err := srvMappers.OfferFormFromApi(taskID, employer, form)
	if err != nil {
		renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.offerSrv.CreateOffer(r.Context(), offerForm)
	if err != nil {
		renderServiceError(w, r, err, "failed to create offer")
		return
	}

	// a committed offer is a new resource
	if outcome.Committed() {
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, mappers.OutcomeToApi(outcome))
		return
	}
	renderOutcome(w, r, outcome, mappers.OutcomeToApi(outcome))
}

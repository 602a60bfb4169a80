package tasks

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/user/taskdesk-go/apperror"
	"github.com/user/taskdesk-go/respond"
	"github.com/user/taskdesk-go/session"
)

// Handlers exposes the task Service over HTTP.
type Handlers struct {
	service *Service
}

// NewHandlers creates new task Handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

func callerID(r *http.Request) (uuid.UUID, error) {
	userID, ok := session.UserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, apperror.NewAuthError("authentication required", nil)
	}
	return userID, nil
}

// taskIDParam parses the {id} route parameter. A malformed id is reported the
// same way as a missing task.
func taskIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, notFound()
	}
	return id, nil
}

// HandleList godoc
// @Summary List the caller's tasks
// @Description Newest first.
// @Tags tasks
// @Produce json
// @Security BearerAuth
// @Success 200 {array} tasks.Task
// @Failure 401 {object} apperror.ErrorResponse
// @Router /tasks [get]
func (h *Handlers) HandleList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, h.service.List(r.Context(), userID))
	}
}

// HandleCreate godoc
// @Summary Create a task
// @Tags tasks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body tasks.CreateTaskRequest true "Task"
// @Success 201 {object} tasks.Task
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Router /tasks [post]
func (h *Handlers) HandleCreate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		var req CreateTaskRequest
		if err := respond.DecodeJSON(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}

		task, err := h.service.Create(r.Context(), userID, req)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusCreated, task)
	}
}

// HandleGet godoc
// @Summary Get a task
// @Tags tasks
// @Produce json
// @Security BearerAuth
// @Param id path string true "Task ID"
// @Success 200 {object} tasks.Task
// @Failure 401 {object} apperror.ErrorResponse
// @Failure 404 {object} apperror.ErrorResponse
// @Router /tasks/{id} [get]
func (h *Handlers) HandleGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		taskID, err := taskIDParam(r)
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		task, err := h.service.Get(r.Context(), userID, taskID)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, task)
	}
}

// HandleUpdate godoc
// @Summary Partially update a task
// @Description Only the fields present in the body are changed. Sending "description": null clears it.
// @Tags tasks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Task ID"
// @Param body body tasks.UpdateTaskRequest true "Fields to change"
// @Success 200 {object} tasks.Task
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Failure 404 {object} apperror.ErrorResponse
// @Router /tasks/{id} [patch]
func (h *Handlers) HandleUpdate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		taskID, err := taskIDParam(r)
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		var req UpdateTaskRequest
		if err := respond.DecodeJSON(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}

		task, err := h.service.Update(r.Context(), userID, taskID, req)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, task)
	}
}

// HandleDelete godoc
// @Summary Delete a task
// @Tags tasks
// @Produce json
// @Security BearerAuth
// @Param id path string true "Task ID"
// @Success 200 {object} respond.MessageResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Failure 404 {object} apperror.ErrorResponse
// @Router /tasks/{id} [delete]
func (h *Handlers) HandleDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		taskID, err := taskIDParam(r)
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		if err := h.service.Delete(r.Context(), userID, taskID); err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.Message(w, http.StatusOK, "Task deleted successfully")
	}
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jobhub/apiserver/internal/services"
)

// JobHandler provides HTTP handlers for job postings.
type JobHandler struct {
	jobService *services.JobService
}

func NewJobHandler(jobService *services.JobService) *JobHandler {
	return &JobHandler{jobService: jobService}
}

// JobRouter registers job routes on the given router.
func JobRouter(r chi.Router, jobService *services.JobService) {
	handler := NewJobHandler(jobService)

	r.Get("/", handler.ListJobs)
	r.With(RequireAuth).Post("/", handler.CreateJob)
	r.Get("/by-category/{categoryID}", handler.ListByCategory)
	r.With(RequireAuth).Get("/my-jobs", handler.ListMine)
	r.Route("/{jobID}", func(r chi.Router) {
		r.Get("/", handler.GetJob)
		r.With(RequireAuth).Put("/", handler.UpdateJob)
		r.With(RequireAuth).Patch("/", handler.UpdateJob)
		r.With(RequireAuth).Delete("/", handler.DeleteJob)
	})
}

// ListJobs supports the filters category, job_type, location, is_active
// (admins only), search and ordering.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	page, limit, window, ok := pageRequest(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	isActive, err := parseOptionalBool(query.Get("is_active"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid is_active")
		return
	}

	items, total, err := h.jobService.List(r.Context(), actorFromContext(r.Context()), services.JobQuery{
		Category: query.Get("category"),
		JobType:  query.Get("job_type"),
		Location: query.Get("location"),
		Search:   query.Get("search"),
		Ordering: query.Get("ordering"),
		IsActive: isActive,
		Page:     window,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *JobHandler) ListByCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, err := parseIDParam(r, "categoryID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, limit, window, ok := pageRequest(w, r)
	if !ok {
		return
	}

	items, total, err := h.jobService.ByCategory(r.Context(), actorFromContext(r.Context()), categoryID, window)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *JobHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	page, limit, window, ok := pageRequest(w, r)
	if !ok {
		return
	}

	items, total, err := h.jobService.Mine(r.Context(), actorFromContext(r.Context()), window)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "jobID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.jobService.Get(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req services.JobInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.jobService.Create(r.Context(), actorFromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (h *JobHandler) UpdateJob(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "jobID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req services.JobInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	partial := r.Method == http.MethodPatch
	job, err := h.jobService.Update(r.Context(), actorFromContext(r.Context()), id, req, partial)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *JobHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "jobID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.jobService.Delete(r.Context(), actorFromContext(r.Context()), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

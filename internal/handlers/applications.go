package handlers

import (
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jobhub/apiserver/internal/logging"
	"github.com/jobhub/apiserver/internal/services"
)

// ApplicationHandler provides HTTP handlers for job applications.
type ApplicationHandler struct {
	applicationService *services.ApplicationService
}

func NewApplicationHandler(applicationService *services.ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{applicationService: applicationService}
}

// ApplicationRouter registers application routes on the given router.
// Every route needs a token.
func ApplicationRouter(r chi.Router, applicationService *services.ApplicationService) {
	handler := NewApplicationHandler(applicationService)

	r.Use(RequireAuth)
	r.Get("/", handler.ListApplications)
	r.Post("/", handler.Apply)
	r.Get("/my-applications", handler.ListMine)
	r.Get("/by-job/{jobID}", handler.ListByJob)
	r.Route("/{applicationID}", func(r chi.Router) {
		r.Get("/", handler.GetApplication)
		r.Put("/", handler.UpdateApplication)
		r.Patch("/", handler.UpdateApplication)
		r.Delete("/", handler.Withdraw)
		r.Patch("/update-status", handler.UpdateStatus)
		r.Get("/resume", handler.DownloadResume)
	})
}

// ListApplications supports the filters status and job.
func (h *ApplicationHandler) ListApplications(w http.ResponseWriter, r *http.Request) {
	page, limit, window, ok := pageRequest(w, r)
	if !ok {
		return
	}
	query := services.ApplicationQuery{Status: r.URL.Query().Get("status"), Page: window}
	if raw := strings.TrimSpace(r.URL.Query().Get("job")); raw != "" {
		jobID, err := strconv.Atoi(raw)
		if err != nil || jobID < 1 {
			writeError(w, http.StatusBadRequest, "invalid job")
			return
		}
		query.JobID = jobID
	}

	items, total, err := h.applicationService.List(r.Context(), actorFromContext(r.Context()), query)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *ApplicationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	page, limit, window, ok := pageRequest(w, r)
	if !ok {
		return
	}

	items, total, err := h.applicationService.Mine(r.Context(), actorFromContext(r.Context()), window)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *ApplicationHandler) ListByJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseIDParam(r, "jobID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, limit, window, ok := pageRequest(w, r)
	if !ok {
		return
	}

	items, total, err := h.applicationService.ListForJob(r.Context(), actorFromContext(r.Context()), jobID, window)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *ApplicationHandler) GetApplication(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "applicationID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	app, err := h.applicationService.Get(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// Apply accepts JSON with a resume reference, or a multipart form with
// job_id, cover_letter and a resume file.
func (h *ApplicationHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req services.ApplyInput
	if isMultipart(r) {
		if err := parseMultipart(w, r); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if raw, ok := formValue(r, formFieldJobID); ok && raw != "" {
			jobID, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid job_id")
				return
			}
			req.JobID = jobID
		}
		req.CoverLetter, _ = formValue(r, formFieldCoverLetter)
		req.Resume, _ = formValue(r, formFieldResume)

		upload, closeFile, err := formUpload(r, formFieldResume)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		defer closeFile()
		req.Upload = upload
	} else if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	app, err := h.applicationService.Apply(r.Context(), actorFromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

// UpdateApplication serves PUT (full) and PATCH (partial) edits of the
// cover letter and resume, as JSON or multipart.
func (h *ApplicationHandler) UpdateApplication(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "applicationID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req services.ApplicationInput
	if isMultipart(r) {
		if err := parseMultipart(w, r); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if value, ok := formValue(r, formFieldCoverLetter); ok {
			req.CoverLetter = &value
		}
		if value, ok := formValue(r, formFieldResume); ok {
			req.Resume = &value
		}
		upload, closeFile, err := formUpload(r, formFieldResume)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		defer closeFile()
		req.Upload = upload
	} else if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	partial := r.Method == http.MethodPatch
	app, err := h.applicationService.Update(r.Context(), actorFromContext(r.Context()), id, req, partial)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *ApplicationHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "applicationID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.applicationService.Withdraw(r.Context(), actorFromContext(r.Context()), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateStatus moves the application through the review workflow. Only
// status and notes are read from the body.
func (h *ApplicationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "applicationID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req services.StatusInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	app, err := h.applicationService.UpdateStatus(r.Context(), actorFromContext(r.Context()), id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// DownloadResume streams the stored resume file.
func (h *ApplicationHandler) DownloadResume(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "applicationID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, err := h.applicationService.OpenResume(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer file.Body.Close()

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, file.Body); err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("resume download interrupted")
	}
}

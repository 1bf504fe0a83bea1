package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jobhub/apiserver/internal/logging"
	"github.com/jobhub/apiserver/internal/policy"
	"github.com/jobhub/apiserver/internal/services"
	"github.com/jobhub/apiserver/internal/store"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
	maxJSONBytes = 1 << 20
)

type contextKey string

const contextActorKey contextKey = "actor"

func withActor(ctx context.Context, actor policy.Actor) context.Context {
	return context.WithValue(ctx, contextActorKey, actor)
}

// actorFromContext returns the authenticated caller, or the anonymous
// actor when the request carried no token.
func actorFromContext(ctx context.Context) policy.Actor {
	actor, ok := ctx.Value(contextActorKey).(policy.Actor)
	if !ok {
		return policy.Anonymous()
	}
	return actor
}

// ErrorResponse is the error payload of every endpoint.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Kind   string            `json:"kind,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ListResponse is the paginated list response payload.
type ListResponse struct {
	Items any `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

var statusByKind = map[services.Kind]int{
	services.KindValidation:        http.StatusBadRequest,
	services.KindUnauthenticated:   http.StatusUnauthorized,
	services.KindForbidden:         http.StatusForbidden,
	services.KindNotFound:          http.StatusNotFound,
	services.KindConflict:          http.StatusConflict,
	services.KindInvalidTransition: http.StatusConflict,
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	resp := ErrorResponse{Error: message}
	switch status {
	case http.StatusBadRequest:
		resp.Kind = string(services.KindValidation)
	case http.StatusUnauthorized:
		resp.Kind = string(services.KindUnauthenticated)
	case http.StatusForbidden:
		resp.Kind = string(services.KindForbidden)
	case http.StatusNotFound:
		resp.Kind = string(services.KindNotFound)
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps a service error to its HTTP status. Unclassified
// errors are logged and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		logging.FromContext(r.Context()).WithError(err).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Kind:  string(services.KindInternal),
		})
		return
	}
	status, ok := statusByKind[svcErr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	message := svcErr.Message
	if message == "" {
		message = string(svcErr.Kind)
	}
	writeJSON(w, status, ErrorResponse{Error: message, Kind: string(svcErr.Kind), Fields: svcErr.Fields})
}

// decodeJSON reads a JSON request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxJSONBytes))
	if err := decoder.Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

func parsePagination(r *http.Request) (page, limit, offset int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, 0, errors.New("invalid page")
		}
	}

	rawLimit := strings.TrimSpace(r.URL.Query().Get("limit"))
	if rawLimit == "" {
		rawLimit = strings.TrimSpace(r.URL.Query().Get("per_page"))
	}
	if rawLimit != "" {
		limit, err = strconv.Atoi(rawLimit)
		if err != nil || limit < 1 {
			return 0, 0, 0, errors.New("invalid limit")
		}
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	offset = (page - 1) * limit
	return page, limit, offset, nil
}

// pageRequest parses pagination and writes a 400 on failure.
func pageRequest(w http.ResponseWriter, r *http.Request) (page, limit int, window store.Page, ok bool) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, 0, store.Page{}, false
	}
	return page, limit, store.Page{Offset: offset, Limit: limit}, true
}

func parseIDParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid " + strings.TrimSuffix(name, "ID") + " id")
	}
	return id, nil
}

func parseOptionalBool(raw string) (*bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

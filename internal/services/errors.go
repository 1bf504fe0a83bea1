package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jobhub/apiserver/internal/store"
	"github.com/jobhub/apiserver/internal/workflow"
)

// Kind classifies a service failure. Handlers map kinds to HTTP statuses.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindUnauthenticated   Kind = "unauthenticated"
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindInvalidTransition Kind = "invalid_transition"
	KindInternal          Kind = "internal"
)

// Error is a classified service failure. Fields maps request field names
// to per-field messages.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+e.Fields[key])
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works for every not-found failure.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrUnauthenticated   = &Error{Kind: KindUnauthenticated}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func validationError(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "invalid input", Fields: fields}
}

func fieldError(field, message string) *Error {
	return validationError(map[string]string{field: message})
}

func notFound(resource string) *Error {
	return newError(KindNotFound, "%s not found", resource)
}

func forbidden(format string, args ...any) *Error {
	return newError(KindForbidden, format, args...)
}

// KindOf reports the kind of err; unclassified errors are internal.
func KindOf(err error) Kind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}

// translate maps store and workflow errors onto the service taxonomy.
// resource names the row type for not-found messages.
func translate(err error, resource string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return notFound(resource)
	case errors.Is(err, store.ErrConflict):
		return conflictFor(err, resource)
	case errors.Is(err, store.ErrInvalidReference):
		return invalidReference(err)
	case errors.Is(err, store.ErrInvalidValue):
		return newError(KindValidation, "%s has a value out of range", resource)
	case errors.Is(err, workflow.ErrUnknownStatus):
		return fieldError("status", err.Error())
	case errors.Is(err, workflow.ErrInvalidTransition):
		return newError(KindInvalidTransition, "%s", err.Error())
	default:
		return err
	}
}

// constraintFields names the request field behind each unique constraint.
var constraintFields = map[string]string{
	"users_email_key":                "email",
	"categories_name_key":            "name",
	"categories_slug_key":            "slug",
	"applications_job_applicant_key": "job_id",
}

var referenceFields = map[string]string{
	"jobs_category_id_fkey":          "category_id",
	"jobs_posted_by_fkey":            "posted_by",
	"applications_job_id_fkey":       "job_id",
	"applications_applicant_id_fkey": "applicant_id",
}

func conflictFor(err error, resource string) *Error {
	for constraint, field := range constraintFields {
		if strings.Contains(err.Error(), constraint) {
			return &Error{
				Kind:    KindConflict,
				Message: fmt.Sprintf("%s with this %s already exists", resource, field),
				Fields:  map[string]string{field: "already exists"},
			}
		}
	}
	return newError(KindConflict, "%s already exists", resource)
}

func invalidReference(err error) *Error {
	for constraint, field := range referenceFields {
		if strings.Contains(err.Error(), constraint) {
			return fieldError(field, "does not exist")
		}
	}
	return newError(KindValidation, "referenced record does not exist")
}

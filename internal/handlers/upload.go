package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jobhub/apiserver/internal/services"
)

const (
	maxMultipartMemory = 8 << 20
	// maxUploadBody leaves room for the other form fields next to a resume.
	maxUploadBody = services.MaxResumeBytes + 1<<20

	formFieldResume      = "resume"
	formFieldJobID       = "job_id"
	formFieldCoverLetter = "cover_letter"
)

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data")
}

func parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return errors.New("invalid multipart form")
	}
	return nil
}

// formUpload returns the file sent in field, or nil when the field is
// absent. The caller closes the file with the returned func.
func formUpload(r *http.Request, field string) (*services.Upload, func(), error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return nil, func() {}, nil
	}
	header := r.MultipartForm.File[field][0]
	file, err := header.Open()
	if err != nil {
		return nil, func() {}, errors.New("failed to read " + field)
	}
	upload := &services.Upload{
		Filename: header.Filename,
		Size:     header.Size,
		Body:     file,
	}
	return upload, func() { _ = file.Close() }, nil
}

// formValue returns a trimmed form value and whether the field was sent.
func formValue(r *http.Request, field string) (string, bool) {
	if r.MultipartForm == nil {
		return "", false
	}
	values, ok := r.MultipartForm.Value[field]
	if !ok || len(values) == 0 {
		return "", false
	}
	return strings.TrimSpace(values[0]), true
}

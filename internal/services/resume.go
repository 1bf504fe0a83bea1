package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/jobhub/apiserver/internal/storage"
	"github.com/sirupsen/logrus"
)

const (
	// MaxResumeBytes caps a single resume upload.
	MaxResumeBytes = 5 << 20

	accountResumePrefix     = "resumes"
	applicationResumePrefix = "application_resumes"
)

var resumeContentTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain",
}

// Upload is a file received from a client.
type Upload struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// ResumeFile is an opened stored resume.
type ResumeFile struct {
	Filename    string
	ContentType string
	Body        io.ReadCloser
}

// ResumeReferences counts rows that point at a stored resume.
type ResumeReferences interface {
	CountByResume(ctx context.Context, resume string) (int, error)
}

// ResumeService stores resume files in object storage. A nil storage
// disables uploads.
type ResumeService struct {
	storage    *storage.Storage
	logger     logrus.FieldLogger
	references []ResumeReferences
}

func NewResumeService(s *storage.Storage, logger logrus.FieldLogger) *ResumeService {
	return &ResumeService{storage: s, logger: logger}
}

// WithReferences makes removal skip objects still referenced through any
// of refs. One key may back an account and several applications.
func (s *ResumeService) WithReferences(refs ...ResumeReferences) *ResumeService {
	s.references = append(s.references, refs...)
	return s
}

// Enabled reports whether a storage backend is configured.
func (s *ResumeService) Enabled() bool {
	return s != nil && s.storage != nil
}

func (s *ResumeService) saveAccountResume(ctx context.Context, userID int, upload Upload) (string, error) {
	return s.save(ctx, accountResumePrefix, userID, upload)
}

func (s *ResumeService) saveApplicationResume(ctx context.Context, userID int, upload Upload) (string, error) {
	return s.save(ctx, applicationResumePrefix, userID, upload)
}

func (s *ResumeService) save(ctx context.Context, prefix string, userID int, upload Upload) (string, error) {
	if !s.Enabled() {
		return "", fieldError("resume", "resume uploads are not configured")
	}
	ext := strings.ToLower(path.Ext(upload.Filename))
	contentType, ok := resumeContentTypes[ext]
	if !ok {
		return "", fieldError("resume", "resume must be a .pdf, .doc, .docx or .txt file")
	}
	if upload.Size <= 0 {
		return "", fieldError("resume", "resume file is empty")
	}
	if upload.Size > MaxResumeBytes {
		return "", fieldError("resume", fmt.Sprintf("resume must be at most %d bytes", MaxResumeBytes))
	}

	key := fmt.Sprintf("%s/%d/%s%s", prefix, userID, uuid.NewString(), ext)
	body := io.LimitReader(upload.Body, MaxResumeBytes)
	if err := s.storage.Put(ctx, key, body, upload.Size, contentType); err != nil {
		return "", fmt.Errorf("store resume: %w", err)
	}
	return key, nil
}

// open streams a stored resume. References that are not keys written by
// this service (for example external URLs) are reported as not found.
func (s *ResumeService) open(ctx context.Context, key string) (ResumeFile, error) {
	if !s.Enabled() || !managedKey(key) {
		return ResumeFile{}, notFound("resume file")
	}
	body, err := s.storage.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return ResumeFile{}, notFound("resume file")
		}
		return ResumeFile{}, fmt.Errorf("open resume: %w", err)
	}
	contentType := mime.TypeByExtension(path.Ext(key))
	if known, ok := resumeContentTypes[path.Ext(key)]; ok {
		contentType = known
	}
	return ResumeFile{Filename: path.Base(key), ContentType: contentType, Body: body}, nil
}

// remove deletes stored resumes that no account or application points at
// any more. Callers drop their own reference first. Failures are logged and
// never returned.
func (s *ResumeService) remove(ctx context.Context, keys ...string) {
	if !s.Enabled() {
		return
	}
	for _, key := range keys {
		if !managedKey(key) {
			continue
		}
		entry := s.logger.WithField("key", key)
		inUse, err := s.referenced(ctx, key)
		if err != nil {
			entry.WithError(err).Warn("failed to count resume references; keeping object")
			continue
		}
		if inUse {
			entry.Debug("resume still referenced; keeping object")
			continue
		}
		if err := s.storage.Delete(ctx, key); err != nil {
			entry.WithError(err).Warn("failed to delete resume object")
		}
	}
}

func (s *ResumeService) referenced(ctx context.Context, key string) (bool, error) {
	for _, refs := range s.references {
		count, err := refs.CountByResume(ctx, key)
		if err != nil {
			return false, err
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

// removeApplicationResumes deletes only objects uploaded with an
// application. The account resume is managed through SetResume.
func (s *ResumeService) removeApplicationResumes(ctx context.Context, keys ...string) {
	owned := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.HasPrefix(key, applicationResumePrefix+"/") {
			owned = append(owned, key)
		}
	}
	s.remove(ctx, owned...)
}

func managedKey(key string) bool {
	return strings.HasPrefix(key, accountResumePrefix+"/") || strings.HasPrefix(key, applicationResumePrefix+"/")
}

// checkReference validates a resume given by reference. Stored keys must
// belong to userID; anything else (an external URL, a file name) is kept
// as an opaque string.
func checkReference(ref string, userID int) error {
	if ref == "" {
		return fieldError("resume", "this field is required")
	}
	if len(ref) > 500 {
		return fieldError("resume", "must be at most 500 characters")
	}
	if !managedKey(ref) {
		return nil
	}
	owner := fmt.Sprintf("/%d/", userID)
	if !strings.HasPrefix(ref, accountResumePrefix+owner) && !strings.HasPrefix(ref, applicationResumePrefix+owner) {
		return fieldError("resume", "unknown resume file")
	}
	return nil
}

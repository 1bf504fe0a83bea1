package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jobhub/apiserver/internal/events"
	"github.com/jobhub/apiserver/internal/metrics"
	"github.com/jobhub/apiserver/internal/policy"
	"github.com/jobhub/apiserver/internal/store"
	"github.com/jobhub/apiserver/internal/workflow"
	"github.com/jobhub/apiserver/types"
)

// ApplicationRepository defines persistence operations for applications.
type ApplicationRepository interface {
	List(ctx context.Context, filter store.ApplicationFilter) ([]types.Application, int, error)
	ResumeKeys(ctx context.Context, filter store.ApplicationFilter) ([]string, error)
	CountByJob(ctx context.Context, jobID int) (int, error)
	CountByResume(ctx context.Context, resume string) (int, error)
	Get(ctx context.Context, id int) (types.Application, error)
	GetByJobAndApplicant(ctx context.Context, jobID, applicantID int) (types.Application, error)
	Create(ctx context.Context, app types.Application) (types.Application, error)
	Update(ctx context.Context, app types.Application) (types.Application, error)
	UpdateStatus(ctx context.Context, app types.Application) (types.Application, error)
	Delete(ctx context.Context, id int) error
}

// ApplicationOptions configures the review workflow.
type ApplicationOptions struct {
	StatusMode workflow.Mode
	// LockDecided forbids applicant edits and withdrawals once the
	// application is accepted or rejected.
	LockDecided bool
	// EnforceDeadline closes a job to new applications the day after its
	// application_deadline.
	EnforceDeadline bool
}

// ApplicationService encapsulates application use-cases.
type ApplicationService struct {
	repo    ApplicationRepository
	jobs    JobRepository
	resumes *ResumeService
	events  events.Publisher
	opts    ApplicationOptions
	now     func() time.Time
}

func NewApplicationService(
	repo ApplicationRepository,
	jobs JobRepository,
	resumes *ResumeService,
	publisher events.Publisher,
	opts ApplicationOptions,
) *ApplicationService {
	if opts.StatusMode == "" {
		opts.StatusMode = workflow.ModePermissive
	}
	return &ApplicationService{
		repo:    repo,
		jobs:    jobs,
		resumes: resumes,
		events:  publisher,
		opts:    opts,
		now:     time.Now,
	}
}

// ApplyInput is a new application. The resume is either an uploaded file
// or a reference string.
type ApplyInput struct {
	JobID       int     `json:"job_id"`
	CoverLetter string  `json:"cover_letter"`
	Resume      string  `json:"resume"`
	Upload      *Upload `json:"-"`
}

// ApplicationInput carries applicant edits. Nil fields are left unchanged.
type ApplicationInput struct {
	CoverLetter *string `json:"cover_letter"`
	Resume      *string `json:"resume"`
	Upload      *Upload `json:"-"`
}

// StatusInput carries a review update.
type StatusInput struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

// ApplicationQuery holds the listing filters.
type ApplicationQuery struct {
	Status string
	JobID  int
	Page   store.Page
}

func (s *ApplicationService) List(ctx context.Context, actor policy.Actor, q ApplicationQuery) ([]types.Application, int, error) {
	scope := policy.ApplicationScope(actor)
	if scope.Empty {
		return nil, 0, ErrUnauthenticated
	}
	filter := store.ApplicationFilter{ApplicantID: scope.OwnerID, JobID: q.JobID, Page: q.Page}
	if strings.TrimSpace(q.Status) != "" {
		status, err := workflow.Parse(q.Status)
		if err != nil {
			return nil, 0, translate(err, "application")
		}
		filter.Status = status
	}
	return s.repo.List(ctx, filter)
}

// Mine lists the caller's own applications, for admins too.
func (s *ApplicationService) Mine(ctx context.Context, actor policy.Actor, page store.Page) ([]types.Application, int, error) {
	if !actor.Authenticated() {
		return nil, 0, ErrUnauthenticated
	}
	return s.repo.List(ctx, store.ApplicationFilter{ApplicantID: actor.ID, Page: page})
}

// ListForJob lists every application to one job. Admin only.
func (s *ApplicationService) ListForJob(ctx context.Context, actor policy.Actor, jobID int, page store.Page) ([]types.Application, int, error) {
	if !actor.Authenticated() {
		return nil, 0, ErrUnauthenticated
	}
	if !policy.CanListApplicationsForJob(actor) {
		return nil, 0, forbidden("admin access required")
	}
	return s.repo.List(ctx, store.ApplicationFilter{JobID: jobID, Page: page})
}

func (s *ApplicationService) Get(ctx context.Context, actor policy.Actor, id int) (types.Application, error) {
	if !actor.Authenticated() {
		return types.Application{}, ErrUnauthenticated
	}
	app, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Application{}, translate(err, "application")
	}
	if !policy.CanViewApplication(actor, app) {
		return types.Application{}, notFound("application")
	}
	return app, nil
}

// Apply submits an application for the caller. The job must be open to
// the caller and its deadline must not have passed.
func (s *ApplicationService) Apply(ctx context.Context, actor policy.Actor, in ApplyInput) (types.Application, error) {
	if !actor.Authenticated() {
		return types.Application{}, ErrUnauthenticated
	}
	if !policy.CanCreateApplication(actor) {
		return types.Application{}, forbidden("cannot apply to jobs")
	}

	fields := map[string]string{}
	if in.JobID <= 0 {
		fields["job_id"] = "this field is required"
	}
	coverLetter := strings.TrimSpace(in.CoverLetter)
	if coverLetter == "" {
		fields["cover_letter"] = "this field is required"
	}
	reference := strings.TrimSpace(in.Resume)
	if in.Upload == nil {
		var svcErr *Error
		if err := checkReference(reference, actor.ID); errors.As(err, &svcErr) {
			fields["resume"] = svcErr.Fields["resume"]
		}
	}
	if len(fields) > 0 {
		return types.Application{}, validationError(fields)
	}

	if err := s.checkOpen(ctx, actor, in.JobID); err != nil {
		return types.Application{}, err
	}
	if _, err := s.repo.GetByJobAndApplicant(ctx, in.JobID, actor.ID); err == nil {
		return types.Application{}, alreadyApplied()
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.Application{}, err
	}

	if in.Upload != nil {
		key, err := s.resumes.saveApplicationResume(ctx, actor.ID, *in.Upload)
		if err != nil {
			return types.Application{}, err
		}
		reference = key
	}

	created, err := s.repo.Create(ctx, types.Application{
		JobID:       in.JobID,
		ApplicantID: actor.ID,
		CoverLetter: coverLetter,
		Resume:      reference,
		Status:      types.StatusPending,
	})
	if err != nil {
		if in.Upload != nil {
			s.resumes.remove(ctx, reference)
		}
		if errors.Is(err, store.ErrConflict) {
			return types.Application{}, alreadyApplied()
		}
		return types.Application{}, translate(err, "application")
	}

	metrics.RecordApplicationCreated()
	s.events.Publish(ctx, events.New(events.ApplicationCreated, actor.ID, created.ID, map[string]string{
		"job_id": strconv.Itoa(created.JobID),
	}))
	return s.reload(ctx, created.ID)
}

// Update edits the cover letter and resume. A full update (partial false)
// requires both.
func (s *ApplicationService) Update(ctx context.Context, actor policy.Actor, id int, in ApplicationInput, partial bool) (types.Application, error) {
	app, err := s.modifiable(ctx, actor, id)
	if err != nil {
		return types.Application{}, err
	}

	if !partial {
		fields := map[string]string{}
		if in.CoverLetter == nil {
			fields["cover_letter"] = "this field is required"
		}
		if in.Resume == nil && in.Upload == nil {
			fields["resume"] = "this field is required"
		}
		if len(fields) > 0 {
			return types.Application{}, validationError(fields)
		}
	}

	if in.CoverLetter != nil {
		app.CoverLetter = strings.TrimSpace(*in.CoverLetter)
		if app.CoverLetter == "" {
			return types.Application{}, fieldError("cover_letter", "this field is required")
		}
	}

	previous := app.Resume
	switch {
	case in.Upload != nil:
		key, err := s.resumes.saveApplicationResume(ctx, app.ApplicantID, *in.Upload)
		if err != nil {
			return types.Application{}, err
		}
		app.Resume = key
	case in.Resume != nil:
		reference := strings.TrimSpace(*in.Resume)
		if err := checkReference(reference, app.ApplicantID); err != nil {
			return types.Application{}, err
		}
		app.Resume = reference
	}

	if _, err := s.repo.Update(ctx, app); err != nil {
		if in.Upload != nil {
			s.resumes.remove(ctx, app.Resume)
		}
		return types.Application{}, translate(err, "application")
	}
	if previous != app.Resume {
		s.resumes.removeApplicationResumes(ctx, previous)
	}

	s.events.Publish(ctx, events.New(events.ApplicationUpdated, actor.ID, app.ID, nil))
	return s.reload(ctx, app.ID)
}

// Withdraw deletes the application and its uploaded resume.
func (s *ApplicationService) Withdraw(ctx context.Context, actor policy.Actor, id int) error {
	app, err := s.modifiable(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, app.ID); err != nil {
		return translate(err, "application")
	}
	s.resumes.removeApplicationResumes(ctx, app.Resume)
	s.events.Publish(ctx, events.New(events.ApplicationWithdrawn, actor.ID, app.ID, map[string]string{
		"job_id": strconv.Itoa(app.JobID),
	}))
	return nil
}

// UpdateStatus moves an application through the review workflow and
// optionally records admin notes. Admin only.
func (s *ApplicationService) UpdateStatus(ctx context.Context, actor policy.Actor, id int, in StatusInput) (types.Application, error) {
	if !actor.Authenticated() {
		return types.Application{}, ErrUnauthenticated
	}
	if !policy.CanChangeApplicationStatus(actor) {
		return types.Application{}, forbidden("admin access required")
	}

	app, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Application{}, translate(err, "application")
	}
	if !policy.CanViewApplication(actor, app) {
		return types.Application{}, notFound("application")
	}

	from := app.Status
	if in.Status != nil {
		to, err := workflow.Parse(*in.Status)
		if err != nil {
			return types.Application{}, translate(err, "application")
		}
		if err := workflow.Validate(from, to, s.opts.StatusMode); err != nil {
			return types.Application{}, translate(err, "application")
		}
		app.Status = to
	}
	if in.Notes != nil {
		app.Notes = strings.TrimSpace(*in.Notes)
	}

	if _, err := s.repo.UpdateStatus(ctx, app); err != nil {
		return types.Application{}, translate(err, "application")
	}
	if app.Status != from {
		metrics.RecordStatusChange(string(app.Status))
		s.events.Publish(ctx, events.New(events.ApplicationStatusChanged, actor.ID, app.ID, map[string]string{
			"from": string(from),
			"to":   string(app.Status),
		}))
	}
	return s.reload(ctx, app.ID)
}

// OpenResume streams the resume stored for an application.
func (s *ApplicationService) OpenResume(ctx context.Context, actor policy.Actor, id int) (ResumeFile, error) {
	app, err := s.Get(ctx, actor, id)
	if err != nil {
		return ResumeFile{}, err
	}
	return s.resumes.open(ctx, app.Resume)
}

// modifiable loads an application the actor may edit or withdraw.
func (s *ApplicationService) modifiable(ctx context.Context, actor policy.Actor, id int) (types.Application, error) {
	app, err := s.Get(ctx, actor, id)
	if err != nil {
		return types.Application{}, err
	}
	if !policy.CanModifyApplication(actor, app) {
		return types.Application{}, forbidden("cannot modify this application")
	}
	if s.opts.LockDecided && !actor.IsAdmin() && workflow.IsTerminal(app.Status) {
		return types.Application{}, forbidden("application has been %s and can no longer be changed", app.Status)
	}
	return app, nil
}

func (s *ApplicationService) checkOpen(ctx context.Context, actor policy.Actor, jobID int) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fieldError("job_id", "does not exist")
		}
		return err
	}
	if !policy.CanViewJob(actor, job) {
		return fieldError("job_id", "job is not open for applications")
	}
	if s.opts.EnforceDeadline && job.ApplicationDeadline != nil {
		now := s.now().UTC()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		deadline := job.ApplicationDeadline.UTC()
		if today.After(time.Date(deadline.Year(), deadline.Month(), deadline.Day(), 0, 0, 0, 0, time.UTC)) {
			return fieldError("job_id", "the application deadline has passed")
		}
	}
	return nil
}

func (s *ApplicationService) reload(ctx context.Context, id int) (types.Application, error) {
	app, err := s.repo.Get(ctx, id)
	return app, translate(err, "application")
}

func alreadyApplied() *Error {
	return &Error{
		Kind:    KindConflict,
		Message: "you have already applied for this job",
		Fields:  map[string]string{"job_id": "already applied"},
	}
}

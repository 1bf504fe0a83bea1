package types

import "time"

// ApplicationStatus is the review state of an application.
type ApplicationStatus string

// Supported application statuses. Pending is the initial status;
// rejected and accepted are terminal.
const (
	StatusPending     ApplicationStatus = "pending"
	StatusReviewed    ApplicationStatus = "reviewed"
	StatusShortlisted ApplicationStatus = "shortlisted"
	StatusRejected    ApplicationStatus = "rejected"
	StatusAccepted    ApplicationStatus = "accepted"
)

// Application links an applicant to a job.
// At most one application exists per (job, applicant) pair.
type Application struct {
	// ID is the unique identifier of the application.
	ID int `json:"id" db:"id"`

	// JobID references the job applied to.
	JobID int `json:"job_id" db:"job_id"`

	// ApplicantID references the applying account.
	ApplicantID int `json:"applicant_id" db:"applicant_id"`

	// CoverLetter is the applicant's cover letter.
	CoverLetter string `json:"cover_letter" db:"cover_letter"`

	// Resume is the object storage key (or external reference) of the resume.
	Resume string `json:"resume" db:"resume"`

	// Status is the current review status.
	Status ApplicationStatus `json:"status" db:"status"`

	// Notes are admin notes.
	Notes string `json:"notes" db:"notes"`

	// JobTitle is a read-only projection of the job's title.
	JobTitle string `json:"job_title" db:"-"`

	// CompanyName is a read-only projection of the job's company.
	CompanyName string `json:"company_name" db:"-"`

	// ApplicantEmail is a read-only projection of the applicant's email.
	ApplicantEmail string `json:"applicant_email" db:"-"`

	// AppliedAt is the timestamp when the application was submitted.
	AppliedAt time.Time `json:"applied_at" db:"applied_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

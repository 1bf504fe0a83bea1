package types

import "time"

// Supported job types.
const (
	JobTypeFullTime   = "full-time"
	JobTypePartTime   = "part-time"
	JobTypeContract   = "contract"
	JobTypeInternship = "internship"
)

// ValidJobType reports whether t is a supported job type.
func ValidJobType(t string) bool {
	switch t {
	case JobTypeFullTime, JobTypePartTime, JobTypeContract, JobTypeInternship:
		return true
	default:
		return false
	}
}

// Job represents a job posting.
type Job struct {
	// ID is the unique identifier of the job.
	ID int `json:"id" db:"id"`

	// Title is the job title.
	Title string `json:"title" db:"title"`

	// Description is the full description of the position.
	Description string `json:"description" db:"description"`

	// Requirements lists what the candidate needs.
	Requirements string `json:"requirements" db:"requirements"`

	// Responsibilities lists what the role involves.
	Responsibilities string `json:"responsibilities" db:"responsibilities"`

	// Benefits is optional.
	Benefits string `json:"benefits" db:"benefits"`

	// CompanyName is the hiring company.
	CompanyName string `json:"company_name" db:"company_name"`

	// Location is where the job is based.
	Location string `json:"location" db:"location"`

	// JobType is one of full-time, part-time, contract, internship.
	JobType string `json:"job_type" db:"job_type"`

	// SalaryMin is the lower salary bound, if published.
	SalaryMin *float64 `json:"salary_min" db:"salary_min"`

	// SalaryMax is the upper salary bound, if published.
	// When both bounds are set SalaryMin <= SalaryMax.
	SalaryMax *float64 `json:"salary_max" db:"salary_max"`

	// ApplicationDeadline is the last day applications are accepted, if any.
	ApplicationDeadline *time.Time `json:"application_deadline" db:"application_deadline"`

	// IsActive controls visibility to non-admin users.
	IsActive bool `json:"is_active" db:"is_active"`

	// CategoryID references the job's category.
	CategoryID int `json:"category_id" db:"category_id"`

	// PostedByID references the account that posted the job.
	PostedByID int `json:"posted_by_id" db:"posted_by"`

	// CategoryName is a read-only projection of the category's name.
	CategoryName string `json:"category_name" db:"-"`

	// PostedByName is a read-only projection of the poster's full name.
	PostedByName string `json:"posted_by_name" db:"-"`

	// Category is the nested category, populated on detail reads.
	Category *Category `json:"category,omitempty" db:"-"`

	// PostedBy is the nested poster profile, populated on detail reads.
	PostedBy *User `json:"posted_by,omitempty" db:"-"`

	// ApplicationsCount is the number of applications, populated on detail reads.
	ApplicationsCount *int `json:"applications_count,omitempty" db:"-"`

	// CreatedAt is the timestamp when the job was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

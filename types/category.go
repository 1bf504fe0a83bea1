package types

import "time"

// Category groups job postings. Categories are addressed by slug.
type Category struct {
	// ID is the unique identifier of the category.
	ID int `json:"id" db:"id"`

	// Name is the unique human-readable name.
	Name string `json:"name" db:"name"`

	// Slug is the unique URL-safe identifier.
	Slug string `json:"slug" db:"slug"`

	// Description is a free-form description.
	Description string `json:"description" db:"description"`

	// JobsCount is the number of active jobs in the category.
	// It is computed on read and ignored on write.
	JobsCount int `json:"jobs_count" db:"-"`

	// CreatedAt is the timestamp when the category was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

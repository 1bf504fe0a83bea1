package services

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jobhub/apiserver/internal/events"
	"github.com/jobhub/apiserver/internal/policy"
	"github.com/jobhub/apiserver/internal/store"
	"github.com/jobhub/apiserver/types"
)

var (
	slugPattern   = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	slugSeparator = regexp.MustCompile(`[^a-z0-9]+`)
)

// CategoryRepository defines persistence operations for categories.
type CategoryRepository interface {
	List(ctx context.Context, page store.Page) ([]types.Category, int, error)
	GetByID(ctx context.Context, id int) (types.Category, error)
	GetBySlug(ctx context.Context, slug string) (types.Category, error)
	Create(ctx context.Context, category types.Category) (types.Category, error)
	Update(ctx context.Context, category types.Category) (types.Category, error)
	Delete(ctx context.Context, id int) error
}

// CategoryService encapsulates category use-cases.
type CategoryService struct {
	repo    CategoryRepository
	apps    ApplicationRepository
	resumes *ResumeService
	events  events.Publisher
}

func NewCategoryService(repo CategoryRepository, apps ApplicationRepository, resumes *ResumeService, publisher events.Publisher) *CategoryService {
	return &CategoryService{repo: repo, apps: apps, resumes: resumes, events: publisher}
}

// CategoryInput carries category writes. Nil fields are left unchanged;
// an omitted slug on create is derived from the name.
type CategoryInput struct {
	Name        *string `json:"name"`
	Slug        *string `json:"slug"`
	Description *string `json:"description"`
}

func (s *CategoryService) List(ctx context.Context, page store.Page) ([]types.Category, int, error) {
	return s.repo.List(ctx, page)
}

func (s *CategoryService) Get(ctx context.Context, slug string) (types.Category, error) {
	category, err := s.repo.GetBySlug(ctx, slug)
	return category, translate(err, "category")
}

func (s *CategoryService) Create(ctx context.Context, actor policy.Actor, in CategoryInput) (types.Category, error) {
	if err := s.authorize(actor); err != nil {
		return types.Category{}, err
	}

	var category types.Category
	applyCategoryInput(&category, in)
	if in.Slug == nil || strings.TrimSpace(*in.Slug) == "" {
		category.Slug = Slugify(category.Name)
	}
	if fields := validateCategory(category); len(fields) > 0 {
		return types.Category{}, validationError(fields)
	}

	created, err := s.repo.Create(ctx, category)
	return created, translate(err, "category")
}

// Update edits the category addressed by slug. A full update (partial
// false) requires a name.
func (s *CategoryService) Update(ctx context.Context, actor policy.Actor, slug string, in CategoryInput, partial bool) (types.Category, error) {
	if err := s.authorize(actor); err != nil {
		return types.Category{}, err
	}
	if !partial && in.Name == nil {
		return types.Category{}, fieldError("name", "this field is required")
	}

	category, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return types.Category{}, translate(err, "category")
	}
	applyCategoryInput(&category, in)
	if in.Slug != nil && strings.TrimSpace(*in.Slug) == "" {
		category.Slug = Slugify(category.Name)
	}
	if fields := validateCategory(category); len(fields) > 0 {
		return types.Category{}, validationError(fields)
	}

	updated, err := s.repo.Update(ctx, category)
	if err != nil {
		return types.Category{}, translate(err, "category")
	}
	return s.Get(ctx, updated.Slug)
}

// Delete removes the category with all of its jobs and their applications.
func (s *CategoryService) Delete(ctx context.Context, actor policy.Actor, slug string) error {
	if err := s.authorize(actor); err != nil {
		return err
	}
	category, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return translate(err, "category")
	}

	keys, err := s.apps.ResumeKeys(ctx, store.ApplicationFilter{CategoryID: category.ID})
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, category.ID); err != nil {
		return translate(err, "category")
	}
	s.resumes.removeApplicationResumes(ctx, keys...)
	s.events.Publish(ctx, events.New(events.CategoryDeleted, actor.ID, category.ID, map[string]string{
		"slug":                 category.Slug,
		"removed_applications": strconv.Itoa(len(keys)),
	}))
	return nil
}

func (s *CategoryService) authorize(actor policy.Actor) error {
	if !actor.Authenticated() {
		return ErrUnauthenticated
	}
	if !policy.CanModifyCategory(actor) {
		return forbidden("admin access required")
	}
	return nil
}

// Slugify lower-cases name and joins its alphanumeric runs with hyphens.
func Slugify(name string) string {
	slug := slugSeparator.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}

func applyCategoryInput(category *types.Category, in CategoryInput) {
	if in.Name != nil {
		category.Name = strings.TrimSpace(*in.Name)
	}
	if in.Slug != nil {
		category.Slug = strings.TrimSpace(*in.Slug)
	}
	if in.Description != nil {
		category.Description = strings.TrimSpace(*in.Description)
	}
}

func validateCategory(category types.Category) map[string]string {
	fields := map[string]string{}
	switch {
	case category.Name == "":
		fields["name"] = "this field is required"
	case utf8.RuneCountInString(category.Name) > 100:
		fields["name"] = "must be at most 100 characters"
	}
	switch {
	case category.Slug == "":
		fields["slug"] = "this field is required"
	case !slugPattern.MatchString(category.Slug):
		fields["slug"] = "use lowercase letters, numbers and single hyphens"
	case utf8.RuneCountInString(category.Slug) > 100:
		fields["slug"] = "must be at most 100 characters"
	}
	return fields
}

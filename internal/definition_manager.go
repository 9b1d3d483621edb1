package internal

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lychee-technology/customapi"
	"github.com/lychee-technology/customapi/internal/queryparams"
	"github.com/lychee-technology/customapi/internal/schematree"
	"go.uber.org/zap"
)

const (
	defaultListPageSize = 25
	maxListPageSize     = 100
)

// DefinitionManager is the admin service over saved definitions.
type DefinitionManager struct {
	store     customapi.DefinitionStore
	describer customapi.ContentTypeDescriber
	builder   customapi.TreeBuilder
	validate  *validator.Validate
	nowFunc   func() time.Time
}

// NewDefinitionManager creates a manager persisting through store.
func NewDefinitionManager(store customapi.DefinitionStore, describer customapi.ContentTypeDescriber, builder customapi.TreeBuilder) *DefinitionManager {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &DefinitionManager{
		store:     store,
		describer: describer,
		builder:   builder,
		validate:  validate,
		nowFunc:   time.Now,
	}
}

// Create validates input, resolves its slug and tree and persists it.
func (m *DefinitionManager) Create(ctx context.Context, input *customapi.DefinitionInput) (*customapi.Definition, error) {
	if err := m.validateInput(input); err != nil {
		return nil, err
	}
	slug, err := m.resolveSlug(ctx, input, nil)
	if err != nil {
		return nil, err
	}
	ct, err := m.describe(ctx, input.SelectedContentType.UID)
	if err != nil {
		return nil, err
	}

	structure := input.Structure
	if structure == nil {
		if structure, err = m.builder.Build(ctx, ct.UID); err != nil {
			return nil, err
		}
	}

	def := &customapi.Definition{
		Name:                strings.TrimSpace(input.Name),
		Slug:                slug,
		SelectedContentType: customapi.SelectedContentType{UID: ct.UID, DisplayName: ct.DisplayName},
		Structure:           structure,
	}
	if err := m.store.Create(ctx, def); err != nil {
		return nil, err
	}
	zap.S().Infow("custom api created", "id", def.ID, "slug", def.Slug, "contentType", ct.UID)
	return def, nil
}

// Update replaces name, slug and content type of id. A supplied structure
// replaces the saved one as is; without one the saved tree is kept unless
// the content type changed, in which case a fresh tree is built.
func (m *DefinitionManager) Update(ctx context.Context, id uuid.UUID, input *customapi.DefinitionInput) (*customapi.Definition, error) {
	if err := m.validateInput(input); err != nil {
		return nil, err
	}
	def, err := m.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	slug, err := m.resolveSlug(ctx, input, &id)
	if err != nil {
		return nil, err
	}
	ct, err := m.describe(ctx, input.SelectedContentType.UID)
	if err != nil {
		return nil, err
	}

	switch {
	case input.Structure != nil:
		def.Structure = input.Structure
	case ct.UID != def.SelectedContentType.UID || def.Structure == nil:
		if def.Structure, err = m.builder.Build(ctx, ct.UID); err != nil {
			return nil, err
		}
	}
	def.Name = strings.TrimSpace(input.Name)
	def.Slug = slug
	def.SelectedContentType = customapi.SelectedContentType{UID: ct.UID, DisplayName: ct.DisplayName}

	if err := m.store.Update(ctx, def); err != nil {
		return nil, err
	}
	zap.S().Infow("custom api updated", "id", def.ID, "slug", def.Slug)
	return def, nil
}

// Get returns the definition with id.
func (m *DefinitionManager) Get(ctx context.Context, id uuid.UUID) (*customapi.Definition, error) {
	return m.store.FindByID(ctx, id)
}

// List returns one page of definitions, newest first.
func (m *DefinitionManager) List(ctx context.Context, opts customapi.ListOptions) (*customapi.DefinitionList, error) {
	switch {
	case opts.PageSize <= 0:
		opts.PageSize = defaultListPageSize
	case opts.PageSize > maxListPageSize:
		opts.PageSize = maxListPageSize
	}
	opts.Page = min(max(opts.Page, 1), customapi.MaxPage(opts.PageSize))

	items, total, err := m.store.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*customapi.Definition{}
	}
	return &customapi.DefinitionList{
		Items: items,
		Meta:  queryparams.Meta(customapi.PaginationSpec{Page: opts.Page, PageSize: opts.PageSize}, total),
	}, nil
}

// Delete removes the definition with id.
func (m *DefinitionManager) Delete(ctx context.Context, id uuid.UUID) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	zap.S().Infow("custom api deleted", "id", id)
	return nil
}

// CheckSlug validates slug and, when it is well formed, checks that no
// definition other than excludeID uses it.
func (m *DefinitionManager) CheckSlug(ctx context.Context, slug string, excludeID *uuid.UUID) (*customapi.SlugCheck, error) {
	slug = strings.TrimSpace(slug)
	problems := ValidateSlug(slug)
	check := &customapi.SlugCheck{Slug: slug, Valid: len(problems) == 0, Errors: []string{}}
	if !check.Valid {
		check.Errors = problems
		return check, nil
	}
	exists, err := m.store.SlugExists(ctx, slug, excludeID)
	if err != nil {
		return nil, err
	}
	check.Unique = !exists
	if exists {
		check.Errors = append(check.Errors, fmt.Sprintf("Slug %q is already in use", slug))
	}
	return check, nil
}

// SuggestSlug returns a free slug derived from name.
func (m *DefinitionManager) SuggestSlug(ctx context.Context, name string, excludeID *uuid.UUID) (string, error) {
	return GenerateUniqueSlug(ctx, name, m.slugTaken(excludeID), m.nowFunc)
}

// ValidateStructure compares the saved tree of id with a fresh build of its
// content type. A content type that no longer exists yields an invalid
// report rather than an error.
func (m *DefinitionManager) ValidateStructure(ctx context.Context, id uuid.UUID) (*customapi.StructureReport, error) {
	def, err := m.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	current, err := m.builder.Build(ctx, def.SelectedContentType.UID)
	if err != nil {
		if customapi.ErrorCodeOf(err) != customapi.ErrCodeTypeNotFound {
			return nil, err
		}
		report := schematree.Diff(def.Structure, nil)
		report.Errors = append(report.Errors, fmt.Sprintf("Content type %s no longer exists", def.SelectedContentType.UID))
		return report, nil
	}
	return schematree.Diff(def.Structure, current), nil
}

// CleanStructure drops the parts of the saved tree that the content type no
// longer has. The cleaned definition is saved only when persist is set.
func (m *DefinitionManager) CleanStructure(ctx context.Context, id uuid.UUID, persist bool) (*customapi.Definition, error) {
	def, err := m.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if def.Structure == nil {
		return nil, customapi.NewStructureMissingError(def.Slug)
	}
	current, err := m.builder.Build(ctx, def.SelectedContentType.UID)
	if err != nil {
		return nil, err
	}
	def.Structure = schematree.Clean(def.Structure, current)
	if !persist {
		return def, nil
	}
	if err := m.store.Update(ctx, def); err != nil {
		return nil, err
	}
	zap.S().Infow("custom api structure cleaned", "id", def.ID, "slug", def.Slug)
	return def, nil
}

func (m *DefinitionManager) validateInput(input *customapi.DefinitionInput) error {
	if input == nil {
		return customapi.NewValidationError("request body is required")
	}
	err := m.validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return customapi.NewValidationError(err.Error())
	}
	details := make(map[string]any, len(fieldErrs))
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		path := fe.Namespace()
		if _, rest, ok := strings.Cut(path, "."); ok {
			path = rest
		}
		msg := describeFieldError(fe)
		details[path] = msg
		messages = append(messages, path+": "+msg)
	}
	return customapi.NewValidationError(strings.Join(messages, "; ")).WithDetails(details)
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func (m *DefinitionManager) resolveSlug(ctx context.Context, input *customapi.DefinitionInput, excludeID *uuid.UUID) (string, error) {
	slug := strings.TrimSpace(input.Slug)
	if slug == "" {
		return GenerateUniqueSlug(ctx, input.Name, m.slugTaken(excludeID), m.nowFunc)
	}
	if problems := ValidateSlug(slug); len(problems) > 0 {
		return "", customapi.NewInvalidSlugError(slug, problems)
	}
	exists, err := m.store.SlugExists(ctx, slug, excludeID)
	if err != nil {
		return "", err
	}
	if exists {
		return "", customapi.NewSlugConflictError(slug)
	}
	return slug, nil
}

func (m *DefinitionManager) slugTaken(excludeID *uuid.UUID) SlugTaken {
	return func(ctx context.Context, slug string) (bool, error) {
		return m.store.SlugExists(ctx, slug, excludeID)
	}
}

func (m *DefinitionManager) describe(ctx context.Context, uid string) (*customapi.ContentType, error) {
	ct, err := m.describer.Describe(ctx, uid)
	if err == nil {
		return ct, nil
	}
	if customapi.ErrorCodeOf(err) == customapi.ErrCodeTypeNotFound {
		return nil, err
	}
	return nil, customapi.NewTypeNotFoundError(uid).WithCause(err)
}

var _ customapi.DefinitionManager = (*DefinitionManager)(nil)

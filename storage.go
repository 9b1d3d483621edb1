package customapi

import (
	"context"

	"github.com/google/uuid"
)

// ContentTypeDescriber resolves a content type by uid.
type ContentTypeDescriber interface {
	// Describe returns the content type or a TYPE_NOT_FOUND error.
	Describe(ctx context.Context, uid string) (*ContentType, error)
}

// ContentTypeRegistry lists and describes content types.
type ContentTypeRegistry interface {
	ContentTypeDescriber
	// List returns the user-facing collection types sorted by display name.
	List(ctx context.Context) ([]*ContentType, error)
}

// DocumentService fetches rows for a content type.
type DocumentService interface {
	Query(ctx context.Context, uid string, query *DocumentQuery) ([]Row, error)
	Count(ctx context.Context, uid string, filters FilterSpec) (int64, error)
}

// DefinitionStore persists saved custom API definitions.
type DefinitionStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Definition, error)
	FindBySlug(ctx context.Context, slug string) (*Definition, error)
	// SlugExists reports whether another definition than excludeID uses slug.
	SlugExists(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error)
	List(ctx context.Context, opts ListOptions) ([]*Definition, int64, error)
	Create(ctx context.Context, def *Definition) error
	Update(ctx context.Context, def *Definition) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// DefinitionManager is the admin service over definitions.
type DefinitionManager interface {
	Create(ctx context.Context, input *DefinitionInput) (*Definition, error)
	Update(ctx context.Context, id uuid.UUID, input *DefinitionInput) (*Definition, error)
	Get(ctx context.Context, id uuid.UUID) (*Definition, error)
	List(ctx context.Context, opts ListOptions) (*DefinitionList, error)
	Delete(ctx context.Context, id uuid.UUID) error

	CheckSlug(ctx context.Context, slug string, excludeID *uuid.UUID) (*SlugCheck, error)
	SuggestSlug(ctx context.Context, name string, excludeID *uuid.UUID) (string, error)

	ValidateStructure(ctx context.Context, id uuid.UUID) (*StructureReport, error)
	CleanStructure(ctx context.Context, id uuid.UUID, persist bool) (*Definition, error)
}

// EndpointService answers calls to generated endpoints.
type EndpointService interface {
	Serve(ctx context.Context, req *EndpointRequest) (*EndpointResponse, error)
	// Docs describes the query parameters the endpoint accepts.
	Docs(ctx context.Context, slug string) (*EndpointDocs, error)
}

// TreeBuilder builds a fresh selection tree for a content type.
type TreeBuilder interface {
	Build(ctx context.Context, uid string) (*SchemaNode, error)
}

package internal

import (
	"context"
	"time"

	"github.com/lychee-technology/customapi"
	"github.com/lychee-technology/customapi/internal/queryparams"
	"github.com/lychee-technology/customapi/internal/schematree"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EndpointService answers calls to generated endpoints: it loads the saved
// definition, compiles its tree, parses the request query and runs the data
// query and count side by side.
type EndpointService struct {
	definitions customapi.DefinitionStore
	describer   customapi.ContentTypeDescriber
	documents   customapi.DocumentService
	transformer *ResponseTransformer
	pagination  queryparams.Options
	timeout     time.Duration
	nowFunc     func() time.Time
}

// EndpointOption configures an EndpointService.
type EndpointOption func(*EndpointService)

// WithResponseTransformer reshapes rows before they are returned.
func WithResponseTransformer(t *ResponseTransformer) EndpointOption {
	return func(s *EndpointService) { s.transformer = t }
}

// WithPaginationOptions sets the page size bounds.
func WithPaginationOptions(opts queryparams.Options) EndpointOption {
	return func(s *EndpointService) { s.pagination = opts }
}

// WithQueryTimeout bounds the query and count of one request.
func WithQueryTimeout(d time.Duration) EndpointOption {
	return func(s *EndpointService) { s.timeout = d }
}

// NewEndpointService creates an endpoint service.
func NewEndpointService(definitions customapi.DefinitionStore, describer customapi.ContentTypeDescriber, documents customapi.DocumentService, opts ...EndpointOption) *EndpointService {
	s := &EndpointService{
		definitions: definitions,
		describer:   describer,
		documents:   documents,
		pagination:  queryparams.DefaultOptions(),
		nowFunc:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type endpointPlan struct {
	def        *customapi.Definition
	ct         *customapi.ContentType
	projection *customapi.QueryProjection
	fields     []customapi.Field
}

func (s *EndpointService) plan(ctx context.Context, slug string) (*endpointPlan, error) {
	def, err := s.definitions.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if def.Structure.Empty() {
		return nil, customapi.NewStructureMissingError(slug)
	}

	uid := def.SelectedContentType.UID
	ct, err := s.describer.Describe(ctx, uid)
	if err != nil {
		if customapi.ErrorCodeOf(err) == customapi.ErrCodeTypeNotFound {
			return nil, err
		}
		return nil, customapi.NewTypeNotFoundError(uid).WithCause(err)
	}

	projection := schematree.Compile(def.Structure)
	return &endpointPlan{
		def:        def,
		ct:         ct,
		projection: projection,
		fields:     ct.FieldsFor(projection.Fields, customapi.DefaultIdentifierField),
	}, nil
}

// Serve answers one call. Problems with the query string never fail the
// request; they come back as Warnings.
func (s *EndpointService) Serve(ctx context.Context, req *customapi.EndpointRequest) (*customapi.EndpointResponse, error) {
	start := s.nowFunc()
	p, err := s.plan(ctx, req.Slug)
	if err != nil {
		return nil, err
	}

	q := queryparams.ParseQuery(req.RawQuery)
	filters := queryparams.ParseFilters(q, p.fields)
	sortSpec := queryparams.ParseSort(q, p.fields)
	page := queryparams.ParsePagination(q, s.pagination)

	issues := customapi.NewValidationResult()
	issues.Merge(queryparams.ValidateFilters(filters, p.fields))
	issues.Merge(queryparams.ValidateSort(sortSpec, p.fields))
	issues.Merge(queryparams.ValidatePagination(page, s.pagination))
	warnings := issues.Issues()
	if len(warnings) > 0 {
		zap.S().Infow("endpoint request has query warnings", "slug", req.Slug, "warnings", warnings)
	}
	EmitWarnings(ctx, req.Slug, len(warnings))

	docQuery := &customapi.DocumentQuery{
		Fields:     p.projection.Fields,
		Populate:   p.projection.Populate,
		Filters:    filters,
		Sort:       sortSpec,
		Pagination: &page,
	}

	queryCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var (
		rows  []customapi.Row
		total int64
	)
	g, gctx := errgroup.WithContext(queryCtx)
	g.Go(func() error {
		began := s.nowFunc()
		var err error
		rows, err = s.documents.Query(gctx, p.ct.UID, docQuery)
		EmitLatency(ctx, req.Slug, "query", s.nowFunc().Sub(began).Milliseconds())
		return err
	})
	g.Go(func() error {
		began := s.nowFunc()
		var err error
		total, err = s.documents.Count(gctx, p.ct.UID, filters)
		EmitLatency(ctx, req.Slug, "count", s.nowFunc().Sub(began).Milliseconds())
		return err
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, customapi.NewQueryError("failed to fetch data for "+req.Slug, err)
	}

	if s.transformer != nil {
		began := s.nowFunc()
		rows = s.transformer.Transform(ctx, p.ct, rows)
		EmitLatency(ctx, req.Slug, "transform", s.nowFunc().Sub(began).Milliseconds())
	}
	if rows == nil {
		rows = []customapi.Row{}
	}

	resp := &customapi.EndpointResponse{
		Data:     rows,
		Meta:     customapi.EndpointMeta{Pagination: queryparams.Meta(page, total)},
		Warnings: warnings,
	}
	if req.BaseURL != "" {
		resp.Meta.Links = queryparams.BuildPaginationLinks(req.BaseURL, page, total, q)
	}

	elapsed := s.nowFunc().Sub(start).Milliseconds()
	EmitLatency(ctx, req.Slug, "total", elapsed)
	zap.S().Debugw("endpoint served", "slug", req.Slug, "rows", len(rows), "total", total, "elapsedMs", elapsed)
	return resp, nil
}

// Docs describes the filter, sort and pagination parameters of slug.
func (s *EndpointService) Docs(ctx context.Context, slug string) (*customapi.EndpointDocs, error) {
	p, err := s.plan(ctx, slug)
	if err != nil {
		return nil, err
	}
	return &customapi.EndpointDocs{
		Slug: slug,
		ContentType: customapi.SelectedContentType{
			UID:         p.ct.UID,
			DisplayName: p.ct.DisplayName,
		},
		Fields:     p.fields,
		Filters:    queryparams.BuildFilterDocumentation(p.fields),
		Sort:       queryparams.BuildSortDocumentation(p.fields),
		Pagination: queryparams.BuildPaginationDocumentation(s.pagination),
	}, nil
}

var _ customapi.EndpointService = (*EndpointService)(nil)

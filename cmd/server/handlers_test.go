package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/lychee-technology/customapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockEndpoints struct {
	resp    *customapi.EndpointResponse
	err     error
	lastReq *customapi.EndpointRequest
}

func (m *mockEndpoints) Serve(_ context.Context, req *customapi.EndpointRequest) (*customapi.EndpointResponse, error) {
	m.lastReq = req
	return m.resp, m.err
}

func (m *mockEndpoints) Docs(_ context.Context, slug string) (*customapi.EndpointDocs, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &customapi.EndpointDocs{Slug: slug}, nil
}

type mockManager struct {
	defs        map[uuid.UUID]*customapi.Definition
	lastList    customapi.ListOptions
	lastExclude *uuid.UUID
	lastPersist bool
}

func newMockManager(defs ...*customapi.Definition) *mockManager {
	m := &mockManager{defs: map[uuid.UUID]*customapi.Definition{}}
	for _, def := range defs {
		m.defs[def.ID] = def
	}
	return m
}

func (m *mockManager) Create(_ context.Context, input *customapi.DefinitionInput) (*customapi.Definition, error) {
	if input.Name == "" {
		return nil, customapi.NewValidationError("name: required").WithDetail("name", "required")
	}
	def := &customapi.Definition{ID: uuid.New(), Name: input.Name, Slug: input.Slug, SelectedContentType: input.SelectedContentType}
	m.defs[def.ID] = def
	return def, nil
}

func (m *mockManager) Update(_ context.Context, id uuid.UUID, input *customapi.DefinitionInput) (*customapi.Definition, error) {
	def, ok := m.defs[id]
	if !ok {
		return nil, customapi.NewDefinitionNotFoundError(id.String())
	}
	if input.Slug == "taken" {
		return nil, customapi.NewSlugConflictError(input.Slug)
	}
	def.Name = input.Name
	return def, nil
}

func (m *mockManager) Get(_ context.Context, id uuid.UUID) (*customapi.Definition, error) {
	def, ok := m.defs[id]
	if !ok {
		return nil, customapi.NewDefinitionNotFoundError(id.String())
	}
	return def, nil
}

func (m *mockManager) List(_ context.Context, opts customapi.ListOptions) (*customapi.DefinitionList, error) {
	m.lastList = opts
	return &customapi.DefinitionList{Items: []*customapi.Definition{}}, nil
}

func (m *mockManager) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.defs[id]; !ok {
		return customapi.NewDefinitionNotFoundError(id.String())
	}
	delete(m.defs, id)
	return nil
}

func (m *mockManager) CheckSlug(_ context.Context, slug string, excludeID *uuid.UUID) (*customapi.SlugCheck, error) {
	m.lastExclude = excludeID
	return &customapi.SlugCheck{Slug: slug, Valid: true, Unique: true, Errors: []string{}}, nil
}

func (m *mockManager) SuggestSlug(_ context.Context, name string, excludeID *uuid.UUID) (string, error) {
	m.lastExclude = excludeID
	return "blog-posts", nil
}

func (m *mockManager) ValidateStructure(_ context.Context, id uuid.UUID) (*customapi.StructureReport, error) {
	if _, ok := m.defs[id]; !ok {
		return nil, customapi.NewDefinitionNotFoundError(id.String())
	}
	return &customapi.StructureReport{Valid: true}, nil
}

func (m *mockManager) CleanStructure(_ context.Context, id uuid.UUID, persist bool) (*customapi.Definition, error) {
	m.lastPersist = persist
	return m.Get(context.Background(), id)
}

type mockRegistry struct{}

func (mockRegistry) Describe(_ context.Context, uid string) (*customapi.ContentType, error) {
	if uid != "api::article.article" {
		return nil, customapi.NewTypeNotFoundError(uid)
	}
	return &customapi.ContentType{UID: uid, Kind: customapi.KindCollectionType, DisplayName: "Article"}, nil
}

func (r mockRegistry) List(ctx context.Context) ([]*customapi.ContentType, error) {
	ct, _ := r.Describe(ctx, "api::article.article")
	return []*customapi.ContentType{ct}, nil
}

type treeBuilderFunc func(ctx context.Context, uid string) (*customapi.SchemaNode, error)

func (f treeBuilderFunc) Build(ctx context.Context, uid string) (*customapi.SchemaNode, error) {
	return f(ctx, uid)
}

func articleTree() *customapi.SchemaNode {
	return &customapi.SchemaNode{
		Table:  "Article",
		Fields: []customapi.Item{{Name: "id", Selected: true}, {Name: "title", Selected: true}, {Name: "body"}},
		Populate: []*customapi.SchemaNode{{
			Table:  "author",
			Fields: []customapi.Item{{Name: "id", Selected: true}, {Name: "name", Selected: true}},
		}},
	}
}

func newTestServer(endpoints *mockEndpoints, manager *mockManager) *Server {
	s := &Server{
		registry:  mockRegistry{},
		manager:   manager,
		endpoints: endpoints,
		builder: treeBuilderFunc(func(_ context.Context, uid string) (*customapi.SchemaNode, error) {
			if uid != "api::article.article" {
				return nil, customapi.NewTypeNotFoundError(uid)
			}
			return articleTree(), nil
		}),
		warningsHeader: "X-Custom-API-Warnings",
		decoder:        newQueryDecoder(),
	}
	s.router = s.routes()
	return s
}

func doRequest(t *testing.T, s *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandleEndpoint(t *testing.T) {
	endpoints := &mockEndpoints{resp: &customapi.EndpointResponse{
		Data: []customapi.Row{{"id": float64(1), "title": "Hello"}},
		Meta: customapi.EndpointMeta{Pagination: customapi.PaginationMeta{Page: 1, PageSize: 25, PageCount: 1, Total: 1}},
		Warnings: []customapi.ValidationIssue{
			{Code: customapi.ErrCodeUnknownFilterField, Message: "Unknown filter field: bogus"},
			{Code: customapi.ErrCodeLargePageSize, Message: "Large page size"},
		},
	}}
	s := newTestServer(endpoints, newMockManager())

	rec := doRequest(t, s, http.MethodGet, "/api/articles?title[$eq]=Hello&bogus=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Unknown filter field: bogus; Large page size", rec.Header().Get("X-Custom-API-Warnings"))

	body := decodeBody[map[string]any](t, rec)
	assert.Len(t, body["data"], 1)
	assert.NotContains(t, body, "Warnings")

	require.NotNil(t, endpoints.lastReq)
	assert.Equal(t, "articles", endpoints.lastReq.Slug)
	assert.Equal(t, "title[$eq]=Hello&bogus=1", endpoints.lastReq.RawQuery)
	assert.Equal(t, "http://example.com/api/articles", endpoints.lastReq.BaseURL)
}

func TestHandleEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "definition missing", err: customapi.NewDefinitionNotFoundError("nope"), status: http.StatusNotFound, code: customapi.ErrCodeDefinitionNotFound},
		{name: "structure missing", err: customapi.NewStructureMissingError("articles"), status: http.StatusNotFound, code: customapi.ErrCodeStructureMissing},
		{name: "query failure", err: customapi.NewQueryError("boom", errors.New("db")), status: http.StatusInternalServerError, code: customapi.ErrCodeQueryFailed},
		{name: "plain error", err: errors.New("unexpected"), status: http.StatusInternalServerError, code: customapi.ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&mockEndpoints{err: tt.err}, newMockManager())
			rec := doRequest(t, s, http.MethodGet, "/api/articles", nil)
			assert.Equal(t, tt.status, rec.Code)

			body := decodeBody[APIResponse](t, rec)
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Code)
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", body.Error)
			}
		})
	}
}

func TestHandleEndpointDocs(t *testing.T) {
	s := newTestServer(&mockEndpoints{}, newMockManager())
	rec := doRequest(t, s, http.MethodGet, "/api/articles/docs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "articles", decodeBody[customapi.EndpointDocs](t, rec).Slug)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(&mockEndpoints{}, newMockManager())
	rec := doRequest(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	s.health = func(context.Context) error { return errors.New("postgres ping failed") }
	rec = doRequest(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestContentTypeRoutes(t *testing.T) {
	s := newTestServer(&mockEndpoints{}, newMockManager())

	rec := doRequest(t, s, http.MethodGet, "/admin/custom-api/content-types", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]map[string]any](t, rec), 1)

	rec = doRequest(t, s, http.MethodGet, "/admin/custom-api/content-types/api::article.article", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "api::article.article", decodeBody[map[string]any](t, rec)["uid"])

	rec = doRequest(t, s, http.MethodGet, "/admin/custom-api/content-types/api::ghost.ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/admin/custom-api/content-types/api::article.article/tree", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Article", decodeBody[customapi.SchemaNode](t, rec).Table)
}

func TestTreeRoutes(t *testing.T) {
	s := newTestServer(&mockEndpoints{}, newMockManager())

	t.Run("toggle item", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/admin/custom-api/tree/toggle-item", toggleItemRequest{
			Structure: articleTree(), Table: "Article", Item: "body", Category: customapi.CategoryFields,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		tree := decodeBody[customapi.SchemaNode](t, rec)
		assert.True(t, tree.Fields[2].Selected)
	})

	t.Run("lenient toggle on unknown table", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/admin/custom-api/tree/toggle-item", toggleItemRequest{
			Structure: articleTree(), Table: "Ghost", Item: "body", Category: customapi.CategoryFields,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, *articleTree(), decodeBody[customapi.SchemaNode](t, rec))
	})

	t.Run("strict toggle on unknown table", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/admin/custom-api/tree/toggle-item", toggleItemRequest{
			Structure: articleTree(), Table: "Ghost", Item: "body", Category: customapi.CategoryFields, Strict: true,
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, customapi.ErrCodeNodeNotFound, decodeBody[APIResponse](t, rec).Code)
	})

	t.Run("strict toggle with bad category", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/admin/custom-api/tree/toggle-category", toggleCategoryRequest{
			Structure: articleTree(), Table: "Article", Category: "widgets", Strict: true,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("toggle category", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/admin/custom-api/tree/toggle-category", toggleCategoryRequest{
			Structure: articleTree(), Table: "author", Category: customapi.CategoryFields, Selected: false,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		tree := decodeBody[customapi.SchemaNode](t, rec)
		assert.Equal(t, []customapi.Item{{Name: "id", Selected: true}, {Name: "name", Selected: false}}, tree.Populate[0].Fields)
	})

	t.Run("compile", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/admin/custom-api/tree/compile", map[string]any{"structure": articleTree()})
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody[compileResponse](t, rec)
		assert.Equal(t, []string{"id", "title"}, body.Fields)
		require.NotNil(t, body.Projection)
		assert.Contains(t, body.Projection.Populate, "author")
	})

	t.Run("missing structure", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPost, "/admin/custom-api/tree/compile", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/custom-api/tree/compile", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDefinitionRoutes(t *testing.T) {
	existing := &customapi.Definition{ID: uuid.New(), Name: "Articles", Slug: "articles"}
	manager := newMockManager(existing)
	s := newTestServer(&mockEndpoints{}, manager)
	base := "/admin/custom-api/definitions"

	rec := doRequest(t, s, http.MethodGet, base+"?page=2&pageSize=10&contentType=api::article.article&unknown=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, customapi.ListOptions{Page: 2, PageSize: 10, ContentType: "api::article.article"}, manager.lastList)

	rec = doRequest(t, s, http.MethodGet, base+"?page=two", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, base, customapi.DefinitionInput{Name: "Posts", SelectedContentType: customapi.SelectedContentType{UID: "api::article.article"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Posts", decodeBody[customapi.Definition](t, rec).Name)

	rec = doRequest(t, s, http.MethodPost, base, customapi.DefinitionInput{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]any{"name": "required"}, decodeBody[APIResponse](t, rec).Details)

	rec = doRequest(t, s, http.MethodGet, base+"/"+existing.ID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, base+"/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPut, base+"/"+existing.ID.String(), customapi.DefinitionInput{Name: "Renamed", Slug: "taken"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, s, http.MethodPut, base+"/"+existing.ID.String(), customapi.DefinitionInput{Name: "Renamed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Renamed", decodeBody[customapi.Definition](t, rec).Name)

	rec = doRequest(t, s, http.MethodGet, base+"/"+existing.ID.String()+"/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[customapi.StructureReport](t, rec).Valid)

	rec = doRequest(t, s, http.MethodPost, base+"/"+existing.ID.String()+"/clean?persist=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, manager.lastPersist)

	rec = doRequest(t, s, http.MethodDelete, base+"/"+existing.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, base+"/"+existing.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSlugRoutes(t *testing.T) {
	manager := newMockManager()
	s := newTestServer(&mockEndpoints{}, manager)
	id := uuid.New()

	rec := doRequest(t, s, http.MethodGet, "/admin/custom-api/slugs/check?slug=blog&excludeId="+id.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[customapi.SlugCheck](t, rec).Unique)
	require.NotNil(t, manager.lastExclude)
	assert.Equal(t, id, *manager.lastExclude)

	rec = doRequest(t, s, http.MethodGet, "/admin/custom-api/slugs/generate?name=Blog+Posts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"slug": "blog-posts"}, decodeBody[map[string]any](t, rec))
	assert.Nil(t, manager.lastExclude)

	rec = doRequest(t, s, http.MethodGet, "/admin/custom-api/slugs/check?slug=blog&excludeId=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

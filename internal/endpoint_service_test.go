package internal

import (
	"context"
	"errors"
	"testing"

	"github.com/lychee-technology/customapi"
	"github.com/lychee-technology/customapi/internal/queryparams"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func articleStructure() *customapi.SchemaNode {
	return &customapi.SchemaNode{
		Table: "Article",
		Fields: []customapi.Item{
			{Name: "id", Selected: true},
			{Name: "title", Selected: true},
			{Name: "views"},
			{Name: "published"},
		},
		Media:        []customapi.Item{},
		Components:   []customapi.Item{{Name: "seo", Selected: true}},
		DynamicZones: []customapi.Item{},
		Populate: []*customapi.SchemaNode{{
			Table:        "author",
			Fields:       []customapi.Item{{Name: "id", Selected: true}, {Name: "name", Selected: true}},
			Media:        []customapi.Item{},
			Components:   []customapi.Item{},
			DynamicZones: []customapi.Item{},
			Populate:     []*customapi.SchemaNode{},
		}},
	}
}

func articleDefinition() *customapi.Definition {
	return &customapi.Definition{
		Name:                "Articles",
		Slug:                "articles",
		SelectedContentType: customapi.SelectedContentType{UID: "api::article.article", DisplayName: "Article"},
		Structure:           articleStructure(),
	}
}

func TestEndpointService_Serve(t *testing.T) {
	docs := &fakeDocuments{
		rows:  []customapi.Row{{"id": int64(1), "title": "Hello"}},
		total: 61,
	}
	svc := NewEndpointService(newMemoryDefinitionStore(articleDefinition()), blogDescriber(), docs)

	resp, err := svc.Serve(context.Background(), &customapi.EndpointRequest{
		Slug:     "articles",
		RawQuery: "title[$contains]=Hel&views=3&sort=-title&page=1&pageSize=60",
		BaseURL:  "http://localhost/api/articles",
	})
	require.NoError(t, err)

	assert.Equal(t, "api::article.article", docs.lastUID)
	assert.Equal(t, []string{"id", "title"}, docs.lastQuery.Fields)
	assert.Equal(t, map[string]*customapi.QueryProjection{
		"seo":    {},
		"author": {Fields: []string{"id", "name"}, Populate: map[string]*customapi.QueryProjection{}},
	}, docs.lastQuery.Populate)
	assert.Equal(t, customapi.FilterSpec{"title": {customapi.FilterContains: "Hel"}}, docs.lastQuery.Filters)
	assert.Equal(t, customapi.SortSpec{{Field: "title", Direction: customapi.SortDesc}}, docs.lastQuery.Sort)
	assert.Equal(t, &customapi.PaginationSpec{Page: 1, PageSize: 60}, docs.lastQuery.Pagination)

	assert.Equal(t, docs.rows, resp.Data)
	assert.Equal(t, 2, resp.Meta.Pagination.PageCount)
	assert.Equal(t, int64(61), resp.Meta.Pagination.Total)
	assert.True(t, resp.Meta.Pagination.HasNextPage)

	require.NotNil(t, resp.Meta.Links)
	assert.Contains(t, resp.Meta.Links.Next, "page=2")
	assert.Empty(t, resp.Meta.Links.Prev)

	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, customapi.ErrCodeLargePageSize, resp.Warnings[0].Code)
}

func TestEndpointService_MistypedFilterValueIsAWarning(t *testing.T) {
	docs := &fakeDocuments{}
	svc := NewEndpointService(newMemoryDefinitionStore(articleDefinition()), blogDescriber(), docs)

	resp, err := svc.Serve(context.Background(), &customapi.EndpointRequest{Slug: "articles", RawQuery: "id=abc"})
	require.NoError(t, err)

	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, customapi.ErrCodeIncompatibleFilterOperator, resp.Warnings[0].Code)
	assert.Equal(t, "id", resp.Warnings[0].Field)
}

func TestEndpointService_ServeDefaults(t *testing.T) {
	docs := &fakeDocuments{}
	svc := NewEndpointService(newMemoryDefinitionStore(articleDefinition()), blogDescriber(), docs)

	resp, err := svc.Serve(context.Background(), &customapi.EndpointRequest{Slug: "articles"})
	require.NoError(t, err)

	assert.Equal(t, []customapi.Row{}, resp.Data)
	assert.Nil(t, resp.Meta.Links)
	assert.Empty(t, resp.Warnings)
	assert.Equal(t, &customapi.PaginationSpec{Page: 1, PageSize: 25}, docs.lastQuery.Pagination)
	assert.Equal(t, customapi.PaginationMeta{Page: 1, PageSize: 25, FirstPage: 1}, resp.Meta.Pagination)
}

func TestEndpointService_Unpaginated(t *testing.T) {
	docs := &fakeDocuments{rows: []customapi.Row{{"id": int64(1)}, {"id": int64(2)}}, total: 2}
	opts := queryparams.DefaultOptions()
	opts.AllowUnpaginated = true
	svc := NewEndpointService(newMemoryDefinitionStore(articleDefinition()), blogDescriber(), docs, WithPaginationOptions(opts))

	resp, err := svc.Serve(context.Background(), &customapi.EndpointRequest{Slug: "articles", RawQuery: "pagination=false"})
	require.NoError(t, err)

	assert.True(t, docs.lastQuery.Pagination.Unpaginated)
	assert.Equal(t, 2, resp.Meta.Pagination.PageSize)
	assert.Equal(t, 1, resp.Meta.Pagination.PageCount)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, customapi.ErrCodeUnpaginatedRequest, resp.Warnings[0].Code)
}

func TestEndpointService_Transformer(t *testing.T) {
	docs := &fakeDocuments{
		rows:  []customapi.Row{{"id": int64(1), "author": []customapi.Row{{"id": int64(9), "name": "Ann"}}}},
		total: 1,
	}
	d := blogDescriber()
	svc := NewEndpointService(newMemoryDefinitionStore(articleDefinition()), d, docs,
		WithResponseTransformer(NewResponseTransformer(d, ResponseTransformOptions{FlattenSingleRelations: true, PreserveNullValues: true})))

	resp, err := svc.Serve(context.Background(), &customapi.EndpointRequest{Slug: "articles"})
	require.NoError(t, err)
	assert.Equal(t, customapi.Row{"id": int64(9), "name": "Ann"}, resp.Data[0]["author"])
}

func TestEndpointService_Errors(t *testing.T) {
	noStructure := articleDefinition()
	noStructure.Slug = "empty"
	noStructure.Structure = nil

	unknownType := articleDefinition()
	unknownType.Slug = "ghost"
	unknownType.SelectedContentType.UID = "api::ghost.ghost"

	store := newMemoryDefinitionStore(articleDefinition(), noStructure, unknownType)

	tests := []struct {
		name     string
		slug     string
		docs     *fakeDocuments
		wantCode string
	}{
		{name: "unknown slug", slug: "missing", docs: &fakeDocuments{}, wantCode: customapi.ErrCodeDefinitionNotFound},
		{name: "missing structure", slug: "empty", docs: &fakeDocuments{}, wantCode: customapi.ErrCodeStructureMissing},
		{name: "unknown content type", slug: "ghost", docs: &fakeDocuments{}, wantCode: customapi.ErrCodeTypeNotFound},
		{name: "query failure", slug: "articles", docs: &fakeDocuments{queryErr: errors.New("boom")}, wantCode: customapi.ErrCodeQueryFailed},
		{name: "count failure", slug: "articles", docs: &fakeDocuments{countErr: errors.New("boom")}, wantCode: customapi.ErrCodeQueryFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewEndpointService(store, blogDescriber(), tt.docs)
			_, err := svc.Serve(context.Background(), &customapi.EndpointRequest{Slug: tt.slug})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, customapi.ErrorCodeOf(err))
		})
	}
}

func TestEndpointService_CanceledContext(t *testing.T) {
	svc := NewEndpointService(newMemoryDefinitionStore(articleDefinition()), blogDescriber(), &fakeDocuments{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Serve(ctx, &customapi.EndpointRequest{Slug: "articles"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEndpointService_Docs(t *testing.T) {
	svc := NewEndpointService(newMemoryDefinitionStore(articleDefinition()), blogDescriber(), &fakeDocuments{})

	docs, err := svc.Docs(context.Background(), "articles")
	require.NoError(t, err)
	assert.Equal(t, "articles", docs.Slug)
	assert.Equal(t, customapi.SelectedContentType{UID: "api::article.article", DisplayName: "Article"}, docs.ContentType)
	assert.Equal(t, []customapi.Field{{Name: "id", Type: "integer"}, {Name: "title", Type: "string"}}, docs.Fields)
	assert.Contains(t, docs.Filters.Fields, "title")
	assert.Equal(t, 100, docs.Pagination.Parameters["pageSize"].Maximum)

	_, err = svc.Docs(context.Background(), "missing")
	assert.True(t, customapi.IsNotFound(err))
}

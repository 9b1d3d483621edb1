package e2e_harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/customapi"
	"github.com/lychee-technology/customapi/factory"
	"github.com/lychee-technology/customapi/internal"
	"github.com/lychee-technology/customapi/internal/schematree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	schemaBucket    = "schemas"
	schemaPrefix    = "content-types/"
	warehouseBucket = "warehouse"
)

func TestE2EHarnessMinimal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E harness in -short mode")
	}
	ctx := context.Background()
	h := &TestHarness{}

	_, err := h.StartPostgres(ctx)
	require.NoError(t, err, "start postgres")
	defer h.StopPostgres(ctx)

	_, err = h.StartS3(ctx)
	require.NoError(t, err, "start minio")
	defer h.StopS3(ctx)

	require.NoError(t, h.StartDuckDB(ctx), "start duckdb")
	defer h.StopDuckDB()

	config := customapi.DefaultConfig()
	config.Schema.S3Bucket = schemaBucket
	config.Schema.S3Prefix = schemaPrefix
	config.S3 = h.S3Config()

	require.NoError(t, SeedPostgres(ctx, h.PGDB, config.Database.DefinitionsTable), "seed postgres")

	client, err := internal.NewS3Client(ctx, config.S3)
	require.NoError(t, err)
	require.NoError(t, EnsureBucket(ctx, client, schemaBucket))
	require.NoError(t, UploadDocuments(ctx, client, schemaBucket, schemaPrefix, ContentTypeDocuments))
	require.NoError(t, internal.S3HealthCheck(ctx, client, schemaBucket, 0))

	registry, err := internal.NewFileSchemaRegistry(ctx, internal.NewS3SchemaSource(client, schemaBucket, schemaPrefix))
	require.NoError(t, err)
	assert.Equal(t, []string{"api::article.article", "api::author.author"}, registry.UIDs())

	pool, err := pgxpool.New(ctx, h.PGDSN)
	require.NoError(t, err)
	defer pool.Close()

	services, err := factory.NewServicesWithConfig(config, pool, registry)
	require.NoError(t, err)
	defer services.Close()

	tree, err := services.Builder.Build(ctx, "api::article.article")
	require.NoError(t, err)
	tree = schematree.ToggleCategory(tree, tree.Table, customapi.CategoryFields, true)
	tree = schematree.ToggleCategory(tree, "author", customapi.CategoryFields, true)

	def, err := services.Manager.Create(ctx, &customapi.DefinitionInput{
		Name:                "Go Articles",
		SelectedContentType: customapi.SelectedContentType{UID: "api::article.article"},
		Structure:           tree,
	})
	require.NoError(t, err)
	assert.Equal(t, "go-articles", def.Slug)

	check, err := services.Manager.CheckSlug(ctx, "go-articles", nil)
	require.NoError(t, err)
	assert.False(t, check.Unique)

	request := &customapi.EndpointRequest{
		Slug:     def.Slug,
		RawQuery: "title[$contains]=Go&sort=-views&page=1&pageSize=2",
		BaseURL:  "http://localhost/api/" + def.Slug,
	}
	assertGoArticles := func(t *testing.T, services *factory.Services) {
		t.Helper()
		resp, err := services.Endpoints.Serve(ctx, request)
		require.NoError(t, err)

		assert.Equal(t, int64(3), resp.Meta.Pagination.Total)
		assert.Equal(t, 2, resp.Meta.Pagination.PageCount)
		assert.True(t, resp.Meta.Pagination.HasNextPage)
		require.Len(t, resp.Data, 2)
		assert.Equal(t, "Go testing with containers", resp.Data[0]["title"])
		assert.Equal(t, "Go generics in practice", resp.Data[1]["title"])

		author, ok := resp.Data[0]["author"].(customapi.Row)
		require.True(t, ok, "author should be flattened to a single row, got %T", resp.Data[0]["author"])
		assert.Equal(t, "Linus", author["name"])
	}

	t.Run("postgres engine", func(t *testing.T) {
		require.NoError(t, services.HealthCheck(ctx))
		assertGoArticles(t, services)
	})

	t.Run("duckdb engine over parquet in s3", func(t *testing.T) {
		files, err := WriteParquetFiles(ctx, h.Duck, t.TempDir())
		require.NoError(t, err)
		require.NoError(t, EnsureBucket(ctx, client, warehouseBucket))

		initSQL := ""
		for table, path := range files {
			key := table + ".parquet"
			require.NoError(t, UploadFile(ctx, client, warehouseBucket, key, path))
			initSQL += fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM read_parquet('s3://%s/%s');\n", table, warehouseBucket, key)
		}
		initFile := filepath.Join(t.TempDir(), "init.sql")
		require.NoError(t, os.WriteFile(initFile, []byte(initSQL), 0o644))

		duckConfig := *config
		duckConfig.Query.Engine = customapi.EngineDuckDB
		duckConfig.DuckDB.Enabled = true
		duckConfig.DuckDB.Extensions = []string{"httpfs"}
		duckConfig.DuckDB.InitSQLFile = initFile

		duckServices, err := factory.NewServicesWithConfig(&duckConfig, pool, registry)
		require.NoError(t, err)
		defer duckServices.Close()

		require.NoError(t, duckServices.HealthCheck(ctx))
		assertGoArticles(t, duckServices)
	})

	t.Run("structure drift after schema reload", func(t *testing.T) {
		drifted := map[string]string{
			"api/article/schema.json": `{
  "uid": "api::article.article",
  "kind": "collectionType",
  "collectionName": "articles",
  "info": {"displayName": "Article"},
  "attributes": {
    "title": {"type": "string"},
    "author": {"type": "relation", "relation": "manyToOne", "target": "api::author.author"}
  }
}`,
		}
		require.NoError(t, UploadDocuments(ctx, client, schemaBucket, schemaPrefix, drifted))
		require.NoError(t, registry.Reload(ctx))

		report, err := services.Manager.ValidateStructure(ctx, def.ID)
		require.NoError(t, err)
		assert.True(t, report.HasChanges())
		require.Len(t, report.Removed, 1)
		assert.Equal(t, "views", report.Removed[0].Name)

		cleaned, err := services.Manager.CleanStructure(ctx, def.ID, true)
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "title"}, schematree.SelectedFields(cleaned.Structure))
	})
}

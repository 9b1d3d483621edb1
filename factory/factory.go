package factory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/customapi"
	"github.com/lychee-technology/customapi/internal"
	"github.com/lychee-technology/customapi/internal/queryparams"
	"github.com/lychee-technology/customapi/internal/schematree"
	"go.uber.org/zap"
)

// Pool is the subset of *pgxpool.Pool the services need.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type queryPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Services is the wired service graph.
type Services struct {
	Registry    customapi.ContentTypeRegistry
	Builder     customapi.TreeBuilder
	Definitions customapi.DefinitionStore
	Manager     customapi.DefinitionManager
	Documents   customapi.DocumentService
	Endpoints   customapi.EndpointService

	duckdb     *internal.DuckDBClient
	ownsDuckDB bool
}

// Close releases the DuckDB engine when the factory opened it.
func (s *Services) Close() error {
	if s.duckdb != nil && s.ownsDuckDB {
		return s.duckdb.Close()
	}
	return nil
}

// HealthCheck checks the DuckDB engine when one is in use.
func (s *Services) HealthCheck(ctx context.Context) error {
	if s.duckdb == nil {
		return nil
	}
	return s.duckdb.HealthCheck(ctx)
}

type options struct {
	duckdb    *internal.DuckDBClient
	documents customapi.DocumentService
	breaker   *internal.CircuitBreaker
}

// Option customizes NewServicesWithConfig.
type Option func(*options)

// WithDuckDB serves endpoint data from an already opened DuckDB client. The
// caller keeps ownership of client.
func WithDuckDB(client *internal.DuckDBClient) Option {
	return func(o *options) { o.duckdb = client }
}

// WithDocumentService replaces the SQL data-fetch engine.
func WithDocumentService(documents customapi.DocumentService) Option {
	return func(o *options) { o.documents = documents }
}

// WithCircuitBreaker overrides the breaker guarding the data-fetch engine.
func WithCircuitBreaker(cb *internal.CircuitBreaker) Option {
	return func(o *options) { o.breaker = cb }
}

var tableCollector = collectTablesFromPool

// NewServicesWithConfig wires the definition store, tree builder, admin
// manager, data-fetch engine and endpoint service over pool and registry.
//
// Usage:
//
//	config, err := customapi.LoadConfigFromEnv()
//	if err != nil {
//	    // handle error
//	}
//	services, err := factory.NewServicesWithConfig(config, pool, registry)
//	if err != nil {
//	    // handle error
//	}
//	defer services.Close()
//
// The data-fetch engine follows config.Query.Engine. For "duckdb" the
// factory opens the embedded engine itself unless WithDuckDB supplies one.
func NewServicesWithConfig(config *customapi.Config, pool Pool, registry customapi.ContentTypeRegistry, opts ...Option) (*Services, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("a content type registry is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	o := options{
		breaker: internal.NewCircuitBreaker(5, 30*time.Second, 15*time.Second),
	}
	for _, opt := range opts {
		opt(&o)
	}

	tables, err := tableCollector(pool)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(tables, bareTableName(config.Database.DefinitionsTable)) {
		return nil, fmt.Errorf("required table %s is missing in the database; run `customapi-tools init-db`", config.Database.DefinitionsTable)
	}

	services := &Services{Registry: registry}
	services.Builder = schematree.NewBuilder(registry, schematree.WithConcurrency(config.Schema.BuildConcurrency))
	store := internal.NewPostgresDefinitionStore(pool, config.Database.DefinitionsTable)
	services.Definitions = store
	services.Manager = internal.NewDefinitionManager(store, registry, services.Builder)

	documents, err := services.documentService(config, pool, registry, o)
	if err != nil {
		return nil, err
	}
	services.Documents = documents

	endpointOpts := []internal.EndpointOption{
		internal.WithPaginationOptions(queryparams.OptionsFromConfig(config.Query)),
		internal.WithQueryTimeout(config.Query.DefaultTimeout),
	}
	if config.Response.TransformRelations {
		transformer := internal.NewResponseTransformer(registry, internal.ResponseTransformOptionsFromConfig(config.Response))
		endpointOpts = append(endpointOpts, internal.WithResponseTransformer(transformer))
	}
	services.Endpoints = internal.NewEndpointService(store, registry, documents, endpointOpts...)

	zap.S().Infow("custom api services ready",
		"engine", config.Query.Engine,
		"definitionsTable", config.Database.DefinitionsTable,
		"transformRelations", config.Response.TransformRelations,
	)
	return services, nil
}

func (s *Services) documentService(config *customapi.Config, pool Pool, registry customapi.ContentTypeDescriber, o options) (customapi.DocumentService, error) {
	if o.documents != nil {
		return o.documents, nil
	}

	docOpts := []internal.DocumentServiceOption{
		internal.WithMaxRows(config.Query.MaxRows),
		internal.WithCircuitBreaker(o.breaker),
	}

	switch {
	case o.duckdb != nil:
		s.duckdb = o.duckdb
	case config.Query.Engine == customapi.EngineDuckDB:
		client, err := internal.NewDuckDBClient(context.Background(), config.DuckDB, &config.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to open duckdb engine: %w", err)
		}
		s.duckdb, s.ownsDuckDB = client, true
	default:
		docOpts = append(docOpts, internal.WithEngineName(customapi.EnginePostgres))
		return internal.NewSQLDocumentService(internal.NewPgxRunner(pool), registry, docOpts...), nil
	}

	docOpts = append(docOpts, internal.WithEngineName(customapi.EngineDuckDB))
	return internal.NewSQLDocumentService(s.duckdb.Runner(), registry, docOpts...), nil
}

func collectTablesFromPool(pool queryPool) ([]string, error) {
	if pool == nil {
		return nil, errors.New("failed to verify database connection: pool is nil")
	}
	rows, err := pool.Query(context.Background(), `SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'`)
	if err != nil {
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}
	tables, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read table names: %w", err)
	}
	return tables, nil
}

func bareTableName(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.Trim(name, `"`)
}

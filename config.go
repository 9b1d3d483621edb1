package customapi

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Document engines supported by the data-fetch layer.
const (
	EnginePostgres = "postgres"
	EngineDuckDB   = "duckdb"
)

// Config consolidates settings for the service and its adapters.
type Config struct {
	Database DatabaseConfig `json:"database" envPrefix:"DB_"`
	Query    QueryConfig    `json:"query" envPrefix:"QUERY_"`
	Schema   SchemaConfig   `json:"schema" envPrefix:"SCHEMA_"`
	S3       S3Config       `json:"s3" envPrefix:"S3_"`
	DuckDB   DuckDBConfig   `json:"duckdb" envPrefix:"DUCKDB_"`
	Logging  LoggingConfig  `json:"logging" envPrefix:"LOG_"`
	Response ResponseConfig `json:"response" envPrefix:"RESPONSE_"`
	Server   ServerConfig   `json:"server" envPrefix:"SERVER_"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host             string        `json:"host" env:"HOST"`
	Port             int           `json:"port" env:"PORT"`
	Database         string        `json:"database" env:"NAME"`
	Username         string        `json:"username" env:"USER"`
	Password         string        `json:"password" env:"PASSWORD"`
	SSLMode          string        `json:"sslMode" env:"SSL_MODE"`
	MaxConnections   int           `json:"maxConnections" env:"MAX_CONNECTIONS"`
	MaxIdleConns     int           `json:"maxIdleConns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime  time.Duration `json:"connMaxLifetime" env:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime  time.Duration `json:"connMaxIdleTime" env:"CONN_MAX_IDLE_TIME"`
	Timeout          time.Duration `json:"timeout" env:"TIMEOUT"`
	UseIAMAuth       bool          `json:"useIamAuth" env:"USE_IAM"`
	Region           string        `json:"region" env:"REGION"`
	DefinitionsTable string        `json:"definitionsTable" env:"DEFINITIONS_TABLE"`
}

// QueryConfig contains request-time query settings
type QueryConfig struct {
	Engine            string        `json:"engine" env:"ENGINE"`
	DefaultTimeout    time.Duration `json:"defaultTimeout" env:"DEFAULT_TIMEOUT"`
	DefaultPageSize   int           `json:"defaultPageSize" env:"DEFAULT_PAGE_SIZE"`
	MaxPageSize       int           `json:"maxPageSize" env:"MAX_PAGE_SIZE"`
	MinPageSize       int           `json:"minPageSize" env:"MIN_PAGE_SIZE"`
	AllowUnpaginated  bool          `json:"allowUnpaginated" env:"ALLOW_UNPAGINATED"`
	WarnLargePageSize int           `json:"warnLargePageSize" env:"WARN_LARGE_PAGE_SIZE"`
	MaxRows           int           `json:"maxRows" env:"MAX_ROWS"`
}

// SchemaConfig controls where content types come from and how trees are built.
type SchemaConfig struct {
	Directory        string `json:"directory" env:"DIR"`
	S3Bucket         string `json:"s3Bucket" env:"S3_BUCKET"`
	S3Prefix         string `json:"s3Prefix" env:"S3_PREFIX"`
	BuildConcurrency int    `json:"buildConcurrency" env:"BUILD_CONCURRENCY"`
}

// S3Config holds credentials and endpoint overrides for S3-compatible stores.
type S3Config struct {
	Region       string `json:"region" env:"REGION"`
	Endpoint     string `json:"endpoint" env:"ENDPOINT"`
	AccessKey    string `json:"accessKey" env:"ACCESS_KEY"`
	SecretKey    string `json:"secretKey" env:"SECRET_KEY"`
	UsePathStyle bool   `json:"usePathStyle" env:"USE_PATH_STYLE"`
}

// DuckDBConfig configures the embedded DuckDB engine.
type DuckDBConfig struct {
	Enabled        bool          `json:"enabled" env:"ENABLED"`
	DBPath         string        `json:"dbPath" env:"PATH"`
	InitSQLFile    string        `json:"initSqlFile" env:"INIT_SQL"`
	MemoryLimitMB  int           `json:"memoryLimitMb" env:"MEMORY_LIMIT_MB"`
	MaxParallelism int           `json:"maxParallelism" env:"MAX_PARALLELISM"`
	MaxConnections int           `json:"maxConnections" env:"MAX_CONNECTIONS"`
	QueryTimeout   time.Duration `json:"queryTimeout" env:"QUERY_TIMEOUT"`
	Extensions     []string      `json:"extensions" env:"EXTENSIONS"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `json:"level" env:"LEVEL"`
	Development bool   `json:"development" env:"DEVELOPMENT"`
}

// ResponseConfig controls response reshaping.
type ResponseConfig struct {
	TransformRelations     bool   `json:"transformRelations" env:"TRANSFORM_RELATIONS"`
	FlattenSingleRelations bool   `json:"flattenSingleRelations" env:"FLATTEN_SINGLE_RELATIONS"`
	PreserveNullValues     bool   `json:"preserveNullValues" env:"PRESERVE_NULL_VALUES"`
	WarningsHeader         string `json:"warningsHeader" env:"WARNINGS_HEADER"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port            string        `json:"port" env:"PORT"`
	BaseURL         string        `json:"baseUrl" env:"BASE_URL"`
	ReadTimeout     time.Duration `json:"readTimeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `json:"writeTimeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:             "localhost",
			Port:             5432,
			Database:         "customapi",
			Username:         "postgres",
			SSLMode:          "disable",
			MaxConnections:   25,
			MaxIdleConns:     5,
			ConnMaxLifetime:  time.Hour,
			ConnMaxIdleTime:  5 * time.Minute,
			Timeout:          30 * time.Second,
			DefinitionsTable: "custom_api_definitions",
		},
		Query: QueryConfig{
			Engine:            EnginePostgres,
			DefaultTimeout:    30 * time.Second,
			DefaultPageSize:   25,
			MaxPageSize:       100,
			MinPageSize:       1,
			AllowUnpaginated:  false,
			WarnLargePageSize: 50,
			MaxRows:           10000,
		},
		Schema: SchemaConfig{
			BuildConcurrency: 4,
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		DuckDB: DuckDBConfig{
			MaxConnections: 1,
			QueryTimeout:   30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Response: ResponseConfig{
			TransformRelations:     true,
			FlattenSingleRelations: true,
			PreserveNullValues:     true,
			WarningsHeader:         "X-Custom-API-Warnings",
		},
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// LoadConfigFromEnv overlays environment variables on DefaultConfig and validates the result.
func LoadConfigFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(cfg, env.Options{}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.MaxConnections <= 0 {
		return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
	}

	if c.Database.DefinitionsTable == "" {
		return &ConfigError{Field: "database.definitionsTable", Message: "is required"}
	}

	if c.Query.MinPageSize <= 0 {
		return &ConfigError{Field: "query.minPageSize", Message: "must be greater than 0"}
	}

	if c.Query.DefaultPageSize < c.Query.MinPageSize {
		return &ConfigError{Field: "query.defaultPageSize", Message: "must be greater than or equal to minPageSize"}
	}

	if c.Query.MaxPageSize < c.Query.DefaultPageSize {
		return &ConfigError{Field: "query.maxPageSize", Message: "must be greater than or equal to defaultPageSize"}
	}

	if c.Query.MaxRows < c.Query.MaxPageSize {
		return &ConfigError{Field: "query.maxRows", Message: "must be greater than or equal to maxPageSize"}
	}

	switch c.Query.Engine {
	case EnginePostgres:
	case EngineDuckDB:
		if !c.DuckDB.Enabled {
			return &ConfigError{Field: "duckdb.enabled", Message: "must be true when query.engine is duckdb"}
		}
	default:
		return &ConfigError{Field: "query.engine", Message: "must be postgres or duckdb"}
	}

	if c.Schema.Directory == "" && c.Schema.S3Bucket == "" {
		return &ConfigError{Field: "schema.directory", Message: "a schema directory or S3 bucket is required"}
	}

	if c.Schema.BuildConcurrency < 0 {
		return &ConfigError{Field: "schema.buildConcurrency", Message: "must not be negative"}
	}

	return nil
}

// PaginationDefaults reports the query pagination bounds.
func (c *Config) PaginationDefaults() (defaultSize, minSize, maxSize int) {
	return c.Query.DefaultPageSize, c.Query.MinPageSize, c.Query.MaxPageSize
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}

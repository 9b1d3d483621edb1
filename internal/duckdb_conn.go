package internal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/lychee-technology/customapi"
	"go.uber.org/zap"
)

// DuckDBClient wraps a database/sql DB opened with the DuckDB driver.
type DuckDBClient struct {
	DB  *sql.DB
	cfg customapi.DuckDBConfig
}

var extensionName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidateDuckDBConfig performs basic sanity checks on user-provided DuckDB configuration.
func ValidateDuckDBConfig(cfg customapi.DuckDBConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.MemoryLimitMB < 0 {
		return fmt.Errorf("invalid memory_limit_mb: must be >= 0")
	}
	if cfg.MaxParallelism < 0 {
		return fmt.Errorf("invalid max_parallelism: must be >= 0")
	}
	if cfg.MaxConnections < 1 {
		return fmt.Errorf("max_connections must be >= 1")
	}
	if cfg.QueryTimeout <= 0 {
		return fmt.Errorf("query_timeout must be > 0")
	}
	for _, ext := range cfg.Extensions {
		if !extensionName.MatchString(ext) {
			return fmt.Errorf("invalid extension name %q", ext)
		}
	}
	return nil
}

// NewDuckDBClient opens DuckDB, applies the resource settings, loads the
// configured extensions and runs the init SQL file. When s3 is non-nil and
// httpfs is among the extensions, the S3 credentials are applied as well.
func NewDuckDBClient(ctx context.Context, cfg customapi.DuckDBConfig, s3 *customapi.S3Config) (*DuckDBClient, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("duckdb disabled in config")
	}
	if err := ValidateDuckDBConfig(cfg); err != nil {
		return nil, err
	}

	dsn := cfg.DBPath
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	for _, ext := range cfg.Extensions {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("INSTALL %s;", ext)); err != nil {
			zap.S().Warnw("duckdb: install extension failed", "extension", ext, "err", err)
			continue
		}
		if _, err := db.ExecContext(ctx, fmt.Sprintf("LOAD %s;", ext)); err != nil {
			zap.S().Warnw("duckdb: load extension failed", "extension", ext, "err", err)
		}
	}

	if s3 != nil && hasExtension(cfg.Extensions, "httpfs") {
		settings := []struct{ name, value string }{
			{"s3_region", s3.Region},
			{"s3_endpoint", strings.TrimPrefix(strings.TrimPrefix(s3.Endpoint, "https://"), "http://")},
			{"s3_access_key_id", s3.AccessKey},
			{"s3_secret_access_key", s3.SecretKey},
		}
		for _, s := range settings {
			if s.value == "" {
				continue
			}
			if _, err := db.ExecContext(ctx, fmt.Sprintf("SET %s=%s;", s.name, quoteLiteral(s.value))); err != nil {
				zap.S().Warnw("duckdb: set s3 option failed", "option", s.name, "err", err)
			}
		}
		if s3.UsePathStyle {
			if _, err := db.ExecContext(ctx, "SET s3_url_style='path';"); err != nil {
				zap.S().Warnw("duckdb: set s3_url_style failed", "err", err)
			}
		}
	}

	if cfg.MemoryLimitMB > 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA memory_limit='%dMB';", cfg.MemoryLimitMB)); err != nil {
			zap.S().Warnw("duckdb: set memory_limit failed", "err", err, "memoryLimitMB", cfg.MemoryLimitMB)
		}
	}
	if cfg.MaxParallelism > 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA threads=%d;", cfg.MaxParallelism)); err != nil {
			zap.S().Warnw("duckdb: set threads failed", "err", err, "maxParallelism", cfg.MaxParallelism)
		}
	}

	if cfg.InitSQLFile != "" {
		script, err := os.ReadFile(cfg.InitSQLFile)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("read duckdb init sql: %w", err)
		}
		if _, err := db.ExecContext(ctx, string(script)); err != nil {
			db.Close()
			return nil, fmt.Errorf("run duckdb init sql %s: %w", cfg.InitSQLFile, err)
		}
		zap.S().Infow("duckdb init sql applied", "file", cfg.InitSQLFile)
	}

	return &DuckDBClient{DB: db, cfg: cfg}, nil
}

// Runner returns a SQLRunner whose calls are bounded by the configured query timeout.
func (c *DuckDBClient) Runner() SQLRunner {
	return &timeoutRunner{next: NewSQLRunner(c.DB), timeout: c.cfg.QueryTimeout}
}

// Close closes the underlying DuckDB DB.
func (c *DuckDBClient) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// HealthCheck runs a trivial query and checks the configured pragmas.
func (c *DuckDBClient) HealthCheck(ctx context.Context) error {
	if c == nil || c.DB == nil {
		return fmt.Errorf("duckdb client not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var v int
	if err := c.DB.QueryRowContext(ctx, "SELECT 1;").Scan(&v); err != nil {
		return fmt.Errorf("duckdb health query failed: %w", err)
	}
	if v != 1 {
		return fmt.Errorf("unexpected duckdb health result: %d", v)
	}

	if c.cfg.MaxParallelism > 0 {
		var threads int64
		if err := c.DB.QueryRowContext(ctx, "SELECT current_setting('threads');").Scan(&threads); err != nil {
			zap.S().Warnw("duckdb: threads setting query failed (non-fatal)", "err", err)
		} else if threads <= 0 {
			zap.S().Warnw("duckdb: threads setting invalid (non-fatal)", "threads", threads)
		}
	}
	return nil
}

type timeoutRunner struct {
	next    SQLRunner
	timeout time.Duration
}

func (r *timeoutRunner) QueryRows(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.next.QueryRows(ctx, query, args...)
}

func (r *timeoutRunner) QueryCount(ctx context.Context, query string, args ...any) (int64, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.next.QueryCount(ctx, query, args...)
}

func (r *timeoutRunner) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func hasExtension(exts []string, name string) bool {
	for _, ext := range exts {
		if strings.EqualFold(ext, name) {
			return true
		}
	}
	return false
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

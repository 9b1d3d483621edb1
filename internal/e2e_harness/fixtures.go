package e2e_harness

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/customapi/internal"
)

// ContentTypeDocuments is the blog schema the E2E tests serve, keyed by object name.
var ContentTypeDocuments = map[string]string{
	"api/author/schema.json": `{
  "uid": "api::author.author",
  "kind": "collectionType",
  "collectionName": "authors",
  "info": {"displayName": "Author", "singularName": "author", "pluralName": "authors"},
  "attributes": {
    "name": {"type": "string"},
    "articles": {"type": "relation", "relation": "oneToMany", "target": "api::article.article"}
  }
}`,
	"api/article/schema.json": `{
  "uid": "api::article.article",
  "kind": "collectionType",
  "collectionName": "articles",
  "info": {"displayName": "Article", "singularName": "article", "pluralName": "articles"},
  "attributes": {
    "title": {"type": "string"},
    "views": {"type": "integer"},
    "author": {"type": "relation", "relation": "manyToOne", "target": "api::author.author"}
  }
}`,
}

type seedArticle struct {
	id     int
	title  string
	views  int
	author int
}

var seedArticles = []seedArticle{
	{1, "Go generics in practice", 120, 1},
	{2, "Go modules explained", 80, 1},
	{3, "Postgres indexing", 45, 2},
	{4, "Go testing with containers", 300, 2},
	{5, "DuckDB for analytics", 60, 1},
}

// SeedPostgres creates the content tables, the definitions table and inserts
// two authors with five articles.
func SeedPostgres(ctx context.Context, db *sql.DB, definitionsTable string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS authors (
  id INTEGER PRIMARY KEY,
  name TEXT
);`,
		`CREATE TABLE IF NOT EXISTS articles (
  id INTEGER PRIMARY KEY,
  title TEXT,
  views INTEGER
);`,
		`CREATE TABLE IF NOT EXISTS articles_author_lnk (
  source_id INTEGER,
  target_id INTEGER
);`,
	}
	stmts = append(stmts, internal.DefinitionsTableDDL(definitionsTable)...)

	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	for id, name := range map[int]string{1: "Ada", 2: "Linus"} {
		if _, err := db.ExecContext(ctx, `INSERT INTO authors (id, name) VALUES ($1, $2)`, id, name); err != nil {
			return fmt.Errorf("insert authors: %w", err)
		}
	}
	for _, a := range seedArticles {
		if _, err := db.ExecContext(ctx, `INSERT INTO articles (id, title, views) VALUES ($1, $2, $3)`, a.id, a.title, a.views); err != nil {
			return fmt.Errorf("insert articles: %w", err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO articles_author_lnk (source_id, target_id) VALUES ($1, $2)`, a.id, a.author); err != nil {
			return fmt.Errorf("insert articles_author_lnk: %w", err)
		}
	}
	return nil
}

// WriteParquetFiles exports the seed articles and authors as parquet via
// DuckDB. It returns the local paths keyed by table name.
func WriteParquetFiles(ctx context.Context, duck *internal.DuckDBClient, outDir string) (map[string]string, error) {
	if duck == nil || duck.DB == nil {
		return nil, fmt.Errorf("duckdb client is nil")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	ctxExec, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stmts := []string{
		"CREATE TABLE authors (id INTEGER, name VARCHAR);",
		"INSERT INTO authors VALUES (1, 'Ada'), (2, 'Linus');",
		"CREATE TABLE articles (id INTEGER, title VARCHAR, views INTEGER);",
		"CREATE TABLE articles_author_lnk (source_id INTEGER, target_id INTEGER);",
	}
	for _, a := range seedArticles {
		stmts = append(stmts,
			fmt.Sprintf("INSERT INTO articles VALUES (%d, '%s', %d);", a.id, a.title, a.views),
			fmt.Sprintf("INSERT INTO articles_author_lnk VALUES (%d, %d);", a.id, a.author),
		)
	}
	for _, stmt := range stmts {
		if _, err := duck.DB.ExecContext(ctxExec, stmt); err != nil {
			return nil, fmt.Errorf("prepare parquet source: %w", err)
		}
	}

	files := make(map[string]string, 3)
	for _, table := range []string{"authors", "articles", "articles_author_lnk"} {
		target := filepath.Join(outDir, table+".parquet")
		if _, err := duck.DB.ExecContext(ctxExec, fmt.Sprintf("COPY %s TO '%s' (FORMAT PARQUET);", table, target)); err != nil {
			return nil, fmt.Errorf("export %s parquet: %w", table, err)
		}
		files[table] = target
	}
	return files, nil
}

// EnsureBucket creates bucket unless it already exists.
func EnsureBucket(ctx context.Context, client *s3.Client, bucket string) error {
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
		return nil
	}
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			code := apiErr.ErrorCode()
			if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
				return nil
			}
		}
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// UploadDocuments uploads content-type documents under prefix.
func UploadDocuments(ctx context.Context, client *s3.Client, bucket, prefix string, docs map[string]string) error {
	uploader := manager.NewUploader(client)
	for name, body := range docs {
		if _, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(prefix + name),
			Body:        bytes.NewReader([]byte(body)),
			ContentType: aws.String("application/json"),
		}); err != nil {
			return fmt.Errorf("upload %s: %w", name, err)
		}
	}
	return nil
}

// UploadFile uploads a local file to bucket/key.
func UploadFile(ctx context.Context, client *s3.Client, bucket, key, filePath string) error {
	in, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open src: %w", err)
	}
	defer in.Close()

	if _, err := manager.NewUploader(client).Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   in,
	}); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/lychee-technology/customapi"
	"github.com/lychee-technology/customapi/internal"
)

type syncSchemasOptions struct {
	s3     customapi.S3Config
	bucket string
	prefix string
	dir    string
}

func parseSyncSchemasFlags(args []string) (syncSchemasOptions, error) {
	flags := flag.NewFlagSet("sync-schemas", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)

	opts := syncSchemasOptions{s3: customapi.DefaultConfig().S3}
	flags.StringVar(&opts.bucket, "bucket", getenvDefault("SCHEMA_S3_BUCKET", ""), "bucket holding content-type documents")
	flags.StringVar(&opts.prefix, "prefix", getenvDefault("SCHEMA_S3_PREFIX", ""), "key prefix of the documents")
	flags.StringVar(&opts.dir, "dir", getenvDefault("SCHEMA_DIR", ""), "local directory to write into")
	flags.StringVar(&opts.s3.Region, "region", getenvDefault("S3_REGION", opts.s3.Region), "AWS region")
	flags.StringVar(&opts.s3.Endpoint, "endpoint", getenvDefault("S3_ENDPOINT", ""), "custom S3 endpoint (MinIO, LocalStack)")
	flags.BoolVar(&opts.s3.UsePathStyle, "path-style", getenvDefault("S3_USE_PATH_STYLE", "") == "true", "use path-style addressing")
	opts.s3.AccessKey = os.Getenv("S3_ACCESS_KEY")
	opts.s3.SecretKey = os.Getenv("S3_SECRET_KEY")

	if err := flags.Parse(args); err != nil {
		return opts, err
	}
	if opts.bucket == "" {
		return opts, fmt.Errorf("-bucket is required")
	}
	if opts.dir == "" {
		return opts, fmt.Errorf("-dir is required")
	}
	return opts, nil
}

func runSyncSchemas(args []string) error {
	opts, err := parseSyncSchemasFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx := context.Background()
	client, err := internal.NewS3Client(ctx, opts.s3)
	if err != nil {
		return err
	}
	if err := internal.S3HealthCheck(ctx, client, opts.bucket, 0); err != nil {
		return err
	}
	if err := os.MkdirAll(opts.dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", opts.dir, err)
	}

	written, err := internal.NewS3SchemaSource(client, opts.bucket, opts.prefix).Sync(ctx, opts.dir)
	if err != nil {
		return err
	}
	if err := validateSchemas(ctx, opts.dir, 1, os.Stdout); err != nil {
		return err
	}
	fmt.Printf("Synced %d documents into %s\n", written, opts.dir)
	return nil
}

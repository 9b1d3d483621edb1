package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/lychee-technology/customapi"
)

// ValidateS3Config performs basic sanity checks on S3 settings.
func ValidateS3Config(cfg customapi.S3Config) error {
	if cfg.AccessKey != "" && cfg.SecretKey == "" {
		return fmt.Errorf("s3 access key provided without secret key")
	}
	if cfg.SecretKey != "" && cfg.AccessKey == "" {
		return fmt.Errorf("s3 secret key provided without access key")
	}
	if cfg.Region == "" && cfg.Endpoint == "" {
		return fmt.Errorf("s3 requires a region or an endpoint")
	}
	return nil
}

// NewS3Client builds an S3 client from cfg. Static credentials are used when
// both keys are set, otherwise the default AWS credential chain.
func NewS3Client(ctx context.Context, cfg customapi.S3Config) (*s3.Client, error) {
	if err := ValidateS3Config(cfg); err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// S3BucketAPI is the HeadBucket subset of the S3 client.
type S3BucketAPI interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3HealthCheck verifies the schema bucket is reachable with the configured
// credentials. timeout may be 0 to use a default of 5s.
func S3HealthCheck(ctx context.Context, client S3BucketAPI, bucket string, timeout time.Duration) error {
	if bucket == "" {
		return fmt.Errorf("s3 bucket not configured")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		if code := apiErrorCode(err); code != "" {
			return fmt.Errorf("s3 bucket %s unavailable (%s): %w", bucket, code, err)
		}
		return fmt.Errorf("s3 health request failed: %w", err)
	}
	return nil
}

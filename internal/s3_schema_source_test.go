package internal

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects  map[string][]byte
	vanished map[string]bool
	listErr  error
	pageSize int
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	start := 0
	if token := aws.ToString(in.ContinuationToken); token != "" {
		start = sort.SearchStrings(keys, token)
	}
	end := len(keys)
	if f.pageSize > 0 && start+f.pageSize < end {
		end = start + f.pageSize
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, key := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key), Size: aws.Int64(int64(len(f.objects[key])))})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)
	data, ok := f.objects[key]
	if !ok || f.vanished[key] {
		return nil, &types.NoSuchKey{Message: aws.String("gone")}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

const authorDocument = `{
  "uid": "api::author.author",
  "kind": "collectionType",
  "collectionName": "authors",
  "info": {"displayName": "Author"},
  "attributes": {"name": {"type": "string"}}
}`

func TestS3SchemaSource_Fetch(t *testing.T) {
	client := &fakeS3{
		objects: map[string][]byte{
			"schemas/api/author.json":   []byte(authorDocument),
			"schemas/api/article.json":  []byte(articleDocument),
			"schemas/README.md":         []byte("# docs"),
			"schemas/api/gone.json":     []byte("{}"),
			"other/ignored-prefix.json": []byte("{}"),
		},
		vanished: map[string]bool{"schemas/api/gone.json": true},
		pageSize: 2,
	}

	docs, err := NewS3SchemaSource(client, "cms", "schemas/").Fetch(context.Background())
	require.NoError(t, err)

	keys := make([]string, 0, len(docs))
	for key := range docs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"api/article.json", "api/author.json"}, keys)
	assert.JSONEq(t, authorDocument, string(docs["api/author.json"]))
}

func TestS3SchemaSource_MissingBucket(t *testing.T) {
	client := &fakeS3{listErr: &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "nope"}}

	_, err := NewS3SchemaSource(client, "missing", "").Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
	assert.Equal(t, "NoSuchBucket", apiErrorCode(err))
}

func TestS3SchemaSource_SyncAndRegistry(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{
		"api/author.json":  []byte(authorDocument),
		"api/article.json": []byte(articleDocument),
	}}
	source := NewS3SchemaSource(client, "cms", "")
	dir := t.TempDir()

	written, err := source.Sync(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	data, err := os.ReadFile(filepath.Join(dir, "api", "author.json"))
	require.NoError(t, err)
	assert.JSONEq(t, authorDocument, string(data))

	registry, err := NewFileSchemaRegistry(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, []string{"api::article.article", "api::author.author"}, registry.UIDs())
}

package internal

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/customapi"
	"go.uber.org/zap"
)

// Content types that never show up in listings.
const (
	UsersPermissionsUserUID  = "plugin::users-permissions.user"
	DefinitionContentTypeUID = "plugin::custom-api.custom-api"
)

//go:embed content_type.schema.json
var contentTypeMetaSchema []byte

var resolveMetaSchema = sync.OnceValues(func() (*jsonschema.Resolved, error) {
	var schema jsonschema.Schema
	if err := json.Unmarshal(contentTypeMetaSchema, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal content type meta-schema: %w", err)
	}
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve content type meta-schema: %w", err)
	}
	return resolved, nil
})

// DocumentSource yields raw content-type documents keyed by their origin
// (a relative path or an object key).
type DocumentSource interface {
	Fetch(ctx context.Context) (map[string][]byte, error)
}

// DirectorySource reads every *.json file below Dir.
type DirectorySource struct {
	Dir string
}

// Fetch walks the directory tree.
func (s DirectorySource) Fetch(ctx context.Context) (map[string][]byte, error) {
	docs := make(map[string][]byte)
	err := filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read content type file %s: %w", path, err)
		}
		rel, err := filepath.Rel(s.Dir, path)
		if err != nil {
			rel = path
		}
		docs[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read schema directory %s: %w", s.Dir, err)
	}
	return docs, nil
}

// ParseContentTypeDocument validates data against the content-type
// meta-schema and decodes it.
func ParseContentTypeDocument(source string, data []byte) (*customapi.ContentType, error) {
	metaSchema, err := resolveMetaSchema()
	if err != nil {
		return nil, err
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, customapi.NewSchemaInvalidError(source, err)
	}
	if err := metaSchema.Validate(instance); err != nil {
		return nil, customapi.NewSchemaInvalidError(source, err)
	}

	var ct customapi.ContentType
	if err := json.Unmarshal(data, &ct); err != nil {
		return nil, customapi.NewSchemaInvalidError(source, err)
	}
	for _, attr := range ct.Attributes {
		if attr.Kind() == customapi.AttributeKindRelation && attr.Target == "" {
			return nil, customapi.NewSchemaInvalidError(source,
				fmt.Errorf("relation attribute %q has no target", attr.Name))
		}
	}
	return &ct, nil
}

// FileSchemaRegistry serves content types decoded from a DocumentSource.
// It is safe for concurrent use; Reload swaps the whole set atomically.
type FileSchemaRegistry struct {
	mu     sync.RWMutex
	source DocumentSource
	types  map[string]*customapi.ContentType
}

// NewFileSchemaRegistry loads every document of source.
func NewFileSchemaRegistry(ctx context.Context, source DocumentSource) (*FileSchemaRegistry, error) {
	r := &FileSchemaRegistry{source: source, types: make(map[string]*customapi.ContentType)}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// NewFileSchemaRegistryFromDirectory is NewFileSchemaRegistry over a DirectorySource.
func NewFileSchemaRegistryFromDirectory(ctx context.Context, dir string) (*FileSchemaRegistry, error) {
	return NewFileSchemaRegistry(ctx, DirectorySource{Dir: dir})
}

// Reload re-reads the source. The previous set stays in place on error.
func (r *FileSchemaRegistry) Reload(ctx context.Context) error {
	docs, err := r.source.Fetch(ctx)
	if err != nil {
		return err
	}
	types, err := decodeDocuments(docs)
	if err != nil {
		return err
	}
	if len(types) == 0 {
		return fmt.Errorf("no content type documents found")
	}

	r.mu.Lock()
	r.types = types
	r.mu.Unlock()

	zap.S().Infow("content types loaded", "count", len(types))
	return nil
}

func decodeDocuments(docs map[string][]byte) (map[string]*customapi.ContentType, error) {
	sources := make([]string, 0, len(docs))
	for source := range docs {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	types := make(map[string]*customapi.ContentType, len(docs))
	origin := make(map[string]string, len(docs))
	for _, source := range sources {
		ct, err := ParseContentTypeDocument(source, docs[source])
		if err != nil {
			return nil, err
		}
		if prev, dup := origin[ct.UID]; dup {
			return nil, customapi.NewSchemaInvalidError(source,
				fmt.Errorf("content type %q is already declared in %s", ct.UID, prev))
		}
		origin[ct.UID] = source
		types[ct.UID] = ct
	}
	return types, nil
}

// Describe returns a copy of the content type registered under uid.
func (r *FileSchemaRegistry) Describe(ctx context.Context, uid string) (*customapi.ContentType, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	ct, ok := r.types[uid]
	if !ok {
		return nil, customapi.NewTypeNotFoundError(uid)
	}
	return ct.Clone(), nil
}

// List returns the collection types a definition can target, sorted by
// display name.
func (r *FileSchemaRegistry) List(ctx context.Context) ([]*customapi.ContentType, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*customapi.ContentType, 0, len(r.types))
	for uid, ct := range r.types {
		if ct.Kind != customapi.KindCollectionType {
			continue
		}
		if uid == UsersPermissionsUserUID || uid == DefinitionContentTypeUID {
			continue
		}
		out = append(out, ct.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].UID < out[j].UID
	})
	return out, nil
}

// UIDs returns every registered uid, sorted.
func (r *FileSchemaRegistry) UIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uids := make([]string, 0, len(r.types))
	for uid := range r.types {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}

var _ customapi.ContentTypeRegistry = (*FileSchemaRegistry)(nil)

package internal

import (
	"context"

	"github.com/lychee-technology/customapi"
	"go.uber.org/zap"
)

var mediaKeys = []string{"id", "url", "name", "alternativeText", "caption", "width", "height", "formats", "mime", "size"}

// ResponseTransformOptions controls how ResponseTransformer reshapes rows.
type ResponseTransformOptions struct {
	// FlattenSingleRelations turns "one" relations and single media into a
	// value or null. When false they stay as fetched.
	FlattenSingleRelations bool
	// PreserveNullValues keeps keys whose value is null.
	PreserveNullValues bool
}

// ResponseTransformOptionsFromConfig reads the transform options of cfg.
func ResponseTransformOptionsFromConfig(cfg customapi.ResponseConfig) ResponseTransformOptions {
	return ResponseTransformOptions{
		FlattenSingleRelations: cfg.FlattenSingleRelations,
		PreserveNullValues:     cfg.PreserveNullValues,
	}
}

// ResponseTransformer reshapes fetched rows by the attribute metadata of
// their content type, recursing into populated relations.
type ResponseTransformer struct {
	describer customapi.ContentTypeDescriber
	opts      ResponseTransformOptions
}

// NewResponseTransformer creates a transformer resolving nested types through describer.
func NewResponseTransformer(describer customapi.ContentTypeDescriber, opts ResponseTransformOptions) *ResponseTransformer {
	return &ResponseTransformer{describer: describer, opts: opts}
}

// Transform returns reshaped copies of rows of content type ct.
func (t *ResponseTransformer) Transform(ctx context.Context, ct *customapi.ContentType, rows []customapi.Row) []customapi.Row {
	out := make([]customapi.Row, len(rows))
	for i, row := range rows {
		out[i] = t.transformRow(ctx, ct, row)
	}
	return out
}

func (t *ResponseTransformer) transformRow(ctx context.Context, ct *customapi.ContentType, row customapi.Row) customapi.Row {
	if row == nil {
		return nil
	}
	out := make(customapi.Row, len(row))
	for key, value := range row {
		attr, ok := ct.Attribute(key)
		if !ok {
			if value != nil || t.opts.PreserveNullValues {
				out[key] = value
			}
			continue
		}

		var shaped any
		switch attr.Kind() {
		case customapi.AttributeKindRelation:
			shaped = t.relation(ctx, attr, value)
		case customapi.AttributeKindMedia:
			shaped = t.media(attr, value)
		case customapi.AttributeKindComponent:
			shaped = component(attr, value)
		case customapi.AttributeKindDynamicZone:
			shaped = asList(value)
		default:
			shaped = value
		}
		if shaped == nil && !t.opts.PreserveNullValues {
			continue
		}
		out[key] = shaped
	}
	return out
}

func (t *ResponseTransformer) relation(ctx context.Context, attr customapi.Attribute, value any) any {
	items := asList(value)

	if target, err := t.describer.Describe(ctx, attr.Target); err == nil {
		for i, item := range items {
			if row, ok := item.(map[string]any); ok {
				items[i] = t.transformRow(ctx, target, row)
			}
		}
	} else {
		zap.S().Warnw("relation target not described, leaving rows as fetched", "attribute", attr.Name, "target", attr.Target, "error", err)
	}

	if attr.Cardinality() == customapi.CardinalityOne && t.opts.FlattenSingleRelations {
		return first(items)
	}
	return items
}

func (t *ResponseTransformer) media(attr customapi.Attribute, value any) any {
	items := asList(value)
	for i, item := range items {
		items[i] = extractMedia(item)
	}
	if !attr.Multiple && t.opts.FlattenSingleRelations {
		return first(items)
	}
	return items
}

func component(attr customapi.Attribute, value any) any {
	if attr.Repeatable {
		return asList(value)
	}
	if list, ok := value.([]any); ok {
		return first(list)
	}
	return value
}

// asList normalizes a related value to a slice. Null becomes an empty slice
// and a single value becomes a one-element slice.
func asList(value any) []any {
	switch v := value.(type) {
	case nil:
		return []any{}
	case []any:
		return append([]any(nil), v...)
	case []customapi.Row:
		out := make([]any, len(v))
		for i, row := range v {
			out[i] = row
		}
		return out
	default:
		return []any{v}
	}
}

func first(items []any) any {
	if len(items) == 0 {
		return nil
	}
	return items[0]
}

func extractMedia(value any) any {
	media, ok := value.(map[string]any)
	if !ok {
		return value
	}
	out := make(map[string]any, len(mediaKeys))
	for _, key := range mediaKeys {
		if v, ok := media[key]; ok {
			out[key] = v
		}
	}
	return out
}

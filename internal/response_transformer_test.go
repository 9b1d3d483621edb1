package internal

import (
	"context"
	"testing"

	"github.com/lychee-technology/customapi"
	"github.com/stretchr/testify/assert"
)

func transformDescriber() staticDescriber {
	d := blogDescriber()
	article := d["api::article.article"]
	article.Attributes = append(article.Attributes,
		customapi.Attribute{Name: "cover", Type: "media"},
		customapi.Attribute{Name: "gallery", Type: "media", Multiple: true},
		customapi.Attribute{Name: "links", Type: "component", Component: "shared.link", Repeatable: true},
		customapi.Attribute{Name: "blocks", Type: "dynamiczone", Components: []string{"shared.quote"}},
		customapi.Attribute{Name: "tags", Type: "relation", Relation: "manyToMany", Target: "api::tag.tag"},
	)
	d["api::author.author"].Attributes = append(d["api::author.author"].Attributes,
		customapi.Attribute{Name: "avatar", Type: "media"},
	)
	return d
}

func TestResponseTransformer_Shapes(t *testing.T) {
	d := transformDescriber()
	tr := NewResponseTransformer(d, ResponseTransformOptions{FlattenSingleRelations: true, PreserveNullValues: true})

	rows := []customapi.Row{{
		"id":      int64(1),
		"title":   "Hello",
		"author":  []customapi.Row{{"id": int64(9), "name": "Ann", "avatar": []any{map[string]any{"id": 3.0, "url": "/a.png", "hash": "x"}}}},
		"cover":   map[string]any{"id": 1.0, "url": "/c.png", "provider": "local"},
		"gallery": map[string]any{"id": 2.0, "url": "/g.png"},
		"seo":     []any{map[string]any{"metaTitle": "hi"}},
		"links":   map[string]any{"href": "/x"},
		"blocks":  nil,
		"tags":    nil,
	}}

	got := tr.Transform(context.Background(), d["api::article.article"], rows)

	assert.Equal(t, []customapi.Row{{
		"id":      int64(1),
		"title":   "Hello",
		"author":  customapi.Row{"id": int64(9), "name": "Ann", "avatar": map[string]any{"id": 3.0, "url": "/a.png"}},
		"cover":   map[string]any{"id": 1.0, "url": "/c.png"},
		"gallery": []any{map[string]any{"id": 2.0, "url": "/g.png"}},
		"seo":     map[string]any{"metaTitle": "hi"},
		"links":   []any{map[string]any{"href": "/x"}},
		"blocks":  []any{},
		"tags":    []any{},
	}}, got)
}

func TestResponseTransformer_Options(t *testing.T) {
	d := transformDescriber()
	ct := d["api::article.article"]
	rows := []customapi.Row{{"id": int64(1), "title": nil, "author": []customapi.Row{}, "cover": nil}}

	t.Run("empty single relation becomes null", func(t *testing.T) {
		tr := NewResponseTransformer(d, ResponseTransformOptions{FlattenSingleRelations: true, PreserveNullValues: true})
		got := tr.Transform(context.Background(), ct, rows)
		assert.Equal(t, customapi.Row{"id": int64(1), "title": nil, "author": nil, "cover": nil}, got[0])
	})

	t.Run("nulls dropped", func(t *testing.T) {
		tr := NewResponseTransformer(d, ResponseTransformOptions{FlattenSingleRelations: true})
		got := tr.Transform(context.Background(), ct, rows)
		assert.Equal(t, customapi.Row{"id": int64(1)}, got[0])
	})

	t.Run("no flattening keeps arrays", func(t *testing.T) {
		tr := NewResponseTransformer(d, ResponseTransformOptions{PreserveNullValues: true})
		got := tr.Transform(context.Background(), ct, rows)
		assert.Equal(t, []any{}, got[0]["author"])
		assert.Equal(t, []any{}, got[0]["cover"])
	})
}

func TestResponseTransformer_DoesNotMutateInput(t *testing.T) {
	d := transformDescriber()
	tr := NewResponseTransformer(d, ResponseTransformOptions{FlattenSingleRelations: true, PreserveNullValues: true})
	related := []customapi.Row{{"id": int64(9), "name": "Ann"}}
	rows := []customapi.Row{{"id": int64(1), "author": related}}

	tr.Transform(context.Background(), d["api::article.article"], rows)
	assert.Equal(t, []customapi.Row{{"id": int64(9), "name": "Ann"}}, rows[0]["author"])
}

func TestResponseTransformOptionsFromConfig(t *testing.T) {
	opts := ResponseTransformOptionsFromConfig(customapi.DefaultConfig().Response)
	assert.True(t, opts.FlattenSingleRelations)
	assert.True(t, opts.PreserveNullValues)
}

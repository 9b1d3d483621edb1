package schematree

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/customapi"
)

func TestCompile_EmptySelection(t *testing.T) {
	tree := sampleTree()
	tree.Fields[0].Selected = false

	proj := Compile(tree)
	assert.Equal(t, []string{}, proj.Fields)
	assert.Equal(t, map[string]*customapi.QueryProjection{}, proj.Populate)

	data, err := json.Marshal(proj)
	require.NoError(t, err)
	assert.JSONEq(t, `{"fields":[],"populate":{}}`, string(data))
}

func TestCompile_NilTree(t *testing.T) {
	data, err := json.Marshal(Compile(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"fields":[],"populate":{}}`, string(data))
}

func TestCompile_NestedSelection(t *testing.T) {
	tree := sampleTree()
	tree = ToggleItem(tree, "Author", "name", customapi.CategoryFields)
	tree = ToggleItem(tree, "Author", "avatar", customapi.CategoryMedia)
	tree = ToggleItem(tree, "publisher", "name", customapi.CategoryFields)

	data, err := json.Marshal(Compile(tree))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"fields": ["id", "name"],
		"populate": {
			"avatar": {},
			"books": {
				"fields": ["id"],
				"populate": {
					"publisher": {"fields": ["id", "name"], "populate": {}}
				}
			}
		}
	}`, string(data))
}

func TestCompile_OmitsChildrenWithoutSelection(t *testing.T) {
	tree := ToggleItem(sampleTree(), "Author", "age", customapi.CategoryFields)

	proj := Compile(tree)
	assert.Equal(t, []string{"id", "age"}, proj.Fields)
	assert.NotContains(t, proj.Populate, "books")
}

func TestCompile_ComponentsAndDynamicZonesAreLeaves(t *testing.T) {
	tree := ToggleCategory(sampleTree(), "Author", customapi.CategoryComponents, true)
	tree = ToggleCategory(tree, "Author", customapi.CategoryDynamicZones, true)

	proj := Compile(tree)
	require.Contains(t, proj.Populate, "bio")
	require.Contains(t, proj.Populate, "blocks")
	assert.True(t, proj.Populate["bio"].IsLeaf())
	assert.True(t, proj.Populate["blocks"].IsLeaf())
}

func TestCompile_NoUnselectedLeakage(t *testing.T) {
	tree := sampleTree()
	tree = ToggleItem(tree, "books", "title", customapi.CategoryFields)

	proj := Compile(tree)
	assert.Equal(t, []string{"id"}, proj.Fields)
	books := proj.Populate["books"]
	require.NotNil(t, books)
	assert.Equal(t, []string{"id", "title"}, books.Fields)
	assert.NotContains(t, books.Populate, "publisher")
	assert.NotContains(t, proj.Populate, "avatar")
}

func TestCompile_Idempotent(t *testing.T) {
	tree := ToggleCategory(sampleTree(), "books", customapi.CategoryFields, true)
	assert.Equal(t, Compile(tree), Compile(tree))
}

func TestTrim(t *testing.T) {
	tree := ToggleItem(sampleTree(), "Author", "avatar", customapi.CategoryMedia)

	trimmed := Trim(tree)
	assert.Equal(t, []customapi.Item{item("id", true)}, trimmed.Fields)
	assert.Equal(t, []customapi.Item{item("avatar", true)}, trimmed.Media)
	assert.Empty(t, trimmed.Components)
	require.Len(t, trimmed.Populate, 1)
	assert.Equal(t, []customapi.Item{item("id", true)}, trimmed.Populate[0].Fields)
}

func TestSelectedFields(t *testing.T) {
	tree := ToggleItem(sampleTree(), "Author", "age", customapi.CategoryFields)
	assert.Equal(t, []string{"id", "age"}, SelectedFields(tree))
	assert.Nil(t, SelectedFields(nil))
}

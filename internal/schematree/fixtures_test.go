package schematree

import (
	"context"
	"errors"

	"github.com/lychee-technology/customapi"
)

type mapDescriber struct {
	types map[string]*customapi.ContentType
	fail  map[string]error
}

func (d *mapDescriber) Describe(ctx context.Context, uid string) (*customapi.ContentType, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := d.fail[uid]; ok {
		return nil, err
	}
	ct, ok := d.types[uid]
	if !ok {
		return nil, customapi.NewTypeNotFoundError(uid)
	}
	return ct.Clone(), nil
}

func libraryDescriber() *mapDescriber {
	author := &customapi.ContentType{
		UID:         "api::author.author",
		Kind:        customapi.KindCollectionType,
		DisplayName: "Author",
		Attributes: []customapi.Attribute{
			{Name: "name", Type: "string"},
			{Name: "age", Type: "integer"},
			{Name: "avatar", Type: "media"},
			{Name: "bio", Type: "component", Component: "shared.bio"},
			{Name: "blocks", Type: "dynamiczone", Components: []string{"shared.quote"}},
			{Name: "books", Type: "relation", Relation: "oneToMany", Target: "api::book.book"},
			{Name: "mentor", Type: "relation", Relation: "oneToOne", Target: "api::author.author"},
		},
	}
	book := &customapi.ContentType{
		UID:         "api::book.book",
		Kind:        customapi.KindCollectionType,
		DisplayName: "Book",
		Attributes: []customapi.Attribute{
			{Name: "title", Type: "string"},
			{Name: "author", Type: "relation", Relation: "manyToOne", Target: "api::author.author"},
			{Name: "publisher", Type: "relation", Relation: "manyToOne", Target: "api::publisher.publisher"},
			{Name: "distributor", Type: "relation", Relation: "manyToOne", Target: "api::publisher.publisher"},
		},
	}
	publisher := &customapi.ContentType{
		UID:         "api::publisher.publisher",
		Kind:        customapi.KindCollectionType,
		DisplayName: "Publisher",
		Attributes: []customapi.Attribute{
			{Name: "name", Type: "string"},
		},
	}
	return &mapDescriber{
		types: map[string]*customapi.ContentType{
			author.UID:    author,
			book.UID:      book,
			publisher.UID: publisher,
		},
		fail: map[string]error{},
	}
}

var errBackend = errors.New("backend unavailable")

func item(name string, selected bool) customapi.Item {
	return customapi.Item{Name: name, Selected: selected}
}

// sampleTree is a small hand-made Author tree.
func sampleTree() *customapi.SchemaNode {
	return &customapi.SchemaNode{
		Table:        "Author",
		Fields:       []customapi.Item{item("id", true), item("name", false), item("age", false)},
		Media:        []customapi.Item{item("avatar", false)},
		Components:   []customapi.Item{item("bio", false)},
		DynamicZones: []customapi.Item{item("blocks", false)},
		Populate: []*customapi.SchemaNode{
			{
				Table:        "books",
				Fields:       []customapi.Item{item("id", true), item("title", false)},
				Media:        []customapi.Item{},
				Components:   []customapi.Item{},
				DynamicZones: []customapi.Item{},
				Populate: []*customapi.SchemaNode{
					{
						Table:        "publisher",
						Fields:       []customapi.Item{item("id", true), item("name", false)},
						Media:        []customapi.Item{},
						Components:   []customapi.Item{},
						DynamicZones: []customapi.Item{},
						Populate:     []*customapi.SchemaNode{},
					},
				},
			},
		},
	}
}

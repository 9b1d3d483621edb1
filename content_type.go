package customapi

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Content type kinds.
const (
	KindCollectionType = "collectionType"
	KindSingleType     = "singleType"
)

// AttributeKind classifies an attribute for tree building.
type AttributeKind string

const (
	AttributeKindScalar      AttributeKind = "scalar"
	AttributeKindRelation    AttributeKind = "relation"
	AttributeKindMedia       AttributeKind = "media"
	AttributeKindComponent   AttributeKind = "component"
	AttributeKindDynamicZone AttributeKind = "dynamicZone"
)

// Cardinality says whether a related value is a single record or a collection.
type Cardinality string

const (
	CardinalityOne  Cardinality = "one"
	CardinalityMany Cardinality = "many"
)

// Attribute is one named attribute of a content type.
type Attribute struct {
	Name         string   `json:"-"`
	Type         string   `json:"type"`
	Relation     string   `json:"relation,omitempty"`
	Target       string   `json:"target,omitempty"`
	Multiple     bool     `json:"multiple,omitempty"`
	Repeatable   bool     `json:"repeatable,omitempty"`
	Component    string   `json:"component,omitempty"`
	Components   []string `json:"components,omitempty"`
	AllowedTypes []string `json:"allowedTypes,omitempty"`
	JoinTable    string   `json:"joinTable,omitempty"`
	Required     bool     `json:"required,omitempty"`
	Unique       bool     `json:"unique,omitempty"`
}

// Kind maps the attribute type onto a tree category.
func (a Attribute) Kind() AttributeKind {
	switch a.Type {
	case "relation":
		return AttributeKindRelation
	case "media":
		return AttributeKindMedia
	case "component":
		return AttributeKindComponent
	case "dynamiczone":
		return AttributeKindDynamicZone
	default:
		return AttributeKindScalar
	}
}

// Cardinality is "one" for oneToOne/manyToOne relations and "many" otherwise.
func (a Attribute) Cardinality() Cardinality {
	switch a.Relation {
	case "oneToOne", "manyToOne":
		return CardinalityOne
	default:
		return CardinalityMany
	}
}

// ContentType describes one entity kind. Attributes keep declaration order.
type ContentType struct {
	UID            string
	Kind           string
	DisplayName    string
	SingularName   string
	PluralName     string
	CollectionName string
	Attributes     []Attribute
}

type contentTypeInfo struct {
	DisplayName  string `json:"displayName"`
	SingularName string `json:"singularName,omitempty"`
	PluralName   string `json:"pluralName,omitempty"`
}

type contentTypeDocument struct {
	UID            string                                    `json:"uid"`
	Kind           string                                    `json:"kind"`
	CollectionName string                                    `json:"collectionName,omitempty"`
	Info           contentTypeInfo                           `json:"info"`
	Attributes     *orderedmap.OrderedMap[string, Attribute] `json:"attributes"`
}

// UnmarshalJSON decodes the {uid, kind, collectionName, info, attributes} document shape.
func (c *ContentType) UnmarshalJSON(data []byte) error {
	doc := contentTypeDocument{Attributes: orderedmap.New[string, Attribute]()}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	c.UID = doc.UID
	c.Kind = doc.Kind
	c.CollectionName = doc.CollectionName
	c.DisplayName = doc.Info.DisplayName
	c.SingularName = doc.Info.SingularName
	c.PluralName = doc.Info.PluralName
	c.Attributes = make([]Attribute, 0, doc.Attributes.Len())
	for pair := doc.Attributes.Oldest(); pair != nil; pair = pair.Next() {
		attr := pair.Value
		attr.Name = pair.Key
		c.Attributes = append(c.Attributes, attr)
	}
	return nil
}

// MarshalJSON encodes the same document shape, attributes in declaration order.
func (c ContentType) MarshalJSON() ([]byte, error) {
	attrs := orderedmap.New[string, Attribute](len(c.Attributes))
	for _, attr := range c.Attributes {
		attrs.Set(attr.Name, attr)
	}
	return json.Marshal(contentTypeDocument{
		UID:            c.UID,
		Kind:           c.Kind,
		CollectionName: c.CollectionName,
		Info: contentTypeInfo{
			DisplayName:  c.DisplayName,
			SingularName: c.SingularName,
			PluralName:   c.PluralName,
		},
		Attributes: attrs,
	})
}

// Attribute looks up an attribute by name.
func (c *ContentType) Attribute(name string) (Attribute, bool) {
	for _, attr := range c.Attributes {
		if attr.Name == name {
			return attr, true
		}
	}
	return Attribute{}, false
}

var nonIdentChars = regexp.MustCompile(`[^a-z0-9_]+`)

// Table returns the backing table name. It falls back to the last uid segment.
func (c *ContentType) Table() string {
	if c.CollectionName != "" {
		return c.CollectionName
	}
	name := c.UID
	if idx := strings.LastIndexAny(name, ".:"); idx >= 0 {
		name = name[idx+1:]
	}
	name = nonIdentChars.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(name, "_")
}

// Clone returns a deep copy.
func (c *ContentType) Clone() *ContentType {
	if c == nil {
		return nil
	}
	out := *c
	out.Attributes = make([]Attribute, len(c.Attributes))
	for i, attr := range c.Attributes {
		attr.Components = append([]string(nil), attr.Components...)
		attr.AllowedTypes = append([]string(nil), attr.AllowedTypes...)
		out.Attributes[i] = attr
	}
	return &out
}

// FieldsFor types the given names from the content type. The identifier
// field is typed as integer when it is not declared; other unknown names are dropped.
func (c *ContentType) FieldsFor(names []string, identifier string) []Field {
	out := make([]Field, 0, len(names))
	for _, name := range names {
		if attr, ok := c.Attribute(name); ok {
			out = append(out, Field{Name: name, Type: attr.Type})
			continue
		}
		if name == identifier {
			out = append(out, Field{Name: name, Type: "integer"})
		}
	}
	return out
}

func (c *ContentType) String() string {
	return fmt.Sprintf("%s (%s)", c.DisplayName, c.UID)
}

package customapi

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Category names one of the four disjoint item lists of a SchemaNode.
type Category string

const (
	CategoryFields       Category = "fields"
	CategoryMedia        Category = "media"
	CategoryComponents   Category = "components"
	CategoryDynamicZones Category = "dynamicZones"
)

// Categories lists every category in the order they appear on a node.
var Categories = []Category{CategoryFields, CategoryMedia, CategoryComponents, CategoryDynamicZones}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryFields, CategoryMedia, CategoryComponents, CategoryDynamicZones:
		return true
	}
	return false
}

// DefaultIdentifierField is the field pinned as selected on every node.
const DefaultIdentifierField = "id"

// Item is a selectable attribute of a node.
type Item struct {
	Name     string `json:"name"`
	Selected bool   `json:"selected"`
}

// SchemaNode is one content type in a selection tree. Nested nodes are
// labelled with the relation attribute that reached them.
type SchemaNode struct {
	Table        string        `json:"table"`
	Fields       []Item        `json:"fields"`
	Media        []Item        `json:"media"`
	Components   []Item        `json:"components"`
	DynamicZones []Item        `json:"dynamicZones"`
	Populate     []*SchemaNode `json:"populate"`
}

// Items returns the item list for a category. Unknown categories yield nil.
func (n *SchemaNode) Items(category Category) []Item {
	switch category {
	case CategoryFields:
		return n.Fields
	case CategoryMedia:
		return n.Media
	case CategoryComponents:
		return n.Components
	case CategoryDynamicZones:
		return n.DynamicZones
	}
	return nil
}

// SetItems replaces the item list for a category.
func (n *SchemaNode) SetItems(category Category, items []Item) {
	switch category {
	case CategoryFields:
		n.Fields = items
	case CategoryMedia:
		n.Media = items
	case CategoryComponents:
		n.Components = items
	case CategoryDynamicZones:
		n.DynamicZones = items
	}
}

// Child returns the direct child labelled table, or nil.
func (n *SchemaNode) Child(table string) *SchemaNode {
	for _, child := range n.Populate {
		if child != nil && child.Table == table {
			return child
		}
	}
	return nil
}

// Empty reports whether the node carries no items and no children.
func (n *SchemaNode) Empty() bool {
	if n == nil {
		return true
	}
	return len(n.Fields) == 0 && len(n.Media) == 0 && len(n.Components) == 0 &&
		len(n.DynamicZones) == 0 && len(n.Populate) == 0
}

// QueryProjection is the nested {fields, populate} object handed to the
// data-fetch engine. A projection with nil Fields and nil Populate is a leaf
// that asks for the whole related value (media, components, dynamic zones).
type QueryProjection struct {
	Fields   []string                    `json:"fields"`
	Populate map[string]*QueryProjection `json:"populate"`
}

// IsLeaf reports whether p carries no nested selection.
func (p *QueryProjection) IsLeaf() bool {
	return p == nil || (p.Fields == nil && p.Populate == nil)
}

// MarshalJSON omits nil members so leaves encode as {}.
func (p QueryProjection) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 2)
	if p.Fields != nil {
		out["fields"] = p.Fields
	}
	if p.Populate != nil {
		out["populate"] = p.Populate
	}
	return json.Marshal(out)
}

// FilterOperator is a bracketed filter operator such as $eq.
type FilterOperator string

const (
	FilterEq           FilterOperator = "$eq"
	FilterNe           FilterOperator = "$ne"
	FilterGt           FilterOperator = "$gt"
	FilterGte          FilterOperator = "$gte"
	FilterLt           FilterOperator = "$lt"
	FilterLte          FilterOperator = "$lte"
	FilterIn           FilterOperator = "$in"
	FilterNotIn        FilterOperator = "$notIn"
	FilterContains     FilterOperator = "$contains"
	FilterNotContains  FilterOperator = "$notContains"
	FilterContainsi    FilterOperator = "$containsi"
	FilterNotContainsi FilterOperator = "$notContainsi"
	FilterStartsWith   FilterOperator = "$startsWith"
	FilterEndsWith     FilterOperator = "$endsWith"
	FilterNull         FilterOperator = "$null"
	FilterNotNull      FilterOperator = "$notNull"
)

// FilterSpec maps a field name to its operator/value pairs.
type FilterSpec map[string]map[FilterOperator]any

// SortDirection is asc or desc.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortEntry is one {field: direction} record.
type SortEntry struct {
	Field     string
	Direction SortDirection
}

// MarshalJSON encodes the entry as a single-key object.
func (e SortEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]SortDirection{e.Field: e.Direction})
}

// UnmarshalJSON accepts a single-key object.
func (e *SortEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]SortDirection
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("sort entry must have exactly one field, got %d", len(raw))
	}
	for field, dir := range raw {
		e.Field = field
		e.Direction = dir
	}
	return nil
}

// SortSpec is ordered; earlier entries win ties.
type SortSpec []SortEntry

// PaginationSpec is the bounded page request.
type PaginationSpec struct {
	Page        int  `json:"page"`
	PageSize    int  `json:"pageSize"`
	Unpaginated bool `json:"unpaginated,omitempty"`
}

// Offset returns the row offset of the page. Pages past MaxPage address
// the last reachable page.
func (p PaginationSpec) Offset() int {
	if p.Unpaginated || p.Page < 1 || p.PageSize < 1 {
		return 0
	}
	return (min(p.Page, MaxPage(p.PageSize)) - 1) * p.PageSize
}

// MaxPage is the highest page whose end row still fits in an int.
func MaxPage(pageSize int) int {
	if pageSize < 1 {
		return math.MaxInt
	}
	return math.MaxInt / pageSize
}

// PaginationMeta is derived from a PaginationSpec and a total row count.
type PaginationMeta struct {
	Page            int   `json:"page"`
	PageSize        int   `json:"pageSize"`
	PageCount       int   `json:"pageCount"`
	Total           int64 `json:"total"`
	HasNextPage     bool  `json:"hasNextPage"`
	HasPreviousPage bool  `json:"hasPreviousPage"`
	FirstPage       int   `json:"firstPage"`
	LastPage        int   `json:"lastPage"`
	Start           int64 `json:"start"`
	End             int64 `json:"end"`
}

// PaginationLinks are absolute or relative URLs for neighbouring pages.
type PaginationLinks struct {
	Self  string `json:"self"`
	First string `json:"first"`
	Last  string `json:"last"`
	Prev  string `json:"prev,omitempty"`
	Next  string `json:"next,omitempty"`
}

// Field is a filterable/sortable attribute and its declared type.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ValidationIssue is one error or warning from a validation layer.
type ValidationIssue struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationResult collects errors and warnings. Valid is false only when
// Errors is non-empty.
type ValidationResult struct {
	Valid    bool              `json:"isValid"`
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

// NewValidationResult returns a valid, empty result.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{Valid: true, Errors: []ValidationIssue{}, Warnings: []ValidationIssue{}}
}

// AddError appends an error and marks the result invalid.
func (r *ValidationResult) AddError(code, field, message string) {
	r.Errors = append(r.Errors, ValidationIssue{Code: code, Field: field, Message: message})
	r.Valid = false
}

// AddWarning appends a warning.
func (r *ValidationResult) AddWarning(code, field, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{Code: code, Field: field, Message: message})
}

// Merge appends the issues of other.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	for _, issue := range other.Errors {
		r.AddError(issue.Code, issue.Field, issue.Message)
	}
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Issues returns errors followed by warnings.
func (r *ValidationResult) Issues() []ValidationIssue {
	out := make([]ValidationIssue, 0, len(r.Errors)+len(r.Warnings))
	out = append(out, r.Errors...)
	return append(out, r.Warnings...)
}

// DocumentQuery is the merged query handed to the data-fetch engine.
type DocumentQuery struct {
	Fields     []string                    `json:"fields"`
	Populate   map[string]*QueryProjection `json:"populate"`
	Filters    FilterSpec                  `json:"filters,omitempty"`
	Sort       SortSpec                    `json:"sort,omitempty"`
	Pagination *PaginationSpec             `json:"pagination,omitempty"`
}

// Row is one fetched record.
type Row = map[string]any

// SelectedContentType references the root content type of a definition.
type SelectedContentType struct {
	UID         string `json:"uid" validate:"required"`
	DisplayName string `json:"displayName"`
}

// Definition is a saved custom API.
type Definition struct {
	ID                  uuid.UUID           `json:"id"`
	Name                string              `json:"name"`
	Slug                string              `json:"slug"`
	SelectedContentType SelectedContentType `json:"selectedContentType"`
	Structure           *SchemaNode         `json:"structure"`
	CreatedAt           int64               `json:"createdAt"`
	UpdatedAt           int64               `json:"updatedAt"`
}

// DefinitionInput is the admin payload for create and update.
type DefinitionInput struct {
	Name                string              `json:"name" validate:"required,max=200"`
	Slug                string              `json:"slug" validate:"omitempty,max=100"`
	SelectedContentType SelectedContentType `json:"selectedContentType"`
	Structure           *SchemaNode         `json:"structure,omitempty"`
}

// ListOptions pages and filters definition listings.
type ListOptions struct {
	Page        int    `schema:"page"`
	PageSize    int    `schema:"pageSize"`
	ContentType string `schema:"contentType"`
}

// DefinitionList is one page of definitions.
type DefinitionList struct {
	Items []*Definition  `json:"items"`
	Meta  PaginationMeta `json:"meta"`
}

// SlugCheck reports slug validity and uniqueness.
type SlugCheck struct {
	Slug   string   `json:"slug"`
	Valid  bool     `json:"isValid"`
	Unique bool     `json:"isUnique"`
	Errors []string `json:"errors"`
}

// EndpointRequest is one call to a generated endpoint.
type EndpointRequest struct {
	Slug     string
	RawQuery string
	// BaseURL enables pagination links when non-empty.
	BaseURL string
}

// EndpointMeta is the meta member of the response envelope.
type EndpointMeta struct {
	Pagination PaginationMeta   `json:"pagination"`
	Links      *PaginationLinks `json:"links,omitempty"`
}

// EndpointResponse is the {data, meta} envelope plus non-fatal issues.
type EndpointResponse struct {
	Data     []Row             `json:"data"`
	Meta     EndpointMeta      `json:"meta"`
	Warnings []ValidationIssue `json:"-"`
}

// ItemChange is one difference between a saved tree and the live schema.
// Kind is a category name, or "relation" for populate children.
type ItemChange struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	OldKind string `json:"oldKind,omitempty"`
}

// ChangeKindRelation marks an ItemChange on a populate child.
const ChangeKindRelation = "relation"

// MigrationSuggestion is an actionable summary of a StructureReport.
type MigrationSuggestion struct {
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Fields      []string `json:"fields"`
	Action      string   `json:"action"`
}

// StructureReport compares a saved tree against a freshly built one.
type StructureReport struct {
	Valid       bool                  `json:"isValid"`
	Errors      []string              `json:"errors"`
	Warnings    []string              `json:"warnings"`
	Removed     []ItemChange          `json:"removedFields"`
	Added       []ItemChange          `json:"addedFields"`
	Modified    []ItemChange          `json:"modifiedFields"`
	Suggestions []string              `json:"suggestions"`
	Migrations  []MigrationSuggestion `json:"migrations,omitempty"`
}

// HasChanges reports whether anything drifted.
func (r *StructureReport) HasChanges() bool {
	return len(r.Removed) > 0 || len(r.Added) > 0 || len(r.Modified) > 0
}

// FieldDoc documents one filterable or sortable field.
type FieldDoc struct {
	Type     string   `json:"type"`
	Sortable *bool    `json:"sortable,omitempty"`
	Note     string   `json:"note,omitempty"`
	Examples []string `json:"examples"`
}

// FilterDocumentation describes the filter syntax of an endpoint.
type FilterDocumentation struct {
	Description string              `json:"description"`
	Syntax      map[string]string   `json:"syntax"`
	Operators   map[string]string   `json:"operators"`
	Fields      map[string]FieldDoc `json:"fields"`
}

// SortDocumentation describes the sort syntax of an endpoint.
type SortDocumentation struct {
	Description string              `json:"description"`
	Syntax      map[string]string   `json:"syntax"`
	Directions  map[string]string   `json:"directions"`
	Prefixes    map[string]string   `json:"prefixes"`
	Fields      map[string]FieldDoc `json:"fields"`
	Notes       map[string]string   `json:"notes"`
}

// ParameterDoc documents one pagination parameter.
type ParameterDoc struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     int    `json:"default"`
	Minimum     int    `json:"minimum"`
	Maximum     int    `json:"maximum,omitempty"`
}

// PaginationFormat is one accepted pagination style.
type PaginationFormat struct {
	Description string   `json:"description"`
	Examples    []string `json:"examples"`
}

// PaginationDocumentation describes the pagination parameters of an endpoint.
type PaginationDocumentation struct {
	Description string                      `json:"description"`
	Formats     map[string]PaginationFormat `json:"formats"`
	Parameters  map[string]ParameterDoc     `json:"parameters"`
	Notes       map[string]string           `json:"notes"`
}

// EndpointDocs is served next to a generated endpoint.
type EndpointDocs struct {
	Slug        string                  `json:"slug"`
	ContentType SelectedContentType     `json:"contentType"`
	Fields      []Field                 `json:"fields"`
	Filters     FilterDocumentation     `json:"filters"`
	Sort        SortDocumentation       `json:"sort"`
	Pagination  PaginationDocumentation `json:"pagination"`
}

package queryparams

import (
	"fmt"

	"github.com/lychee-technology/customapi"
)

var operatorDescriptions = map[string]string{
	"$eq":           "Equal to (default)",
	"$ne":           "Not equal to",
	"$gt":           "Greater than",
	"$gte":          "Greater than or equal",
	"$lt":           "Less than",
	"$lte":          "Less than or equal",
	"$in":           "In array (comma-separated)",
	"$notIn":        "Not in array (comma-separated)",
	"$contains":     "Contains (case-sensitive)",
	"$notContains":  "Does not contain (case-sensitive)",
	"$containsi":    "Contains (case-insensitive)",
	"$notContainsi": "Does not contain (case-insensitive)",
	"$startsWith":   "Starts with",
	"$endsWith":     "Ends with",
	"$null":         "Is null (use true/false)",
	"$notNull":      "Is not null (use true/false)",
}

// BuildFilterDocumentation describes the filter syntax for fields.
func BuildFilterDocumentation(fields []customapi.Field) customapi.FilterDocumentation {
	docs := make(map[string]customapi.FieldDoc, len(fields))
	for _, f := range fields {
		docs[f.Name] = customapi.FieldDoc{Type: f.Type, Examples: filterExamples(f.Name, f.Type)}
	}
	return customapi.FilterDocumentation{
		Description: "Filter results using query parameters",
		Syntax: map[string]string{
			"simple":   "?fieldName=value",
			"operator": "?fieldName[$operator]=value",
			"multiple": "?field1=value1&field2[$gt]=value2",
		},
		Operators: operatorDescriptions,
		Fields:    docs,
	}
}

func filterExamples(name, fieldType string) []string {
	examples := []string{
		fmt.Sprintf("?%s=example", name),
		fmt.Sprintf("?%s[$ne]=unwanted", name),
	}
	switch fieldType {
	case "string", "text", "richtext":
		examples = append(examples,
			fmt.Sprintf("?%s[$contains]=search", name),
			fmt.Sprintf("?%s[$containsi]=Search", name),
			fmt.Sprintf("?%s[$startsWith]=prefix", name))
	case "integer", "biginteger", "float", "decimal":
		examples = append(examples,
			fmt.Sprintf("?%s[$gt]=100", name),
			fmt.Sprintf("?%s[$gte]=50", name),
			fmt.Sprintf("?%s[$lt]=200", name),
			fmt.Sprintf("?%s[$in]=10,20,30", name))
	case "boolean":
		examples = append(examples,
			fmt.Sprintf("?%s=true", name),
			fmt.Sprintf("?%s=false", name))
	case "date", "datetime":
		examples = append(examples,
			fmt.Sprintf("?%s[$gt]=2023-01-01", name),
			fmt.Sprintf("?%s[$gte]=2023-01-01T00:00:00Z", name),
			fmt.Sprintf("?%s[$lt]=2024-01-01", name))
	case "enumeration":
		examples = append(examples,
			fmt.Sprintf("?%s[$in]=option1,option2", name),
			fmt.Sprintf("?%s[$notIn]=excluded", name))
	}
	return examples
}

// BuildSortDocumentation describes the sort syntax for fields.
func BuildSortDocumentation(fields []customapi.Field) customapi.SortDocumentation {
	docs := make(map[string]customapi.FieldDoc, len(fields))
	for _, f := range fields {
		sortable, note := CheckSortCompatibility(f.Type)
		doc := customapi.FieldDoc{Type: f.Type, Sortable: &sortable, Note: note, Examples: []string{}}
		if sortable {
			doc.Examples = sortExamples(f.Name, f.Type)
		}
		docs[f.Name] = doc
	}
	return customapi.SortDocumentation{
		Description: "Sort results using query parameters",
		Syntax: map[string]string{
			"string":   "?sort=field1,-field2,field3",
			"object":   "?sort[field1]=asc&sort[field2]=desc",
			"multiple": "?sort=name,-createdAt",
		},
		Directions: map[string]string{
			"asc":  "Ascending order (A-Z, 0-9, oldest first)",
			"desc": "Descending order (Z-A, 9-0, newest first)",
		},
		Prefixes: map[string]string{
			"+field": "Ascending (explicit)",
			"-field": "Descending (shorthand)",
			"field":  "Ascending (default)",
		},
		Fields: docs,
		Notes: map[string]string{
			"multiple":    "Multiple sort fields are applied in the order given",
			"performance": "Sorting on long text fields may impact performance",
			"indexing":    "Consider database indexes for frequently sorted fields",
		},
	}
}

func sortExamples(name, fieldType string) []string {
	examples := []string{
		fmt.Sprintf("?sort=%s", name),
		fmt.Sprintf("?sort=-%s", name),
		fmt.Sprintf("?sort=%s&sort[otherField]=desc", name),
	}
	switch fieldType {
	case "datetime", "date":
		examples = append(examples, fmt.Sprintf("?sort=-%s", name), fmt.Sprintf("?sort=createdAt,-%s", name))
	case "integer", "biginteger", "float", "decimal", "string", "email":
		examples = append(examples, fmt.Sprintf("?sort=%s,id", name), fmt.Sprintf("?sort=-%s,id", name))
	}
	if len(examples) > 5 {
		examples = examples[:5]
	}
	return examples
}

// BuildPaginationDocumentation describes the pagination parameters under opts.
func BuildPaginationDocumentation(opts Options) customapi.PaginationDocumentation {
	return customapi.PaginationDocumentation{
		Description: "Paginate results using query parameters",
		Formats: map[string]customapi.PaginationFormat{
			"pageBased": {
				Description: "Page-based pagination (recommended)",
				Examples:    []string{"?page=1&pageSize=25", "?page=2&pageSize=50", "?pagination[page]=3&pagination[pageSize]=10"},
			},
			"offsetBased": {
				Description: "Offset-based pagination",
				Examples:    []string{"?offset=0&limit=25", "?skip=50&take=25", "?offset=100&limit=50"},
			},
		},
		Parameters: map[string]customapi.ParameterDoc{
			"page": {
				Type: "integer", Description: "Page number (starts at 1)", Default: 1, Minimum: 1,
			},
			"pageSize": {
				Type: "integer", Description: "Number of items per page",
				Default: opts.DefaultPageSize, Minimum: opts.MinPageSize, Maximum: opts.MaxPageSize,
			},
			"offset": {
				Type: "integer", Description: "Number of items to skip (alternative to page)", Default: 0, Minimum: 0,
			},
			"limit": {
				Type: "integer", Description: "Number of items to return (alternative to pageSize)",
				Default: opts.DefaultPageSize, Minimum: opts.MinPageSize, Maximum: opts.MaxPageSize,
			},
		},
		Notes: map[string]string{
			"performance": fmt.Sprintf("Page sizes above %d may impact response time", opts.WarnLargePageSize),
			"limits":      fmt.Sprintf("Maximum page size is %d items", opts.MaxPageSize),
			"defaults":    fmt.Sprintf("Default page size is %d items", opts.DefaultPageSize),
		},
	}
}

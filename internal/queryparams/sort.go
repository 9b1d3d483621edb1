package queryparams

import (
	"fmt"
	"slices"
	"strings"

	"github.com/lychee-technology/customapi"
)

var unsortableTypes = []string{"json", "media", "component", "dynamiczone", "relation"}

// ParseSort reads the string (`sort=name,-createdAt`), indexed
// (`sort[0]=name`) and object (`sort[name]=desc`) forms in the order their
// keys first appear. Unknown fields and unrecognised directions are dropped.
func ParseSort(q Query, fields []customapi.Field) customapi.SortSpec {
	known := fieldSet(fields)
	spec := customapi.SortSpec{}

	for _, key := range q.Keys() {
		if key == "sort" {
			for _, value := range q.Values(key) {
				spec = append(spec, ParseSortString(value, known)...)
			}
			continue
		}
		inner, ok := bracketed(key, "sort")
		if !ok {
			continue
		}
		if isIndex(inner) {
			for _, value := range q.Values(key) {
				spec = append(spec, ParseSortString(value, known)...)
			}
			continue
		}
		if _, ok := known[inner]; !ok {
			continue
		}
		if dir, ok := NormalizeSortDirection(q.Get(key)); ok {
			spec = append(spec, customapi.SortEntry{Field: inner, Direction: dir})
		}
	}
	return spec
}

// ParseSortString parses a comma list where "-" marks descending and "+" or
// no prefix ascending.
func ParseSortString(raw string, known map[string]struct{}) customapi.SortSpec {
	spec := customapi.SortSpec{}
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		dir := customapi.SortAsc
		switch token[0] {
		case '-':
			dir = customapi.SortDesc
			token = token[1:]
		case '+':
			token = token[1:]
		}
		if _, ok := known[token]; ok {
			spec = append(spec, customapi.SortEntry{Field: token, Direction: dir})
		}
	}
	return spec
}

// NormalizeSortDirection maps direction spellings onto asc or desc.
func NormalizeSortDirection(raw string) (customapi.SortDirection, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "asc", "ascending", "1", "up":
		return customapi.SortAsc, true
	case "desc", "descending", "-1", "down":
		return customapi.SortDesc, true
	}
	return "", false
}

// CheckSortCompatibility returns whether fieldType can be sorted and an
// optional note.
func CheckSortCompatibility(fieldType string) (bool, string) {
	if slices.Contains(unsortableTypes, fieldType) {
		return false, fmt.Sprintf("Field type %q is not suitable for sorting", fieldType)
	}
	if fieldType == "text" || fieldType == "richtext" {
		return true, fmt.Sprintf("Sorting by %q fields may be slow on large datasets", fieldType)
	}
	return true, ""
}

// ValidateSort reports unknown fields and bad directions as errors, and
// unsortable field types as warnings.
func ValidateSort(spec customapi.SortSpec, fields []customapi.Field) *customapi.ValidationResult {
	result := customapi.NewValidationResult()
	types := fieldTypes(fields)

	for _, entry := range spec {
		fieldType, ok := types[entry.Field]
		if !ok {
			result.AddError(customapi.ErrCodeUnknownSortField, entry.Field,
				fmt.Sprintf("Field %q is not available for sorting", entry.Field))
			continue
		}
		if entry.Direction != customapi.SortAsc && entry.Direction != customapi.SortDesc {
			result.AddError(customapi.ErrCodeInvalidSortDirection, entry.Field,
				fmt.Sprintf("Invalid sort direction %q for field %q. Must be 'asc' or 'desc'", entry.Direction, entry.Field))
			continue
		}
		if sortable, reason := CheckSortCompatibility(fieldType); !sortable {
			result.AddWarning(customapi.ErrCodeUnsortableField, entry.Field,
				fmt.Sprintf("Sorting by %q (%s): %s", entry.Field, fieldType, reason))
		}
	}
	return result
}

// bracketed returns X for keys of the form prefix[X].
func bracketed(key, prefix string) (string, bool) {
	if !strings.HasPrefix(key, prefix+"[") || !strings.HasSuffix(key, "]") {
		return "", false
	}
	inner := key[len(prefix)+1 : len(key)-1]
	if inner == "" || strings.ContainsAny(inner, "[]") {
		return "", false
	}
	return inner, true
}

func isIndex(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

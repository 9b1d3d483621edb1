package queryparams

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/lychee-technology/customapi"
)

// Keys that never name a filter.
var reservedKeys = map[string]struct{}{
	"sort":       {},
	"pagination": {},
	"populate":   {},
	"fields":     {},
}

var allowedOperators = map[customapi.FilterOperator]struct{}{
	customapi.FilterEq:           {},
	customapi.FilterNe:           {},
	customapi.FilterGt:           {},
	customapi.FilterGte:          {},
	customapi.FilterLt:           {},
	customapi.FilterLte:          {},
	customapi.FilterIn:           {},
	customapi.FilterNotIn:        {},
	customapi.FilterContains:     {},
	customapi.FilterNotContains:  {},
	customapi.FilterContainsi:    {},
	customapi.FilterNotContainsi: {},
	customapi.FilterStartsWith:   {},
	customapi.FilterEndsWith:     {},
	customapi.FilterNull:         {},
	customapi.FilterNotNull:      {},
}

// IsValidOperator reports whether op is in the operator allow-list.
func IsValidOperator(op customapi.FilterOperator) bool {
	_, ok := allowedOperators[op]
	return ok
}

// ParseFilters reads `field=value` and `field[$op]=value` pairs for the given
// fields. Unknown fields and operators are ignored.
func ParseFilters(q Query, fields []customapi.Field) customapi.FilterSpec {
	filters := customapi.FilterSpec{}
	known := fieldSet(fields)

	for _, key := range q.Keys() {
		if _, reserved := reservedKeys[key]; reserved {
			continue
		}
		values := q.Values(key)

		field, op, isOperator := splitFilterKey(key)
		if !isOperator {
			if _, ok := known[key]; ok {
				addFilter(filters, key, customapi.FilterEq, ParseFilterValue(values, customapi.FilterEq))
			}
			continue
		}
		if _, ok := known[field]; !ok || !IsValidOperator(op) {
			continue
		}
		addFilter(filters, field, op, ParseFilterValue(values, op))
	}
	return filters
}

// splitFilterKey splits `field[$op]`.
func splitFilterKey(key string) (string, customapi.FilterOperator, bool) {
	idx := strings.Index(key, "[$")
	if idx < 0 || !strings.HasSuffix(key, "]") {
		return "", "", false
	}
	op := key[idx+2 : len(key)-1]
	if op == "" || strings.ContainsAny(op, "[]") {
		return "", "", false
	}
	return key[:idx], customapi.FilterOperator("$" + op), true
}

func addFilter(filters customapi.FilterSpec, field string, op customapi.FilterOperator, value any) {
	if filters[field] == nil {
		filters[field] = map[customapi.FilterOperator]any{}
	}
	filters[field][op] = value
}

// ParseFilterValue coerces raw query values for op. $in and $notIn split
// comma lists; true, false and null become primitives; comparison operators
// turn finite numbers into float64. Other values stay strings.
func ParseFilterValue(values []string, op customapi.FilterOperator) any {
	if op == customapi.FilterIn || op == customapi.FilterNotIn {
		out := []string{}
		for _, value := range values {
			for _, token := range strings.Split(value, ",") {
				if token = strings.TrimSpace(token); token != "" {
					out = append(out, token)
				}
			}
		}
		return out
	}
	if len(values) == 0 {
		return nil
	}

	value := values[0]
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}

	switch op {
	case customapi.FilterGt, customapi.FilterGte, customapi.FilterLt, customapi.FilterLte:
		if n, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && !math.IsInf(n, 0) && !math.IsNaN(n) {
			return n
		}
	}
	return value
}

var (
	numericTypes = []string{"integer", "biginteger", "float", "decimal"}
	textTypes    = []string{"string", "text", "richtext", "email", "password"}
	dateTypes    = []string{"date", "datetime", "time"}
)

var operatorTypes = map[customapi.FilterOperator][]string{
	customapi.FilterGt:           slices.Concat(numericTypes, dateTypes),
	customapi.FilterGte:          slices.Concat(numericTypes, dateTypes),
	customapi.FilterLt:           slices.Concat(numericTypes, dateTypes),
	customapi.FilterLte:          slices.Concat(numericTypes, dateTypes),
	customapi.FilterContains:     textTypes,
	customapi.FilterNotContains:  textTypes,
	customapi.FilterContainsi:    textTypes,
	customapi.FilterNotContainsi: textTypes,
	customapi.FilterStartsWith:   textTypes,
	customapi.FilterEndsWith:     textTypes,
}

// IsTextType reports whether fieldType is stored as text.
func IsTextType(fieldType string) bool {
	return slices.Contains(textTypes, fieldType)
}

// CheckOperatorCompatibility returns "" when op suits fieldType, otherwise the reason it does not.
func CheckOperatorCompatibility(op customapi.FilterOperator, fieldType string) string {
	types, ok := operatorTypes[op]
	if !ok || slices.Contains(types, fieldType) {
		return ""
	}
	return fmt.Sprintf("expected field types: %s, got: %s", strings.Join(types, ", "), fieldType)
}

// ValidateFilters reports unknown fields as errors. Type-incompatible
// operators and values that do not fit the field type are warnings.
func ValidateFilters(filters customapi.FilterSpec, fields []customapi.Field) *customapi.ValidationResult {
	result := customapi.NewValidationResult()
	types := fieldTypes(fields)

	for _, field := range sortedKeys(filters) {
		fieldType, ok := types[field]
		if !ok {
			result.AddError(customapi.ErrCodeUnknownFilterField, field,
				fmt.Sprintf("Field %q is not available for filtering", field))
			continue
		}
		ops := make([]string, 0, len(filters[field]))
		for op := range filters[field] {
			ops = append(ops, string(op))
		}
		sort.Strings(ops)
		for _, op := range ops {
			if !IsValidOperator(customapi.FilterOperator(op)) {
				result.AddWarning(customapi.ErrCodeIncompatibleFilterOperator, field,
					fmt.Sprintf("Operator %q is not supported and will be ignored", op))
				continue
			}
			if reason := CheckOperatorCompatibility(customapi.FilterOperator(op), fieldType); reason != "" {
				result.AddWarning(customapi.ErrCodeIncompatibleFilterOperator, field,
					fmt.Sprintf("Operator %q may not work well with field %q of type %q: %s", op, field, fieldType, reason))
				continue
			}
			for _, value := range rejectedValues(fieldType, customapi.FilterOperator(op), filters[field][customapi.FilterOperator(op)]) {
				result.AddWarning(customapi.ErrCodeIncompatibleFilterOperator, field,
					fmt.Sprintf("Value %q is not a valid %s for operator %q and will be ignored", value, fieldType, op))
			}
		}
	}
	return result
}

func fieldSet(fields []customapi.Field) map[string]struct{} {
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f.Name] = struct{}{}
	}
	return set
}

func fieldTypes(fields []customapi.Field) map[string]string {
	types := make(map[string]string, len(fields))
	for _, f := range fields {
		types[f.Name] = f.Type
	}
	return types
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

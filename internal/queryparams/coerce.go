package queryparams

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lychee-technology/customapi"
)

var temporalLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"15:04:05.000",
	"15:04:05",
	"15:04",
}

// FilterValueList flattens the value of an $in or $notIn filter.
func FilterValueList(value any) []any {
	switch v := value.(type) {
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case []any:
		return v
	case nil:
		return nil
	default:
		return []any{v}
	}
}

// CoerceFilterValue converts one filter value to the Go type held by a
// column of fieldType. ok is false when the value cannot be compared with
// such a column and the condition has to be dropped.
//
// Fractional bounds on integer columns are rounded in the direction that
// keeps the comparison exact, so views[$gt]=2.5 becomes views > 2.
func CoerceFilterValue(fieldType string, op customapi.FilterOperator, value any) (any, bool) {
	if value == nil {
		return nil, op == customapi.FilterEq || op == customapi.FilterNe
	}

	switch fieldType {
	case "integer", "biginteger":
		return coerceInteger(op, value)
	case "float", "decimal":
		switch v := value.(type) {
		case float64:
			return v, finite(v)
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			return f, err == nil && finite(f)
		}
		return nil, false
	case "boolean":
		switch v := value.(type) {
		case bool:
			return v, true
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			return b, err == nil
		}
		return nil, false
	case "date", "datetime", "time":
		s, ok := value.(string)
		if !ok {
			return nil, false
		}
		s = strings.TrimSpace(s)
		for _, layout := range temporalLayouts {
			if _, err := time.Parse(layout, s); err == nil {
				return s, true
			}
		}
		return nil, false
	}

	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	}
	return nil, false
}

func coerceInteger(op customapi.FilterOperator, value any) (any, bool) {
	var f float64
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		f = v
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		f = parsed
	default:
		return nil, false
	}

	if !finite(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return nil, false
	}
	if f == math.Trunc(f) {
		return int64(f), true
	}
	switch op {
	case customapi.FilterGt, customapi.FilterLte:
		return int64(math.Floor(f)), true
	case customapi.FilterGte, customapi.FilterLt:
		return int64(math.Ceil(f)), true
	}
	return nil, false
}

func finite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

// valueOperators bind their value as a query argument.
var valueOperators = []customapi.FilterOperator{
	customapi.FilterEq, customapi.FilterNe,
	customapi.FilterGt, customapi.FilterGte, customapi.FilterLt, customapi.FilterLte,
	customapi.FilterIn, customapi.FilterNotIn,
}

// rejectedValues lists the values of op that cannot be compared with a
// column of fieldType.
func rejectedValues(fieldType string, op customapi.FilterOperator, value any) []string {
	if !slices.Contains(valueOperators, op) {
		return nil
	}
	if op != customapi.FilterIn && op != customapi.FilterNotIn {
		if _, ok := CoerceFilterValue(fieldType, op, value); !ok {
			return []string{describeValue(value)}
		}
		return nil
	}
	var rejected []string
	for _, v := range FilterValueList(value) {
		if _, ok := CoerceFilterValue(fieldType, customapi.FilterEq, v); !ok || v == nil {
			rejected = append(rejected, describeValue(v))
		}
	}
	return rejected
}

func describeValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return fmt.Sprint(value)
}

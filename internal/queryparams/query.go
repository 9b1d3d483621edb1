// Package queryparams parses and validates the filter, sort and pagination
// parameters of generated endpoints.
package queryparams

import (
	"net/url"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Query is a decoded query string that remembers key order. Repeated keys
// collect their values in order of appearance. The zero value is empty.
type Query struct {
	values *orderedmap.OrderedMap[string, []string]
}

// ParseQuery decodes raw leniently: pairs that fail to unescape are skipped.
func ParseQuery(raw string) Query {
	q := Query{values: orderedmap.New[string, []string]()}
	raw = strings.TrimPrefix(raw, "?")
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(key)
		if err != nil || key == "" {
			continue
		}
		value, err = url.QueryUnescape(value)
		if err != nil {
			continue
		}
		q.Add(key, value)
	}
	return q
}

// FromValues builds a Query from url.Values with keys in sorted order.
func FromValues(values url.Values) Query {
	q := Query{values: orderedmap.New[string, []string](len(values))}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		for _, value := range values[key] {
			q.Add(key, value)
		}
	}
	return q
}

// Add appends value to key.
func (q *Query) Add(key, value string) {
	if q.values == nil {
		q.values = orderedmap.New[string, []string]()
	}
	existing, _ := q.values.Get(key)
	q.values.Set(key, append(existing, value))
}

// Get returns the first value of key, or "".
func (q Query) Get(key string) string {
	values := q.Values(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Values returns every value of key.
func (q Query) Values(key string) []string {
	if q.values == nil {
		return nil
	}
	values, _ := q.values.Get(key)
	return values
}

// Has reports whether key is present.
func (q Query) Has(key string) bool {
	if q.values == nil {
		return false
	}
	_, ok := q.values.Get(key)
	return ok
}

// Keys returns the keys in order of first appearance.
func (q Query) Keys() []string {
	if q.values == nil {
		return nil
	}
	keys := make([]string, 0, q.values.Len())
	for pair := q.values.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len returns the number of distinct keys.
func (q Query) Len() int {
	if q.values == nil {
		return 0
	}
	return q.values.Len()
}

// Without returns a copy of q minus the keys for which drop returns true.
func (q Query) Without(drop func(key string) bool) Query {
	out := Query{values: orderedmap.New[string, []string]()}
	for _, key := range q.Keys() {
		if drop(key) {
			continue
		}
		out.values.Set(key, append([]string(nil), q.Values(key)...))
	}
	return out
}

// Clone returns an independent copy of q.
func (q Query) Clone() Query {
	return q.Without(func(string) bool { return false })
}

// Encode renders q in key order.
func (q Query) Encode() string {
	var b strings.Builder
	for _, key := range q.Keys() {
		for _, value := range q.Values(key) {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(value))
		}
	}
	return b.String()
}

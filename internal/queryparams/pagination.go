package queryparams

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lychee-technology/customapi"
)

// Options bounds pagination.
type Options struct {
	DefaultPageSize   int
	MaxPageSize       int
	MinPageSize       int
	AllowUnpaginated  bool
	WarnLargePageSize int
}

// DefaultOptions mirrors the default query configuration.
func DefaultOptions() Options {
	return Options{
		DefaultPageSize:   25,
		MaxPageSize:       100,
		MinPageSize:       1,
		WarnLargePageSize: 50,
	}
}

// OptionsFromConfig reads the pagination bounds of cfg.
func OptionsFromConfig(cfg customapi.QueryConfig) Options {
	return Options{
		DefaultPageSize:   cfg.DefaultPageSize,
		MaxPageSize:       cfg.MaxPageSize,
		MinPageSize:       cfg.MinPageSize,
		AllowUnpaginated:  cfg.AllowUnpaginated,
		WarnLargePageSize: cfg.WarnLargePageSize,
	}
}

var paginationKeys = map[string]struct{}{
	"page": {}, "pageSize": {}, "pagesize": {},
	"offset": {}, "limit": {}, "skip": {}, "take": {},
	"pagination": {},
}

// IsPaginationKey reports whether key is consumed by ParsePagination.
func IsPaginationKey(key string) bool {
	if _, ok := paginationKeys[key]; ok {
		return true
	}
	_, ok := bracketed(key, "pagination")
	return ok
}

// ParsePagination resolves the requested page. An explicit
// `pagination=false` wins when allowed; then an offset/limit (or skip/take)
// pair; then page and pageSize from flat or `pagination[...]` keys. The
// result is always clamped into bounds, and the page never addresses rows
// past the largest representable offset.
func ParsePagination(q Query, opts Options) customapi.PaginationSpec {
	if q.Get("pagination") == "false" {
		if opts.AllowUnpaginated {
			return customapi.PaginationSpec{Page: 1, Unpaginated: true}
		}
		return customapi.PaginationSpec{Page: 1, PageSize: opts.DefaultPageSize}
	}

	var spec customapi.PaginationSpec
	offset, hasOffset := parseInt(firstOf(q, "offset", "skip"))
	limit, hasLimit := parseInt(firstOf(q, "limit", "take"))
	if hasOffset && hasLimit && limit > 0 {
		spec.Page = int(math.Floor(float64(offset)/float64(limit))) + 1
		spec.PageSize = limit
	} else {
		spec.Page = parsePageNumber(firstOf(q, "page", "pagination[page]"))
		spec.PageSize = parsePageSize(firstOf(q, "pageSize", "pagesize", "pagination[pageSize]", "pagination[pagesize]"), opts)
	}

	spec.PageSize = min(opts.MaxPageSize, max(opts.MinPageSize, spec.PageSize))
	spec.Page = min(max(1, spec.Page), customapi.MaxPage(spec.PageSize))
	return spec
}

func parsePageNumber(raw string) int {
	n, ok := parseInt(raw)
	if !ok || n < 1 {
		return 1
	}
	return n
}

func parsePageSize(raw string, opts Options) int {
	if raw == "" {
		return opts.DefaultPageSize
	}
	if raw == "all" || raw == "-1" {
		return opts.MaxPageSize
	}
	n, ok := parseInt(raw)
	if !ok || n < opts.MinPageSize {
		return opts.DefaultPageSize
	}
	return min(n, opts.MaxPageSize)
}

// parseInt reads a leading base-10 integer, ignoring trailing garbage.
func parseInt(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

func firstOf(q Query, keys ...string) string {
	for _, key := range keys {
		if v := q.Get(key); v != "" {
			return v
		}
	}
	return ""
}

// ValidatePagination checks a spec against opts.
func ValidatePagination(spec customapi.PaginationSpec, opts Options) *customapi.ValidationResult {
	result := customapi.NewValidationResult()
	if spec.Unpaginated {
		result.AddWarning(customapi.ErrCodeUnpaginatedRequest, "pagination",
			"Pagination is disabled for this request; results are capped at the configured row limit")
		return result
	}
	if spec.Page < 1 {
		result.AddError(customapi.ErrCodeInvalidPagination, "page", "Page must be a positive number")
	}
	if spec.PageSize < 1 {
		result.AddError(customapi.ErrCodeInvalidPagination, "pageSize", "Page size must be a positive number")
		return result
	}
	if spec.PageSize > opts.MaxPageSize {
		result.AddError(customapi.ErrCodeInvalidPagination, "pageSize",
			fmt.Sprintf("Page size %d exceeds maximum of %d", spec.PageSize, opts.MaxPageSize))
	}
	if opts.WarnLargePageSize > 0 && spec.PageSize > opts.WarnLargePageSize {
		result.AddWarning(customapi.ErrCodeLargePageSize, "pageSize",
			fmt.Sprintf("Large page size (%d) may impact performance", spec.PageSize))
	}
	return result
}

// Meta derives response metadata. Unpaginated specs report one page holding
// every row.
func Meta(spec customapi.PaginationSpec, total int64) customapi.PaginationMeta {
	if spec.Unpaginated {
		meta := customapi.PaginationMeta{Page: 1, PageSize: int(total), Total: total, FirstPage: 1, End: total}
		if total > 0 {
			meta.PageCount = 1
			meta.LastPage = 1
			meta.Start = 1
		}
		return meta
	}

	meta := customapi.PaginationMeta{
		Page:      spec.Page,
		PageSize:  spec.PageSize,
		Total:     total,
		FirstPage: 1,
	}
	if spec.PageSize > 0 {
		meta.PageCount = int((total + int64(spec.PageSize) - 1) / int64(spec.PageSize))
	}
	meta.LastPage = meta.PageCount
	meta.HasNextPage = spec.Page < meta.PageCount
	meta.HasPreviousPage = spec.Page > 1
	if spec.PageSize < 1 {
		return meta
	}
	page := int64(min(max(spec.Page, 1), customapi.MaxPage(spec.PageSize)))
	if total > 0 {
		meta.Start = (page-1)*int64(spec.PageSize) + 1
	}
	meta.End = min(page*int64(spec.PageSize), total)
	return meta
}

// BuildPaginationLinks returns links for the current, first, last and
// neighbouring pages. Pagination keys in other are replaced.
func BuildPaginationLinks(baseURL string, spec customapi.PaginationSpec, total int64, other Query) *customapi.PaginationLinks {
	params := other.Without(IsPaginationKey)
	build := func(extra ...string) string {
		q := params.Clone()
		for i := 0; i+1 < len(extra); i += 2 {
			q.Add(extra[i], extra[i+1])
		}
		if encoded := q.Encode(); encoded != "" {
			return baseURL + "?" + encoded
		}
		return baseURL
	}

	if spec.Unpaginated {
		self := build("pagination", "false")
		return &customapi.PaginationLinks{Self: self, First: self, Last: self}
	}

	meta := Meta(spec, total)
	page := func(n int) string {
		return build("page", strconv.Itoa(n), "pageSize", strconv.Itoa(spec.PageSize))
	}
	links := &customapi.PaginationLinks{
		Self:  page(spec.Page),
		First: page(1),
		Last:  page(max(meta.PageCount, 1)),
	}
	if meta.HasPreviousPage {
		links.Prev = page(spec.Page - 1)
	}
	if meta.HasNextPage {
		links.Next = page(spec.Page + 1)
	}
	return links
}

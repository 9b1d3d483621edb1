package internal

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	// DefaultSlug replaces names that produce no usable characters.
	DefaultSlug   = "custom-api"
	maxSlugLength = 100
	maxSlugSuffix = 100
)

var (
	slugPattern     = regexp.MustCompile(`^[a-z0-9-]+$`)
	nonSlugChars    = regexp.MustCompile(`[^a-z0-9-]`)
	repeatedHyphens = regexp.MustCompile(`-+`)

	reservedSlugs = map[string]struct{}{
		"api":                  {},
		"admin":                {},
		"content-manager":      {},
		"content-type-builder": {},
		"upload":               {},
		"users-permissions":    {},
	}
)

// GenerateSlug turns a display name into a URL segment: camel-case and
// letter/digit boundaries become hyphens, everything is lower-cased and
// characters outside [a-z0-9-] collapse into single hyphens.
func GenerateSlug(name string) string {
	slug := strings.ToLower(kebab(strings.TrimSpace(name)))
	slug = nonSlugChars.ReplaceAllString(slug, "-")
	slug = repeatedHyphens.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return DefaultSlug
	}
	return slug
}

func kebab(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i, r := range runes {
		if i > 0 && wordBoundary(runes[i-1], r, runes[i+1:]) {
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func wordBoundary(prev, cur rune, rest []rune) bool {
	switch {
	case unicode.IsLower(prev) && unicode.IsUpper(cur):
		return true
	case unicode.IsUpper(prev) && unicode.IsUpper(cur) && len(rest) > 0 && unicode.IsLower(rest[0]):
		return true
	case unicode.IsLetter(prev) && unicode.IsDigit(cur):
		return true
	case unicode.IsDigit(prev) && unicode.IsLetter(cur):
		return true
	}
	return false
}

// ValidateSlug returns every rule slug breaks; an empty result means valid.
func ValidateSlug(slug string) []string {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return []string{"Slug is required"}
	}

	var problems []string
	if len(slug) > maxSlugLength {
		problems = append(problems, fmt.Sprintf("Slug must not exceed %d characters", maxSlugLength))
	}
	if !slugPattern.MatchString(slug) {
		problems = append(problems, "Slug can only contain lowercase letters, numbers, and hyphens")
	}
	if strings.HasPrefix(slug, "-") || strings.HasSuffix(slug, "-") {
		problems = append(problems, "Slug cannot start or end with a hyphen")
	}
	if strings.Contains(slug, "--") {
		problems = append(problems, "Slug cannot contain consecutive hyphens")
	}
	if _, reserved := reservedSlugs[slug]; reserved {
		problems = append(problems, fmt.Sprintf("%q is a reserved word and cannot be used as a slug", slug))
	}
	return problems
}

// SlugTaken reports whether slug is already used.
type SlugTaken func(ctx context.Context, slug string) (bool, error)

// GenerateUniqueSlug returns the slug of name, or the first free variant
// with a -1 to -100 suffix. When all of those are taken it appends the last
// six digits of the current unix millisecond time. Reserved slugs count as
// taken, and the base is shortened to leave room for the suffix so every
// result passes ValidateSlug.
func GenerateUniqueSlug(ctx context.Context, name string, taken SlugTaken, now func() time.Time) (string, error) {
	base := GenerateSlug(name)
	withSuffix := func(suffix string) string {
		if suffix == "" {
			return truncateSlug(base, maxSlugLength)
		}
		return truncateSlug(base, maxSlugLength-len(suffix)-1) + "-" + suffix
	}

	for n := 0; n <= maxSlugSuffix; n++ {
		suffix := ""
		if n > 0 {
			suffix = strconv.Itoa(n)
		}
		candidate := withSuffix(suffix)
		if _, reserved := reservedSlugs[candidate]; reserved {
			continue
		}
		used, err := taken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !used {
			return candidate, nil
		}
	}

	millis := strconv.FormatInt(now().UnixMilli(), 10)
	if len(millis) > 6 {
		millis = millis[len(millis)-6:]
	}
	return withSuffix(millis), nil
}

func truncateSlug(slug string, limit int) string {
	if len(slug) <= limit {
		return slug
	}
	slug = strings.TrimRight(slug[:limit], "-")
	if slug == "" {
		return DefaultSlug
	}
	return slug
}

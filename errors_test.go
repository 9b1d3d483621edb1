package customapi

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomAPIError_Error(t *testing.T) {
	err := NewSlugConflictError("books")
	assert.Equal(t, `[conflict:SLUG_CONFLICT] field 'slug': slug "books" is already in use`, err.Error())

	cause := errors.New("connection refused")
	wrapped := NewQueryError("count failed", cause)
	assert.Equal(t, "[query:QUERY_FAILED] count failed: connection refused", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestCustomAPIError_Builders(t *testing.T) {
	err := NewCustomAPIError(ErrorTypeValidation, ErrCodeValidationFailed, "bad input").
		WithField("name").
		WithDetail("max", 200).
		WithDetails(map[string]any{"min": 1}).
		WithCause(errors.New("too long"))

	assert.Equal(t, "name", err.Field)
	assert.Equal(t, map[string]any{"max": 200, "min": 1}, err.Details)
	assert.EqualError(t, err.Cause, "too long")
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		code       string
		notFound   bool
		validation bool
		conflict   bool
	}{
		{"type not found", NewTypeNotFoundError("api::x.x"), ErrCodeTypeNotFound, true, false, false},
		{"node not found", NewNodeNotFoundError("author"), ErrCodeNodeNotFound, true, false, false},
		{"item not found", NewItemNotFoundError("author", CategoryFields, "age"), ErrCodeItemNotFound, true, false, false},
		{"invalid category", NewInvalidCategoryError("relations"), ErrCodeInvalidCategory, false, true, false},
		{"structure missing", NewStructureMissingError("books"), ErrCodeStructureMissing, true, false, false},
		{"definition not found", NewDefinitionNotFoundError("books"), ErrCodeDefinitionNotFound, true, false, false},
		{"slug conflict", NewSlugConflictError("books"), ErrCodeSlugConflict, false, false, true},
		{"invalid slug", NewInvalidSlugError("Bad Slug", []string{"lowercase only"}), ErrCodeInvalidSlug, false, true, false},
		{"schema invalid", NewSchemaInvalidError("a.json", nil), ErrCodeSchemaInvalid, false, true, false},
		{"internal", NewInternalError("boom", nil), ErrCodeInternalError, false, false, false},
		{"wrapped", fmt.Errorf("serve: %w", NewDefinitionNotFoundError("x")), ErrCodeDefinitionNotFound, true, false, false},
		{"plain", errors.New("plain"), "", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, ErrorCodeOf(tt.err))
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
			assert.Equal(t, tt.validation, IsValidation(tt.err))
			assert.Equal(t, tt.conflict, IsConflict(tt.err))
		})
	}
}

func TestAsCustomAPIError(t *testing.T) {
	apiErr, ok := AsCustomAPIError(fmt.Errorf("outer: %w", NewItemNotFoundError("book", CategoryMedia, "cover")))
	require.True(t, ok)
	assert.Equal(t, "cover", apiErr.Field)
	assert.Equal(t, "media", apiErr.Details["category"])

	_, ok = AsCustomAPIError(nil)
	assert.False(t, ok)
}

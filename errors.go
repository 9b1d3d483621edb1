package customapi

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeConflict      ErrorType = "conflict"
	ErrorTypeQuery         ErrorType = "query"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeInternal      ErrorType = "internal"
)

// CustomAPIError is the error type returned by every layer of the module.
type CustomAPIError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *CustomAPIError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Field != "" {
		return fmt.Sprintf("[%s:%s] field '%s': %s", e.Type, e.Code, e.Field, msg)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, msg)
}

func (e *CustomAPIError) Unwrap() error {
	return e.Cause
}

// WithDetails merges details into the error
func (e *CustomAPIError) WithDetails(details map[string]any) *CustomAPIError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail
func (e *CustomAPIError) WithDetail(key string, value any) *CustomAPIError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the wrapped cause
func (e *CustomAPIError) WithCause(cause error) *CustomAPIError {
	e.Cause = cause
	return e
}

// WithField sets the offending field
func (e *CustomAPIError) WithField(field string) *CustomAPIError {
	e.Field = field
	return e
}

// Error codes
const (
	// Schema tree and selection
	ErrCodeTypeNotFound    = "TYPE_NOT_FOUND"
	ErrCodeNodeNotFound    = "NODE_NOT_FOUND"
	ErrCodeItemNotFound    = "ITEM_NOT_FOUND"
	ErrCodeInvalidCategory = "INVALID_CATEGORY"

	// Query parameters
	ErrCodeUnknownFilterField         = "UNKNOWN_FILTER_FIELD"
	ErrCodeIncompatibleFilterOperator = "INCOMPATIBLE_FILTER_OPERATOR"
	ErrCodeUnknownSortField           = "UNKNOWN_SORT_FIELD"
	ErrCodeInvalidSortDirection       = "INVALID_SORT_DIRECTION"
	ErrCodeUnsortableField            = "UNSORTABLE_FIELD"
	ErrCodeInvalidPagination          = "INVALID_PAGINATION"
	ErrCodeLargePageSize              = "LARGE_PAGE_SIZE"
	ErrCodeUnpaginatedRequest         = "UNPAGINATED_REQUEST"

	// Definitions
	ErrCodeStructureMissing   = "STRUCTURE_MISSING"
	ErrCodeDefinitionNotFound = "DEFINITION_NOT_FOUND"
	ErrCodeSlugConflict       = "SLUG_CONFLICT"
	ErrCodeInvalidSlug        = "INVALID_SLUG"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"

	// Execution
	ErrCodeQueryFailed   = "QUERY_FAILED"
	ErrCodeSchemaInvalid = "SCHEMA_INVALID"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// NewCustomAPIError creates a new CustomAPIError
func NewCustomAPIError(errorType ErrorType, code, message string) *CustomAPIError {
	return &CustomAPIError{
		Type:    errorType,
		Code:    code,
		Message: message,
	}
}

// NewTypeNotFoundError reports a content type the describer cannot resolve.
func NewTypeNotFoundError(uid string) *CustomAPIError {
	return &CustomAPIError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeTypeNotFound,
		Message: fmt.Sprintf("content type %q not found", uid),
		Details: map[string]any{"uid": uid},
	}
}

// NewNodeNotFoundError reports a toggle on a table absent from the tree.
func NewNodeNotFoundError(table string) *CustomAPIError {
	return &CustomAPIError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeNodeNotFound,
		Message: fmt.Sprintf("table %q not found in selection tree", table),
		Details: map[string]any{"table": table},
	}
}

// NewItemNotFoundError reports a toggle on an item absent from its node.
func NewItemNotFoundError(table string, category Category, item string) *CustomAPIError {
	return &CustomAPIError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeItemNotFound,
		Field:   item,
		Message: fmt.Sprintf("item not found in %s of table %q", category, table),
		Details: map[string]any{"table": table, "category": string(category)},
	}
}

// NewInvalidCategoryError reports an unknown item category.
func NewInvalidCategoryError(category Category) *CustomAPIError {
	return &CustomAPIError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeInvalidCategory,
		Message: fmt.Sprintf("unknown category %q", category),
	}
}

// NewStructureMissingError reports a definition without a saved tree.
func NewStructureMissingError(slug string) *CustomAPIError {
	return &CustomAPIError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeStructureMissing,
		Message: fmt.Sprintf("custom api %q has no saved structure", slug),
		Details: map[string]any{"slug": slug},
	}
}

// NewDefinitionNotFoundError reports an unknown definition id or slug.
func NewDefinitionNotFoundError(key string) *CustomAPIError {
	return &CustomAPIError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeDefinitionNotFound,
		Message: fmt.Sprintf("custom api %q not found", key),
	}
}

// NewSlugConflictError reports a slug already used by another definition.
func NewSlugConflictError(slug string) *CustomAPIError {
	return &CustomAPIError{
		Type:    ErrorTypeConflict,
		Code:    ErrCodeSlugConflict,
		Field:   "slug",
		Message: fmt.Sprintf("slug %q is already in use", slug),
	}
}

// NewInvalidSlugError carries the slug validation messages.
func NewInvalidSlugError(slug string, problems []string) *CustomAPIError {
	return &CustomAPIError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeInvalidSlug,
		Field:   "slug",
		Message: fmt.Sprintf("slug %q is invalid", slug),
		Details: map[string]any{"errors": problems},
	}
}

// NewValidationError creates a payload validation error.
func NewValidationError(message string) *CustomAPIError {
	return &CustomAPIError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeValidationFailed,
		Message: message,
	}
}

// NewQueryError wraps a data-fetch failure.
func NewQueryError(message string, cause error) *CustomAPIError {
	return &CustomAPIError{
		Type:    ErrorTypeQuery,
		Code:    ErrCodeQueryFailed,
		Message: message,
		Cause:   cause,
	}
}

// NewSchemaInvalidError reports a content-type document that fails validation.
func NewSchemaInvalidError(source string, cause error) *CustomAPIError {
	return &CustomAPIError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeSchemaInvalid,
		Message: fmt.Sprintf("content type document %s is invalid", source),
		Cause:   cause,
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, cause error) *CustomAPIError {
	return &CustomAPIError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
	}
}

// AsCustomAPIError unwraps err to a *CustomAPIError when possible.
func AsCustomAPIError(err error) (*CustomAPIError, bool) {
	var apiErr *CustomAPIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// ErrorCodeOf returns the code of err, or "" when err is not a CustomAPIError.
func ErrorCodeOf(err error) string {
	if apiErr, ok := AsCustomAPIError(err); ok {
		return apiErr.Code
	}
	return ""
}

func isType(err error, t ErrorType) bool {
	apiErr, ok := AsCustomAPIError(err)
	return ok && apiErr.Type == t
}

// IsNotFound checks if an error is a not-found error
func IsNotFound(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return isType(err, ErrorTypeConflict)
}

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/schema"
	"github.com/lychee-technology/customapi"
	"go.uber.org/zap"
)

// APIResponse is the error envelope of every failed request.
type APIResponse struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// writeJSON writes JSON response to http.ResponseWriter
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.S().Warnw("failed to encode response", "error", err)
	}
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, data)
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	apiErr, ok := customapi.AsCustomAPIError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch apiErr.Type {
	case customapi.ErrorTypeNotFound:
		return http.StatusNotFound
	case customapi.ErrorTypeValidation:
		return http.StatusBadRequest
	case customapi.ErrorTypeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with the status its type maps to. Internal
// failures are logged and their message is not echoed.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	apiErr, ok := customapi.AsCustomAPIError(err)
	if status == http.StatusInternalServerError {
		zap.S().Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		code := customapi.ErrCodeInternalError
		if ok {
			code = apiErr.Code
		}
		writeError(w, status, code, "internal server error")
		return
	}
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   apiErr.Message,
		Code:    apiErr.Code,
		Details: apiErr.Details,
	})
}

// newQueryDecoder returns a gorilla/schema decoder for admin query strings.
func newQueryDecoder() *schema.Decoder {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	decoder.RegisterConverter(uuid.UUID{}, func(value string) reflect.Value {
		if value == "" {
			return reflect.ValueOf(uuid.Nil)
		}
		id, err := uuid.Parse(value)
		if err != nil {
			return reflect.Value{}
		}
		return reflect.ValueOf(id)
	})
	return decoder
}

// decodeQuery fills dst from the request query string.
func (s *Server) decodeQuery(r *http.Request, dst any) error {
	if err := s.decoder.Decode(dst, r.URL.Query()); err != nil {
		var multi schema.MultiError
		if errors.As(err, &multi) {
			details := make(map[string]any, len(multi))
			for key, fieldErr := range multi {
				details[key] = fieldErr.Error()
			}
			return customapi.NewValidationError("invalid query parameters").WithDetails(details)
		}
		return customapi.NewValidationError(err.Error())
	}
	return nil
}

// readJSONBody reads and decodes JSON from request body
func readJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return customapi.NewValidationError("invalid json body: " + err.Error())
	}
	return nil
}

// idParam parses the {id} path parameter.
func idParam(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, customapi.NewValidationError("invalid id: " + raw).WithField("id")
	}
	return id, nil
}

// uidParam returns the unescaped {uid} path parameter.
func uidParam(r *http.Request) string {
	raw := chi.URLParam(r, "uid")
	if uid, err := url.PathUnescape(raw); err == nil {
		return uid
	}
	return raw
}

// optionalID maps the zero uuid to nil.
func optionalID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// requestBaseURL is the absolute URL of the endpoint being served, used for
// pagination links. A configured base URL replaces scheme and host.
func requestBaseURL(r *http.Request, configured string) string {
	if configured != "" {
		return strings.TrimRight(configured, "/") + r.URL.Path
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host + r.URL.Path
}

// warningMessages joins the issue messages for the warnings header.
func warningMessages(issues []customapi.ValidationIssue) string {
	messages := make([]string, 0, len(issues))
	for _, issue := range issues {
		messages = append(messages, issue.Message)
	}
	return strings.Join(messages, "; ")
}

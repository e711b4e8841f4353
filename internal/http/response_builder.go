// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON responses.
// Every body is either {"data": ...} or {"error": {...}}, optionally with a
// top-level "warning" string when the request succeeded in a degraded way.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"budget/internal/core"
)

const (
	CodeValidation  = "validation_error"
	CodeBadRequest  = "bad_request"
	CodeRateLimited = "rate_limited"
	CodeNoData      = "no_data"
	CodeInternal    = "internal_error"
	CodeUnavailable = "unavailable"
)

// APIError is the payload of an error envelope.
type APIError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

type envelope struct {
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Warning string    `json:"warning,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       envelope
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the success payload.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.body.Data = v
	return b
}

// Warning attaches a non-fatal message to a successful response.
func (b *JSONResponseBuilder) Warning(msg string) *JSONResponseBuilder {
	b.body.Warning = msg
	return b
}

func (b *JSONResponseBuilder) Error(code, field, message string) *JSONResponseBuilder {
	b.body.Error = &APIError{Code: code, Field: field, Message: message}
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.statusCode == http.StatusNoContent {
		return
	}
	if err := json.NewEncoder(w).Encode(b.body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// ErrorResponse creates a standard error envelope.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Error(code, "", message)
}

// ValidationErrorResponse maps a rejected input to a 422 naming the offending field.
func ValidationErrorResponse(err error) *JSONResponseBuilder {
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		return NewJSONResponse().
			Status(http.StatusUnprocessableEntity).
			Error(CodeValidation, ve.Field, ve.Err.Error())
	}
	return NewJSONResponse().
		Status(http.StatusUnprocessableEntity).
		Error(CodeValidation, "", err.Error())
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, CodeBadRequest, message)
}

// InternalServerError hides err from the client; callers log it.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, CodeInternal, message)
}

// TooManyRequestsError is written by the rate limiter.
func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, please try again later")
}

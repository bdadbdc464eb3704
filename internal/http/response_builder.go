// Package http provides the JSON API server and its handlers.
//
// This file implements the Builder Pattern for JSON responses and maps
// domain errors to status codes in one place.

package http

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	"costing/internal/core"
	"costing/internal/finance"
	"costing/internal/services"
	"costing/internal/storage"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter. A body that
// cannot be encoded turns into a 500.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	var payload []byte
	if b.body != nil {
		var err error
		payload, err = json.Marshal(b.body)
		if err != nil {
			b.statusCode = http.StatusInternalServerError
			payload, _ = json.Marshal(ErrorBody{Error: "failed to encode response"})
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}

	w.WriteHeader(b.statusCode)
	if len(payload) > 0 {
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n"))
	}
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(ErrorBody{Error: message})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func ConflictError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusConflict, message)
}

func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// TooManyRequestsError creates a 429 response with a retry hint.
func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").
		Header("Retry-After", "60")
}

var badRequestErrors = []error{
	core.ErrInvalidAmount,
	core.ErrInvalidForm,
	core.ErrInvalidPricingType,
	core.ErrInvalidExpenseType,
	core.ErrInvalidCommissionType,
	core.ErrMissingSession,
	core.ErrMissingInvoice,
	core.ErrInvalidPaymentDate,
	core.ErrInvalidPaymentMethod,
	core.ErrMissingReason,
	core.ErrInvalidPercentage,
	services.ErrActionNotAllowed,
	services.ErrUnknownLine,
	services.ErrUnknownCategory,
	errInvalidBody,
	errInvalidParam,
}

// StatusForError maps an error returned by a service to its HTTP status.
// Finance API rejections keep the status the API answered with.
func StatusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, services.ErrSaveInProgress):
		return http.StatusConflict
	case errors.Is(err, finance.ErrNotFound), errors.Is(err, storage.ErrSaveNotFound):
		return http.StatusNotFound
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	var apiErr *finance.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 600 {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}

// ErrorFromErr builds the error response for err. Internal failures are not
// described to the client; everything else carries its message, finance
// API details verbatim.
func ErrorFromErr(err error) *JSONResponseBuilder {
	status := StatusForError(err)
	if status == http.StatusInternalServerError {
		return InternalServerError("internal server error")
	}
	return ErrorResponse(status, finance.Detail(err))
}

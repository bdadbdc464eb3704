package finance

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrNotFound = errors.New("not found")

// APIError is a request the finance API rejected. Detail is the server's own
// message and is shown to the user as-is.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("finance api: %d %s", e.Status, http.StatusText(e.Status))
}

// Is lets errors.Is(err, ErrNotFound) match a 404 response.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Rejected builds a 400 APIError with the given detail.
func Rejected(detail string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Detail: detail}
}

// NotFound builds a 404 APIError for the named entity.
func NotFound(entity string) *APIError {
	return &APIError{Status: http.StatusNotFound, Detail: entity + " not found"}
}

// Detail extracts the user-facing message from err: the server detail for an
// APIError, otherwise err's own text.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return err.Error()
}

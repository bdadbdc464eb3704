package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"costing/internal/finance"
)

// MaxBodyBytes bounds every JSON request body.
const MaxBodyBytes = 1 << 20

const maxActorLen = 64

var (
	errInvalidBody  = errors.New("invalid request body")
	errBodyTooLarge = errors.New("request body too large")
	errInvalidParam = errors.New("invalid parameter")
	errEmptyBody    = fmt.Errorf("%w: empty body", errInvalidBody)
)

// DecodeJSON reads a JSON request body into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return errEmptyBody
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

// PathParam returns the trimmed route variable, or an error when it is blank.
func PathParam(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(mux.Vars(r)[name])
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", errInvalidParam, name)
	}
	return v, nil
}

// PathIndex parses a non-negative integer route variable.
func PathIndex(r *http.Request, name string) (int, error) {
	raw, err := PathParam(r, name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errInvalidParam, name)
	}
	return n, nil
}

// QueryInt parses an integer query parameter, falling back to def when it is
// missing, malformed or outside [1, max].
func QueryInt(r *http.Request, name string, def, max int) int {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > max {
		return def
	}
	return n
}

// RequestActor returns the trimmed actor header, or "" when it is missing,
// too long or carries non-printable characters.
func RequestActor(r *http.Request) string {
	actor := strings.TrimSpace(r.Header.Get(finance.ActorHeader))
	if actor == "" || len(actor) > maxActorLen {
		return ""
	}
	for _, c := range actor {
		if !unicode.IsPrint(c) {
			return ""
		}
	}
	return actor
}

// actorMiddleware puts the request's actor on the context for the audit
// trail of the finance API.
func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := RequestActor(r); actor != "" {
			r = r.WithContext(finance.WithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

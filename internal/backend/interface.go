package backend

import (
	"context"
	"time"

	"costing/internal/finance"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the finance backend and an optional cleanup function
type BackendResult struct {
	API     finance.API
	Cleanup CleanupFunc
}

// Factory creates finance backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// REST specific
	BaseURL string
	Token   string
	Timeout time.Duration
}

// BackendType represents the type of finance backend
type BackendType string

const (
	// MemoryBackend is the seeded in-process finance system used for local runs.
	MemoryBackend BackendType = "memory"
	// RESTBackend talks to the external finance API over HTTP.
	RESTBackend BackendType = "rest"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, RESTBackend:
		return true
	default:
		return false
	}
}

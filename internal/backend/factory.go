package backend

import (
	"context"
	"fmt"

	"costing/internal/finance/memory"
	"costing/internal/finance/rest"
	"costing/internal/log"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	return &DefaultFactory{
		logger: log.OrDiscard(logger).WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case RESTBackend:
		return f.createRESTBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createRESTBackend(ctx context.Context, config Config) (*BackendResult, error) {
	var opts []rest.Option
	if config.Token != "" {
		opts = append(opts, rest.WithToken(config.Token))
	}
	client, err := rest.New(config.BaseURL, config.Timeout, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize finance API client: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized REST finance backend",
		"base_url", config.BaseURL,
		"timeout", config.Timeout,
		"authenticated", config.Token != "")

	return &BackendResult{
		API:     client,
		Cleanup: client.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context) (*BackendResult, error) {
	store := memory.NewDemo()

	f.logger.InfoContext(ctx, "Initialized memory finance backend", "session", memory.DemoSessionID)

	return &BackendResult{
		API:     store,
		Cleanup: nil,
	}, nil
}

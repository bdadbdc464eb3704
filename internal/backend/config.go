package backend

import (
	"fmt"

	"costing/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.FinanceBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.FinanceBackend)
	}

	return Config{
		Type:    backendType,
		BaseURL: appConfig.FinanceAPIURL,
		Token:   appConfig.FinanceAPIToken,
		Timeout: appConfig.FinanceAPITimeout,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	if c.Type == RESTBackend && c.BaseURL == "" {
		return fmt.Errorf("finance API URL is required for rest backend")
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, RESTBackend}
}

package config

import (
	"fmt"
	"regexp"
)

// Error reports an invalid or incomplete configuration. The run aborts at
// construction time, before any external call is made.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %s", e.Reason)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// serviceNameRegex matches Cloud Run service naming rules: lowercase
// alphanumeric and hyphens, starting with a letter, not ending with a hyphen.
var serviceNameRegex = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$`)

// Validate performs runtime validations on the loaded configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return &Error{Reason: "config is nil"}
	}
	if cfg.ProjectID == "" {
		return &Error{Field: "PROJECT_ID", Reason: "must be set"}
	}
	if cfg.Region == "" {
		return &Error{Field: "REGION", Reason: "must be set"}
	}
	if cfg.ServiceName == "" {
		return &Error{Field: "SERVICE_NAME", Reason: "must be set"}
	}
	if !serviceNameRegex.MatchString(cfg.ServiceName) {
		return &Error{Field: "SERVICE_NAME", Reason: fmt.Sprintf("invalid service name %q", cfg.ServiceName)}
	}
	if cfg.RegistryHost == "" {
		return &Error{Field: "REGISTRY_HOST", Reason: "must be set"}
	}
	if cfg.CredentialsFile == "" {
		return &Error{Field: "CREDENTIALS_FILE", Reason: "must be set"}
	}
	if cfg.Memory == "" {
		return &Error{Field: "MEMORY", Reason: "must be set"}
	}
	if cfg.CPU == "" {
		return &Error{Field: "CPU", Reason: "must be set"}
	}
	if cfg.MinInstances < 0 {
		return &Error{Field: "MIN_INSTANCES", Reason: fmt.Sprintf("must not be negative (got %d)", cfg.MinInstances)}
	}
	if cfg.MaxInstances <= 0 {
		return &Error{Field: "MAX_INSTANCES", Reason: fmt.Sprintf("must be positive (got %d)", cfg.MaxInstances)}
	}
	if cfg.MinInstances > cfg.MaxInstances {
		return &Error{
			Field:  "MIN_INSTANCES",
			Reason: fmt.Sprintf("must not exceed MAX_INSTANCES (%d > %d)", cfg.MinInstances, cfg.MaxInstances),
		}
	}
	if cfg.HealthTimeout <= 0 {
		return &Error{Field: "HEALTH_TIMEOUT", Reason: "must be positive"}
	}
	return nil
}

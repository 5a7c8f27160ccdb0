package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config describes the deployment target and run options for a single
// release. It is constructed once per invocation and not mutated afterwards.
type Config struct {
	ProjectID   string `env:"RELEASECTL_PROJECT_ID"`
	Region      string `env:"RELEASECTL_REGION" envDefault:"northamerica-northeast1"`
	ServiceName string `env:"RELEASECTL_SERVICE_NAME"`

	// RegistryHost is the image registry prefix the built image is pushed
	// under, e.g. "northamerica-northeast1-docker.pkg.dev/my-project/images".
	RegistryHost string `env:"RELEASECTL_REGISTRY_HOST"`
	SourceDir    string `env:"RELEASECTL_SOURCE_DIR" envDefault:"."`

	CredentialsFile     string `env:"RELEASECTL_CREDENTIALS_FILE"`
	CredentialsPassword string `env:"RELEASECTL_CREDENTIALS_PASSWORD"`

	Memory       string `env:"RELEASECTL_MEMORY" envDefault:"512Mi"`
	CPU          string `env:"RELEASECTL_CPU" envDefault:"1"`
	MinInstances int    `env:"RELEASECTL_MIN_INSTANCES" envDefault:"0"`
	MaxInstances int    `env:"RELEASECTL_MAX_INSTANCES" envDefault:"3"`

	// AllowUnauthenticated opens the deployed service to public traffic.
	// Deliberately defaults to closed.
	AllowUnauthenticated bool `env:"RELEASECTL_ALLOW_UNAUTHENTICATED" envDefault:"false"`

	FunctionsFile    string `env:"RELEASECTL_FUNCTIONS_FILE"`
	FunctionFailFast bool   `env:"RELEASECTL_FUNCTION_FAIL_FAST" envDefault:"false"`

	HealthPath string `env:"RELEASECTL_HEALTH_PATH" envDefault:"/health"`
	SkipVerify bool   `env:"RELEASECTL_SKIP_VERIFY" envDefault:"false"`

	AuthTimeout     time.Duration `env:"RELEASECTL_AUTH_TIMEOUT" envDefault:"30s"`
	BuildTimeout    time.Duration `env:"RELEASECTL_BUILD_TIMEOUT" envDefault:"10m"`
	PublishTimeout  time.Duration `env:"RELEASECTL_PUBLISH_TIMEOUT" envDefault:"5m"`
	DeployTimeout   time.Duration `env:"RELEASECTL_DEPLOY_TIMEOUT" envDefault:"5m"`
	FunctionTimeout time.Duration `env:"RELEASECTL_FUNCTION_TIMEOUT" envDefault:"5m"`
	HealthTimeout   time.Duration `env:"RELEASECTL_HEALTH_TIMEOUT" envDefault:"30s"`
}

// Load reads configuration from the environment, after loading a .env file
// when one is present, and validates the result.
func Load() (*Config, error) {
	// Best effort; a missing .env file is not an error.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, &Error{Reason: fmt.Sprintf("parse environment: %v", err)}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Repository returns the remote image repository the service image is pushed
// to, in the form "<registry-host>/<service-name>".
func (c *Config) Repository() string {
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(c.RegistryHost, "/"), c.ServiceName)
}

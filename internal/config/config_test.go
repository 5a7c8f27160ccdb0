package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RELEASECTL_PROJECT_ID", "aisaas-project")
	t.Setenv("RELEASECTL_SERVICE_NAME", "analytics-api")
	t.Setenv("RELEASECTL_REGISTRY_HOST", "northamerica-northeast1-docker.pkg.dev/aisaas-project/images")
	t.Setenv("RELEASECTL_CREDENTIALS_FILE", "/tmp/sa-key.json")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Region != "northamerica-northeast1" {
		t.Errorf("Region default should be northamerica-northeast1, got %q", cfg.Region)
	}
	if cfg.Memory != "512Mi" || cfg.CPU != "1" {
		t.Errorf("resource defaults wrong: memory=%q cpu=%q", cfg.Memory, cfg.CPU)
	}
	if cfg.MinInstances != 0 || cfg.MaxInstances != 3 {
		t.Errorf("scaling defaults wrong: min=%d max=%d", cfg.MinInstances, cfg.MaxInstances)
	}
	if cfg.HealthPath != "/health" {
		t.Errorf("HealthPath default should be /health, got %q", cfg.HealthPath)
	}
	if cfg.HealthTimeout != 30*time.Second {
		t.Errorf("HealthTimeout default should be 30s, got %v", cfg.HealthTimeout)
	}
}

func TestLoad_AccessPolicyDefaultsToClosed(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AllowUnauthenticated {
		t.Fatal("AllowUnauthenticated must default to false")
	}
}

func TestLoad_MissingProjectID(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RELEASECTL_PROJECT_ID", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing project ID")
	}
	var cfgErr *Error
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *config.Error, got %T: %v", err, err)
	}
	if cfgErr.Field != "PROJECT_ID" {
		t.Errorf("error should name PROJECT_ID, got %q", cfgErr.Field)
	}
}

func TestValidate_ScalingBounds(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RELEASECTL_MIN_INSTANCES", "5")
	t.Setenv("RELEASECTL_MAX_INSTANCES", "2")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when min instances exceed max")
	}
	if !strings.Contains(err.Error(), "MIN_INSTANCES") {
		t.Errorf("error should name MIN_INSTANCES: %v", err)
	}
}

func TestValidate_InvalidServiceName(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RELEASECTL_SERVICE_NAME", "Analytics API")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid service name")
	}
}

func TestRepository(t *testing.T) {
	cfg := &Config{
		RegistryHost: "gcr.io/aisaas-project/",
		ServiceName:  "analytics-api",
	}
	got := cfg.Repository()
	want := "gcr.io/aisaas-project/analytics-api"
	if got != want {
		t.Errorf("Repository() = %q, want %q", got, want)
	}
}

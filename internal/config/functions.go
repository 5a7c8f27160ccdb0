package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// FunctionSpec describes one auxiliary serverless function deployed alongside
// the primary service.
type FunctionSpec struct {
	Name           string `yaml:"name"`
	Runtime        string `yaml:"runtime"`
	EntryPoint     string `yaml:"entry_point"`
	Memory         string `yaml:"memory"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Trigger        string `yaml:"trigger"`
	// Topic names the Pub/Sub topic a pubsub-triggered function subscribes
	// to. Required for pubsub triggers, ignored for http.
	Topic string `yaml:"topic,omitempty"`
	// SourceURL points at a pre-staged source archive, e.g.
	// "gs://my-bucket/functions/data-processor.zip".
	SourceURL string `yaml:"source_url"`
	// Region overrides the target region for this function when set.
	Region string `yaml:"region,omitempty"`
}

type functionsFile struct {
	Functions []FunctionSpec `yaml:"functions"`
}

var functionNameRegex = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$`)

// Validate checks a single function spec. Specs are validated individually
// during the function deploy stage so one bad spec does not block the others.
func (s FunctionSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("function name must be set")
	}
	if !functionNameRegex.MatchString(s.Name) {
		return fmt.Errorf("invalid function name %q", s.Name)
	}
	if s.Runtime == "" {
		return fmt.Errorf("function %s: runtime must be set", s.Name)
	}
	if s.EntryPoint == "" {
		return fmt.Errorf("function %s: entry point must be set", s.Name)
	}
	if s.Memory == "" {
		return fmt.Errorf("function %s: memory must be set", s.Name)
	}
	if s.TimeoutSeconds <= 0 {
		return fmt.Errorf("function %s: timeout must be positive (got %d)", s.Name, s.TimeoutSeconds)
	}
	switch s.Trigger {
	case "http":
	case "pubsub":
		if s.Topic == "" {
			return fmt.Errorf("function %s: pubsub trigger requires a topic", s.Name)
		}
	default:
		return fmt.Errorf("function %s: unsupported trigger %q", s.Name, s.Trigger)
	}
	if s.SourceURL == "" {
		return fmt.Errorf("function %s: source_url must be set", s.Name)
	}
	return nil
}

// LoadFunctions reads function specs from a YAML file. Individual specs are
// not validated here; see FunctionSpec.Validate. Duplicate names are rejected
// because results are aggregated by name.
func LoadFunctions(path string) ([]FunctionSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Field: "FUNCTIONS_FILE", Reason: fmt.Sprintf("read %s: %v", path, err)}
	}

	var f functionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &Error{Field: "FUNCTIONS_FILE", Reason: fmt.Sprintf("parse %s: %v", path, err)}
	}

	seen := make(map[string]bool, len(f.Functions))
	for _, spec := range f.Functions {
		if spec.Name != "" && seen[spec.Name] {
			return nil, &Error{Field: "FUNCTIONS_FILE", Reason: fmt.Sprintf("duplicate function name %q", spec.Name)}
		}
		seen[spec.Name] = true
	}
	return f.Functions, nil
}

package gcp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultRunBaseURL = "https://run.googleapis.com"

// ServiceSpec declares the desired state of the primary Cloud Run service for
// one release.
type ServiceSpec struct {
	Image        string
	Memory       string
	CPU          string
	MinInstances int
	MaxInstances int
	// AllowUnauthenticated grants the public invoker role on the service.
	// Off by default; the caller must opt in explicitly.
	AllowUnauthenticated bool
}

// RunClient deploys service revisions through the Cloud Run Admin v2 API.
type RunClient struct {
	baseURL      string
	client       *http.Client
	tokens       Tokens
	log          *zap.Logger
	projectID    string
	region       string
	serviceName  string
	pollInterval time.Duration
}

// RunClientOption configures a RunClient.
type RunClientOption func(*RunClient)

// WithRunBaseURL overrides the API endpoint (used in tests).
func WithRunBaseURL(baseURL string) RunClientOption {
	return func(c *RunClient) { c.baseURL = baseURL }
}

// WithRunHTTPClient overrides the HTTP client.
func WithRunHTTPClient(client *http.Client) RunClientOption {
	return func(c *RunClient) { c.client = client }
}

// WithRunPollInterval overrides the operation poll interval.
func WithRunPollInterval(interval time.Duration) RunClientOption {
	return func(c *RunClient) { c.pollInterval = interval }
}

// NewRunClient creates a Cloud Run deploy client for one service.
func NewRunClient(tokens Tokens, log *zap.Logger, projectID, region, serviceName string, opts ...RunClientOption) *RunClient {
	c := &RunClient{
		baseURL:      defaultRunBaseURL,
		client:       &http.Client{Timeout: 60 * time.Second},
		tokens:       tokens,
		log:          log,
		projectID:    projectID,
		region:       region,
		serviceName:  serviceName,
		pollInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RunClient) servicePath() string {
	return fmt.Sprintf("projects/%s/locations/%s/services/%s", c.projectID, c.region, c.serviceName)
}

type runService struct {
	URI      string               `json:"uri,omitempty"`
	Template *runRevisionTemplate `json:"template,omitempty"`
}

type runRevisionTemplate struct {
	Containers []runContainer `json:"containers"`
	Scaling    *runScaling    `json:"scaling,omitempty"`
}

type runContainer struct {
	Image     string        `json:"image"`
	Resources *runResources `json:"resources,omitempty"`
}

type runResources struct {
	Limits map[string]string `json:"limits"`
}

type runScaling struct {
	MinInstanceCount int `json:"minInstanceCount"`
	MaxInstanceCount int `json:"maxInstanceCount"`
}

// Deploy creates or updates the service revision and returns the resolved
// service URL once the rollout operation completes. PATCH with allowMissing
// gives update semantics: repeated deploys of the same image resolve to the
// same service, never a duplicate.
func (c *RunClient) Deploy(ctx context.Context, spec ServiceSpec) (string, error) {
	desired := &runService{
		Template: &runRevisionTemplate{
			Containers: []runContainer{{
				Image: spec.Image,
				Resources: &runResources{
					Limits: map[string]string{
						"memory": spec.Memory,
						"cpu":    spec.CPU,
					},
				},
			}},
			Scaling: &runScaling{
				MinInstanceCount: spec.MinInstances,
				MaxInstanceCount: spec.MaxInstances,
			},
		},
	}

	c.log.Info("deploying service revision",
		zap.String("service", c.serviceName),
		zap.String("image", spec.Image))

	patchURL := fmt.Sprintf("%s/v2/%s?allowMissing=true", c.baseURL, c.servicePath())
	op := &operation{}
	if err := doJSON(ctx, c.client, c.tokens, http.MethodPatch, patchURL, desired, op); err != nil {
		return "", fmt.Errorf("update service %s: %w", c.serviceName, err)
	}
	if err := pollOperation(ctx, c.client, c.tokens, c.baseURL, op, c.pollInterval); err != nil {
		return "", fmt.Errorf("service %s rollout: %w", c.serviceName, err)
	}

	if spec.AllowUnauthenticated {
		if err := c.allowPublicInvocations(ctx); err != nil {
			return "", fmt.Errorf("open service %s to public traffic: %w", c.serviceName, err)
		}
	}

	deployed := &runService{}
	getURL := fmt.Sprintf("%s/v2/%s", c.baseURL, c.servicePath())
	if err := doJSON(ctx, c.client, c.tokens, http.MethodGet, getURL, nil, deployed); err != nil {
		return "", fmt.Errorf("get service %s: %w", c.serviceName, err)
	}
	if deployed.URI == "" {
		return "", fmt.Errorf("service %s has no resolved URL", c.serviceName)
	}
	return deployed.URI, nil
}

func (c *RunClient) allowPublicInvocations(ctx context.Context) error {
	c.log.Warn("granting unauthenticated access", zap.String("service", c.serviceName))

	policy := map[string]any{
		"policy": map[string]any{
			"bindings": []map[string]any{{
				"role":    "roles/run.invoker",
				"members": []string{"allUsers"},
			}},
		},
	}
	iamURL := fmt.Sprintf("%s/v2/%s:setIamPolicy", c.baseURL, c.servicePath())
	return doJSON(ctx, c.client, c.tokens, http.MethodPost, iamURL, policy, nil)
}

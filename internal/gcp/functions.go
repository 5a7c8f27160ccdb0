package gcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mysuperaisaas/releasectl/internal/config"
)

const defaultFunctionsBaseURL = "https://cloudfunctions.googleapis.com"

// FunctionClient deploys auxiliary functions through the Cloud Functions v2
// API.
type FunctionClient struct {
	baseURL      string
	client       *http.Client
	tokens       Tokens
	log          *zap.Logger
	projectID    string
	region       string
	pollInterval time.Duration
}

// FunctionClientOption configures a FunctionClient.
type FunctionClientOption func(*FunctionClient)

// WithFunctionsBaseURL overrides the API endpoint (used in tests).
func WithFunctionsBaseURL(baseURL string) FunctionClientOption {
	return func(c *FunctionClient) { c.baseURL = baseURL }
}

// WithFunctionsHTTPClient overrides the HTTP client.
func WithFunctionsHTTPClient(client *http.Client) FunctionClientOption {
	return func(c *FunctionClient) { c.client = client }
}

// WithFunctionsPollInterval overrides the operation poll interval.
func WithFunctionsPollInterval(interval time.Duration) FunctionClientOption {
	return func(c *FunctionClient) { c.pollInterval = interval }
}

// NewFunctionClient creates a function deploy client for one project/region.
func NewFunctionClient(tokens Tokens, log *zap.Logger, projectID, region string, opts ...FunctionClientOption) *FunctionClient {
	c := &FunctionClient{
		baseURL:      defaultFunctionsBaseURL,
		client:       &http.Client{Timeout: 60 * time.Second},
		tokens:       tokens,
		log:          log,
		projectID:    projectID,
		region:       region,
		pollInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type gcsSource struct {
	Bucket string `json:"bucket"`
	Object string `json:"object"`
}

type functionBody struct {
	BuildConfig struct {
		Runtime    string `json:"runtime"`
		EntryPoint string `json:"entryPoint"`
		Source     struct {
			StorageSource gcsSource `json:"storageSource"`
		} `json:"source"`
	} `json:"buildConfig"`
	ServiceConfig struct {
		AvailableMemory string `json:"availableMemory"`
		TimeoutSeconds  int    `json:"timeoutSeconds"`
	} `json:"serviceConfig"`
	// EventTrigger is set only for pubsub-triggered functions; http
	// functions carry no trigger block and are invoked directly.
	EventTrigger *eventTrigger `json:"eventTrigger,omitempty"`
}

type eventTrigger struct {
	EventType   string `json:"eventType"`
	PubsubTopic string `json:"pubsubTopic"`
}

const pubsubPublishEventType = "google.cloud.pubsub.topic.v1.messagePublished"

// Deploy creates the function when it does not exist yet and updates it
// otherwise. Each function deploy is independent of the others.
func (c *FunctionClient) Deploy(ctx context.Context, spec config.FunctionSpec) error {
	region := spec.Region
	if region == "" {
		region = c.region
	}

	source, err := parseGCSURL(spec.SourceURL)
	if err != nil {
		return fmt.Errorf("function %s: %w", spec.Name, err)
	}

	body := &functionBody{}
	body.BuildConfig.Runtime = spec.Runtime
	body.BuildConfig.EntryPoint = spec.EntryPoint
	body.BuildConfig.Source.StorageSource = source
	body.ServiceConfig.AvailableMemory = spec.Memory
	body.ServiceConfig.TimeoutSeconds = spec.TimeoutSeconds
	if spec.Trigger == "pubsub" {
		body.EventTrigger = &eventTrigger{
			EventType:   pubsubPublishEventType,
			PubsubTopic: fmt.Sprintf("projects/%s/topics/%s", c.projectID, spec.Topic),
		}
	}

	functionPath := fmt.Sprintf("projects/%s/locations/%s/functions/%s", c.projectID, region, spec.Name)

	// Probe for existence to decide between create and update.
	getURL := fmt.Sprintf("%s/v2/%s", c.baseURL, functionPath)
	err = doJSON(ctx, c.client, c.tokens, http.MethodGet, getURL, nil, &struct{}{})

	var op operation
	switch {
	case err == nil:
		c.log.Info("updating function", zap.String("function", spec.Name), zap.String("region", region))
		updateMask := "buildConfig,serviceConfig"
		if body.EventTrigger != nil {
			updateMask += ",eventTrigger"
		}
		patchURL := fmt.Sprintf("%s/v2/%s?updateMask=%s", c.baseURL, functionPath, updateMask)
		if err := doJSON(ctx, c.client, c.tokens, http.MethodPatch, patchURL, body, &op); err != nil {
			return fmt.Errorf("update function %s: %w", spec.Name, err)
		}
	case isNotFound(err):
		c.log.Info("creating function", zap.String("function", spec.Name), zap.String("region", region))
		createURL := fmt.Sprintf("%s/v2/projects/%s/locations/%s/functions?functionId=%s",
			c.baseURL, c.projectID, region, spec.Name)
		if err := doJSON(ctx, c.client, c.tokens, http.MethodPost, createURL, body, &op); err != nil {
			return fmt.Errorf("create function %s: %w", spec.Name, err)
		}
	default:
		return fmt.Errorf("get function %s: %w", spec.Name, err)
	}

	if err := pollOperation(ctx, c.client, c.tokens, c.baseURL, &op, c.pollInterval); err != nil {
		return fmt.Errorf("function %s rollout: %w", spec.Name, err)
	}
	return nil
}

func parseGCSURL(raw string) (gcsSource, error) {
	rest, ok := strings.CutPrefix(raw, "gs://")
	if !ok {
		return gcsSource{}, fmt.Errorf("source url %q must start with gs://", raw)
	}
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return gcsSource{}, fmt.Errorf("source url %q must name a bucket and object", raw)
	}
	return gcsSource{Bucket: bucket, Object: object}, nil
}

package gcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticTokens struct{}

func (staticTokens) Token(ctx context.Context) (string, error) { return "test-token", nil }

// runAPIServer fakes the Cloud Run Admin v2 surface for one service.
type runAPIServer struct {
	mu         sync.Mutex
	patches    int
	iamCalls   int
	operations int
	uri        string
	failPatch  bool
}

func (s *runAPIServer) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodPatch:
			s.patches++
			if s.failPatch {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":{"code":403,"message":"permission denied"}}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"name": "projects/aisaas-project/locations/northamerica-northeast1/operations/op-1",
				"done": false,
			})
		case r.Method == http.MethodGet && r.URL.Path == "/v2/projects/aisaas-project/locations/northamerica-northeast1/operations/op-1":
			s.operations++
			_ = json.NewEncoder(w).Encode(map[string]any{
				"name": "projects/aisaas-project/locations/northamerica-northeast1/operations/op-1",
				"done": true,
			})
		case r.Method == http.MethodPost:
			s.iamCalls++
			_, _ = w.Write([]byte(`{}`))
		case r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{"uri": s.uri})
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	})
}

func newTestRunClient(t *testing.T, api *runAPIServer) *RunClient {
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	return NewRunClient(staticTokens{}, zap.NewNop(),
		"aisaas-project", "northamerica-northeast1", "analytics-api",
		WithRunBaseURL(srv.URL),
		WithRunPollInterval(time.Millisecond))
}

func testServiceSpec() ServiceSpec {
	return ServiceSpec{
		Image:        "gcr.io/aisaas-project/analytics-api:20260829-120000-deadbeef",
		Memory:       "512Mi",
		CPU:          "1",
		MinInstances: 0,
		MaxInstances: 3,
	}
}

func TestRunClient_Deploy(t *testing.T) {
	api := &runAPIServer{uri: "https://analytics-api-abc123.a.run.app"}
	client := newTestRunClient(t, api)

	url, err := client.Deploy(context.Background(), testServiceSpec())
	require.NoError(t, err)
	assert.Equal(t, "https://analytics-api-abc123.a.run.app", url)
	assert.Equal(t, 1, api.patches)
	assert.GreaterOrEqual(t, api.operations, 1, "rollout operation must be polled")
	assert.Equal(t, 0, api.iamCalls, "no IAM change without the public-access flag")
}

func TestRunClient_DeployAllowUnauthenticated(t *testing.T) {
	api := &runAPIServer{uri: "https://analytics-api-abc123.a.run.app"}
	client := newTestRunClient(t, api)

	spec := testServiceSpec()
	spec.AllowUnauthenticated = true
	_, err := client.Deploy(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, 1, api.iamCalls, "public access must grant the invoker role")
}

func TestRunClient_DeployIdempotent(t *testing.T) {
	api := &runAPIServer{uri: "https://analytics-api-abc123.a.run.app"}
	client := newTestRunClient(t, api)

	first, err := client.Deploy(context.Background(), testServiceSpec())
	require.NoError(t, err)
	second, err := client.Deploy(context.Background(), testServiceSpec())
	require.NoError(t, err)
	assert.Equal(t, first, second, "repeat deploys resolve to the same URL")
}

func TestRunClient_DeployPermissionDenied(t *testing.T) {
	api := &runAPIServer{failPatch: true}
	client := newTestRunClient(t, api)

	_, err := client.Deploy(context.Background(), testServiceSpec())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestRunClient_DeployTimeout(t *testing.T) {
	// Operation never completes; the caller's deadline must end the wait.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "operations/op-stuck", "done": false})
	}))
	t.Cleanup(srv.Close)

	client := NewRunClient(staticTokens{}, zap.NewNop(),
		"aisaas-project", "northamerica-northeast1", "analytics-api",
		WithRunBaseURL(srv.URL),
		WithRunPollInterval(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.Deploy(ctx, testServiceSpec())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

package release

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mysuperaisaas/releasectl/internal/build"
	"github.com/mysuperaisaas/releasectl/internal/config"
	"github.com/mysuperaisaas/releasectl/internal/gcp"
)

// Authenticator exchanges credentials for a session token. The orchestrator
// calls it once up front so a bad credential fails the run before any build
// work happens.
type Authenticator interface {
	Token(ctx context.Context) (string, error)
}

// Builder produces a build artifact from source content.
type Builder interface {
	Build(ctx context.Context, sourceDir, repository string) (build.Artifact, error)
}

// Publisher uploads a build artifact to the registry.
type Publisher interface {
	Publish(ctx context.Context, artifact build.Artifact) error
}

// ServiceDeployer rolls out a service revision and returns the resolved URL.
type ServiceDeployer interface {
	Deploy(ctx context.Context, spec gcp.ServiceSpec) (string, error)
}

// FunctionDeployer creates or updates one auxiliary function.
type FunctionDeployer interface {
	Deploy(ctx context.Context, spec config.FunctionSpec) error
}

// Prober checks a health endpoint until success or context expiry.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

// Orchestrator executes the release pipeline: authenticate, build, publish,
// deploy the primary service, deploy auxiliary functions, verify. Stages 1-4
// are fail-fast; the function stage tolerates partial failure unless
// configured otherwise. The orchestrator holds no state between runs.
type Orchestrator struct {
	cfg       *config.Config
	log       *zap.Logger
	auth      Authenticator
	builder   Builder
	publisher Publisher
	services  ServiceDeployer
	functions FunctionDeployer
	prober    Prober
}

// New wires an Orchestrator from its stage implementations.
func New(
	cfg *config.Config,
	log *zap.Logger,
	auth Authenticator,
	builder Builder,
	publisher Publisher,
	services ServiceDeployer,
	functions FunctionDeployer,
	prober Prober,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		log:       log,
		auth:      auth,
		builder:   builder,
		publisher: publisher,
		services:  services,
		functions: functions,
		prober:    prober,
	}
}

// Run executes the full pipeline. On a stage 1-4 failure it returns a nil
// summary and the stage's typed error. A partial function failure or a failed
// health probe returns both the summary built so far and the corresponding
// error, so callers can still report what was deployed.
func (o *Orchestrator) Run(ctx context.Context, specs []config.FunctionSpec) (*Summary, error) {
	// Stage 1: authenticate.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.log.Info("authenticating")
	if err := o.withTimeout(ctx, o.cfg.AuthTimeout, func(ctx context.Context) error {
		_, err := o.auth.Token(ctx)
		return err
	}); err != nil {
		return nil, &AuthError{Err: err}
	}

	// Stage 2: build. No retry; a rebuild would mint a different tag.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.log.Info("building", zap.String("source", o.cfg.SourceDir))
	var artifact build.Artifact
	if err := o.withTimeout(ctx, o.cfg.BuildTimeout, func(ctx context.Context) error {
		var err error
		artifact, err = o.builder.Build(ctx, o.cfg.SourceDir, o.cfg.Repository())
		return err
	}); err != nil {
		return nil, &BuildError{Err: err}
	}

	// Stage 3: publish. Idempotent, one retry.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.log.Info("publishing", zap.String("image", artifact.Ref()))
	if err := o.withTimeout(ctx, o.cfg.PublishTimeout, func(ctx context.Context) error {
		return retryOnce(ctx, func(ctx context.Context) error {
			return o.publisher.Publish(ctx, artifact)
		})
	}); err != nil {
		return nil, &PublishError{Err: err}
	}

	// Stage 4: deploy primary service. Idempotent, one retry.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.log.Info("deploying service", zap.String("service", o.cfg.ServiceName))
	var serviceURL string
	if err := o.withTimeout(ctx, o.cfg.DeployTimeout, func(ctx context.Context) error {
		return retryOnce(ctx, func(ctx context.Context) error {
			var err error
			serviceURL, err = o.services.Deploy(ctx, gcp.ServiceSpec{
				Image:                artifact.Ref(),
				Memory:               o.cfg.Memory,
				CPU:                  o.cfg.CPU,
				MinInstances:         o.cfg.MinInstances,
				MaxInstances:         o.cfg.MaxInstances,
				AllowUnauthenticated: o.cfg.AllowUnauthenticated,
			})
			return err
		})
	}); err != nil {
		return nil, &DeployError{Err: err}
	}

	summary := &Summary{ServiceURL: serviceURL, Tag: artifact.Tag}

	// Stage 5: auxiliary functions.
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	var partial *PartialDeployError
	summary.Functions, partial = o.deployFunctions(ctx, specs)
	if partial != nil && o.cfg.FunctionFailFast {
		return summary, partial
	}

	// Stage 6: verify.
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	if !o.cfg.SkipVerify {
		o.log.Info("verifying", zap.String("url", serviceURL+o.cfg.HealthPath))
		err := o.withTimeout(ctx, o.cfg.HealthTimeout, func(ctx context.Context) error {
			return o.prober.Probe(ctx, serviceURL+o.cfg.HealthPath)
		})
		if err != nil {
			if partial != nil {
				return summary, partial
			}
			return summary, &DeployError{Err: err, Unverified: true}
		}
		summary.Verified = true
	}

	if partial != nil {
		return summary, partial
	}
	return summary, nil
}

// deployFunctions runs stage 5. In the default partial-tolerant mode all
// deploys run concurrently; in fail-fast mode they run sequentially and stop
// at the first failure. Results are always sorted by function name.
func (o *Orchestrator) deployFunctions(ctx context.Context, specs []config.FunctionSpec) ([]FunctionResult, *PartialDeployError) {
	if len(specs) == 0 {
		return nil, nil
	}

	results := make([]FunctionResult, len(specs))

	if o.cfg.FunctionFailFast {
		for i, spec := range specs {
			results[i] = o.deployFunction(ctx, spec)
			if results[i].Err != nil {
				return collectResults(results[:i+1])
			}
		}
		return collectResults(results)
	}

	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec config.FunctionSpec) {
			defer wg.Done()
			results[i] = o.deployFunction(ctx, spec)
		}(i, spec)
	}
	wg.Wait()

	return collectResults(results)
}

func (o *Orchestrator) deployFunction(ctx context.Context, spec config.FunctionSpec) FunctionResult {
	if err := spec.Validate(); err != nil {
		return FunctionResult{Name: spec.Name, Err: err}
	}

	err := o.withTimeout(ctx, o.cfg.FunctionTimeout, func(ctx context.Context) error {
		return retryOnce(ctx, func(ctx context.Context) error {
			return o.functions.Deploy(ctx, spec)
		})
	})
	if err != nil {
		o.log.Error("function deploy failed", zap.String("function", spec.Name), zap.Error(err))
		return FunctionResult{Name: spec.Name, Err: err}
	}
	return FunctionResult{Name: spec.Name, Deployed: true}
}

func collectResults(results []FunctionResult) ([]FunctionResult, *PartialDeployError) {
	sorted := make([]FunctionResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	partial := &PartialDeployError{}
	for _, r := range sorted {
		if r.Err != nil {
			partial.Failed = append(partial.Failed, FunctionFailure{Name: r.Name, Err: r.Err})
		} else {
			partial.Succeeded = append(partial.Succeeded, r.Name)
		}
	}
	if len(partial.Failed) == 0 {
		return sorted, nil
	}
	return sorted, partial
}

func (o *Orchestrator) withTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

// retryOnce retries fn a single time when the first attempt fails and the
// context is still live. Only used for idempotent calls.
func retryOnce(ctx context.Context, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil || ctx.Err() != nil {
		return err
	}
	return fn(ctx)
}

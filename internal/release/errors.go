package release

import (
	"fmt"
	"strings"
)

// Stage identifies one step of the release pipeline.
type Stage string

const (
	StageAuth      Stage = "authenticate"
	StageBuild     Stage = "build"
	StagePublish   Stage = "publish"
	StageDeploy    Stage = "deploy"
	StageFunctions Stage = "functions"
	StageVerify    Stage = "verify"
)

// AuthError reports a failed credential exchange.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("%s: %v", StageAuth, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }
func (e *AuthError) Stage() Stage  { return StageAuth }

// BuildError reports a failed image build.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string { return fmt.Sprintf("%s: %v", StageBuild, e.Err) }
func (e *BuildError) Unwrap() error { return e.Err }
func (e *BuildError) Stage() Stage  { return StageBuild }

// PublishError reports a failed registry push.
type PublishError struct {
	Err error
}

func (e *PublishError) Error() string { return fmt.Sprintf("%s: %v", StagePublish, e.Err) }
func (e *PublishError) Unwrap() error { return e.Err }
func (e *PublishError) Stage() Stage  { return StagePublish }

// DeployError reports a failed service deploy, or a deploy whose health probe
// did not succeed (Unverified). An unverified deploy left the new revision
// live; prior revisions remain available through the platform's revision
// model.
type DeployError struct {
	Err        error
	Unverified bool
}

func (e *DeployError) Error() string {
	if e.Unverified {
		return fmt.Sprintf("%s: deployed but unverified: %v", StageVerify, e.Err)
	}
	return fmt.Sprintf("%s: %v", StageDeploy, e.Err)
}

func (e *DeployError) Unwrap() error { return e.Err }

func (e *DeployError) Stage() Stage {
	if e.Unverified {
		return StageVerify
	}
	return StageDeploy
}

// FunctionFailure names one auxiliary function that failed to deploy.
type FunctionFailure struct {
	Name string
	Err  error
}

// PartialDeployError reports the function stage outcome when at least one
// function deploy failed. Succeeded and Failed are sorted by function name.
type PartialDeployError struct {
	Succeeded []string
	Failed    []FunctionFailure
}

func (e *PartialDeployError) Error() string {
	names := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		names[i] = f.Name
	}
	return fmt.Sprintf("%s: %d of %d function deploys failed: %s",
		StageFunctions, len(e.Failed), len(e.Failed)+len(e.Succeeded), strings.Join(names, ", "))
}

func (e *PartialDeployError) Stage() Stage { return StageFunctions }

// Stager is implemented by every pipeline error so callers can name the
// failing stage without type-switching.
type Stager interface {
	Stage() Stage
}

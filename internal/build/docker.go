package build

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// Artifact is a tagged container image produced by one build. The tag is
// unique per build; "latest" is only ever a movable alias maintained by the
// publish stage, never the deploy target.
type Artifact struct {
	Repository string
	Tag        string
}

// Ref returns the full image reference "<repository>:<tag>".
func (a Artifact) Ref() string {
	return fmt.Sprintf("%s:%s", a.Repository, a.Tag)
}

// NewTag derives a unique image tag from the build time plus a random nonce,
// e.g. "20260829-153010-a1b2c3d4".
func NewTag(now time.Time) string {
	nonce := make([]byte, 4)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(nonce)
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102-150405"), hex.EncodeToString(nonce))
}

// DockerBuilder builds container images by shelling out to docker.
type DockerBuilder struct {
	log     *zap.Logger
	verbose bool
	bin     string
	nowFn   func() time.Time
}

// NewDockerBuilder creates a builder. Verbose streams docker output to the
// terminal.
func NewDockerBuilder(log *zap.Logger, verbose bool) *DockerBuilder {
	return &DockerBuilder{log: log, verbose: verbose, bin: "docker", nowFn: time.Now}
}

// CheckAvailable verifies the docker daemon is reachable before the pipeline
// starts.
func (b *DockerBuilder) CheckAvailable(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, b.bin, "version", "--format", "{{.Server.Version}}")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker is not available or not running")
	}
	return nil
}

// Build produces an image from sourceDir, tagged under repository with a
// fresh unique tag.
func (b *DockerBuilder) Build(ctx context.Context, sourceDir, repository string) (Artifact, error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return Artifact{}, fmt.Errorf("source directory %s: %w", sourceDir, err)
	}
	if !info.IsDir() {
		return Artifact{}, fmt.Errorf("source directory %s is not a directory", sourceDir)
	}

	artifact := Artifact{Repository: repository, Tag: NewTag(b.nowFn())}

	b.log.Info("building image",
		zap.String("source", sourceDir),
		zap.String("image", artifact.Ref()))

	cmd := exec.CommandContext(ctx, b.bin, "build", "-t", artifact.Ref(), sourceDir)
	if b.verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Run(); err != nil {
		return Artifact{}, fmt.Errorf("docker build failed for %s: %w", artifact.Ref(), err)
	}
	return artifact, nil
}

package publish

import (
	"context"
	"fmt"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/daemon"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"go.uber.org/zap"

	"github.com/mysuperaisaas/releasectl/internal/build"
	"github.com/mysuperaisaas/releasectl/internal/gcp"
)

// Pusher publishes built images to the remote registry. The unique build tag
// is pushed first; "latest" is then moved to point at the same image so it
// stays a convenience alias rather than the deploy target.
type Pusher struct {
	tokens gcp.Tokens
	log    *zap.Logger
}

// NewPusher creates a Pusher authenticating with tokens.
func NewPusher(tokens gcp.Tokens, log *zap.Logger) *Pusher {
	return &Pusher{tokens: tokens, log: log}
}

// Publish reads the built image from the local docker daemon and uploads it
// under its unique tag, then retags "latest".
func (p *Pusher) Publish(ctx context.Context, artifact build.Artifact) error {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("get registry token: %w", err)
	}
	// Registries on the target platform accept an OAuth2 access token as a
	// basic-auth password under this fixed username.
	auth := remote.WithAuth(&authn.Basic{Username: "oauth2accesstoken", Password: token})

	ref, err := name.ParseReference(artifact.Ref())
	if err != nil {
		return fmt.Errorf("parse image reference %s: %w", artifact.Ref(), err)
	}

	img, err := daemon.Image(ref, daemon.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("read image %s from local daemon: %w", artifact.Ref(), err)
	}

	p.log.Info("pushing image", zap.String("image", artifact.Ref()))
	if err := remote.Write(ref, img, auth, remote.WithContext(ctx)); err != nil {
		return fmt.Errorf("push image %s: %w", artifact.Ref(), err)
	}

	latest, err := name.NewTag(artifact.Repository + ":latest")
	if err != nil {
		return fmt.Errorf("parse latest tag for %s: %w", artifact.Repository, err)
	}
	if err := remote.Tag(latest, img, auth, remote.WithContext(ctx)); err != nil {
		return fmt.Errorf("move latest tag to %s: %w", artifact.Ref(), err)
	}

	p.log.Info("image published", zap.String("image", artifact.Ref()))
	return nil
}

package registry

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/aws/aws-sdk-go/service/ecr/ecriface"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/daemon"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/cuemby/ecsdeploy/pkg/log"
	"github.com/cuemby/ecsdeploy/pkg/types"
)

// LatestTag is pushed alongside every version tag
const LatestTag = "latest"

// ErrImagePublishFailed wraps every build, login or push failure
var ErrImagePublishFailed = errors.New("image publish failed")

// Builder builds a local image under the given tags
type Builder interface {
	Build(ctx context.Context, contextDir string, tags ...string) error
}

// Pusher copies a local image to a remote reference
type Pusher interface {
	Push(ctx context.Context, local, target string, auth authn.Authenticator) error
}

// DockerBuilder shells out to the docker CLI
type DockerBuilder struct {
	Binary string
	Stdout io.Writer
	Stderr io.Writer
}

// Build runs docker build with one -t flag per tag
func (b DockerBuilder) Build(ctx context.Context, contextDir string, tags ...string) error {
	binary := b.Binary
	if binary == "" {
		binary = "docker"
	}
	args := []string{"build"}
	for _, tag := range tags {
		args = append(args, "-t", tag)
	}
	args = append(args, contextDir)

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = b.Stdout
	cmd.Stderr = b.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stderr
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	return errors.Wrapf(cmd.Run(), "%s %s", binary, strings.Join(args, " "))
}

// DaemonPusher reads images from the local docker daemon and writes them to a registry
type DaemonPusher struct{}

// Push uploads local to target using auth
func (DaemonPusher) Push(ctx context.Context, local, target string, auth authn.Authenticator) error {
	src, err := name.ParseReference(local)
	if err != nil {
		return errors.Wrapf(err, "parsing local reference %s", local)
	}
	dst, err := name.NewTag(target)
	if err != nil {
		return errors.Wrapf(err, "parsing target reference %s", target)
	}

	img, err := daemon.Image(src, daemon.WithContext(ctx))
	if err != nil {
		return errors.Wrapf(err, "reading %s from docker daemon", local)
	}
	if err := remote.Write(dst, img, remote.WithAuth(auth), remote.WithContext(ctx)); err != nil {
		return errors.Wrapf(err, "writing %s", target)
	}
	return nil
}

// Options configures a Publisher
type Options struct {
	// Product is the local image name, e.g. "portyfoul"
	Product      string
	BuildContext string
	DryRun       bool
}

// Publisher builds the product image and pushes it to ECR under a version tag and latest
type Publisher struct {
	ecr     ecriface.ECRAPI
	builder Builder
	pusher  Pusher
	opts    Options
	logger  zerolog.Logger
}

// NewPublisher creates a publisher using the docker CLI and daemon
func NewPublisher(client ecriface.ECRAPI, opts Options) *Publisher {
	if opts.BuildContext == "" {
		opts.BuildContext = "."
	}
	return &Publisher{
		ecr:     client,
		builder: DockerBuilder{},
		pusher:  DaemonPusher{},
		opts:    opts,
		logger:  log.WithComponent("registry"),
	}
}

// WithBuilder replaces the image builder
func (p *Publisher) WithBuilder(b Builder) *Publisher {
	p.builder = b
	return p
}

// WithPusher replaces the image pusher
func (p *Publisher) WithPusher(pusher Pusher) *Publisher {
	p.pusher = pusher
	return p
}

// Publish builds, authenticates and pushes. It returns the version-tagged reference.
func (p *Publisher) Publish(ctx context.Context, repository, tag string) (types.ImageReference, error) {
	if tag == "" {
		return "", fmt.Errorf("%w: empty image tag", ErrImagePublishFailed)
	}
	ref := types.NewImageReference(repository, tag)
	if err := ref.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrImagePublishFailed, err)
	}

	if p.opts.DryRun {
		log.DryRun(&p.logger).Str("image", ref.String()).Msg("Would build and push image")
		return ref, nil
	}

	localVersion := p.opts.Product + ":" + tag
	localLatest := p.opts.Product + ":" + LatestTag

	p.logger.Info().Str("context", p.opts.BuildContext).Msg("Building Docker image")
	if err := p.builder.Build(ctx, p.opts.BuildContext, localVersion, localLatest); err != nil {
		return "", fmt.Errorf("%w: build: %w", ErrImagePublishFailed, err)
	}
	p.logger.Info().Str("image", localVersion).Msg("Docker image built")

	p.logger.Info().Msg("Authenticating with ECR")
	creds, err := FetchCredentials(ctx, p.ecr)
	if err != nil {
		return "", fmt.Errorf("%w: authenticate: %w", ErrImagePublishFailed, err)
	}
	p.logger.Info().Str("endpoint", creds.Endpoint).Msg("Successfully authenticated with ECR")
	auth := creds.Authenticator()

	pushes := []struct{ local, target string }{
		{local: localVersion, target: ref.String()},
		{local: localLatest, target: types.NewImageReference(repository, LatestTag).String()},
	}
	for _, push := range pushes {
		p.logger.Info().Str("image", push.target).Msg("Pushing image")
		if err := p.pusher.Push(ctx, push.local, push.target, auth); err != nil {
			return "", fmt.Errorf("%w: push %s: %w", ErrImagePublishFailed, push.target, err)
		}
		p.logger.Info().Str("image", push.target).Msg("Pushed image")
	}

	return ref, nil
}

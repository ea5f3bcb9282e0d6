// Package docker implements the container build backend by shelling out
// to the docker CLI.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/slipwayci/slipway/pkg/domain"
	"github.com/slipwayci/slipway/pkg/ports"
)

// Backend implements ports.BuildBackend using the docker CLI.
type Backend struct {
	logger *zap.Logger
}

// NewBackend creates a new docker build backend.
func NewBackend(logger *zap.Logger) *Backend {
	return &Backend{logger: logger}
}

// Build builds an image from the request's context directory and returns
// the immutable commit-tagged reference.
func (b *Backend) Build(ctx context.Context, req ports.BuildRequest) (string, error) {
	imageRef := fmt.Sprintf("%s:%s", req.Image, req.CommitTag)

	args := []string{"build", "-t", imageRef}
	if req.Dockerfile != "" {
		args = append(args, "-f", req.Dockerfile)
	}
	args = append(args, req.ContextDir)

	if out, err := b.runDocker(ctx, nil, nil, args...); err != nil {
		return "", fmt.Errorf("docker build failed: %w: %s", err, out)
	}

	b.logger.Info("image built", zap.String("image", imageRef))
	return imageRef, nil
}

// Push tags imageRef with each given tag and publishes all of them.
// Push failures are reported as transient: registry unavailability is
// the dominant cause and the executor retries at its boundary.
func (b *Backend) Push(ctx context.Context, imageRef string, tags []string, creds domain.RegistryCredentials) ([]string, error) {
	if creds.Server != "" {
		args := []string{"login", creds.Server, "-u", creds.Username, "--password-stdin"}
		if out, err := b.runDocker(ctx, strings.NewReader(creds.Token), nil, args...); err != nil {
			return nil, fmt.Errorf("docker login failed: %w: %s", err, out)
		}
	}

	repo := imageRef
	if idx := strings.LastIndex(imageRef, ":"); idx > strings.LastIndex(imageRef, "/") {
		repo = imageRef[:idx]
	}

	pushed := make([]string, 0, len(tags))
	for _, tag := range tags {
		target := fmt.Sprintf("%s:%s", repo, tag)

		if target != imageRef {
			if out, err := b.runDocker(ctx, nil, nil, "tag", imageRef, target); err != nil {
				return nil, fmt.Errorf("docker tag failed: %w: %s", err, out)
			}
		}

		if out, err := b.runDocker(ctx, nil, nil, "push", target); err != nil {
			return nil, &domain.TransientInfraError{
				Op:  fmt.Sprintf("push %s", target),
				Err: fmt.Errorf("%w: %s", err, out),
			}
		}

		b.logger.Info("image pushed", zap.String("image", target))
		pushed = append(pushed, target)
	}

	return pushed, nil
}

func (b *Backend) runDocker(ctx context.Context, stdin *strings.Reader, env []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if stdin != nil {
		cmd.Stdin = stdin
	}
	if env != nil {
		cmd.Env = append(os.Environ(), env...)
	}

	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("docker %s failed: %w", args[0], err)
	}
	return out.String(), nil
}

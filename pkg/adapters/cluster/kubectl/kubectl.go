// Package kubectl implements the cluster backend by shelling out to
// kubectl. The target environment maps to a namespace; rollout status
// is read from the deployment named after the service.
package kubectl

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/slipwayci/slipway/pkg/domain"
)

// Backend implements ports.ClusterBackend using the kubectl CLI.
type Backend struct {
	logger *zap.Logger
}

// NewBackend creates a new kubectl cluster backend.
func NewBackend(logger *zap.Logger) *Backend {
	return &Backend{logger: logger}
}

// Apply submits a deployment descriptor to the cluster.
func (b *Backend) Apply(ctx context.Context, descriptor []byte, creds domain.ClusterCredentials) error {
	out, err := b.runKubectl(ctx, creds, descriptor, "apply", "-f", "-")
	if err != nil {
		return &domain.TransientInfraError{Op: "apply descriptor", Err: fmt.Errorf("%w: %s", err, out)}
	}

	b.logger.Debug("descriptor applied", zap.String("output", strings.TrimSpace(out)))
	return nil
}

// RolloutStatus reports whether the service's deployment has stabilized.
// A non-zero exit from the status probe means the rollout is still in
// progress, not that it failed: failure is decided by the controller's
// timeout.
func (b *Backend) RolloutStatus(ctx context.Context, environment, serviceID string, creds domain.ClusterCredentials) (domain.RolloutState, error) {
	args := []string{"rollout", "status", "deployment/" + serviceID, "--timeout=2s"}
	if environment != "" {
		args = append(args, "-n", environment)
	}

	if _, err := b.runKubectl(ctx, creds, nil, args...); err != nil {
		return domain.RolloutStateInProgress, nil
	}

	return domain.RolloutStateStable, nil
}

// CurrentImage returns the image reference currently running for the
// service, used to record the rollback target before an update.
func (b *Backend) CurrentImage(ctx context.Context, environment, serviceID string, creds domain.ClusterCredentials) (string, error) {
	args := []string{
		"get", "deployment", serviceID,
		"-o", "jsonpath={.spec.template.spec.containers[0].image}",
	}
	if environment != "" {
		args = append(args, "-n", environment)
	}

	out, err := b.runKubectl(ctx, creds, nil, args...)
	if err != nil {
		return "", &domain.TransientInfraError{Op: "query current image", Err: fmt.Errorf("%w: %s", err, out)}
	}

	return strings.TrimSpace(out), nil
}

func (b *Backend) runKubectl(ctx context.Context, creds domain.ClusterCredentials, stdin []byte, args ...string) (string, error) {
	cmdArgs := make([]string, 0, len(args)+2)
	if creds.Context != "" {
		cmdArgs = append(cmdArgs, "--context", creds.Context)
	}
	cmdArgs = append(cmdArgs, args...)

	cmd := exec.CommandContext(ctx, "kubectl", cmdArgs...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	if creds.Kubeconfig != "" {
		env := os.Environ()
		env = append(env, "KUBECONFIG="+creds.Kubeconfig)
		cmd.Env = env
	}

	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("kubectl %v failed: %w", args, err)
	}
	return out.String(), nil
}

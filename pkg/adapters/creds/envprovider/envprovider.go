// Package envprovider supplies registry and cluster credentials from the
// process environment. Credentials are read per call and never cached.
package envprovider

import (
	"context"
	"os"

	"github.com/slipwayci/slipway/pkg/domain"
)

// Provider implements ports.CredentialProvider from environment
// variables.
type Provider struct{}

// NewProvider creates a new environment credential provider.
func NewProvider() *Provider {
	return &Provider{}
}

// RegistryCredentials returns registry credentials for one push.
func (p *Provider) RegistryCredentials(ctx context.Context) (domain.RegistryCredentials, error) {
	return domain.RegistryCredentials{
		Server:   os.Getenv("SLIPWAY_REGISTRY_SERVER"),
		Username: os.Getenv("SLIPWAY_REGISTRY_USER"),
		Token:    os.Getenv("SLIPWAY_REGISTRY_TOKEN"),
	}, nil
}

// ClusterCredentials returns cluster credentials for one rollout.
func (p *Provider) ClusterCredentials(ctx context.Context) (domain.ClusterCredentials, error) {
	return domain.ClusterCredentials{
		Kubeconfig: os.Getenv("KUBECONFIG"),
		Context:    os.Getenv("SLIPWAY_CLUSTER_CONTEXT"),
	}, nil
}

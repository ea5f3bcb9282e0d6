package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipwayci/slipway/pkg/domain"
)

func TestDeployAllowed(t *testing.T) {
	tests := []struct {
		name          string
		trigger       domain.TriggerContext
		releaseBranch string
		want          bool
	}{
		{
			name:          "push to release branch",
			trigger:       domain.TriggerContext{Branch: "main", Event: domain.TriggerEventPush},
			releaseBranch: "main",
			want:          true,
		},
		{
			name:          "push to feature branch",
			trigger:       domain.TriggerContext{Branch: "feature/x", Event: domain.TriggerEventPush},
			releaseBranch: "main",
			want:          false,
		},
		{
			name:          "pull request against release branch",
			trigger:       domain.TriggerContext{Branch: "main", Event: domain.TriggerEventPullRequest},
			releaseBranch: "main",
			want:          false,
		},
		{
			name:          "manual run on release branch",
			trigger:       domain.TriggerContext{Branch: "main", Event: domain.TriggerEventManual},
			releaseBranch: "main",
			want:          true,
		},
		{
			name:          "no release branch configured",
			trigger:       domain.TriggerContext{Branch: "main", Event: domain.TriggerEventPush},
			releaseBranch: "",
			want:          false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeployAllowed(tt.trigger, tt.releaseBranch))
		})
	}
}

func TestGateServicesStripsDeployStages(t *testing.T) {
	services := []domain.Service{
		{
			ID: "billing",
			Stages: []domain.Stage{
				{Name: "unit", Kind: domain.StageKindTest},
				{Name: "image", Kind: domain.StageKindBuild},
				{Name: "rollout", Kind: domain.StageKindDeploy},
			},
		},
	}

	gated := GateServices(services, false)
	require.Len(t, gated, 1)
	require.Len(t, gated[0].Stages, 2)
	for _, stage := range gated[0].Stages {
		assert.NotEqual(t, domain.StageKindDeploy, stage.Kind)
	}

	// The input is never mutated.
	assert.Len(t, services[0].Stages, 3)
}

func TestGateServicesOpenGate(t *testing.T) {
	services := []domain.Service{
		{
			ID: "billing",
			Stages: []domain.Stage{
				{Name: "rollout", Kind: domain.StageKindDeploy},
			},
		},
	}

	gated := GateServices(services, true)
	require.Len(t, gated[0].Stages, 1)
	assert.Equal(t, domain.StageKindDeploy, gated[0].Stages[0].Kind)
}

package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slipwayci/slipway/pkg/domain"
)

func validSpec() *domain.RunSpec {
	return &domain.RunSpec{
		ReleaseBranch: "main",
		Environment:   "staging",
		Services: []domain.Service{
			{
				ID:                 "billing",
				Source:             "services/billing",
				Image:              "registry.local/billing",
				DescriptorTemplate: "services/billing/deploy.yaml",
				Stages: []domain.Stage{
					{Name: "unit", Kind: domain.StageKindTest, Command: []string{"make", "test"}},
					{Name: "image", Kind: domain.StageKindBuild},
					{Name: "publish", Kind: domain.StageKindPush},
					{Name: "rollout", Kind: domain.StageKindDeploy},
				},
			},
		},
	}
}

func TestValidateAcceptsWellFormedSpec(t *testing.T) {
	assert.NoError(t, NewValidator().Validate(validSpec()))
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.RunSpec)
	}{
		{
			name:   "nil services",
			mutate: func(s *domain.RunSpec) { s.Services = nil },
		},
		{
			name: "duplicate service IDs",
			mutate: func(s *domain.RunSpec) {
				s.Services = append(s.Services, s.Services[0])
			},
		},
		{
			name:   "missing source",
			mutate: func(s *domain.RunSpec) { s.Services[0].Source = "" },
		},
		{
			name:   "no stages",
			mutate: func(s *domain.RunSpec) { s.Services[0].Stages = nil },
		},
		{
			name: "duplicate stage names",
			mutate: func(s *domain.RunSpec) {
				s.Services[0].Stages[1].Name = "unit"
			},
		},
		{
			name: "test stage without command",
			mutate: func(s *domain.RunSpec) {
				s.Services[0].Stages[0].Command = nil
			},
		},
		{
			name: "build stage without image",
			mutate: func(s *domain.RunSpec) {
				s.Services[0].Image = ""
			},
		},
		{
			name: "push without preceding build",
			mutate: func(s *domain.RunSpec) {
				s.Services[0].Stages = []domain.Stage{
					{Name: "publish", Kind: domain.StageKindPush},
				}
			},
		},
		{
			name: "deploy not last",
			mutate: func(s *domain.RunSpec) {
				stages := s.Services[0].Stages
				stages[2], stages[3] = stages[3], stages[2]
			},
		},
		{
			name: "deploy without descriptor template",
			mutate: func(s *domain.RunSpec) {
				s.Services[0].DescriptorTemplate = ""
			},
		},
		{
			name: "unknown stage kind",
			mutate: func(s *domain.RunSpec) {
				s.Services[0].Stages[0].Kind = "lint"
			},
		},
		{
			name: "consumes output of later stage",
			mutate: func(s *domain.RunSpec) {
				s.Services[0].Stages[0].UsesOutputOf = "image"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(spec)
			assert.Error(t, NewValidator().Validate(spec))
		})
	}
}

func TestValidateNilSpec(t *testing.T) {
	assert.Error(t, NewValidator().Validate(nil))
}

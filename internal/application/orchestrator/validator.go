package orchestrator

import (
	"fmt"

	"github.com/slipwayci/slipway/pkg/domain"
)

// Validator validates run specs before they are admitted.
type Validator struct{}

// NewValidator creates a new run spec validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks a run spec for structural problems: duplicate
// identifiers, unknown stage kinds, stages out of order, and missing
// fields required by the stages a service declares.
func (v *Validator) Validate(spec *domain.RunSpec) error {
	if spec == nil {
		return fmt.Errorf("run spec is nil")
	}

	if len(spec.Services) == 0 {
		return fmt.Errorf("run spec must declare at least one service")
	}

	serviceIDs := make(map[string]bool)
	for i := range spec.Services {
		svc := &spec.Services[i]

		if svc.ID == "" {
			return fmt.Errorf("service %d has no ID", i)
		}
		if serviceIDs[svc.ID] {
			return fmt.Errorf("duplicate service ID: %s", svc.ID)
		}
		serviceIDs[svc.ID] = true

		if err := v.validateService(svc); err != nil {
			return fmt.Errorf("invalid service %s: %w", svc.ID, err)
		}
	}

	return nil
}

func (v *Validator) validateService(svc *domain.Service) error {
	if svc.Source == "" {
		return fmt.Errorf("source is required")
	}
	if len(svc.Stages) == 0 {
		return fmt.Errorf("at least one stage is required")
	}

	stageNames := make(map[string]bool)
	sawBuild := false

	for i, stage := range svc.Stages {
		if stage.Name == "" {
			return fmt.Errorf("stage %d has no name", i)
		}
		if stageNames[stage.Name] {
			return fmt.Errorf("duplicate stage name: %s", stage.Name)
		}

		switch stage.Kind {
		case domain.StageKindTest:
			if len(stage.Command) == 0 {
				return fmt.Errorf("test stage %s has no command", stage.Name)
			}
		case domain.StageKindBuild:
			if svc.Image == "" {
				return fmt.Errorf("build stage %s requires the service image to be set", stage.Name)
			}
			sawBuild = true
		case domain.StageKindPush:
			if !sawBuild && stage.UsesOutputOf == "" {
				return fmt.Errorf("push stage %s has no preceding build stage", stage.Name)
			}
		case domain.StageKindDeploy:
			if i != len(svc.Stages)-1 {
				return fmt.Errorf("deploy stage %s must be the last stage", stage.Name)
			}
			if svc.DescriptorTemplate == "" {
				return fmt.Errorf("deploy stage %s requires a descriptor template", stage.Name)
			}
		default:
			return fmt.Errorf("stage %s has unknown kind %q", stage.Name, stage.Kind)
		}

		if stage.UsesOutputOf != "" && !stageNames[stage.UsesOutputOf] {
			return fmt.Errorf("stage %s consumes output of unknown or later stage %s", stage.Name, stage.UsesOutputOf)
		}

		stageNames[stage.Name] = true
	}

	return nil
}

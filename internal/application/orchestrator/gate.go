package orchestrator

import "github.com/slipwayci/slipway/pkg/domain"

// DeployAllowed is the release gate: deploy stages run only when the
// trigger branch equals the configured release branch and the trigger is
// not a pull request. Evaluated once per run, before any pipeline
// starts.
func DeployAllowed(trigger domain.TriggerContext, releaseBranch string) bool {
	if trigger.Event == domain.TriggerEventPullRequest {
		return false
	}
	return releaseBranch != "" && trigger.Branch == releaseBranch
}

// GateServices returns the services to run, with deploy stages removed
// when the gate is closed. The input spec is never mutated.
func GateServices(services []domain.Service, deployAllowed bool) []domain.Service {
	if deployAllowed {
		return services
	}

	gated := make([]domain.Service, len(services))
	for i, svc := range services {
		gated[i] = svc
		gated[i].Stages = make([]domain.Stage, 0, len(svc.Stages))
		for _, stage := range svc.Stages {
			if stage.Kind == domain.StageKindDeploy {
				continue
			}
			gated[i].Stages = append(gated[i].Stages, stage)
		}
	}
	return gated
}

package specfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipwayci/slipway/pkg/domain"
)

const sampleSpec = `
release_branch: main
environment: staging
services:
  - id: billing
    source: services/billing
    image: registry.local/billing
    descriptor_template: services/billing/deploy.yaml
    stages:
      - name: unit
        kind: test
        command: ["make", "test"]
        inputs: ["src", "go.mod"]
      - name: image
        kind: build
      - name: publish
        kind: push
      - name: rollout
        kind: deploy
  - id: ledger
    source: services/ledger
    stages:
      - name: unit
        kind: test
        command: ["make", "test"]
`

func TestParse(t *testing.T) {
	spec, err := Parse([]byte(sampleSpec))
	require.NoError(t, err)

	assert.Equal(t, "main", spec.ReleaseBranch)
	assert.Equal(t, "staging", spec.Environment)
	require.Len(t, spec.Services, 2)

	billing := spec.Services[0]
	assert.Equal(t, "billing", billing.ID)
	assert.Equal(t, "registry.local/billing", billing.Image)
	require.Len(t, billing.Stages, 4)
	assert.Equal(t, domain.StageKindTest, billing.Stages[0].Kind)
	assert.Equal(t, []string{"make", "test"}, billing.Stages[0].Command)
	assert.Equal(t, []string{"src", "go.mod"}, billing.Stages[0].Inputs)
	assert.Equal(t, domain.StageKindDeploy, billing.Stages[3].Kind)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("release_branch: main\nservicez: []\n"))
	assert.Error(t, err)
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("services:\n\t- id: x"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slipway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSpec), 0o644))

	spec, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, spec.Services, 2)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

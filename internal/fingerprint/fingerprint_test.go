package fingerprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipwayci/slipway/pkg/domain"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestStageDeterministic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/main.go", "package main")
	writeFile(t, dir, "go.mod", "module example")

	stage := domain.Stage{
		Name:    "unit",
		Kind:    domain.StageKindTest,
		Command: []string{"go", "test", "./..."},
		Inputs:  []string{"src", "go.mod"},
	}

	first, err := Stage(stage, dir, "")
	require.NoError(t, err)

	second, err := Stage(stage, dir, "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestStageChangesWithInputContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/main.go", "package main")

	stage := domain.Stage{
		Name:   "unit",
		Kind:   domain.StageKindTest,
		Inputs: []string{"src"},
	}

	before, err := Stage(stage, dir, "")
	require.NoError(t, err)

	writeFile(t, dir, "src/main.go", "package main // changed")

	after, err := Stage(stage, dir, "")
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestStageChangesWithCommand(t *testing.T) {
	dir := t.TempDir()

	a := domain.Stage{Name: "unit", Kind: domain.StageKindTest, Command: []string{"make", "test"}}
	b := domain.Stage{Name: "unit", Kind: domain.StageKindTest, Command: []string{"make", "check"}}

	da, err := Stage(a, dir, "")
	require.NoError(t, err)
	db, err := Stage(b, dir, "")
	require.NoError(t, err)

	assert.NotEqual(t, da, db)
}

func TestStageChainsUpstreamKey(t *testing.T) {
	dir := t.TempDir()

	stage := domain.Stage{Name: "publish", Kind: domain.StageKindPush}

	withA, err := Stage(stage, dir, "svc/build@aaa")
	require.NoError(t, err)
	withB, err := Stage(stage, dir, "svc/build@bbb")
	require.NoError(t, err)

	assert.NotEqual(t, withA, withB)
}

func TestStageFieldsCannotAlias(t *testing.T) {
	dir := t.TempDir()

	// Shifting a character across the command boundary must not produce
	// the same digest.
	a := domain.Stage{Name: "unit", Kind: domain.StageKindTest, Command: []string{"ab", "c"}}
	b := domain.Stage{Name: "unit", Kind: domain.StageKindTest, Command: []string{"a", "bc"}}

	da, err := Stage(a, dir, "")
	require.NoError(t, err)
	db, err := Stage(b, dir, "")
	require.NoError(t, err)

	assert.NotEqual(t, da, db)
}

func TestStageMissingInput(t *testing.T) {
	dir := t.TempDir()

	stage := domain.Stage{
		Name:   "unit",
		Kind:   domain.StageKindTest,
		Inputs: []string{"does-not-exist"},
	}

	_, err := Stage(stage, dir, "")
	assert.Error(t, err)
}

func TestStageUnaffectedBySiblingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "svc-a/main.go", "package a")
	writeFile(t, dir, "svc-b/main.go", "package b")

	stage := domain.Stage{Name: "unit", Kind: domain.StageKindTest, Inputs: []string{"svc-a"}}

	before, err := Stage(stage, dir, "")
	require.NoError(t, err)

	writeFile(t, dir, "svc-b/main.go", "package b // changed")

	after, err := Stage(stage, dir, "")
	require.NoError(t, err)

	assert.Equal(t, before, after)
}

func TestKey(t *testing.T) {
	key := Key("billing", "unit", "abc123")
	assert.Equal(t, "billing/unit@abc123", key)
}

// Package specfile loads the declarative pipeline specification: the
// per-service stage lists, the release branch and the target
// environment. The file is parsed once at run start into plain data;
// nothing in it is interpreted as a template.
package specfile

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/slipwayci/slipway/pkg/domain"
)

// Load reads and parses a pipeline spec file. Unknown fields are
// rejected so a typoed key fails loudly instead of silently dropping a
// stage.
func Load(path string) (*domain.RunSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline spec: %w", err)
	}

	return Parse(data)
}

// Parse parses pipeline spec YAML.
func Parse(data []byte) (*domain.RunSpec, error) {
	var spec domain.RunSpec

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline spec: %w", err)
	}

	return &spec, nil
}

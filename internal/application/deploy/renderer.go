package deploy

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ImagePlaceholder marks the single field of a descriptor template the
// controller substitutes. Everything else in the template passes through
// untouched.
const ImagePlaceholder = "{{IMAGE}}"

// RenderDescriptor substitutes the image reference into a descriptor
// template and verifies the result still parses as YAML.
func RenderDescriptor(template []byte, imageRef string) ([]byte, error) {
	if !bytes.Contains(template, []byte(ImagePlaceholder)) {
		return nil, fmt.Errorf("descriptor template has no %s placeholder", ImagePlaceholder)
	}

	rendered := bytes.ReplaceAll(template, []byte(ImagePlaceholder), []byte(imageRef))

	var doc interface{}
	if err := yaml.Unmarshal(rendered, &doc); err != nil {
		return nil, fmt.Errorf("rendered descriptor is not valid YAML: %w", err)
	}

	return rendered, nil
}

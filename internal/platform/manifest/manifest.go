package manifest

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

const separator = "---\n"

// Render encodes v as a single YAML document with an explicit start marker so
// sidecars can be concatenated into one stream.
func Render(v any) ([]byte, error) {
	raw, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	buf := bytes.Buffer{}
	buf.WriteString(separator)
	buf.Write(raw)
	return buf.Bytes(), nil
}

// Parse decodes the first YAML document in data into v.
func Parse(data []byte, v any) error {
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal manifest: %w", err)
	}
	return nil
}

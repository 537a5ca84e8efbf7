package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/drone/envsubst"
	"gopkg.in/yaml.v3"
)

// Load reads a single-document YAML file into out, substituting ${VAR}
// references from the environment first.
func Load(filePath string, out interface{}) error {
	data, err := ReadExpanded(filePath)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// LoadDocuments decodes consecutive YAML documents of filePath into outs, in
// order. It fails if the file holds fewer documents than targets.
func LoadDocuments(filePath string, outs ...interface{}) error {
	data, err := ReadExpanded(filePath)
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	for i, out := range outs {
		if err := dec.Decode(out); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("expected %d YAML documents in %s, found %d", len(outs), filePath, i)
			}
			return fmt.Errorf("failed to parse YAML document %d: %w", i+1, err)
		}
	}
	return nil
}

// ReadExpanded returns the file contents with ${VAR}, ${VAR:-default} and
// similar shell-style references resolved against the environment.
func ReadExpanded(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from workspace layout
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded, err := envsubst.EvalEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to expand environment in %s: %w", filePath, err)
	}
	return []byte(expanded), nil
}

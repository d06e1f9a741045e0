package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads, schema-validates and semantically validates a test
// configuration file. The returned config has defaults applied.
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses YAML config bytes. Validation order matters: the
// JSON schema catches structural mistakes with precise paths before the
// semantic validator reasons about executor requirements.
func ParseConfig(data []byte) (*TestConfig, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	cfg := &TestConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// validateSchema validates the decoded YAML document against the embedded
// JSON schema.
func validateSchema(doc interface{}) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("testconfig.json", strings.NewReader(testConfigSchema)); err != nil {
		return fmt.Errorf("invalid embedded schema: %w", err)
	}

	schema, err := compiler.Compile("testconfig.json")
	if err != nil {
		return fmt.Errorf("invalid embedded schema: %w", err)
	}

	// yaml.v3 decodes mappings as map[string]interface{}, but nested
	// integer keys or tags can surprise the validator. Round-tripping
	// through JSON normalizes the document.
	normalized, err := normalizeToJSON(doc)
	if err != nil {
		return err
	}

	if err := schema.Validate(normalized); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			return fmt.Errorf("config validation failed: %s", formatValidationError(ve))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

func normalizeToJSON(doc interface{}) (interface{}, error) {
	buf, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("config is not JSON-representable: %w", err)
	}

	var normalized interface{}
	if err := json.Unmarshal(buf, &normalized); err != nil {
		return nil, fmt.Errorf("config is not JSON-representable: %w", err)
	}
	return normalized, nil
}

// formatValidationError flattens a jsonschema.ValidationError tree into a
// readable one-line list of leaf causes.
func formatValidationError(ve *jsonschema.ValidationError) string {
	leaves := collectLeafErrors(ve)
	if len(leaves) == 0 {
		return ve.Message
	}

	parts := make([]string, 0, len(leaves))
	for _, leaf := range leaves {
		loc := leaf.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", loc, leaf.Message))
	}
	return strings.Join(parts, "; ")
}

func collectLeafErrors(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}

	var leaves []*jsonschema.ValidationError
	for _, cause := range ve.Causes {
		leaves = append(leaves, collectLeafErrors(cause)...)
	}
	return leaves
}

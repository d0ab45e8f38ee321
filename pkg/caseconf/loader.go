package caseconf

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a setup from the given file path.
//
// The file format is determined by extension: .yaml/.yml for YAML, .json for
// JSON. If the extension is unrecognized, YAML is attempted first, then JSON.
//
// After loading, the setup is validated against the JSON schema and defaults
// are applied to optional fields.
func Load(path string) (*Setup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("setup file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read setup file: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromBytes parses and validates a setup from raw bytes.
//
// The path parameter is used for error messages and format detection. If path
// is empty, format detection falls back to trying YAML first.
//
// Validation is performed on the raw data (converted to JSON) before parsing
// into the typed struct, so unknown fields are rejected instead of silently
// ignored by struct unmarshaling.
func LoadFromBytes(data []byte, path string) (*Setup, error) {
	if len(data) == 0 {
		return nil, errors.New("setup file is empty")
	}

	jsonData, err := toJSON(data, path)
	if err != nil {
		return nil, err
	}
	if err := ValidateRaw(jsonData); err != nil {
		return nil, err
	}

	setup, err := parseSetup(data, path)
	if err != nil {
		return nil, err
	}
	setup.ApplyDefaults()
	return setup, nil
}

// LoadFromReader reads and validates a setup from an io.Reader.
func LoadFromReader(r io.Reader, path string) (*Setup, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read setup: %w", err)
	}
	return LoadFromBytes(data, path)
}

// parseSetup parses the setup data based on file extension.
func parseSetup(data []byte, path string) (*Setup, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		return parseJSON(data)
	case ".yaml", ".yml":
		return parseYAML(data)
	default:
		setup, yamlErr := parseYAML(data)
		if yamlErr == nil {
			return setup, nil
		}
		setup, jsonErr := parseJSON(data)
		if jsonErr == nil {
			return setup, nil
		}
		return nil, fmt.Errorf("failed to parse setup (tried YAML and JSON): %w", yamlErr)
	}
}

func parseJSON(data []byte) (*Setup, error) {
	var setup Setup
	if err := json.Unmarshal(data, &setup); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return &setup, nil
}

func parseYAML(data []byte) (*Setup, error) {
	var setup Setup
	if err := yaml.Unmarshal(data, &setup); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return &setup, nil
}

// toJSON normalizes the input to JSON for schema validation, preserving all
// fields including unknown ones.
func toJSON(data []byte, path string) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		if ext == ".yaml" || ext == ".yml" {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		// Unknown extension: the data may be JSON already.
		if json.Valid(data) {
			return data, nil
		}
		return nil, fmt.Errorf("invalid setup file: %w", err)
	}

	jsonData, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize setup for validation: %w", err)
	}
	return jsonData, nil
}

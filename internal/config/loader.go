package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadRoutes reads, validates and defaults a route file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
//
// Any problem is returned as an error; callers treat it as fatal.
func LoadRoutes(path string) (*RoutesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route file: %w", err)
	}
	return ParseRoutes(data, path)
}

// ParseRoutes parses route configuration data. path only selects the format.
func ParseRoutes(data []byte, path string) (*RoutesFile, error) {
	var f RoutesFile
	if err := decode(data, path, &f); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	f.ApplyDefaults()
	return &f, nil
}

// Override adjusts a decoded run file before it is validated, so command
// line values are checked like file values.
type Override func(*RunConfig)

// WithGatewayURL points the run at a remote gateway.
func WithGatewayURL(url string) Override {
	return func(c *RunConfig) {
		c.Gateway.URL = url
	}
}

// WithScript replaces the oracle with a script of the given steps.
func WithScript(steps []ScriptStep) Override {
	return func(c *RunConfig) {
		c.Oracle = OracleConfig{Provider: ProviderScript, Script: steps}
	}
}

// LoadRun reads, validates and defaults a run file.
func LoadRun(path string, overrides ...Override) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}
	return ParseRun(data, path, overrides...)
}

// ParseRun parses run configuration data. path only selects the format.
func ParseRun(data []byte, path string, overrides ...Override) (*RunConfig, error) {
	var c RunConfig
	if err := decode(data, path, &c); err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(&c)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.ApplyDefaults()
	return &c, nil
}

// LoadScript reads a list of script steps from a YAML or JSON file. The
// steps are validated with the run file they are applied to.
func LoadScript(path string) ([]ScriptStep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	var steps []ScriptStep
	if err := decode(data, path, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

func decode(data []byte, path string, out interface{}) error {
	data = ExpandEnv(data)

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(out); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := strictYAML(data, out); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := strictYAML(data, out); err != nil {
			return fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}
	return nil
}

func strictYAML(data []byte, out interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty document")
		}
		return err
	}
	return nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces ${NAME} references with the value of the environment
// variable NAME. Unset variables expand to the empty string. Bare $NAME is
// left alone so JSONPath expressions like $.token survive.
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

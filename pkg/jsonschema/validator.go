// Package jsonschema compiles JSON Schemas once and validates documents
// against them, reporting every violation rather than the first.
package jsonschema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidationErrors represents a collection of validation errors
type ValidationErrors []error

// Error implements the error interface for ValidationErrors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, err := range ve {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Schema is a compiled JSON Schema. It is immutable and safe for concurrent use.
type Schema struct {
	name   string
	schema *jsonschema.Schema
}

// Compile parses and compiles schemaStr under the given resource name.
func Compile(name, schemaStr string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schemaStr)); err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", name, err)
	}

	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", name, err)
	}

	return &Schema{name: name, schema: compiled}, nil
}

// MustCompile is like Compile but panics on error. It is meant for
// package-level schemas embedded in source.
func MustCompile(name, schemaStr string) *Schema {
	s, err := Compile(name, schemaStr)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the resource name the schema was compiled under.
func (s *Schema) Name() string {
	return s.name
}

// ValidateBytes decodes raw JSON and validates it.
//
// A nil return means the document conforms. Otherwise the returned
// ValidationErrors holds one entry per violation, or a single entry when
// the input is not JSON at all.
func (s *Schema) ValidateBytes(data []byte) ValidationErrors {
	if len(bytes.TrimSpace(data)) == 0 {
		return ValidationErrors{errors.New("invalid JSON: empty document")}
	}

	// UseNumber keeps integers exact so "integer" constraints behave.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return ValidationErrors{fmt.Errorf("invalid JSON: %w", err)}
	}
	if dec.More() {
		return ValidationErrors{errors.New("invalid JSON: trailing data after document")}
	}

	return s.validate(doc)
}

// ValidateValue validates an arbitrary Go value by round-tripping it through
// encoding/json first, so structs and typed maps are checked the same way
// their wire form would be.
func (s *Schema) ValidateValue(v interface{}) ValidationErrors {
	data, err := json.Marshal(v)
	if err != nil {
		return ValidationErrors{fmt.Errorf("invalid value: %w", err)}
	}
	return s.ValidateBytes(data)
}

func (s *Schema) validate(doc interface{}) ValidationErrors {
	err := s.schema.Validate(doc)
	if err == nil {
		return nil
	}

	var validationErr *jsonschema.ValidationError
	if errors.As(err, &validationErr) {
		if errs := extractValidationErrors(validationErr); len(errs) > 0 {
			return errs
		}
	}
	return ValidationErrors{err}
}

// Validate validates a JSON string against a JSON Schema string in one call.
// Prefer Compile when the same schema is used more than once.
func Validate(jsonStr, schemaStr string) (bool, ValidationErrors) {
	s, err := Compile("schema.json", schemaStr)
	if err != nil {
		return false, ValidationErrors{err}
	}

	errs := s.ValidateBytes([]byte(jsonStr))
	return len(errs) == 0, errs
}

// extractValidationErrors flattens the cause tree into leaf violations.
// Intermediate nodes only repeat what their causes say.
func extractValidationErrors(err *jsonschema.ValidationError) ValidationErrors {
	if len(err.Causes) == 0 {
		if err.Message == "" {
			return nil
		}
		location := err.InstanceLocation
		if location == "" {
			location = "/"
		}
		return ValidationErrors{fmt.Errorf("%s: %s", location, err.Message)}
	}

	var errs ValidationErrors
	for _, cause := range err.Causes {
		errs = append(errs, extractValidationErrors(cause)...)
	}
	return errs
}

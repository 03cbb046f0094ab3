// Package schema holds the JSON schemas that guard the boundary between the
// pipeline and the generative model. Model output is never trusted: it is
// parsed and validated here before any typed value crosses into a worker.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Names of registered schemas.
const (
	CandidatesSchema = "candidates"
)

var registry = []string{
	CandidatesSchema,
}

// compiled holds every registered schema, compiled once at init. The
// schemas are embedded, so a compile failure is a build defect and panics.
var compiled = make(map[string]*jsonschema.Schema, len(registry))

func init() {
	for _, name := range registry {
		s, err := compile(name)
		if err != nil {
			panic(fmt.Sprintf("embedded schema %s: %v", name, err))
		}
		compiled[name] = s
	}
}

// Raw returns the raw schema document by name. Used to declare the response
// format on model requests.
func Raw(name string) (json.RawMessage, error) {
	content, err := schemaFS.ReadFile(fmt.Sprintf("schemas/%s.json", name))
	if err != nil {
		return nil, fmt.Errorf("schema not found: %s", name)
	}
	return content, nil
}

// Compile returns the compiled form of a registered schema.
func Compile(name string) (*jsonschema.Schema, error) {
	s, ok := compiled[name]
	if !ok {
		return nil, fmt.Errorf("schema not found: %s", name)
	}
	return s, nil
}

// compile builds the validator for one embedded schema document.
func compile(name string) (*jsonschema.Schema, error) {
	raw, err := Raw(name)
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	resource := name + ".json"
	if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to load schema %s: %w", name, err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	return schema, nil
}

// Validate checks a parsed JSON document against a registered schema.
func Validate(name string, doc json.RawMessage) error {
	schema, err := Compile(name)
	if err != nil {
		return err
	}

	var parsed any
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return fmt.Errorf("failed to decode document for validation: %w", err)
	}
	if err := schema.Validate(parsed); err != nil {
		return fmt.Errorf("document does not match schema %s: %w", name, err)
	}
	return nil
}

// All returns the names of every registered schema.
func All() []string {
	names := make([]string, len(registry))
	copy(names, registry)
	return names
}

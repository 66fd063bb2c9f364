package structured

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema is a named, compiled JSON Schema.
type Schema struct {
	Name        string
	Description string

	doc      string
	compiled *jsonschema.Schema
}

// NewSchema compiles doc, a JSON Schema document.
func NewSchema(name, description, doc string) (*Schema, error) {
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema %s: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	url := name + ".json"
	if err := c.AddResource(url, parsed); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}

	return &Schema{
		Name:        name,
		Description: description,
		doc:         doc,
		compiled:    compiled,
	}, nil
}

// MustSchema is NewSchema for package-level schema literals.
func MustSchema(name, description, doc string) *Schema {
	s, err := NewSchema(name, description, doc)
	if err != nil {
		panic(err)
	}
	return s
}

// Document returns the schema source as given to NewSchema.
func (s *Schema) Document() string {
	return s.doc
}

// ValidateJSON checks raw JSON against the schema.
func (s *Schema) ValidateJSON(raw []byte) error {
	v, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return err
	}
	return s.compiled.Validate(v)
}

// Validate checks a Go value against the schema by round-tripping it through JSON.
func (s *Schema) Validate(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.ValidateJSON(raw)
}

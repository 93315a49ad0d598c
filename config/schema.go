package config

import (
	"encoding/json"
	"sync"

	"github.com/grovetools/modelcore/schema"
	"github.com/invopop/jsonschema"
)

// GenerateSchema generates the JSON Schema of modelcore.yml by reflecting Config.
// Extension sections are not described; any extra top-level key is accepted.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		ExpandedStruct:            true,
		FieldNameTag:              "yaml",
	}

	s := r.Reflect(&Config{})
	s.Title = "modelcore configuration"
	s.Description = "Schema for modelcore.yml."

	return json.MarshalIndent(s, "", "  ")
}

var (
	validatorOnce sync.Once
	validator     *schema.Validator
	validatorErr  error
)

// NewSchemaValidator returns the validator for the generated schema. The schema is
// compiled once per process.
func NewSchemaValidator() (*schema.Validator, error) {
	validatorOnce.Do(func() {
		data, err := GenerateSchema()
		if err != nil {
			validatorErr = err
			return
		}
		validator, validatorErr = schema.NewValidator(data)
	})
	return validator, validatorErr
}

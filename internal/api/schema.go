package api

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const commitSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["entries"],
  "additionalProperties": false,
  "properties": {
    "entries": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["email_id", "label"],
        "additionalProperties": false,
        "properties": {
          "email_id":  {"type": "string", "minLength": 1},
          "label":     {"type": "string", "enum": ["UNKNOWN", "CRITICAL", "ACTION", "INFO"]},
          "reasoning": {"type": "string"}
        }
      }
    }
  }
}`

const recordSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["label"],
  "additionalProperties": false,
  "properties": {
    "label":     {"type": "string", "enum": ["UNKNOWN", "CRITICAL", "ACTION", "INFO"]},
    "reasoning": {"type": "string"}
  }
}`

type schemas struct {
	commit *jsonschema.Schema
	record *jsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	commit, err := compileSchema("commit.json", commitSchemaJSON)
	if err != nil {
		return nil, err
	}
	record, err := compileSchema("record.json", recordSchemaJSON)
	if err != nil {
		return nil, err
	}
	return &schemas{commit: commit, record: record}, nil
}

func compileSchema(name, src string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	sch, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return sch, nil
}

// validateBody checks raw JSON against sch.
func validateBody(sch *jsonschema.Schema, body []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	return sch.Validate(inst)
}

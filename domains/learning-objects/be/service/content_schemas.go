package service

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// contentSchemas holds one compiled JSON schema per object type. Compiled once
// at startup; validation itself is read-only and concurrency safe.
var contentSchemas = mustCompileSchemas()

func mustCompileSchemas() map[string]*jsonschema.Schema {
	compiled := make(map[string]*jsonschema.Schema, len(ObjectTypes))
	for _, objectType := range ObjectTypes {
		raw, err := schemaFS.ReadFile("schemas/" + objectType + ".json")
		if err != nil {
			panic(fmt.Sprintf("missing content schema for %s: %v", objectType, err))
		}

		compiler := jsonschema.NewCompiler()
		url := "learnstack:///" + objectType + ".json"
		if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
			panic(fmt.Sprintf("register content schema %s: %v", objectType, err))
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			panic(fmt.Sprintf("compile content schema %s: %v", objectType, err))
		}
		compiled[objectType] = schema
	}
	return compiled
}

// validateContent checks the content payload against the object type's schema.
func validateContent(objectType string, content json.RawMessage) error {
	schema, ok := contentSchemas[objectType]
	if !ok {
		return fmt.Errorf("%w: unknown object type %q", ErrValidation, objectType)
	}

	if len(content) == 0 {
		content = json.RawMessage("{}")
	}

	var document any
	if err := json.Unmarshal(content, &document); err != nil {
		return fmt.Errorf("%w: content is not valid JSON", ErrValidation)
	}
	if err := schema.Validate(document); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

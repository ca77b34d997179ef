package extension

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	santhosh "github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaResource = "lantern-manifest.schema.json"

var compiledSchema = sync.OnceValues(func() (*santhosh.Schema, error) {
	raw, err := ManifestSchema()
	if err != nil {
		return nil, err
	}

	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft2020
	if err := compiler.AddResource(schemaResource, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to add manifest schema: %w", err)
	}
	return compiler.Compile(schemaResource)
})

// ManifestSchema returns the JSON Schema (draft 2020-12) of LanternExt.toml,
// reflected from Manifest. Unknown keys are rejected at every level.
func ManifestSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&Manifest{})
	schema.Title = "Lantern extension manifest"

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return out, nil
}

// validateDocument checks a decoded TOML document against the manifest schema.
func validateDocument(doc map[string]any) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}

	// Round-trip through JSON so TOML-specific Go types (int64, time.Time,
	// LocalDate...) become plain JSON values the validator understands.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("manifest is not representable as JSON: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var normalized any
	if err := dec.Decode(&normalized); err != nil {
		return err
	}

	if err := schema.Validate(normalized); err != nil {
		if validationErr, ok := err.(*santhosh.ValidationError); ok {
			return formatSchemaValidationError(validationErr)
		}
		return err
	}
	return nil
}

func formatSchemaValidationError(err *santhosh.ValidationError) error {
	var messages []string

	var collect func(*santhosh.ValidationError)
	collect = func(e *santhosh.ValidationError) {
		if e.Message != "" && len(e.Causes) == 0 {
			location := e.InstanceLocation
			if location == "" {
				location = "(root)"
			}
			messages = append(messages, fmt.Sprintf("%s: %s", location, e.Message))
		}
		for _, cause := range e.Causes {
			collect(cause)
		}
	}
	collect(err)

	if len(messages) == 0 {
		return fmt.Errorf("schema validation failed")
	}
	return fmt.Errorf("%s", strings.Join(messages, "; "))
}

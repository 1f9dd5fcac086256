package model

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// schemaSet holds the compiled full and patch schema for each kind.
type schemaSet struct {
	full  map[Kind]*jsonschema.Schema
	patch map[Kind]*jsonschema.Schema
}

var loadSchemas = sync.OnceValues(func() (*schemaSet, error) {
	c := jsonschema.NewCompiler()
	kinds := []Kind{KindHome, KindDevice, KindGroup, KindClient}

	for _, k := range kinds {
		name := string(k) + ".json"
		data, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("reading schema %s: %w", name, err)
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing schema %s: %w", name, err)
		}
		if err := c.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("adding schema %s: %w", name, err)
		}
	}

	set := &schemaSet{
		full:  make(map[Kind]*jsonschema.Schema, len(kinds)),
		patch: make(map[Kind]*jsonschema.Schema, len(kinds)),
	}
	for _, k := range kinds {
		name := string(k) + ".json"
		full, err := c.Compile(name + "#/$defs/full")
		if err != nil {
			return nil, fmt.Errorf("compiling %s full schema: %w", k, err)
		}
		patch, err := c.Compile(name + "#/$defs/patch")
		if err != nil {
			return nil, fmt.Errorf("compiling %s patch schema: %w", k, err)
		}
		set.full[k] = full
		set.patch[k] = patch
	}
	return set, nil
})

// validateFull checks a complete entity payload.
func validateFull(kind Kind, payload map[string]any) error {
	return validate(kind, payload, false)
}

// validatePatch checks a partial entity payload.
func validatePatch(kind Kind, payload map[string]any) error {
	return validate(kind, payload, true)
}

func validate(kind Kind, payload map[string]any, patch bool) error {
	set, err := loadSchemas()
	if err != nil {
		return fmt.Errorf("model: loading schemas: %w", err)
	}

	sch := set.full[kind]
	if patch {
		sch = set.patch[kind]
	}
	if sch == nil {
		return fmt.Errorf("%w: no schema for %s", ErrValidation, kind)
	}

	if err := sch.Validate(payload); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrValidation, kind, err)
	}
	return nil
}

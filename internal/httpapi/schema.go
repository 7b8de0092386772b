package httpapi

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"horse.fit/translationtower/internal/translation"
)

//go:embed translate_request.schema.json
var translateRequestSchemaJSON string

const translateRequestSchemaName = "translate_request.schema.json"

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// decodeTranslateRequest validates raw against the request schema. Schema
// violations come back as field errors keyed by JSON pointer.
func decodeTranslateRequest(raw []byte) (*translation.Request, map[string]string, error) {
	value, err := decodeStrictJSON(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decode request JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return nil, schemaFieldErrors(verr), nil
		}
		return nil, nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, nil, fmt.Errorf("normalize request JSON: %w", err)
	}

	var req translation.Request
	if err := json.Unmarshal(normalized, &req); err != nil {
		return nil, nil, fmt.Errorf("unmarshal request: %w", err)
	}
	return &req, nil, nil
}

func schemaFieldErrors(root *jsonschema.ValidationError) map[string]string {
	out := make(map[string]string)
	var walk func(*jsonschema.ValidationError)
	walk = func(verr *jsonschema.ValidationError) {
		if len(verr.Causes) == 0 {
			location := verr.InstanceLocation
			if location == "" {
				location = "/"
			}
			if _, exists := out[location]; !exists {
				out[location] = verr.Message
			}
			return
		}
		for _, cause := range verr.Causes {
			walk(cause)
		}
	}
	walk(root)
	return out
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource(translateRequestSchemaName, strings.NewReader(translateRequestSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile(translateRequestSchemaName)
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("request body is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("request contains trailing content")
	}

	return value, nil
}

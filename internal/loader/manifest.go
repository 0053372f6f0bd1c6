package loader

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"sigs.k8s.io/yaml"

	"github.com/stacklok/toolhive-gateway/internal/endpoint"
)

//go:embed schema/manifest.schema.json
var manifestSchemaData []byte

const manifestSchemaID = "file://gateway/manifest.schema.json"

var (
	manifestSchemaOnce sync.Once
	manifestSchema     *jsonschema.Schema
	manifestSchemaErr  error
)

// Manifest declares one endpoint module
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version,omitempty"`
	Description string          `json:"description,omitempty"`
	Routes      []ManifestRoute `json:"routes"`
}

// ManifestRoute binds a path to a handler kind and carries its catalog metadata
type ManifestRoute struct {
	Path           string               `json:"path"`
	Method         string               `json:"method,omitempty"`
	Kind           string               `json:"kind"`
	Config         json.RawMessage      `json:"config,omitempty"`
	Hidden         bool                 `json:"hidden,omitempty"`
	Name           string               `json:"name,omitempty"`
	Description    string               `json:"description,omitempty"`
	Category       string               `json:"category,omitempty"`
	Parameters     []endpoint.Parameter `json:"parameters,omitempty"`
	Examples       json.RawMessage      `json:"examples,omitempty"`
	ResponseBinary bool                 `json:"responseBinary,omitempty"`
}

func compiledManifestSchema() (*jsonschema.Schema, error) {
	manifestSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(manifestSchemaID, bytes.NewReader(manifestSchemaData)); err != nil {
			manifestSchemaErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}
		manifestSchema, manifestSchemaErr = compiler.Compile(manifestSchemaID)
		if manifestSchemaErr != nil {
			manifestSchemaErr = fmt.Errorf("failed to compile manifest schema: %w", manifestSchemaErr)
		}
	})
	return manifestSchema, manifestSchemaErr
}

// ParseManifest decodes a YAML or JSON manifest and validates it against the manifest schema
func ParseManifest(data []byte) (*Manifest, error) {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	schema, err := compiledManifestSchema()
	if err != nil {
		return nil, err
	}

	var doc interface{}
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			return nil, formatValidationErrors(validationErr)
		}
		return nil, fmt.Errorf("manifest schema validation failed: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(jsonData, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, nil
}

func formatValidationErrors(validationErr *jsonschema.ValidationError) error {
	var messages []string
	collectErrors(validationErr, &messages)

	switch len(messages) {
	case 0:
		return fmt.Errorf("manifest schema validation failed: %s", validationErr.Error())
	case 1:
		return fmt.Errorf("manifest schema validation failed: %s", messages[0])
	default:
		return fmt.Errorf("manifest schema validation failed with %d errors: %s",
			len(messages), strings.Join(messages, "; "))
	}
}

// collectErrors gathers leaf messages only, skipping parent wrappers
func collectErrors(err *jsonschema.ValidationError, messages *[]string) {
	if err == nil {
		return
	}
	if len(err.Causes) > 0 {
		for _, cause := range err.Causes {
			collectErrors(cause, messages)
		}
		return
	}
	if err.Message == "" {
		return
	}
	if err.InstanceLocation != "" {
		*messages = append(*messages, fmt.Sprintf("%s at '%s'", err.Message, err.InstanceLocation))
		return
	}
	*messages = append(*messages, err.Message)
}

// manifestModule turns a validated manifest into a Module
type manifestModule struct {
	manifest *Manifest
	file     string
}

func (m *manifestModule) Name() string {
	return m.manifest.Name
}

func (m *manifestModule) Load(_ context.Context) (*endpoint.Contribution, error) {
	contribution := &endpoint.Contribution{}
	for i, r := range m.manifest.Routes {
		factory, ok := endpoint.LookupKind(r.Kind)
		if !ok {
			return nil, fmt.Errorf("route %d (%s): unknown handler kind %q", i, r.Path, r.Kind)
		}
		handler, err := factory(r.Config)
		if err != nil {
			return nil, fmt.Errorf("route %d (%s): %w", i, r.Path, err)
		}

		method := r.Method
		if strings.TrimSpace(method) == "" {
			method = "GET"
		}
		for _, verb := range endpoint.SplitMethods(method) {
			contribution.Routes = append(contribution.Routes, endpoint.Route{
				Method:  verb,
				Path:    r.Path,
				Handler: handler,
			})
		}

		if r.Hidden {
			continue
		}
		name := r.Name
		if name == "" {
			name = r.Path
		}
		contribution.Descriptors = append(contribution.Descriptors, endpoint.Descriptor{
			Path:           r.Path,
			Method:         strings.Join(endpoint.SplitMethods(method), ", "),
			Name:           name,
			Description:    r.Description,
			Category:       r.Category,
			Parameters:     r.Parameters,
			Examples:       r.Examples,
			ResponseBinary: r.ResponseBinary,
			Source:         m.manifest.Name,
		})
	}
	return contribution, nil
}

// brokenModule reports a manifest that could not be parsed when it is loaded,
// so a bad file is isolated like any other module failure.
type brokenModule struct {
	name string
	err  error
}

func (b *brokenModule) Name() string { return b.name }

func (b *brokenModule) Load(context.Context) (*endpoint.Contribution, error) {
	return nil, b.err
}

package render

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/model"
)

// ExtractVariables walks every text part of prompt in order and derives a
// JSON-Schema describing the variables the prompt references: each
// {{ path.to.var }} contributes a "path.to.var"-shaped nested property.
// lastTemplatedIndex is the index, within prompt, of the last message that
// contains at least one template reference; it is -1 when prompt has none.
func ExtractVariables(prompt []*model.Message) (schema map[string]any, lastTemplatedIndex int) {
	properties := map[string]any{}
	lastTemplatedIndex = -1

	for i, msg := range prompt {
		found := false
		for _, p := range msg.Parts {
			tp, ok := p.(model.TextPart)
			if !ok {
				continue
			}
			for _, path := range references(tp.Text) {
				addPathProperty(properties, path)
				found = true
			}
		}
		if found {
			lastTemplatedIndex = i
		}
	}

	return map[string]any{
		"type":       "object",
		"properties": properties,
	}, lastTemplatedIndex
}

// addPathProperty inserts a string-typed leaf property for a dot-separated
// path into the nested properties map, composing an object schema at each
// intermediate segment. cur always refers to a "properties" map: keys are
// field names, values are schema wrappers ({"type": ..., "properties": ...}).
func addPathProperty(properties map[string]any, path string) {
	segments := splitPath(path)
	cur := properties
	for i, seg := range segments {
		if i == len(segments)-1 {
			if _, exists := cur[seg]; !exists {
				cur[seg] = map[string]any{"type": "string"}
			}
			return
		}
		wrapper, ok := cur[seg].(map[string]any)
		if !ok {
			wrapper = map[string]any{"type": "object", "properties": map[string]any{}}
			cur[seg] = wrapper
		}
		inner, ok := wrapper["properties"].(map[string]any)
		if !ok {
			inner = map[string]any{}
			wrapper["properties"] = inner
		}
		cur = inner
	}
}

func splitPath(path string) []string {
	var segments []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			segments = append(segments, path[start:i])
			start = i + 1
		}
	}
	segments = append(segments, path[start:])
	return segments
}

// SchemaFromData infers a JSON-Schema shape from a sample value, used as a
// seed when a template variable has no declared base schema: objects recurse
// into every property, arrays into their first element, booleans/strings/ints/floats map
// to their JSON-Schema primitive, and nil yields an empty (unconstrained)
// schema.
func SchemaFromData(data any) map[string]any {
	switch v := data.(type) {
	case map[string]any:
		properties := make(map[string]any, len(v))
		for k, val := range v {
			properties[k] = SchemaFromData(val)
		}
		return map[string]any{"type": "object", "properties": properties}
	case []any:
		if len(v) == 0 {
			return map[string]any{"type": "array"}
		}
		return map[string]any{"type": "array", "items": SchemaFromData(v[0])}
	case bool:
		return map[string]any{"type": "boolean"}
	case string:
		return map[string]any{"type": "string"}
	case int, int32, int64:
		return map[string]any{"type": "integer"}
	case float32, float64:
		return map[string]any{"type": "number"}
	default:
		return map[string]any{}
	}
}

// ComposeSchema merges the schema derived from a prompt's template
// references onto baseSchema when one is supplied (baseSchema's properties
// win on conflict), then validates the composed result is itself a
// structurally valid JSON-Schema document.
func ComposeSchema(derived, baseSchema map[string]any) (map[string]any, error) {
	if len(baseSchema) == 0 {
		return derived, validateSchema(derived)
	}

	composed := map[string]any{"type": "object"}
	derivedProps, _ := derived["properties"].(map[string]any)
	baseProps, _ := baseSchema["properties"].(map[string]any)

	merged := make(map[string]any, len(derivedProps)+len(baseProps))
	for k, v := range derivedProps {
		merged[k] = v
	}
	for k, v := range baseProps {
		merged[k] = v
	}
	composed["properties"] = merged

	if required, ok := baseSchema["required"]; ok {
		composed["required"] = required
	}

	return composed, validateSchema(composed)
}

// validateSchema compiles schema with santhosh-tekuri/jsonschema to confirm
// it is well-formed, surfacing malformed base_schema input as a bad_request
// error rather than letting it reach a provider at render time.
func validateSchema(schema map[string]any) error {
	raw, err := json.Marshal(schema)
	if err != nil {
		return apierror.Wrap(apierror.KindBadRequest, "schema is not serializable", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return apierror.Wrap(apierror.KindBadRequest, "schema is not valid JSON", err)
	}

	c := jsonschema.NewCompiler()
	const resourceURL = "anotherai://render/composed-schema.json"
	if err := c.AddResource(resourceURL, doc); err != nil {
		return apierror.Wrap(apierror.KindBadRequest, "invalid base_schema", err)
	}
	if _, err := c.Compile(resourceURL); err != nil {
		return apierror.Wrap(apierror.KindBadRequest, fmt.Sprintf("invalid base_schema: %v", err), err)
	}
	return nil
}

package capability

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/morezero/capability-bridge/pkg/invocation"
)

// ApplyDefaults returns a copy of args with schema defaults filled in for
// parameters the caller left out or left empty.
func ApplyDefaults(d Descriptor, args map[string]interface{}) map[string]interface{} {
	out := invocation.CloneArguments(args)
	for _, p := range d.Parameters {
		if p.Default == nil {
			continue
		}
		if v, ok := out[p.Name]; !ok || isBlank(v) {
			out[p.Name] = p.Default
		}
	}
	return out
}

// ValidateArguments checks args against d before any round trip. Required parameters
// must be present and non-blank, declared types must match, and a descriptor that
// carries a JSON Schema must accept the whole argument object.
func ValidateArguments(d Descriptor, args map[string]interface{}) error {
	var missing []string
	for _, p := range d.Parameters {
		v, ok := args[p.Name]
		if !ok || isBlank(v) {
			if p.Required {
				missing = append(missing, p.Name)
			}
			continue
		}
		if !typeMatches(p.Type, v) {
			return invocation.Errorf(invocation.CodeArgument, "argument %q of %s must be of type %s, got %T", p.Name, d.Name, p.Type, v)
		}
	}
	if len(missing) > 0 {
		return invocation.Errorf(invocation.CodeArgument, "missing required arguments for %s: %s", d.Name, strings.Join(missing, ", "))
	}

	if len(d.InputSchema) == 0 {
		return nil
	}
	return validateAgainstSchema(d, args)
}

func validateAgainstSchema(d Descriptor, args map[string]interface{}) error {
	if args == nil {
		args = map[string]interface{}{}
	}
	doc, err := json.Marshal(args)
	if err != nil {
		return invocation.Wrap(invocation.CodeArgument, err, fmt.Sprintf("arguments for %s are not JSON encodable", d.Name))
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(d.InputSchema), gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return invocation.Wrap(invocation.CodeArgument, err, fmt.Sprintf("input schema of %s could not be applied", d.Name))
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return invocation.Errorf(invocation.CodeArgument, "arguments for %s do not match its input schema: %s", d.Name, strings.Join(details, "; "))
}

func isBlank(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func typeMatches(typ string, v interface{}) bool {
	switch typ {
	case "", "any":
		return true
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "number":
		switch v.(type) {
		case float64, float32, int, int32, int64, json.Number:
			return true
		}
		return false
	case "integer":
		switch n := v.(type) {
		case int, int32, int64:
			return true
		case float64:
			return n == float64(int64(n))
		case json.Number:
			_, err := n.Int64()
			return err == nil
		}
		return false
	case "object":
		_, ok := v.(map[string]interface{})
		return ok
	case "array":
		_, ok := v.([]interface{})
		return ok
	}
	// Unknown types are left to the provider.
	return true
}

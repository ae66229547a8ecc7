package tools

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ValidateArgs checks args against def's input schema: every required
// field must be present and non-null, and every declared field that is
// present must have the declared JSON type. Enum membership is left to
// the handlers.
func ValidateArgs(def mcp.Tool, args map[string]any) error {
	var problems []string

	for _, field := range def.InputSchema.Required {
		if v, ok := args[field]; !ok || v == nil {
			problems = append(problems, fmt.Sprintf("missing required argument %q", field))
		}
	}

	names := make([]string, 0, len(def.InputSchema.Properties))
	for name := range def.InputSchema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v, ok := args[name]
		if !ok || v == nil {
			continue
		}
		prop, _ := def.InputSchema.Properties[name].(map[string]any)
		want, _ := prop["type"].(string)
		if want == "" {
			continue
		}
		if got := jsonType(v); !typeMatches(want, got) {
			problems = append(problems, fmt.Sprintf("argument %q must be %s, got %s", name, want, got))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid arguments: %s", strings.Join(problems, "; "))
	}
	return nil
}

func jsonType(v any) string {
	switch n := v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		if n == float64(int64(n)) {
			return "integer"
		}
		return "number"
	case float32:
		return "number"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "integer"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func typeMatches(want, got string) bool {
	if want == got {
		return true
	}
	// Every integer is also a number.
	return want == "number" && got == "integer"
}

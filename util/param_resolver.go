package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oliveagle/jsonpath"
)

var templateTokenRe = regexp.MustCompile(`{{\s*([^{}]+?)\s*}}`)

// ResolveConfig walks an action config and substitutes every {{dot.path}}
// token inside string values with the value resolved from the trigger data.
// Unresolved tokens stay verbatim; non-string values pass through untouched.
func ResolveConfig(config map[string]any, triggerData map[string]any) map[string]any {
	output := make(map[string]any, len(config))
	resolveMap(triggerData, config, output)
	return output
}

func resolveMap(triggerData map[string]any, params map[string]any, output map[string]any) {
	for k, v := range params {
		switch val := v.(type) {
		case map[string]any:
			out := make(map[string]any)
			output[k] = out
			resolveMap(triggerData, val, out)
		case []any:
			output[k] = resolveList(triggerData, val)
		case string:
			output[k] = ResolveString(val, triggerData)
		default:
			output[k] = v
		}
	}
}

func resolveList(triggerData map[string]any, list []any) []any {
	output := make([]any, 0, len(list))
	for _, v := range list {
		switch val := v.(type) {
		case map[string]any:
			out := make(map[string]any)
			resolveMap(triggerData, val, out)
			output = append(output, out)
		case []any:
			output = append(output, resolveList(triggerData, val))
		case string:
			output = append(output, ResolveString(val, triggerData))
		default:
			output = append(output, v)
		}
	}
	return output
}

// ResolveString substitutes {{dot.path}} tokens in a single string. When the
// whole string is one token, the resolved value keeps its original type.
func ResolveString(s string, triggerData map[string]any) any {
	matches := templateTokenRe.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return s
	}
	if len(matches) == 1 && strings.TrimSpace(s) == matches[0][0] {
		if value, err := lookup(triggerData, matches[0][1]); err == nil {
			return value
		}
		return s
	}
	result := s
	for _, m := range matches {
		value, err := lookup(triggerData, m[1])
		if err != nil {
			continue
		}
		result = strings.ReplaceAll(result, m[0], fmt.Sprintf("%v", value))
	}
	return result
}

func lookup(data map[string]any, path string) (any, error) {
	return jsonpath.JsonPathLookup(data, "$."+path)
}

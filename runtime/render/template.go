package render

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/anotherai/gateway/runtime/apierror"
)

// refPattern matches a {{ path.to.var }} template reference. Whitespace
// around the path is optional; the path itself is a dot-separated sequence
// of identifiers.
var refPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+(?:\.[a-zA-Z0-9_]+)*)\s*\}\}`)

// references returns the ordered, de-duplicated list of variable paths
// referenced by text, preserving first-occurrence order.
func references(text string) []string {
	matches := refPattern.FindAllStringSubmatch(text, -1)
	if matches == nil {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var paths []string
	for _, m := range matches {
		path := m[1]
		if seen[path] {
			continue
		}
		seen[path] = true
		paths = append(paths, path)
	}
	return paths
}

// renderText substitutes every {{ path.to.var }} reference in text with its
// resolved value from variables. A reference whose path cannot be resolved
// yields a bad_request error, per spec §4.3.
func renderText(text string, variables map[string]any) (string, error) {
	var firstErr error
	out := refPattern.ReplaceAllStringFunc(text, func(match string) string {
		if firstErr != nil {
			return match
		}
		sub := refPattern.FindStringSubmatch(match)
		path := sub[1]
		val, ok := resolvePath(variables, path)
		if !ok {
			firstErr = apierror.BadRequest("missing template variable %q", path)
			return match
		}
		return stringifyValue(val)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// resolvePath walks a dot-separated path through nested maps, returning the
// leaf value and whether every segment was found.
func resolvePath(variables map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var cur any = variables
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// stringifyValue renders a resolved variable value as it would appear
// inline in rendered text.
func stringifyValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

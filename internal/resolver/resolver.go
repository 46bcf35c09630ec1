// Package resolver resolves `$context.path` variable references and
// `${...}` string interpolation against a journey's context map, and
// deep-merges the `context_updates` a subflow/remote-action node
// returns back into it. It is the dotted-path counterpart of
// predicate.TypedContext.Get: where that package resolves a path for
// a single predicate variable, this package resolves whole node configs
// (delegate payloads, event properties, templated messages) ahead of
// an adapter call, the way the teacher's cmd/workflow-runner/resolver
// resolves `$nodes.node_id.field` references ahead of a node run.
package resolver

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var interpolationPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Resolve walks value recursively, substituting any string that is
// exactly "$context.path" with the referenced value (any JSON type)
// and any string containing "${$context.path}" with its stringified
// interpolation. Maps and slices are resolved element-wise; other
// types pass through unchanged.
func Resolve(value interface{}, context map[string]interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return resolveString(v, context)
	case map[string]interface{}:
		return resolveMap(v, context)
	case []interface{}:
		return resolveSlice(v, context)
	default:
		return value, nil
	}
}

func resolveMap(m map[string]interface{}, context map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		resolved, err := Resolve(v, context)
		if err != nil {
			return nil, fmt.Errorf("resolver: key %q: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

func resolveSlice(s []interface{}, context map[string]interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(s))
	for i, v := range s {
		resolved, err := Resolve(v, context)
		if err != nil {
			return nil, fmt.Errorf("resolver: index %d: %w", i, err)
		}
		out[i] = resolved
	}
	return out, nil
}

func resolveString(s string, context map[string]interface{}) (interface{}, error) {
	if strings.HasPrefix(s, "$context.") {
		return lookup(strings.TrimPrefix(s, "$context."), context)
	}
	if strings.Contains(s, "${") {
		return interpolate(s, context)
	}
	return s, nil
}

func interpolate(s string, context map[string]interface{}) (string, error) {
	var outerErr error
	result := interpolationPattern.ReplaceAllStringFunc(s, func(match string) string {
		expr := match[2 : len(match)-1]
		resolved, err := resolveString(expr, context)
		if err != nil {
			outerErr = err
			return match
		}
		return stringify(resolved)
	})
	if outerErr != nil {
		return "", outerErr
	}
	return result, nil
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// lookup reads path out of context using gjson, dotted-path style
// ("profile.plan", "cart.items.0.sku"). A missing path resolves to
// nil rather than an error: templated configs tolerate absent optional
// fields the way the teacher's field lookups do not — that stricter
// behavior is reserved for predicate evaluation (internal/predicate),
// not payload templating.
func lookup(path string, context map[string]interface{}) (interface{}, error) {
	if context == nil {
		return nil, nil
	}
	doc, err := json.Marshal(context)
	if err != nil {
		return nil, fmt.Errorf("resolver: marshalling context: %w", err)
	}
	result := gjson.GetBytes(doc, path)
	if !result.Exists() {
		return nil, nil
	}
	return result.Value(), nil
}

// MergePatch deep-merges patch into context using dotted-path keys
// ("profile.plan": "premium" sets context.profile.plan, creating
// intermediate objects as needed), the §4.4 "working buffer merged
// atomically" step, and the destination for a subflow/remote-action
// node's returned context_updates (§4.2.12). A non-dotted key is a
// plain top-level assignment, same as a dotted one with a single
// segment.
func MergePatch(context map[string]interface{}, patch map[string]interface{}) (map[string]interface{}, error) {
	if len(patch) == 0 {
		return context, nil
	}
	if context == nil {
		context = map[string]interface{}{}
	}
	doc, err := json.Marshal(context)
	if err != nil {
		return nil, fmt.Errorf("resolver: marshalling context for patch: %w", err)
	}
	for path, value := range patch {
		doc, err = sjson.SetBytes(doc, path, value)
		if err != nil {
			return nil, fmt.Errorf("resolver: applying patch key %q: %w", path, err)
		}
	}
	var merged map[string]interface{}
	if err := json.Unmarshal(doc, &merged); err != nil {
		return nil, fmt.Errorf("resolver: unmarshalling patched context: %w", err)
	}
	return merged, nil
}

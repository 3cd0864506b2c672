package normalizer

import (
	"sort"
)

// containerShape is a known location of the product list inside a payload.
// When single is set, a lone object found at the path is treated as a
// one-element list (XML documents with exactly one product look like that).
type containerShape struct {
	path   []string
	single bool
}

// knownShapes are tried in order; the first path that resolves wins.
var knownShapes = []containerShape{
	{path: []string{"products", "product"}, single: true},
	{path: []string{"Products", "Product"}, single: true},
	{path: []string{"products"}},
	{path: []string{"Products"}},
	{path: []string{"data", "products"}},
	{path: []string{"data", "items"}},
	{path: []string{"data"}},
	{path: []string{"items", "item"}, single: true},
	{path: []string{"items"}},
	{path: []string{"result", "products"}},
	{path: []string{"results"}},
	{path: []string{"response", "products", "product"}, single: true},
	{path: []string{"response", "products"}},
	{path: []string{"catalog", "products", "product"}, single: true},
	{path: []string{"catalog", "product"}, single: true},
	{path: []string{"product"}, single: true},
	{path: []string{"Product"}, single: true},
}

// locate finds the product collection. The second return value is true when
// only the depth-first fallback found it.
func locate(tree any) ([]any, bool, bool) {
	if list, ok := tree.([]any); ok {
		return list, false, true
	}

	for _, shape := range knownShapes {
		node, ok := walk(tree, shape.path)
		if !ok {
			continue
		}
		switch v := node.(type) {
		case []any:
			return v, false, true
		case map[string]any:
			if shape.single {
				return []any{v}, false, true
			}
		}
	}

	if list, ok := firstArray(tree); ok {
		return list, true, true
	}
	return nil, false, false
}

func walk(tree any, path []string) (any, bool) {
	node := tree
	for _, key := range path {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[key]
		if !ok || node == nil {
			return nil, false
		}
	}
	return node, true
}

// firstArray is the last-resort heuristic: a depth-first search, visiting
// object keys in sorted order, for the first array holding objects. If no
// such array exists the first empty array is returned. Which array wins on
// ambiguous trees is a heuristic, not a guarantee.
func firstArray(tree any) ([]any, bool) {
	var empty []any
	foundEmpty := false

	var visit func(node any) ([]any, bool)
	visit = func(node any) ([]any, bool) {
		switch v := node.(type) {
		case []any:
			if len(v) == 0 {
				if !foundEmpty {
					empty, foundEmpty = v, true
				}
				return nil, false
			}
			for _, item := range v {
				if _, ok := item.(map[string]any); ok {
					return v, true
				}
			}
			for _, item := range v {
				if list, ok := visit(item); ok {
					return list, true
				}
			}
		case map[string]any:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if list, ok := visit(v[k]); ok {
					return list, true
				}
			}
		}
		return nil, false
	}

	if list, ok := visit(tree); ok {
		return list, true
	}
	return empty, foundEmpty
}

var errorKeys = []string{"error", "errors", "Error", "Errors", "fault"}

// embeddedError returns the text of a top-level error field, looking one
// level into single-root documents (XML roots) as well.
func embeddedError(tree any) (string, bool) {
	m, ok := tree.(map[string]any)
	if !ok {
		return "", false
	}
	candidates := []map[string]any{m}
	if len(m) == 1 {
		for _, v := range m {
			if inner, ok := v.(map[string]any); ok {
				candidates = append(candidates, inner)
			}
		}
	}

	for _, c := range candidates {
		for _, key := range errorKeys {
			v, ok := c[key]
			if !ok {
				continue
			}
			if text := flattenText(v); text != "" {
				return text, true
			}
		}
	}
	return "", false
}

package docstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// splitPath separates a path into its document key ("rooms/<id>") and the
// field path inside that document ("players/u1", or "" for the root).
func splitPath(path string) (doc, field string, err error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for _, p := range parts {
		if p == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return parts[0] + "/" + parts[1], strings.Join(parts[2:], "/"), nil
}

func joinField(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// under reports whether field sits at or below prefix.
func under(field, prefix string) bool {
	if prefix == "" {
		return true
	}
	return field == prefix || strings.HasPrefix(field, prefix+"/")
}

// flatten encodes value and spreads its object members into leaf fields
// below prefix. Arrays and scalars are stored whole; nulls are dropped.
func flatten(prefix string, value any) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", prefix, err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("decode %q: %w", prefix, err)
	}
	out := map[string]json.RawMessage{}
	if err := flattenInto(out, prefix, generic); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenInto(out map[string]json.RawMessage, prefix string, v any) error {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		for k, child := range t {
			if k == "" || strings.Contains(k, "/") {
				return fmt.Errorf("%w: key %q under %q", ErrInvalidPath, k, prefix)
			}
			if err := flattenInto(out, joinField(prefix, k), child); err != nil {
				return err
			}
		}
		return nil
	default:
		if prefix == "" {
			return fmt.Errorf("%w: document root must be an object", ErrInvalidPath)
		}
		raw, err := json.Marshal(t)
		if err != nil {
			return err
		}
		out[prefix] = raw
		return nil
	}
}

// unflatten rebuilds the JSON subtree stored below prefix. It returns false
// when nothing is stored there.
func unflatten(fields map[string]json.RawMessage, prefix string) (json.RawMessage, bool, error) {
	if leaf, ok := fields[prefix]; ok && prefix != "" {
		return leaf, true, nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if under(k, prefix) && k != prefix {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, false, nil
	}
	sort.Strings(keys)
	root := map[string]any{}
	for _, k := range keys {
		rel := k
		if prefix != "" {
			rel = strings.TrimPrefix(k, prefix+"/")
		}
		parts := strings.Split(rel, "/")
		node := root
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = fields[k]
	}
	raw, err := json.Marshal(root)
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

package configstore

import "strings"

// Document is the generic JSON-object representation of a sing-box
// configuration. This core is agnostic about what any field means; the
// Validator is the only semantic check, so the document is never unmarshaled
// into a typed sing-box schema here.
type Document = map[string]interface{}

// getPath walks a dotted path ("dns.servers") through nested objects,
// reporting ok=false if any segment is missing or not an object.
func getPath(doc Document, dotted string) (interface{}, bool) {
	var cur interface{} = doc
	for _, part := range strings.Split(dotted, ".") {
		m, ok := cur.(Document)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setPath writes value at a dotted path, creating intermediate objects as
// needed. Existing non-object intermediates are overwritten with a fresh
// object, since a valid document never mixes a scalar and a nested
// collection at the same key.
func setPath(doc Document, dotted string, value interface{}) {
	parts := strings.Split(dotted, ".")
	cur := doc
	for i, part := range parts {
		if i == len(parts)-1 {
			cur[part] = value
			return
		}
		next, ok := cur[part].(Document)
		if !ok {
			next = Document{}
			cur[part] = next
		}
		cur = next
	}
}

// getArray returns the array value at dotted, or nil if absent or not an
// array.
func getArray(doc Document, dotted string) []interface{} {
	v, ok := getPath(doc, dotted)
	if !ok {
		return nil
	}
	arr, _ := v.([]interface{})
	return arr
}

// deepMerge implements the spec's merge rule: patch keys replace target
// keys, except where both sides hold a non-array object, in which case the
// merge recurses. Arrays are always replaced wholesale. Keys absent from
// patch are left untouched in the result (JSON has no concept of
// "undefined", so an absent key is already the only way to express that).
func deepMerge(target, patch interface{}) interface{} {
	patchMap, patchIsMap := patch.(Document)
	if !patchIsMap {
		return deepClone(patch)
	}
	targetMap, targetIsMap := target.(Document)
	if !targetIsMap {
		return deepClone(patchMap)
	}

	result := shallowCloneDoc(targetMap)
	for k, v := range patchMap {
		if existing, ok := result[k].(Document); ok {
			if _, vIsMap := v.(Document); vIsMap {
				result[k] = deepMerge(existing, v)
				continue
			}
		}
		result[k] = deepClone(v)
	}
	return result
}

func shallowCloneDoc(m Document) Document {
	out := make(Document, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSlice(s []interface{}) []interface{} {
	out := make([]interface{}, len(s))
	copy(out, s)
	return out
}

// deepClone recursively copies maps and slices so a caller can never
// mutate the store's cached document through a returned value.
func deepClone(v interface{}) interface{} {
	switch t := v.(type) {
	case Document:
		out := make(Document, len(t))
		for k, val := range t {
			out[k] = deepClone(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = deepClone(val)
		}
		return out
	default:
		return t
	}
}

func tagOf(item interface{}) (string, bool) {
	m, ok := item.(Document)
	if !ok {
		return "", false
	}
	tag, ok := m["tag"].(string)
	return tag, ok
}

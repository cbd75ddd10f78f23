// Package tenant stores one JSON document per vendor account.
package tenant

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

// Well-known document keys.
const (
	KeyGLMapping                = "gl_mapping"
	KeyAutomatedTasksCategoryID = "automated_tasks_category_id"
	PathInitiationCompletedAt   = "automations.initiation.completed_at"
	KeyN1                       = "n1"
)

// Document is a tenant's decoded JSON document. Numbers are json.Number.
type Document map[string]any

// Clone returns a deep copy.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneMap(d))
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case Document:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// Lookup walks a dotted path ("a.b.c") through nested objects.
func (d Document) Lookup(path string) (any, bool) {
	var cur any = map[string]any(d)
	for _, key := range strings.Split(path, ".") {
		obj, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the first alias (dotted paths allowed) holding a non-empty
// scalar, rendered as a string.
func (d Document) String(aliases ...string) (string, string, bool) {
	for _, alias := range aliases {
		v, ok := d.Lookup(alias)
		if !ok {
			continue
		}
		if s, ok := Scalar(v); ok && s != "" {
			return s, alias, true
		}
	}
	return "", "", false
}

// Set assigns value at a dotted path, creating intermediate objects and
// replacing non-object intermediates.
func (d Document) Set(path string, value any) {
	keys := strings.Split(path, ".")
	cur := map[string]any(d)
	for _, key := range keys[:len(keys)-1] {
		next, ok := asObject(cur[key])
		if !ok {
			next = map[string]any{}
		}
		cur[key] = next
		cur = next
	}
	cur[keys[len(keys)-1]] = value
}

// Without returns a deep copy with the given top-level keys removed.
func (d Document) Without(keys ...string) Document {
	out := d.Clone()
	if out == nil {
		out = Document{}
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Scalar renders strings, numbers and bools as strings.
func Scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case float64, float32, int, int64, int32, uint, uint64, uint32:
		return fmt.Sprint(t), true
	case bool:
		return fmt.Sprint(t), true
	default:
		return "", false
	}
}

func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Document:
		return map[string]any(t), true
	default:
		return nil, false
	}
}

// Decode parses a JSON object, keeping numbers exact.
func Decode(raw []byte) (Document, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return Document{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode tenant document: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return Document(doc), nil
}

// Merge copies top-level keys of updates into d.
func (d Document) Merge(updates map[string]any) {
	maps.Copy(d, updates)
}

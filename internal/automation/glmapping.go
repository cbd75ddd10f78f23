package automation

import (
	"github.com/mattjoyce/leasehook/internal/tenant"
)

var glMappingKeys = []string{tenant.KeyGLMapping, "gl_account_mapping", "glMapping"}

// GLMapping maps a purpose ("rent", "deposit", ...) to a GL account id.
type GLMapping map[string]string

// GLMappingFrom reads the first GL mapping alias present in metadata.
// Values may be scalars or objects carrying an id.
func GLMappingFrom(metadata tenant.Document) GLMapping {
	out := GLMapping{}
	for _, key := range glMappingKeys {
		raw, ok := metadata.Lookup(key)
		if !ok {
			continue
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		for purpose, v := range obj {
			if s, ok := tenant.Scalar(v); ok && s != "" {
				out[purpose] = s
				continue
			}
			if nested, ok := v.(map[string]any); ok {
				if id, _, ok := tenant.Document(nested).String("id", "Id", "gl_account_id"); ok {
					out[purpose] = id
				}
			}
		}
		return out
	}
	return out
}

// Account looks up purpose, tolerating case and punctuation differences.
func (g GLMapping) Account(purpose string) (string, bool) {
	if id, ok := g[purpose]; ok {
		return id, true
	}
	want := Normalize(purpose)
	for k, id := range g {
		if Normalize(k) == want {
			return id, true
		}
	}
	return "", false
}

package upstream

import (
	"encoding/json"
	"net/url"
	"strconv"
)

// Body is the lenient decoding of an upstream response. The provider answers
// some calls with JSON and others with form-encoded pairs, so every response
// goes through one parse step that yields string-keyed values either way.
// Anything unparseable is kept as Raw.
type Body struct {
	values map[string]string
	Raw    string
}

// ParseBody decodes data as JSON first, then as a query string, else wraps
// the raw text. Nested JSON objects are flattened with dotted keys, so
// {"profile":{"auth_token":"t"}} yields Get("profile.auth_token") == "t".
func ParseBody(data []byte) Body {
	raw := string(data)

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err == nil {
		values := make(map[string]string)
		flatten("", decoded, values)
		return Body{values: values, Raw: raw}
	}

	if q, err := url.ParseQuery(raw); err == nil && len(q) > 0 {
		values := make(map[string]string, len(q))
		for k := range q {
			values[k] = q.Get(k)
		}
		return Body{values: values, Raw: raw}
	}

	return Body{Raw: raw}
}

// Get returns the value for key, or "" when absent.
func (b Body) Get(key string) string {
	return b.values[key]
}

// Has reports whether key was present in the parsed body.
func (b Body) Has(key string) bool {
	_, ok := b.values[key]
	return ok
}

func flatten(prefix string, m map[string]any, out map[string]string) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case string:
			out[key] = val
		case float64:
			out[key] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[key] = strconv.FormatBool(val)
		case nil:
			out[key] = ""
		}
	}
}

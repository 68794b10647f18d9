package request

import "strings"

// Header maps lower-cased header names to their values in arrival order.
type Header map[string][]string

func canonicalKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Add appends value to key.
func (h Header) Add(key, value string) {
	k := canonicalKey(key)
	h[k] = append(h[k], value)
}

// Get returns the first value for key, or "" if the header is absent.
// Name comparison is case-insensitive.
func (h Header) Get(key string) string {
	if values, ok := h[canonicalKey(key)]; ok && len(values) > 0 {
		return values[0]
	}
	return ""
}

// Has reports whether key is present.
func (h Header) Has(key string) bool {
	_, ok := h[canonicalKey(key)]
	return ok
}

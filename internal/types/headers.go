package types

import (
	"encoding/json"
	"strings"
)

// HeaderField is one header line in its original position.
type HeaderField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Headers is an ordered header multimap. Lookups are case-insensitive and
// duplicates are kept in arrival order.
type Headers struct {
	fields []HeaderField
}

// NewHeaders builds a Headers value from fields in order.
func NewHeaders(fields ...HeaderField) Headers {
	return Headers{fields: append([]HeaderField(nil), fields...)}
}

// Add appends a header field. Only used while building a message.
func (h *Headers) Add(name, value string) {
	h.fields = append(h.fields, HeaderField{Name: name, Value: value})
}

// Get returns the first value of the named header.
func (h Headers) Get(name string) (string, bool) {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns every value of the named header in order.
func (h Headers) Values(name string) []string {
	var out []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Has reports whether the named header is present.
func (h Headers) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Len returns the number of header fields.
func (h Headers) Len() int {
	return len(h.fields)
}

// Fields returns a copy of all header fields in order.
func (h Headers) Fields() []HeaderField {
	return append([]HeaderField(nil), h.fields...)
}

// MarshalJSON encodes the headers as an ordered list of fields.
func (h Headers) MarshalJSON() ([]byte, error) {
	if h.fields == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.fields)
}

// UnmarshalJSON decodes the ordered list form produced by MarshalJSON.
func (h *Headers) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &h.fields)
}

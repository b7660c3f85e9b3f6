// Package payload holds the outcome of a best-effort JSON parse: either a
// valid JSON document (raw bytes kept verbatim) or an opaque text string.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Payload is a request or response body. The zero value is an empty text body.
type Payload struct {
	raw    []byte
	isJSON bool
}

// Parse classifies b as JSON when it is a valid JSON document and as text otherwise.
func Parse(b []byte) Payload {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && gjson.ValidBytes(trimmed) {
		return Payload{raw: append([]byte(nil), trimmed...), isJSON: true}
	}
	return Payload{raw: append([]byte(nil), b...)}
}

// ParseString is Parse for strings.
func ParseString(s string) Payload {
	return Parse([]byte(s))
}

// Text wraps s as a text payload without attempting to parse it.
func Text(s string) Payload {
	return Payload{raw: []byte(s)}
}

// FromValue marshals v into a JSON payload.
func FromValue(v any) (Payload, error) {
	b, err := Marshal(v)
	if err != nil {
		return Payload{}, err
	}
	return Payload{raw: b, isJSON: true}, nil
}

// Marshal encodes v as compact JSON without HTML escaping.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// IsJSON reports whether the payload holds a valid JSON document.
func (p Payload) IsJSON() bool { return p.isJSON }

// IsZero reports whether the payload is an empty text body.
func (p Payload) IsZero() bool { return !p.isJSON && len(p.raw) == 0 }

// Bytes returns a copy of the raw bytes.
func (p Payload) Bytes() []byte { return append([]byte(nil), p.raw...) }

func (p Payload) String() string { return string(p.raw) }

// Get runs a gjson path against a JSON payload. Text payloads never match.
func (p Payload) Get(path string) gjson.Result {
	if !p.isJSON {
		return gjson.Result{}
	}
	return gjson.GetBytes(p.raw, path)
}

// Value returns the decoded JSON value (numbers as json.Number) or the text as a string.
func (p Payload) Value() any {
	if !p.isJSON {
		return string(p.raw)
	}
	var v any
	if err := p.Decode(&v); err != nil {
		return string(p.raw)
	}
	return v
}

// Decode unmarshals a JSON payload into v using json.Number for numbers.
func (p Payload) Decode(v any) error {
	if !p.isJSON {
		return fmt.Errorf("decode payload: body is not JSON")
	}
	dec := json.NewDecoder(bytes.NewReader(p.raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// MarshalJSON inlines JSON payloads and encodes text payloads as a JSON string.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.isJSON {
		return p.Bytes(), nil
	}
	return Marshal(string(p.raw))
}

// UnmarshalJSON treats a JSON string as text, null as the zero payload and
// anything else as a JSON document.
func (p *Payload) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	switch res.Type {
	case gjson.String:
		*p = Text(res.String())
	case gjson.Null:
		*p = Payload{}
	default:
		*p = Payload{raw: append([]byte(nil), bytes.TrimSpace(data)...), isJSON: true}
	}
	return nil
}

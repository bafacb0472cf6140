// Package json provides the JSON codec used across querylens. It wraps
// goccy/go-json so every payload decode in the gateway and loaders goes
// through one implementation.
package json

import (
	"io"

	gojson "github.com/goccy/go-json"
)

// RawMessage is a raw encoded JSON value, re-exported for payload
// pass-through fields.
type RawMessage = gojson.RawMessage

// Marshal encodes v as JSON.
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// NewDecoder returns a decoder reading from r. Numbers are decoded as
// json.Number so epoch-millisecond timestamps survive without float
// truncation.
func NewDecoder(r io.Reader) *gojson.Decoder {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// NewEncoder returns an encoder writing to w with HTML escaping off.
func NewEncoder(w io.Writer) *gojson.Encoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

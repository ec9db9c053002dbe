// Package connectjson lets Connect handlers carry plain Go structs as JSON.
package connectjson

import (
	"bytes"
	"encoding/json"

	"github.com/bufbuild/connect-go"
)

// Codec encodes chat events as JSON without HTML escaping, so code in
// replies keeps its <, > and & characters.
type Codec struct{}

func (Codec) Name() string {
	return "json"
}

func (Codec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

var _ connect.Codec = (*Codec)(nil)

package objectstore

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Content types used for stored objects.
const (
	ContentTypeJSON      = "application/json"
	ContentTypeJSONLines = "application/x-ndjson"
)

// EncodeJSONLines renders each item as one JSON document per line.
func EncodeJSONLines[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, item := range items {
		if err := enc.Encode(item); err != nil {
			return nil, fmt.Errorf("failed to encode line %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

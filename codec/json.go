package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Metadata sidecars are JSON by contract; other codecs may be plugged in for
// internal payloads but persisted sidecars always use this one.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the default codec used by the library.
var Default Codec = JSON{}

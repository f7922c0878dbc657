// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package codec defines the encode/decode boundary used for message payloads.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Codec converts between wire bytes and decoded values.
type Codec interface {
	Parse([]byte) (any, error)
	Serialize(any) ([]byte, error)
}

// JSON is the default Codec.
//
// Numbers are decoded as [json.Number] so integers survive a round trip
// without losing precision. Serialization is compact and does not escape HTML.
var JSON Codec = jsonCodec{}

// MediaType is the content type of payloads serialized by [JSON].
const MediaType = "application/json"

// TrailingDataError is returned by [JSON] when a payload contains more
// than one JSON value.
type TrailingDataError struct {
	Offset int64
}

// Error implements the [error] interface.
func (e TrailingDataError) Error() string {
	return fmt.Sprintf("unexpected data after top-level value at offset %d", e.Offset)
}

type jsonCodec struct{}

func (jsonCodec) Parse(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var v any
	err := dec.Decode(&v)
	if err != nil {
		return nil, err
	}

	var extra json.RawMessage
	err = dec.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return v, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, TrailingDataError{Offset: dec.InputOffset()}
}

func (jsonCodec) Serialize(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	err := enc.Encode(v)
	if err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

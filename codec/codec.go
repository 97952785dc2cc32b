// Package codec serializes cache values for byte-backed storage adapters.
//
// The in-memory adapter holds values directly and needs no codec; every
// adapter that persists bytes (fsstore, redis, postgres, sqlite, httpstore)
// takes a Codec for its value type. JSON is the default everywhere; Gob
// covers Go-native values that JSON flattens, such as time.Time keys in
// maps.
package codec

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
)

// Codec converts values to and from their stored byte representation.
type Codec[V any] interface {
	Marshal(value V) ([]byte, error)
	Unmarshal(data []byte) (V, error)
}

// JSON encodes values with encoding/json.
type JSON[V any] struct{}

func (JSON[V]) Marshal(value V) ([]byte, error) {
	return json.Marshal(value)
}

func (JSON[V]) Unmarshal(data []byte) (V, error) {
	var value V
	err := json.Unmarshal(data, &value)
	return value, err
}

// Gob encodes values with encoding/gob.
type Gob[V any] struct{}

func (Gob[V]) Marshal(value V) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Gob[V]) Unmarshal(data []byte) (V, error) {
	var value V
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&value)
	return value, err
}

// Bytes returns a passthrough codec for raw []byte values.
func Bytes() Codec[[]byte] { return rawBytes{} }

type rawBytes struct{}

func (rawBytes) Marshal(value []byte) ([]byte, error)  { return value, nil }
func (rawBytes) Unmarshal(data []byte) ([]byte, error) { return data, nil }

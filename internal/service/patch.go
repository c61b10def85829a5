package service

import (
	"bytes"
	"encoding/json"
)

// Optional distinguishes a JSON field that was left out, sent as null, or
// sent with a value.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some is a present, non-null value
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Null is a field explicitly cleared by the caller
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		var zero T
		o.Value = zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

// HasValue reports a present, non-null value
func (o Optional[T]) HasValue() bool {
	return o.Set && !o.Null
}

package model

import (
	"encoding/json"
	"fmt"
)

// Field is a decoded value together with whether it can be trusted.
// An invalid Field renders as unknown and must not drive inference.
type Field[T any] struct {
	Value T
	Valid bool
}

// Known returns a valid field holding v.
func Known[T any](v T) Field[T] {
	return Field[T]{Value: v, Valid: true}
}

// Unknown returns an invalid field.
func Unknown[T any]() Field[T] {
	return Field[T]{}
}

// Get returns the value and its validity.
func (f Field[T]) Get() (T, bool) {
	return f.Value, f.Valid
}

// Or returns the value when valid, otherwise def.
func (f Field[T]) Or(def T) T {
	if f.Valid {
		return f.Value
	}
	return def
}

// String renders the value, or "--" when unknown.
func (f Field[T]) String() string {
	if !f.Valid {
		return "--"
	}
	return fmt.Sprint(f.Value)
}

// MarshalJSON encodes an unknown field as null.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

package users

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// Nullable is a PATCH field that distinguishes absent, null and a value.
type Nullable[T any] struct {
	Set   bool
	Valid bool
	Value T
}

// UnmarshalJSON records that the field was present.
func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Valid = false
		var zero T
		n.Value = zero
		return nil
	}
	if err := json.Unmarshal(data, &n.Value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// Ptr returns the value as a pointer, nil for null.
func (n Nullable[T]) Ptr() *T {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

// Some builds a present, non-null value.
func Some[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Valid: true, Value: v}
}

// Null builds a present null.
func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

// nullableValue lets validator tags apply to the wrapped value. Absent and
// null fields surface as a nil pointer so omitempty skips them, while a
// present zero value is still validated.
func nullableValue(field reflect.Value) any {
	if v, ok := field.Interface().(interface{ validationValue() any }); ok {
		return v.validationValue()
	}
	return nil
}

func (n Nullable[T]) validationValue() any {
	return n.Ptr()
}


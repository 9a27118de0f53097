package models

import "encoding/json"

// Optional is a patch field that distinguishes "absent from the request body"
// from an explicit JSON null. Absent leaves the stored value untouched; null
// clears it; a value sets it.
type Optional[T any] struct {
	Present bool
	Value   *T
}

// UnmarshalJSON is only invoked for keys present in the body, so Present
// flips true for both null and concrete values.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Present = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// MarshalJSON round-trips the wrapped value; absent encodes as null.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Present || o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// Set returns an Optional holding v.
func Set[T any](v T) Optional[T] {
	return Optional[T]{Present: true, Value: &v}
}

// Clear returns an Optional carrying an explicit null.
func Clear[T any]() Optional[T] {
	return Optional[T]{Present: true}
}

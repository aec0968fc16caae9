// Package optional provides a value type that makes field presence explicit.
// A Value is either absent or present with a value; the zero Value is absent.
//
// In JSON an absent Value encodes as null (or is dropped with the omitzero
// tag option) and both a missing key and an explicit null decode as absent.
package optional

import (
	"bytes"
	"encoding/json"
)

// Value holds an optional T.
type Value[T any] struct {
	v  T
	ok bool
}

// Some returns a present Value holding v.
func Some[T any](v T) Value[T] {
	return Value[T]{v: v, ok: true}
}

// None returns an absent Value.
func None[T any]() Value[T] {
	return Value[T]{}
}

// FromPtr converts a nil-able pointer, as produced by database scans, into a Value.
func FromPtr[T any](p *T) Value[T] {
	if p == nil {
		return None[T]()
	}
	return Some(*p)
}

// Get returns the held value and whether it is present.
func (o Value[T]) Get() (T, bool) {
	return o.v, o.ok
}

// IsSet reports whether the value is present.
func (o Value[T]) IsSet() bool { return o.ok }

// IsZero reports whether the value is absent. It lets encoding/json drop
// absent fields tagged with omitzero.
func (o Value[T]) IsZero() bool { return !o.ok }

// OrElse returns the held value, or def when absent.
func (o Value[T]) OrElse(def T) T {
	if o.ok {
		return o.v
	}
	return def
}

// Ptr returns a pointer to a copy of the held value, or nil when absent.
func (o Value[T]) Ptr() *T {
	if !o.ok {
		return nil
	}
	v := o.v
	return &v
}

func (o Value[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.v)
}

func (o *Value[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = None[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// String returns the held string or "" when absent. It is a convenience for
// the common optional-text case.
func String(o Value[string]) string {
	return o.OrElse("")
}

// NonEmpty returns Some(s) when s is not empty and None otherwise.
func NonEmpty(s string) Value[string] {
	if s == "" {
		return None[string]()
	}
	return Some(s)
}

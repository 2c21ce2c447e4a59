package linkql

import (
	"encoding/json"
	"fmt"
)

// Patch is a field of a partial update: either Keep (leave the column
// untouched) or Set(v). The zero value keeps.
//
// In JSON, an absent field keeps and a present one sets, so a struct of
// patches with the `omitzero` option round-trips:
//
//	type TodoPatch struct {
//		Title linkql.Patch[string]  `json:"title,omitzero"`
//		Done  linkql.Patch[bool]    `json:"done,omitzero"`
//		Desc  linkql.Patch[*string] `json:"description,omitzero"`
//	}
type Patch[T any] struct {
	v   T
	set bool
}

// Keep returns a patch that leaves the column untouched.
func Keep[T any]() Patch[T] { return Patch[T]{} }

// Set returns a patch that assigns v.
func Set[T any](v T) Patch[T] { return Patch[T]{v: v, set: true} }

// Get returns the value and whether the patch sets it.
func (p Patch[T]) Get() (T, bool) { return p.v, p.set }

// IsSet reports if the patch assigns a value.
func (p Patch[T]) IsSet() bool { return p.set }

// IsZero reports if the patch keeps the column.
func (p Patch[T]) IsZero() bool { return !p.set }

// String implements fmt.Stringer.
func (p Patch[T]) String() string {
	if !p.set {
		return "keep"
	}
	return fmt.Sprintf("set(%v)", p.v)
}

// MarshalJSON implements json.Marshaler. A kept field encodes as null.
func (p Patch[T]) MarshalJSON() ([]byte, error) {
	if !p.set {
		return []byte("null"), nil
	}
	return json.Marshal(p.v)
}

// UnmarshalJSON implements json.Unmarshaler. Any present value, null
// included, sets the field.
func (p *Patch[T]) UnmarshalJSON(b []byte) error {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	p.v, p.set = v, true
	return nil
}

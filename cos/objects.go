// Package cos models the COS object layer of a paginated document: the
// typed primitives a document body is assembled from, and a parser that
// recovers them from a byte stream.
package cos

import "fmt"

// Object is any COS value.
type Object interface{ cosObject() }

// Name is a /Name token.
type Name string

// Integer is an integral number.
type Integer int64

// Real is a non-integral number.
type Real float64

// String holds raw string bytes (literal and hex forms are equivalent).
type String []byte

// Bool is true or false.
type Bool bool

// Null is the null object.
type Null struct{}

// Array is an ordered list of objects.
type Array []Object

// Dict maps names to objects.
type Dict map[Name]Object

// Stream couples a dictionary with its undecoded payload bytes.
type Stream struct {
	Dict Dict
	Raw  []byte
}

// Ref is an indirect object reference.
type Ref struct {
	Num int
	Gen int
}

func (Name) cosObject()    {}
func (Integer) cosObject() {}
func (Real) cosObject()    {}
func (String) cosObject()  {}
func (Bool) cosObject()    {}
func (Null) cosObject()    {}
func (Array) cosObject()   {}
func (Dict) cosObject()    {}
func (*Stream) cosObject() {}
func (Ref) cosObject()     {}

func (r Ref) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Number unwraps Integer or Real into a float64.
func Number(obj Object) (float64, bool) {
	switch v := obj.(type) {
	case Integer:
		return float64(v), true
	case Real:
		return float64(v), true
	}
	return 0, false
}

// Int unwraps Integer (or an integral Real) into an int64.
func Int(obj Object) (int64, bool) {
	switch v := obj.(type) {
	case Integer:
		return int64(v), true
	case Real:
		if float64(int64(v)) == float64(v) {
			return int64(v), true
		}
	}
	return 0, false
}

// Clone returns a deep copy of obj. Annotating a page clones before it
// appends, so the loaded document is never mutated.
func Clone(obj Object) Object {
	switch v := obj.(type) {
	case Array:
		out := make(Array, len(v))
		for i, it := range v {
			out[i] = Clone(it)
		}
		return out
	case Dict:
		out := make(Dict, len(v))
		for k, it := range v {
			out[k] = Clone(it)
		}
		return out
	case *Stream:
		raw := make([]byte, len(v.Raw))
		copy(raw, v.Raw)
		return &Stream{Dict: Clone(v.Dict).(Dict), Raw: raw}
	case String:
		out := make(String, len(v))
		copy(out, v)
		return out
	default:
		return v
	}
}

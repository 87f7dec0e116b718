// SPDX-License-Identifier: Apache-2.0

package jsonmerger

import (
	"fmt"
	"math"
	"reflect"
)

// Kind is the shape of a tree value.
type Kind int

const (
	// KindNull is an explicit null (nil).
	KindNull Kind = iota
	// KindScalar is a string, number, bool or any other leaf value.
	KindScalar
	// KindMap is a map[string]any.
	KindMap
	// KindList is a []any.
	KindList

	// kindAbsent marks a mapping key that is missing on one side.
	// It never escapes the package.
	kindAbsent Kind = -1
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindScalar:
		return "scalar"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	case kindAbsent:
		return "absent"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

func (k Kind) container() bool {
	return k == KindMap || k == KindList
}

// absentValue stands in for a key that one of the three trees does not have.
// It is distinct from nil, which is an explicit null.
type absentValue struct{}

var absent any = absentValue{}

func isAbsent(v any) bool {
	_, ok := v.(absentValue)
	return ok
}

// KindOf reports the shape of v.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case map[string]any:
		return KindMap
	case []any:
		return KindList
	case absentValue:
		return kindAbsent
	default:
		return KindScalar
	}
}

// lookup returns m[key], or absent when m lacks the key.
func lookup(m map[string]any, key string) any {
	v, ok := m[key]
	if !ok {
		return absent
	}
	return v
}

// present replaces absent with nil so that values can be reported.
func present(v any) any {
	if isAbsent(v) {
		return nil
	}
	return v
}

// Equal reports whether two tree values are deeply equal.
//
// Numbers are compared by value regardless of their Go type, so uint64(5)
// from a YAML decoder equals float64(5) from encoding/json. NaN equals NaN. Maps compare by
// key set and values, lists element-wise.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			y, ok := bv[k]
			if !ok || !Equal(x, y) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	}
	if an, ok := toNumber(a); ok {
		bn, ok := toNumber(b)
		return ok && an.equal(bn)
	}
	return reflect.DeepEqual(a, b)
}

// number is a normalized numeric value.
type number struct {
	kind reflect.Kind // reflect.Int64, reflect.Uint64 or reflect.Float64
	i    int64
	u    uint64
	f    float64
}

func toNumber(v any) (number, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number{kind: reflect.Int64, i: rv.Int()}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return number{kind: reflect.Uint64, u: rv.Uint()}, true
	case reflect.Float32, reflect.Float64:
		return number{kind: reflect.Float64, f: rv.Float()}, true
	default:
		return number{}, false
	}
}

func (n number) equal(o number) bool {
	if n.kind == reflect.Float64 || o.kind == reflect.Float64 {
		nf, of := n.float(), o.float()
		// NaN equals itself, or no tree holding one would equal its own copy.
		return nf == of || (math.IsNaN(nf) && math.IsNaN(of))
	}
	if n.kind == o.kind {
		return n.i == o.i && n.u == o.u
	}
	// one signed, one unsigned
	s, u := n, o
	if s.kind == reflect.Uint64 {
		s, u = o, n
	}
	if s.i < 0 || u.u > math.MaxInt64 {
		return false
	}
	return uint64(s.i) == u.u
}

func (n number) float() float64 {
	switch n.kind {
	case reflect.Int64:
		return float64(n.i)
	case reflect.Uint64:
		return float64(n.u)
	default:
		return n.f
	}
}

// clone deep-copies maps and lists so the merged tree never aliases inputs.
func clone(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, x := range tv {
			out[k] = clone(x)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, x := range tv {
			out[i] = clone(x)
		}
		return out
	default:
		return v
	}
}

// Normalize rewrites the typed containers some decoders produce, such as the
// []map[string]any TOML uses for arrays of tables, into the map[string]any
// and []any trees the merger works on. Other values are returned unchanged.
func Normalize(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		for k, x := range tv {
			tv[k] = Normalize(x)
		}
		return tv
	case []any:
		for i, x := range tv {
			tv[i] = Normalize(x)
		}
		return tv
	case []map[string]any:
		out := make([]any, len(tv))
		for i, x := range tv {
			out[i] = Normalize(x)
		}
		return out
	default:
		return v
	}
}

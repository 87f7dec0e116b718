// SPDX-License-Identifier: Apache-2.0

package jsonmerger

import (
	"slices"
	"strings"
)

// Segment is one step of a [Path]: either a mapping key or the identity of a
// list element.
type Segment struct {
	// Key is the mapping key. Empty for element segments.
	Key string
	// ID identifies a list element across root, head and update.
	// Empty for key segments.
	ID string
}

// Field returns a mapping key segment.
func Field(key string) Segment {
	return Segment{Key: key}
}

// Elem returns a list element segment.
func Elem(id string) Segment {
	return Segment{ID: id}
}

// IsElem reports whether s addresses a list element.
func (s Segment) IsElem() bool {
	return s.ID != ""
}

func (s Segment) String() string {
	if s.IsElem() {
		return "[" + s.ID + "]"
	}
	return s.Key
}

// Path addresses a location in a tree. List elements are addressed by
// identity, not index, so a path stays valid when either side reorders a list.
type Path []Segment

// String renders the path as in authors[Smith, J.].full_name.
// The empty path renders as "(root)".
func (p Path) String() string {
	if len(p) == 0 {
		return "(root)"
	}
	var b strings.Builder
	for i, seg := range p {
		if !seg.IsElem() && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.String())
	}
	return b.String()
}

// Dotted joins only the key segments with dots, as in authors.affiliations.
// This is the form used to register comparators and strategies.
func (p Path) Dotted() string {
	keys := make([]string, 0, len(p))
	for _, seg := range p {
		if !seg.IsElem() {
			keys = append(keys, seg.Key)
		}
	}
	return strings.Join(keys, ".")
}

// Equal reports whether p and o have the same segments.
func (p Path) Equal(o Path) bool {
	return slices.Equal(p, o)
}

// Compare orders paths segment by segment; shorter prefixes sort first.
func (p Path) Compare(o Path) int {
	for i := range min(len(p), len(o)) {
		if c := strings.Compare(p[i].String(), o[i].String()); c != 0 {
			return c
		}
	}
	return len(p) - len(o)
}

// Clone returns a copy of p that does not share its backing array.
func (p Path) Clone() Path {
	return slices.Clone(p)
}

// validDotted reports whether s is a usable dotted configuration path.
func validDotted(s string) bool {
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return false
		}
	}
	return true
}

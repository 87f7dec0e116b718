// SPDX-License-Identifier: Apache-2.0

package jsonmerger

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// ConflictType classifies a divergence the merger could not resolve.
type ConflictType int

const (
	// ConflictSetField means head and update changed the same value to
	// different results. Body is []any{root, head, update}.
	ConflictSetField ConflictType = iota
	// ConflictRemoveField means one side removed a key the other side changed.
	// Body is []any{root, head, update}, with nil for the removed side.
	ConflictRemoveField
	// ConflictTypeMismatch means head and update hold values of incompatible
	// shapes (mapping, list, scalar). Body is []any{root, head, update}.
	ConflictTypeMismatch
	// ConflictManualMerge means list elements could not be paired without a
	// human decision. Body is []any holding every candidate element.
	ConflictManualMerge
	// ConflictReorder means head and update reordered the same list elements
	// differently. Body is []any{headOrder, updateOrder}, each a []any of
	// element identities.
	ConflictReorder
	// ConflictAddBackToHead means head deleted a list element update still
	// carries. Body is the update element.
	ConflictAddBackToHead
	// ConflictDeleteEdited means update deleted a list element head edited.
	// Body is []any{root, head}.
	ConflictDeleteEdited
)

func (t ConflictType) String() string {
	switch t {
	case ConflictSetField:
		return "SET_FIELD"
	case ConflictRemoveField:
		return "REMOVE_FIELD"
	case ConflictTypeMismatch:
		return "TYPE_MISMATCH"
	case ConflictManualMerge:
		return "MANUAL_MERGE"
	case ConflictReorder:
		return "REORDER"
	case ConflictAddBackToHead:
		return "ADD_BACK_TO_HEAD"
	case ConflictDeleteEdited:
		return "DELETE_EDITED"
	default:
		return fmt.Sprintf("ConflictType(%d)", t)
	}
}

// ParseConflictType is the inverse of [ConflictType.String].
func ParseConflictType(s string) (ConflictType, error) {
	for t := ConflictSetField; t <= ConflictDeleteEdited; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown conflict type %q", s)
}

// Conflict is an immutable record of one unresolved divergence.
type Conflict struct {
	Type ConflictType
	Path Path
	Body any
}

// Equal reports whether c and o have the same type, path and body.
func (c Conflict) Equal(o Conflict) bool {
	return c.Type == o.Type && c.Path.Equal(o.Path) && Equal(c.Body, o.Body)
}

// Key returns a canonical encoding of the conflict. Equal conflicts have equal
// keys, so Key can index a map[string]Conflict.
func (c Conflict) Key() string {
	segs := make([]string, len(c.Path))
	for i, seg := range c.Path {
		if seg.IsElem() {
			segs[i] = "[" + seg.ID
		} else {
			segs[i] = "." + seg.Key
		}
	}
	return c.Type.String() + " " + encodeBody(segs) + " " + encodeBody(c.Body)
}

func (c Conflict) String() string {
	return c.Type.String() + " " + c.Path.String() + " " + encodeBody(c.Body)
}

// encodeBody renders a body as JSON, which sorts map keys and prints numbers
// by value. Bodies that JSON cannot hold fall back to %v.
func encodeBody(body any) string {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Sprintf("%v", body)
	}
	return string(data)
}

// Conflicts is a collection of conflicts compared as an unordered set.
type Conflicts []Conflict

// Contains reports whether cs has a conflict equal to c.
func (cs Conflicts) Contains(c Conflict) bool {
	return slices.ContainsFunc(cs, c.Equal)
}

// Equal reports whether cs and o hold the same conflicts, ignoring order.
func (cs Conflicts) Equal(o Conflicts) bool {
	if len(cs) != len(o) {
		return false
	}
	used := make([]bool, len(o))
	for _, c := range cs {
		found := false
		for j, other := range o {
			if !used[j] && c.Equal(other) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Sort orders conflicts by path, then type, then body encoding.
func (cs Conflicts) Sort() {
	slices.SortStableFunc(cs, func(a, b Conflict) int {
		if c := a.Path.Compare(b.Path); c != 0 {
			return c
		}
		if a.Type != b.Type {
			return int(a.Type) - int(b.Type)
		}
		return strings.Compare(encodeBody(a.Body), encodeBody(b.Body))
	})
}

// MergeError is returned when a merge produced at least one conflict.
// It carries every conflict found anywhere in the tree.
type MergeError struct {
	Conflicts Conflicts
}

func (e *MergeError) Error() string {
	if len(e.Conflicts) == 1 {
		return "merge conflict: " + e.Conflicts[0].String()
	}
	lines := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		lines[i] = "  " + c.String()
	}
	return fmt.Sprintf("%d merge conflicts:\n%s", len(e.Conflicts), strings.Join(lines, "\n"))
}

func (e *MergeError) Is(target error) bool {
	return target == ErrConflict
}

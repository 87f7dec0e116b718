// SPDX-License-Identifier: Apache-2.0

package jsonmerger

import (
	"fmt"
	"strings"

	"github.com/agext/levenshtein"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Comparator decides whether two list elements are the same logical entity.
//
// Match must be reflexive and symmetric for the duration of a merge.
// It need not be transitive: elements matched ambiguously are reported as
// [ConflictManualMerge] conflicts rather than paired arbitrarily.
//
// Implementations must be safe for concurrent use.
type Comparator interface {
	Match(a, b any) bool
}

// Identifier is implemented by comparators that can name an element.
// The name is used as the list element segment of conflict paths.
// An empty result falls back to the element's position.
type Identifier interface {
	Identify(elem any) string
}

// ComparatorFunc adapts a function to the [Comparator] interface.
type ComparatorFunc func(a, b any) bool

func (f ComparatorFunc) Match(a, b any) bool {
	return f(a, b)
}

// EqualComparator matches elements that are deeply equal. Repeated copies of
// a value pair up in order of occurrence.
// It is used for lists without a registered comparator.
type EqualComparator struct{}

func (EqualComparator) Match(a, b any) bool {
	return Equal(a, b)
}

// PrimaryKeyComparator matches mapping elements whose primary key fields are
// all present and equal. Elements missing any field never match.
type PrimaryKeyComparator struct {
	Fields []string
}

// PrimaryKey returns a [PrimaryKeyComparator] over fields.
func PrimaryKey(fields ...string) PrimaryKeyComparator {
	return PrimaryKeyComparator{Fields: fields}
}

func (c PrimaryKeyComparator) Match(a, b any) bool {
	am, ok := a.(map[string]any)
	if !ok {
		return false
	}
	bm, ok := b.(map[string]any)
	if !ok || len(c.Fields) == 0 {
		return false
	}
	for _, f := range c.Fields {
		av, ok := am[f]
		if !ok {
			return false
		}
		bv, ok := bm[f]
		if !ok || !Equal(av, bv) {
			return false
		}
	}
	return true
}

// Identify renders the key values. A single key renders as its bare value,
// composite keys as field=value pairs joined by commas.
func (c PrimaryKeyComparator) Identify(elem any) string {
	m, ok := elem.(map[string]any)
	if !ok {
		return ""
	}
	if len(c.Fields) == 1 {
		v, ok := m[c.Fields[0]]
		if !ok {
			return ""
		}
		return fmt.Sprint(v)
	}
	parts := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		v, ok := m[f]
		if !ok {
			return ""
		}
		parts = append(parts, fmt.Sprintf("%s=%v", f, v))
	}
	return strings.Join(parts, ",")
}

// DistanceComparator matches mapping elements whose string Field values are
// within MaxDistance edits of each other. It tolerates typo fixes, which is
// what keeps a corrected author name matched to its uncorrected ancestor.
type DistanceComparator struct {
	Field       string
	MaxDistance int
	// IgnoreCase folds case and surrounding space before measuring.
	IgnoreCase bool
}

func (c DistanceComparator) Match(a, b any) bool {
	as, ok := c.value(a)
	if !ok {
		return false
	}
	bs, ok := c.value(b)
	if !ok {
		return false
	}
	if as == bs {
		return true
	}
	return levenshtein.Distance(as, bs, nil) <= c.MaxDistance
}

func (c DistanceComparator) Identify(elem any) string {
	m, ok := elem.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m[c.Field].(string)
	return s
}

func (c DistanceComparator) value(elem any) (string, bool) {
	m, ok := elem.(map[string]any)
	if !ok {
		return "", false
	}
	s, ok := m[c.Field].(string)
	if !ok {
		return "", false
	}
	if c.IgnoreCase {
		s = strings.ToLower(strings.TrimSpace(s))
	}
	return s, true
}

// ExprComparator matches elements with a boolean expression over the two
// candidates, bound as a and b:
//
//	a.source == b.source && a.title == b.title
//
// Evaluation errors, such as field access on a scalar, count as no match.
type ExprComparator struct {
	source  string
	program *vm.Program
}

// NewExprComparator compiles expression into an [ExprComparator].
func NewExprComparator(expression string) (*ExprComparator, error) {
	env := map[string]any{
		"a": map[string]any{},
		"b": map[string]any{},
	}
	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile comparator expression %q: %w", expression, err)
	}
	return &ExprComparator{source: expression, program: program}, nil
}

func (c *ExprComparator) Match(a, b any) bool {
	out, err := expr.Run(c.program, map[string]any{"a": a, "b": b})
	if err != nil {
		return false
	}
	matched, _ := out.(bool)
	return matched
}

func (c *ExprComparator) String() string {
	return c.source
}

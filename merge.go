// SPDX-License-Identifier: Apache-2.0

// Package jsonmerger performs three-way merges of tree-structured records.
//
// A record is edited independently by an automated process (update) and by a
// human curator (head), both starting from a common ancestor (root). The
// merger applies every change it can reconcile and reports every change it
// cannot as a [Conflict]. Mappings are merged key by key; lists are merged by
// matching their elements on identity with a [Comparator], so insertions,
// deletions, reorderings and field edits of list elements are tracked
// independently of position.
//
// Trees are the values produced by decoding YAML, JSON or TOML into any:
// map[string]any, []any and scalars.
package jsonmerger

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// Sentinel errors for simple error checking with [errors.Is].
// For detailed error information, use [errors.As] with the typed errors.
var (
	// ErrConflict indicates the merge produced conflicts; see [MergeError].
	ErrConflict = errors.New("merge conflict")
	// ErrMarshal indicates a marshaling or unmarshaling operation failed.
	ErrMarshal = errors.New("marshal error")
	// ErrInvalidOptions indicates invalid merge options were provided.
	ErrInvalidOptions = errors.New("invalid options")
)

// Document names one of the three inputs of a merge.
type Document int

const (
	DocRoot Document = iota
	DocHead
	DocUpdate
)

func (d Document) String() string {
	switch d {
	case DocRoot:
		return "root"
	case DocHead:
		return "head"
	case DocUpdate:
		return "update"
	default:
		return fmt.Sprintf("Document(%d)", d)
	}
}

// MarshalError is returned when unmarshaling or marshaling a document fails.
type MarshalError struct {
	// Err is the underlying error returned by a marshaling function.
	Err error
	// Doc tells which document the error occurred in. It is meaningless
	// when Result is set.
	Doc Document
	// Result is set when encoding the merged tree failed.
	Result bool
}

func (e *MarshalError) Error() string {
	if e.Result {
		return fmt.Sprintf("cannot marshal merged document: %v", e.Err)
	}
	return fmt.Sprintf("cannot unmarshal %s document: %v", e.Doc, e.Err)
}

func (e *MarshalError) Unwrap() error {
	return e.Err
}

func (e *MarshalError) Is(target error) bool {
	return target == ErrMarshal
}

// Options configures merge behavior.
//
// The zero value is valid: every list is matched with [EqualComparator] and
// merged with [KeepUpdateAndHeadHeadFirst], and nothing is logged.
type Options struct {
	// Comparators maps the dotted path of a list field, such as
	// "authors.affiliations", to the comparator that identifies its elements.
	// List element positions do not appear in dotted paths.
	Comparators map[string]Comparator

	// ListStrategies maps the dotted path of a list field to the strategy
	// used for entries only one side added.
	ListStrategies map[string]ListStrategy

	// DefaultListStrategy applies to lists without an entry in ListStrategies.
	DefaultListStrategy ListStrategy

	// Logger receives debug output about list alignment and conflicts.
	// Nil disables logging.
	Logger *zap.Logger
}

// Merger performs three-way merges with the configured options.
//
// A Merger is immutable once created and safe for concurrent use; each call
// to [Merger.Merge] keeps its own state.
type Merger struct {
	opts   Options
	logger *zap.Logger
}

// NewMerger creates a new [Merger] with the given options.
// Every problem with the options is reported in a single error wrapping
// [ErrInvalidOptions].
func NewMerger(opts Options) (*Merger, error) {
	var errs *multierror.Error
	for path, cmp := range opts.Comparators {
		if !validDotted(path) {
			errs = multierror.Append(errs, fmt.Errorf("comparator path %q is malformed", path))
		}
		if cmp == nil {
			errs = multierror.Append(errs, fmt.Errorf("comparator for %q is nil", path))
		}
	}
	for path, strategy := range opts.ListStrategies {
		if !validDotted(path) {
			errs = multierror.Append(errs, fmt.Errorf("strategy path %q is malformed", path))
		}
		if !strategy.Valid() {
			errs = multierror.Append(errs, fmt.Errorf("strategy for %q: unknown %s", path, strategy))
		}
	}
	if !opts.DefaultListStrategy.Valid() {
		errs = multierror.Append(errs, fmt.Errorf("unknown default %s", opts.DefaultListStrategy))
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{opts: opts, logger: logger}, nil
}

// Options returns the merge options configured for this [Merger].
func (m *Merger) Options() Options {
	return m.opts
}

// Merge merges a root, head and update document. See [Merger.Merge] for details.
func Merge(opts Options, root, head, update any) (any, error) {
	m, err := NewMerger(opts)
	if err != nil {
		return nil, err
	}
	return m.Merge(root, head, update)
}

// MergeMarshal merges byte documents using provided unmarshal and marshal functions.
// See [Merger.MergeMarshal] for details.
func MergeMarshal(
	opts Options,
	unmarshal func([]byte, any) error,
	marshal func(any) ([]byte, error),
	root, head, update []byte,
) ([]byte, error) {
	m, err := NewMerger(opts)
	if err != nil {
		return nil, err
	}
	return m.MergeMarshal(unmarshal, marshal, root, head, update)
}

// Merge reconciles head and update against their common ancestor root.
//
// A value changed on one side only takes that side's value, unless the change
// turns a mapping or list into a value of another shape. A value changed
// identically on both sides takes the shared value. Mappings changed on both
// sides are merged key by key. Lists are always merged by element identity
// (see [ListStrategy] and [Comparator]), so the strategy also applies when
// only one side touched the list. Anything else changed on both sides is a
// conflict.
//
// The walk never stops early. If any conflict is found, Merge returns a nil
// tree and a [*MergeError] holding all of them, sorted by path. Otherwise it
// returns a newly allocated merged tree; the inputs are never modified.
//
// Example:
//
//	opts := Options{Comparators: map[string]Comparator{"titles": PrimaryKey("source")}}
//	root := map[string]any{"titles": []any{}}
//	head := map[string]any{"titles": []any{map[string]any{"source": "arXiv", "title": "T1"}}}
//	update := map[string]any{"titles": []any{map[string]any{"source": "publisher", "title": "T2"}}}
//	merged, _ := Merge(opts, root, head, update)
//	// merged: titles [T1, T2]
func (m *Merger) Merge(root, head, update any) (any, error) {
	merged, conflicts := m.merge(root, head, update)
	if len(conflicts) > 0 {
		return nil, &MergeError{Conflicts: conflicts}
	}
	return merged, nil
}

// merge returns the merged tree and the sorted conflicts. Where a conflict
// was found the tree holds head's value.
func (m *Merger) merge(root, head, update any) (any, Conflicts) {
	w := &walker{m: m}
	merged := present(w.mergeValue(root, head, update))
	w.conflicts.Sort()
	return merged, w.conflicts
}

// MergeMarshal merges byte documents using provided unmarshal and marshal functions.
//
// The three documents are unmarshaled, merged with [Merger.Merge], then the
// result is marshaled back to bytes. Works with any serialization format
// (YAML, JSON, TOML, etc.) via custom marshal functions.
//
// Example:
//
//	import "github.com/goccy/go-yaml"
//
//	opts := Options{Comparators: map[string]Comparator{"users": PrimaryKey("name")}}
//	root := []byte("users:\n  - name: alice\n    role: user")
//	head := []byte("users:\n  - name: alice\n    role: user\n    team: core")
//	update := []byte("users:\n  - name: alice\n    role: admin")
//	result, _ := MergeMarshal(opts, yaml.Unmarshal, yaml.Marshal, root, head, update)
func (m *Merger) MergeMarshal(
	unmarshal func([]byte, any) error,
	marshal func(any) ([]byte, error),
	root, head, update []byte,
) ([]byte, error) {
	var docs [3]any
	for i, raw := range [3][]byte{root, head, update} {
		if err := unmarshal(raw, &docs[i]); err != nil {
			return nil, &MarshalError{Err: err, Doc: Document(i)}
		}
	}

	merged, err := m.Merge(docs[DocRoot], docs[DocHead], docs[DocUpdate])
	if err != nil {
		return nil, err
	}

	out, err := marshal(merged)
	if err != nil {
		return nil, &MarshalError{Err: err, Result: true}
	}
	return out, nil
}

// UpdateMerger merges one fixed root/head/update triple and keeps the result.
type UpdateMerger struct {
	merger             *Merger
	root, head, update any
	merged             any
	conflicts          Conflicts
}

// NewUpdateMerger prepares a merge of head and update against root.
func NewUpdateMerger(root, head, update any, opts Options) (*UpdateMerger, error) {
	m, err := NewMerger(opts)
	if err != nil {
		return nil, err
	}
	return &UpdateMerger{merger: m, root: root, head: head, update: update}, nil
}

// Merge runs the merge. The result is available from
// [UpdateMerger.MergedRoot] even when the returned error is a [*MergeError]:
// it then holds head's value wherever a conflict was found. Merge may be
// called again after the caller changed the inputs it passed to
// [NewUpdateMerger], for example after resolving conflicts in head.
func (u *UpdateMerger) Merge() error {
	u.merged, u.conflicts = u.merger.merge(u.root, u.head, u.update)
	if len(u.conflicts) > 0 {
		return &MergeError{Conflicts: u.conflicts}
	}
	u.conflicts = nil
	return nil
}

// MergedRoot returns the tree of the last [UpdateMerger.Merge], tentative if
// that merge reported conflicts.
func (u *UpdateMerger) MergedRoot() any {
	return u.merged
}

// Conflicts returns the conflicts of the last failed [UpdateMerger.Merge].
func (u *UpdateMerger) Conflicts() Conflicts {
	return u.conflicts
}

// walker holds the state of one merge: the path of the value being merged
// and the conflicts found so far.
type walker struct {
	m         *Merger
	path      Path
	conflicts Conflicts
}

func (w *walker) push(seg Segment) {
	w.path = append(w.path, seg)
}

func (w *walker) pop() {
	if len(w.path) == 0 {
		panic("unbalanced jsonmerger walker pop")
	}
	w.path = w.path[:len(w.path)-1]
}

func (w *walker) conflict(t ConflictType, body any) {
	c := Conflict{Type: t, Path: w.path.Clone(), Body: body}
	w.m.logger.Debug("conflict",
		zap.Stringer("type", t),
		zap.Stringer("path", c.Path))
	w.conflicts = append(w.conflicts, c)
}

// mergeValue merges one location of the three trees. Any operand may be
// absent; the result is absent when the merged location holds no value.
func (w *walker) mergeValue(root, head, update any) any {
	if Equal(head, update) {
		return clone(head)
	}

	// Containers are always walked, so list strategies apply even when only
	// one side touched a list.
	hk, uk := KindOf(head), KindOf(update)
	switch {
	case hk == KindMap && uk == KindMap:
		r, _ := root.(map[string]any)
		return w.mergeMaps(r, head.(map[string]any), update.(map[string]any))
	case hk == KindList && uk == KindList:
		r, _ := root.([]any)
		return w.mergeLists(r, head.([]any), update.([]any))
	}

	switch {
	case Equal(root, head):
		if reshaped(root, update) {
			w.conflict(ConflictTypeMismatch, triple(root, head, update))
			return clone(head)
		}
		return clone(update)
	case Equal(root, update):
		if reshaped(root, head) {
			w.conflict(ConflictTypeMismatch, triple(root, head, update))
		}
		return clone(head)
	}

	// Both sides changed the value, each in its own way.
	switch {
	case hk == kindAbsent || uk == kindAbsent:
		w.conflict(ConflictRemoveField, triple(root, head, update))
	case hk != uk && (hk.container() || uk.container()):
		w.conflict(ConflictTypeMismatch, triple(root, head, update))
	default:
		w.conflict(ConflictSetField, triple(root, head, update))
	}
	return clone(head)
}

// reshaped reports whether a one-sided change turned a value into one of
// another shape. Nulls and absent values take any shape.
func reshaped(from, to any) bool {
	fk, tk := KindOf(from), KindOf(to)
	if fk == KindNull || tk == KindNull || fk == kindAbsent || tk == kindAbsent {
		return false
	}
	return fk != tk && (fk.container() || tk.container())
}

func triple(root, head, update any) []any {
	return []any{clone(present(root)), clone(present(head)), clone(present(update))}
}

func (w *walker) mergeMaps(root, head, update map[string]any) map[string]any {
	keys := make(map[string]struct{}, len(head)+len(update))
	for _, m := range []map[string]any{root, head, update} {
		for k := range m {
			keys[k] = struct{}{}
		}
	}

	result := make(map[string]any, len(keys))
	for k := range keys {
		w.push(Field(k))
		v := w.mergeValue(lookup(root, k), lookup(head, k), lookup(update, k))
		if !isAbsent(v) {
			result[k] = v
		}
		w.pop()
	}
	return result
}

func (w *walker) mergeLists(root, head, update []any) []any {
	dotted := w.path.Dotted()
	cmp, ok := w.m.opts.Comparators[dotted]
	if !ok {
		cmp = EqualComparator{}
	}
	strategy, ok := w.m.opts.ListStrategies[dotted]
	if !ok {
		strategy = w.m.opts.DefaultListStrategy
	}
	u := &unifier{
		w:        w,
		cmp:      cmp,
		strategy: strategy,
		root:     root,
		head:     head,
		update:   update,
	}
	return u.unify()
}

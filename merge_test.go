// SPDX-License-Identifier: Apache-2.0

package jsonmerger_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	jsonmerger "github.com/rikirenz/json-merger"
)

// parse decodes a YAML snippet into a tree.
func parse(t *testing.T, src string) any {
	t.Helper()
	var v any
	if err := yaml.Unmarshal([]byte(src), &v); err != nil {
		t.Fatal(err)
	}
	return v
}

func mustMerge(t *testing.T, opts jsonmerger.Options, root, head, update any) any {
	t.Helper()
	merged, err := jsonmerger.Merge(opts, root, head, update)
	if err != nil {
		t.Fatal(err)
	}
	return merged
}

func requireConflicts(t *testing.T, err error) jsonmerger.Conflicts {
	t.Helper()
	if !errors.Is(err, jsonmerger.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	var me *jsonmerger.MergeError
	if !errors.As(err, &me) {
		t.Fatalf("expected *MergeError, got %T", err)
	}
	return me.Conflicts
}

func assertTree(t *testing.T, want, got any) {
	t.Helper()
	if !jsonmerger.Equal(want, got) {
		t.Fatalf("tree mismatch (-want +got):\n%s", cmp.Diff(want, got))
	}
}

func TestIdentityMerge(t *testing.T) {
	doc := parse(t, `
title: A study
authors:
  - full_name: Smith, John
`)
	merged := mustMerge(t, jsonmerger.Options{}, doc, doc, doc)
	assertTree(t, doc, merged)
}

func TestIdempotent(t *testing.T) {
	root := parse(t, `{title: old, tags: [a, b]}`)
	changed := parse(t, `{title: new, tags: [b, c]}`)

	merged := mustMerge(t, jsonmerger.Options{}, root, changed, changed)
	assertTree(t, changed, merged)
}

func TestOneSidedChanges(t *testing.T) {
	root := parse(t, `{title: old, year: 2019}`)
	edited := parse(t, `{title: new, year: 2019}`)

	t.Run("head", func(t *testing.T) {
		assertTree(t, edited, mustMerge(t, jsonmerger.Options{}, root, edited, root))
	})
	t.Run("update", func(t *testing.T) {
		assertTree(t, edited, mustMerge(t, jsonmerger.Options{}, root, root, edited))
	})
}

func TestDisjointEdits(t *testing.T) {
	root := parse(t, `{title: A stduy, year: 2019, journal: {name: PRL, volume: 1}}`)
	head := parse(t, `{title: A study, year: 2019, journal: {name: PRL, volume: 1}, curated: true}`)
	update := parse(t, `{title: A stduy, year: 2020, journal: {name: PRL, volume: 2}}`)

	merged := mustMerge(t, jsonmerger.Options{}, root, head, update)
	assertTree(t, parse(t, `{title: A study, year: 2020, journal: {name: PRL, volume: 2}, curated: true}`), merged)
}

func TestKeyRemoval(t *testing.T) {
	root := parse(t, `{a: 1, b: 2, c: 3}`)
	head := parse(t, `{a: 1, c: 3}`)
	update := parse(t, `{a: 1, b: 2}`)

	merged := mustMerge(t, jsonmerger.Options{}, root, head, update)
	assertTree(t, parse(t, `{a: 1}`), merged)
}

func TestNullIsNotAbsent(t *testing.T) {
	root := parse(t, `{a: 1, b: 2}`)
	head := parse(t, `{a: null, b: 2}`)
	update := parse(t, `{a: 1}`)

	merged := mustMerge(t, jsonmerger.Options{}, root, head, update)
	m := merged.(map[string]any)
	v, ok := m["a"]
	if !ok || v != nil {
		t.Fatalf("expected explicit null for a, got %v (present=%v)", v, ok)
	}
	if _, ok := m["b"]; ok {
		t.Fatalf("expected b to be removed, got %v", m["b"])
	}
}

func TestSetFieldConflict(t *testing.T) {
	root := parse(t, `{title: A stduy}`)
	head := parse(t, `{title: A study}`)
	update := parse(t, `{title: A Study}`)

	_, err := jsonmerger.Merge(jsonmerger.Options{}, root, head, update)
	conflicts := requireConflicts(t, err)

	want := jsonmerger.Conflicts{{
		Type: jsonmerger.ConflictSetField,
		Path: jsonmerger.Path{jsonmerger.Field("title")},
		Body: []any{"A stduy", "A study", "A Study"},
	}}
	if !conflicts.Equal(want) {
		t.Fatalf("expected %v, got %v", want, conflicts)
	}
}

func TestRemoveFieldConflict(t *testing.T) {
	root := parse(t, `{doi: 10.1/old}`)
	head := parse(t, `{}`)
	update := parse(t, `{doi: 10.1/new}`)

	_, err := jsonmerger.Merge(jsonmerger.Options{}, root, head, update)
	conflicts := requireConflicts(t, err)
	if len(conflicts) != 1 || conflicts[0].Type != jsonmerger.ConflictRemoveField {
		t.Fatalf("expected one REMOVE_FIELD conflict, got %v", conflicts)
	}
	assertTree(t, []any{"10.1/old", nil, "10.1/new"}, conflicts[0].Body)
}

func TestTypeMismatchConflict(t *testing.T) {
	root := parse(t, `{keywords: physics}`)
	head := parse(t, `{keywords: [physics, hep]}`)
	update := parse(t, `{keywords: {value: physics}}`)

	_, err := jsonmerger.Merge(jsonmerger.Options{}, root, head, update)
	conflicts := requireConflicts(t, err)
	if len(conflicts) != 1 || conflicts[0].Type != jsonmerger.ConflictTypeMismatch {
		t.Fatalf("expected one TYPE_MISMATCH conflict, got %v", conflicts)
	}
	if got := conflicts[0].Path.String(); got != "keywords" {
		t.Fatalf("expected path keywords, got %s", got)
	}
}

func TestScalarKindsConflictAsSetField(t *testing.T) {
	root := parse(t, `{n: 1}`)
	head := parse(t, `{n: "2"}`)
	update := parse(t, `{n: 3}`)

	_, err := jsonmerger.Merge(jsonmerger.Options{}, root, head, update)
	conflicts := requireConflicts(t, err)
	if len(conflicts) != 1 || conflicts[0].Type != jsonmerger.ConflictSetField {
		t.Fatalf("expected one SET_FIELD conflict, got %v", conflicts)
	}
}

func TestConflictsAreExhaustiveAndSorted(t *testing.T) {
	root := parse(t, `{b: 1, a: 1, c: {d: 1}}`)
	head := parse(t, `{b: 2, a: 2, c: {d: 2}}`)
	update := parse(t, `{b: 3, a: 3, c: {d: 3}}`)

	_, err := jsonmerger.Merge(jsonmerger.Options{}, root, head, update)
	conflicts := requireConflicts(t, err)

	var paths []string
	for _, c := range conflicts {
		paths = append(paths, c.Path.String())
	}
	if diff := cmp.Diff([]string{"a", "b", "c.d"}, paths); diff != "" {
		t.Fatalf("conflict paths (-want +got):\n%s", diff)
	}
}

func TestNumbersCompareByValue(t *testing.T) {
	var root any
	if err := json.Unmarshal([]byte(`{"year": 2019, "pages": 10}`), &root); err != nil {
		t.Fatal(err)
	}
	// YAML decodes integers as uint64, JSON as float64.
	head := parse(t, `{year: 2019, pages: 12}`)
	update := parse(t, `{year: 2020, pages: 10}`)

	merged := mustMerge(t, jsonmerger.Options{}, root, head, update)
	assertTree(t, parse(t, `{year: 2020, pages: 12}`), merged)
}

func TestInputsAreNotModified(t *testing.T) {
	src := `
authors:
  - full_name: Smith, John
    affiliations: [{value: CERN}]
`
	root, head, update := parse(t, src), parse(t, src), parse(t, src)
	head.(map[string]any)["curated"] = true
	update.(map[string]any)["authors"] = append(update.(map[string]any)["authors"].([]any),
		map[string]any{"full_name": "Doe, Jane"})

	merged := mustMerge(t, recordOptions, root, head, update)

	// Mutating the result must not reach any input.
	authors := merged.(map[string]any)["authors"].([]any)
	authors[0].(map[string]any)["full_name"] = "changed"

	for name, doc := range map[string]any{"root": root, "head": head} {
		first := doc.(map[string]any)["authors"].([]any)[0].(map[string]any)
		if first["full_name"] != "Smith, John" {
			t.Fatalf("%s was modified: %v", name, first)
		}
	}
	if n := len(update.(map[string]any)["authors"].([]any)); n != 2 {
		t.Fatalf("update was modified: %d authors", n)
	}
}

func TestMatchedEntriesAreNotDuplicated(t *testing.T) {
	root := parse(t, `{titles: [{source: arXiv, title: T}]}`)
	head := parse(t, `{titles: [{source: arXiv, title: T, lang: en}]}`)
	update := parse(t, `{titles: [{source: arXiv, title: T, subtitle: S}]}`)

	merged := mustMerge(t, recordOptions, root, head, update)
	assertTree(t, parse(t, `{titles: [{source: arXiv, title: T, lang: en, subtitle: S}]}`), merged)
}

func TestListStrategies(t *testing.T) {
	root := parse(t, `[a, b]`)
	head := parse(t, `[a, b, h]`)
	update := parse(t, `[u, a, b]`)

	tests := []struct {
		strategy jsonmerger.ListStrategy
		expected string
	}{
		{jsonmerger.KeepUpdateAndHeadHeadFirst, `[a, b, h, u]`},
		{jsonmerger.KeepUpdateAndHeadUpdateFirst, `[a, b, u, h]`},
		{jsonmerger.KeepOnlyHeadEntities, `[a, b, h]`},
		{jsonmerger.KeepOnlyUpdateEntities, `[a, b, u]`},
		{jsonmerger.KeepUpdateEntitiesConflictOnHeadDelete, `[a, b, u]`},
		{jsonmerger.KeepUpdateAndHeadConflictOnHeadDelete, `[a, b, h, u]`},
	}

	for _, tt := range tests {
		t.Run(tt.strategy.String(), func(t *testing.T) {
			opts := jsonmerger.Options{DefaultListStrategy: tt.strategy}
			merged := mustMerge(t, opts, root, head, update)
			assertTree(t, parse(t, tt.expected), merged)
		})
	}
}

func TestListStrategyPerPath(t *testing.T) {
	root := parse(t, `{keep: [a], drop: [a]}`)
	head := parse(t, `{keep: [a, h], drop: [a, h]}`)
	update := parse(t, `{keep: [a, u], drop: [a, u]}`)

	opts := jsonmerger.Options{
		ListStrategies: map[string]jsonmerger.ListStrategy{
			"drop": jsonmerger.KeepOnlyHeadEntities,
		},
	}
	merged := mustMerge(t, opts, root, head, update)
	assertTree(t, parse(t, `{keep: [a, h, u], drop: [a, h]}`), merged)
}

func TestHeadDeleteOfUntouchedEntry(t *testing.T) {
	root := parse(t, `[a, b]`)
	head := parse(t, `[a]`)
	update := parse(t, `[a, b, c]`)

	t.Run("accepted", func(t *testing.T) {
		merged := mustMerge(t, jsonmerger.Options{}, root, head, update)
		assertTree(t, parse(t, `[a, c]`), merged)
	})

	t.Run("conflict on head delete", func(t *testing.T) {
		opts := jsonmerger.Options{DefaultListStrategy: jsonmerger.KeepUpdateAndHeadConflictOnHeadDelete}
		_, err := jsonmerger.Merge(opts, root, head, update)
		conflicts := requireConflicts(t, err)
		want := jsonmerger.Conflicts{{
			Type: jsonmerger.ConflictAddBackToHead,
			Path: jsonmerger.Path{jsonmerger.Elem("root:1")},
			Body: "b",
		}}
		if !conflicts.Equal(want) {
			t.Fatalf("expected %v, got %v", want, conflicts)
		}
	})
}

func TestListStrategiesApplyToOneSidedChanges(t *testing.T) {
	tests := []struct {
		name               string
		strategy           jsonmerger.ListStrategy
		root, head, update string
		expected           string
	}{
		{"keep head drops update addition", jsonmerger.KeepOnlyHeadEntities, `[a]`, `[a]`, `[a, b]`, `[a]`},
		{"keep update drops head addition", jsonmerger.KeepOnlyUpdateEntities, `[a]`, `[a, h]`, `[a]`, `[a]`},
		{"keep both takes update addition", jsonmerger.KeepUpdateAndHeadHeadFirst, `[a]`, `[a]`, `[a, b]`, `[a, b]`},
		{"keep both takes head deletion", jsonmerger.KeepUpdateAndHeadHeadFirst, `[a, b]`, `[a]`, `[a, b]`, `[a]`},
		{"update addition follows matched entries", jsonmerger.KeepUpdateAndHeadHeadFirst, `[a]`, `[a]`, `[u, a]`, `[a, u]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := jsonmerger.Options{ListStrategies: map[string]jsonmerger.ListStrategy{"tags": tt.strategy}}
			wrap := func(src string) any { return map[string]any{"tags": parse(t, src)} }
			merged := mustMerge(t, opts, wrap(tt.root), wrap(tt.head), wrap(tt.update))
			assertTree(t, wrap(tt.expected), merged)
		})
	}
}

func TestConflictOnHeadDeleteWithUntouchedUpdate(t *testing.T) {
	root := parse(t, `{titles: [a, b]}`)
	head := parse(t, `{titles: [a]}`)

	for _, strategy := range []jsonmerger.ListStrategy{
		jsonmerger.KeepUpdateEntitiesConflictOnHeadDelete,
		jsonmerger.KeepUpdateAndHeadConflictOnHeadDelete,
	} {
		t.Run(strategy.String(), func(t *testing.T) {
			opts := jsonmerger.Options{DefaultListStrategy: strategy}
			_, err := jsonmerger.Merge(opts, root, head, root)
			conflicts := requireConflicts(t, err)
			want := jsonmerger.Conflicts{{
				Type: jsonmerger.ConflictAddBackToHead,
				Path: jsonmerger.Path{jsonmerger.Field("titles"), jsonmerger.Elem("root:1")},
				Body: "b",
			}}
			if !conflicts.Equal(want) {
				t.Fatalf("expected %v, got %v", want, conflicts)
			}
		})
	}
}

func TestDuplicateValuesPairByOccurrence(t *testing.T) {
	tests := []struct {
		name               string
		root, head, update string
		expected           string
	}{
		{"additions on both sides", `[x, x]`, `[x, x, h]`, `[x, x, u]`, `[x, x, h, u]`},
		{"one copy deleted", `[x, x]`, `[x]`, `[x, x, u]`, `[x, u]`},
		{"copy added", `[x, y]`, `[x, y, x]`, `[x, y]`, `[x, y, x]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := mustMerge(t, jsonmerger.Options{}, parse(t, tt.root), parse(t, tt.head), parse(t, tt.update))
			assertTree(t, parse(t, tt.expected), merged)
		})
	}
}

func TestOneSidedShapeChange(t *testing.T) {
	root := parse(t, `{journal: {name: PRL}, year: 2019}`)

	t.Run("mapping to scalar", func(t *testing.T) {
		update := parse(t, `{journal: PRL, year: 2019}`)
		m, err := jsonmerger.NewUpdateMerger(root, root, update, jsonmerger.Options{})
		if err != nil {
			t.Fatal(err)
		}
		conflicts := requireConflicts(t, m.Merge())
		want := jsonmerger.Conflicts{{
			Type: jsonmerger.ConflictTypeMismatch,
			Path: jsonmerger.Path{jsonmerger.Field("journal")},
			Body: []any{map[string]any{"name": "PRL"}, map[string]any{"name": "PRL"}, "PRL"},
		}}
		if !conflicts.Equal(want) {
			t.Fatalf("expected %v, got %v", want, conflicts)
		}
		assertTree(t, root, m.MergedRoot())
	})

	t.Run("list to mapping on head", func(t *testing.T) {
		root := parse(t, `{ids: [1, 2]}`)
		head := parse(t, `{ids: {arxiv: 1}}`)
		_, err := jsonmerger.Merge(jsonmerger.Options{}, root, head, root)
		conflicts := requireConflicts(t, err)
		if len(conflicts) != 1 || conflicts[0].Type != jsonmerger.ConflictTypeMismatch {
			t.Fatalf("expected one TYPE_MISMATCH conflict, got %v", conflicts)
		}
	})

	t.Run("null takes any shape", func(t *testing.T) {
		root := parse(t, `{journal: null}`)
		update := parse(t, `{journal: {name: PRL}}`)
		assertTree(t, update, mustMerge(t, jsonmerger.Options{}, root, root, update))
	})
}

func TestHeadDeleteOfEditedEntry(t *testing.T) {
	root := parse(t, `{titles: [{source: arXiv, title: T}]}`)
	head := parse(t, `{titles: []}`)
	update := parse(t, `{titles: [{source: arXiv, title: T2}]}`)

	_, err := jsonmerger.Merge(recordOptions, root, head, update)
	conflicts := requireConflicts(t, err)
	want := jsonmerger.Conflicts{{
		Type: jsonmerger.ConflictAddBackToHead,
		Path: jsonmerger.Path{jsonmerger.Field("titles"), jsonmerger.Elem("arXiv")},
		Body: map[string]any{"source": "arXiv", "title": "T2"},
	}}
	if !conflicts.Equal(want) {
		t.Fatalf("expected %v, got %v", want, conflicts)
	}
}

func TestTwinInsertions(t *testing.T) {
	root := parse(t, `{titles: []}`)
	head := parse(t, `{titles: [{source: arXiv, title: T}]}`)

	t.Run("equal", func(t *testing.T) {
		head := parse(t, `{titles: [{source: curator, title: C}, {source: arXiv, title: T}]}`)
		update := parse(t, `{titles: [{source: arXiv, title: T}, {source: publisher, title: P}]}`)
		merged := mustMerge(t, recordOptions, root, head, update)
		assertTree(t, parse(t, `{titles: [{source: arXiv, title: T}, {source: curator, title: C}, {source: publisher, title: P}]}`), merged)
	})

	t.Run("different", func(t *testing.T) {
		update := parse(t, `{titles: [{source: arXiv, title: U}]}`)
		_, err := jsonmerger.Merge(recordOptions, root, head, update)
		conflicts := requireConflicts(t, err)
		if len(conflicts) != 1 || conflicts[0].Type != jsonmerger.ConflictManualMerge {
			t.Fatalf("expected one MANUAL_MERGE conflict, got %v", conflicts)
		}
		if got := conflicts[0].Path.String(); got != "titles[arXiv]" {
			t.Fatalf("expected path titles[arXiv], got %s", got)
		}
	})
}

func TestAmbiguousMatchAgainstRoot(t *testing.T) {
	root := parse(t, `[{n: "Smith, John"}, {n: "Smith, Jon"}]`)
	head := parse(t, `[{n: "Smith, John"}, {n: "Smith, Jon"}, {n: Brown}]`)
	update := parse(t, `[{n: "Smith, Joh"}]`)

	opts := jsonmerger.Options{
		Comparators: map[string]jsonmerger.Comparator{
			"": jsonmerger.DistanceComparator{Field: "n", MaxDistance: 1},
		},
	}
	// An empty dotted path cannot be registered, so use a nested list.
	_, err := jsonmerger.NewMerger(opts)
	if !errors.Is(err, jsonmerger.ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions for empty path, got %v", err)
	}

	wrap := func(v any) any { return map[string]any{"people": v} }
	opts.Comparators = map[string]jsonmerger.Comparator{
		"people": jsonmerger.DistanceComparator{Field: "n", MaxDistance: 1},
	}
	_, err = jsonmerger.Merge(opts, wrap(root), wrap(head), wrap(update))
	conflicts := requireConflicts(t, err)
	if len(conflicts) != 1 || conflicts[0].Type != jsonmerger.ConflictManualMerge {
		t.Fatalf("expected one MANUAL_MERGE conflict, got %v", conflicts)
	}
	if n := len(conflicts[0].Body.([]any)); n != 5 {
		t.Fatalf("expected all 5 candidates in body, got %d", n)
	}
}

func TestReorderByOneSide(t *testing.T) {
	root := parse(t, `[a, b, c]`)
	head := parse(t, `[a, b, c, h]`)
	update := parse(t, `[c, a, b]`)

	merged := mustMerge(t, jsonmerger.Options{}, root, head, update)
	assertTree(t, parse(t, `[c, a, b, h]`), merged)
}

func TestReorderKeepsDeletedSideNeighbours(t *testing.T) {
	// head reverses the list while update drops b.
	root := parse(t, `[a, b, c, d]`)
	head := parse(t, `[d, c, b, a]`)
	update := parse(t, `[a, c, d]`)

	merged := mustMerge(t, jsonmerger.Options{}, root, head, update)
	assertTree(t, parse(t, `[d, c, a]`), merged)
}

func TestReorderConflict(t *testing.T) {
	root := parse(t, `[a, b, c]`)
	head := parse(t, `[b, a, c]`)
	update := parse(t, `[a, c, b]`)

	_, err := jsonmerger.Merge(jsonmerger.Options{}, root, head, update)
	conflicts := requireConflicts(t, err)
	want := jsonmerger.Conflicts{{
		Type: jsonmerger.ConflictReorder,
		Path: jsonmerger.Path{},
		Body: []any{
			[]any{"root:1", "root:0", "root:2"},
			[]any{"root:0", "root:2", "root:1"},
		},
	}}
	if !conflicts.Equal(want) {
		t.Fatalf("expected %v, got %v", want, conflicts)
	}
}

func TestSameReorderOnBothSides(t *testing.T) {
	root := parse(t, `[a, b, c]`)
	head := parse(t, `[c, b, a, h]`)
	update := parse(t, `[c, b, a]`)

	merged := mustMerge(t, jsonmerger.Options{}, root, head, update)
	assertTree(t, parse(t, `[c, b, a, h]`), merged)
}

func TestNewMergerValidation(t *testing.T) {
	opts := jsonmerger.Options{
		Comparators: map[string]jsonmerger.Comparator{
			"a..b":    jsonmerger.EqualComparator{},
			"authors": nil,
		},
		ListStrategies: map[string]jsonmerger.ListStrategy{
			"titles": jsonmerger.ListStrategy(99),
		},
		DefaultListStrategy: jsonmerger.ListStrategy(-1),
	}
	_, err := jsonmerger.NewMerger(opts)
	if !errors.Is(err, jsonmerger.ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions, got %v", err)
	}
	for _, fragment := range []string{`"a..b"`, `"authors" is nil`, `"titles"`, "default"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("expected error to mention %s, got: %v", fragment, err)
		}
	}
}

func TestMergeMarshal_InvalidDocument(t *testing.T) {
	valid := []byte(`a: 1`)
	invalid := []byte("a: [unclosed")

	_, err := jsonmerger.MergeMarshal(jsonmerger.Options{}, yaml.Unmarshal, yaml.Marshal, valid, invalid, valid)
	if !errors.Is(err, jsonmerger.ErrMarshal) {
		t.Fatalf("expected ErrMarshal, got %v", err)
	}
	var me *jsonmerger.MarshalError
	if !errors.As(err, &me) {
		t.Fatalf("expected *MarshalError, got %T", err)
	}
	if me.Doc != jsonmerger.DocHead || me.Result {
		t.Fatalf("expected head document error, got %+v", me)
	}
}

func TestMergeMarshal_JSON(t *testing.T) {
	root := []byte(`{"a": 1, "b": [1, 2]}`)
	head := []byte(`{"a": 2, "b": [1, 2]}`)
	update := []byte(`{"a": 1, "b": [1, 2, 3]}`)

	out, err := jsonmerger.MergeMarshal(jsonmerger.Options{}, json.Unmarshal, json.Marshal, root, head, update)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"a":2,"b":[1,2,3]}` {
		t.Fatalf("unexpected result: %s", out)
	}
}

func TestUpdateMerger_RetryAfterResolving(t *testing.T) {
	root := map[string]any{"title": "old"}
	head := map[string]any{"title": "head"}
	update := map[string]any{"title": "update"}

	m, err := jsonmerger.NewUpdateMerger(root, head, update, jsonmerger.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Merge(); !errors.Is(err, jsonmerger.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(m.Conflicts()) != 1 {
		t.Fatalf("expected 1 conflict, got %v", m.Conflicts())
	}
	// head's value stands where the conflict was found
	assertTree(t, map[string]any{"title": "head"}, m.MergedRoot())

	head["title"] = "update"
	if err := m.Merge(); err != nil {
		t.Fatal(err)
	}
	if len(m.Conflicts()) != 0 {
		t.Fatalf("expected conflicts to be cleared, got %v", m.Conflicts())
	}
	assertTree(t, map[string]any{"title": "update"}, m.MergedRoot())
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	opts := recordOptions
	opts.Logger = zap.New(core)

	s := loadScenario(t, "author_typo_conflict.yaml")
	_, err := jsonmerger.Merge(opts, s.Root, s.Head, s.Update)
	requireConflicts(t, err)

	if n := logs.FilterMessage("aligned list").Len(); n != 1 {
		t.Fatalf("expected 1 alignment log entry, got %d", n)
	}
	entries := logs.FilterMessage("conflict").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 conflict log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["type"]; got != "SET_FIELD" {
		t.Fatalf("expected type SET_FIELD, got %v", got)
	}
}

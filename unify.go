// SPDX-License-Identifier: Apache-2.0

package jsonmerger

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ListStrategy selects which list entries that exist on only one side (added
// by head or by update, absent from root) are kept, and in what order.
//
// A strategy never affects entries matched across versions; those are merged
// field by field.
type ListStrategy int

const (
	// KeepUpdateAndHeadHeadFirst keeps entries added by either side,
	// head's additions before update's. This is the default.
	KeepUpdateAndHeadHeadFirst ListStrategy = iota
	// KeepUpdateAndHeadUpdateFirst keeps entries added by either side,
	// update's additions before head's.
	KeepUpdateAndHeadUpdateFirst
	// KeepOnlyHeadEntities drops entries added only by update.
	KeepOnlyHeadEntities
	// KeepOnlyUpdateEntities drops entries added only by head.
	KeepOnlyUpdateEntities
	// KeepUpdateEntitiesConflictOnHeadDelete behaves like
	// [KeepOnlyUpdateEntities], and reports [ConflictAddBackToHead] for every
	// entry head deleted that update still carries, edited or not.
	KeepUpdateEntitiesConflictOnHeadDelete
	// KeepUpdateAndHeadConflictOnHeadDelete behaves like
	// [KeepUpdateAndHeadHeadFirst], with the head-delete rule of
	// [KeepUpdateEntitiesConflictOnHeadDelete].
	KeepUpdateAndHeadConflictOnHeadDelete
)

var strategyNames = map[ListStrategy]string{
	KeepUpdateAndHeadHeadFirst:             "keep-both-head-first",
	KeepUpdateAndHeadUpdateFirst:           "keep-both-update-first",
	KeepOnlyHeadEntities:                   "keep-head",
	KeepOnlyUpdateEntities:                 "keep-update",
	KeepUpdateEntitiesConflictOnHeadDelete: "keep-update-conflict-on-head-delete",
	KeepUpdateAndHeadConflictOnHeadDelete:  "keep-both-conflict-on-head-delete",
}

func (s ListStrategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ListStrategy(%d)", s)
}

// Valid reports whether s is one of the defined strategies.
func (s ListStrategy) Valid() bool {
	_, ok := strategyNames[s]
	return ok
}

// ParseListStrategy converts the text form of a strategy, as returned by
// [ListStrategy.String], back into a [ListStrategy].
func ParseListStrategy(name string) (ListStrategy, error) {
	s, ok := lo.FindKey(strategyNames, name)
	if !ok {
		return 0, fmt.Errorf("%w: unknown list strategy %q (valid: %v)",
			ErrInvalidOptions, name, ListStrategyNames())
	}
	return s, nil
}

// ListStrategyNames returns the text forms of all strategies in declaration order.
func ListStrategyNames() []string {
	names := make([]string, 0, len(strategyNames))
	for s := KeepUpdateAndHeadHeadFirst; s <= KeepUpdateAndHeadConflictOnHeadDelete; s++ {
		names = append(names, s.String())
	}
	return names
}

func (s ListStrategy) keepHeadAdditions() bool {
	return s != KeepOnlyUpdateEntities && s != KeepUpdateEntitiesConflictOnHeadDelete
}

func (s ListStrategy) keepUpdateAdditions() bool {
	return s != KeepOnlyHeadEntities
}

func (s ListStrategy) conflictOnHeadDelete() bool {
	return s == KeepUpdateEntitiesConflictOnHeadDelete || s == KeepUpdateAndHeadConflictOnHeadDelete
}

// entity is a connected group of mutually matching elements across the three
// lists. Indexes are ascending.
type entity struct {
	root, head, update []int
}

func (e *entity) ambiguous() bool {
	return len(e.root) > 1 || len(e.head) > 1 || len(e.update) > 1
}

// placed is an output element with the positions it came from (-1 if none).
type placed struct {
	value                       any
	id                          string
	rootIdx, headIdx, updateIdx int
}

// unifier merges one root/head/update list triple.
type unifier struct {
	w                  *walker
	cmp                Comparator
	strategy           ListStrategy
	root, head, update []any
}

func (u *unifier) unify() []any {
	entities := u.align()
	u.w.m.logger.Debug("aligned list",
		zap.Stringer("path", u.w.path),
		zap.Int("root", len(u.root)),
		zap.Int("head", len(u.head)),
		zap.Int("update", len(u.update)),
		zap.Int("entities", len(entities)),
		zap.Stringer("strategy", u.strategy))

	var anchored, twins, headOnly, updateOnly []placed
	for _, e := range entities {
		id := u.identity(e)
		hasRoot, hasHead, hasUpdate := len(e.root) > 0, len(e.head) > 0, len(e.update) > 0

		if e.ambiguous() {
			u.w.push(Elem(id))
			u.w.conflict(ConflictManualMerge, u.candidates(e))
			u.w.pop()
			for _, hi := range e.head {
				p := placed{value: clone(u.head[hi]), id: id, rootIdx: -1, headIdx: hi, updateIdx: -1}
				if hasRoot {
					p.rootIdx = e.root[0]
					anchored = append(anchored, p)
				} else {
					twins = append(twins, p)
				}
			}
			continue
		}

		switch {
		case hasRoot && hasHead && hasUpdate:
			r, h, up := e.root[0], e.head[0], e.update[0]
			u.w.push(Elem(id))
			v := u.w.mergeValue(u.root[r], u.head[h], u.update[up])
			u.w.pop()
			anchored = append(anchored, placed{value: v, id: id, rootIdx: r, headIdx: h, updateIdx: up})

		case hasRoot && hasHead:
			// deleted by update
			r, h := e.root[0], e.head[0]
			if Equal(u.root[r], u.head[h]) {
				continue
			}
			u.w.push(Elem(id))
			u.w.conflict(ConflictDeleteEdited, []any{clone(u.root[r]), clone(u.head[h])})
			u.w.pop()
			anchored = append(anchored, placed{value: clone(u.head[h]), id: id, rootIdx: r, headIdx: h, updateIdx: -1})

		case hasRoot && hasUpdate:
			// deleted by head
			r, up := e.root[0], e.update[0]
			if Equal(u.root[r], u.update[up]) && !u.strategy.conflictOnHeadDelete() {
				continue
			}
			u.w.push(Elem(id))
			u.w.conflict(ConflictAddBackToHead, clone(u.update[up]))
			u.w.pop()

		case hasRoot:
			// deleted by both

		case hasHead && hasUpdate:
			h, up := e.head[0], e.update[0]
			if !Equal(u.head[h], u.update[up]) {
				u.w.push(Elem(id))
				u.w.conflict(ConflictManualMerge, []any{clone(u.head[h]), clone(u.update[up])})
				u.w.pop()
			}
			twins = append(twins, placed{value: clone(u.head[h]), id: id, rootIdx: -1, headIdx: h, updateIdx: up})

		case hasHead:
			h := e.head[0]
			headOnly = append(headOnly, placed{value: clone(u.head[h]), id: id, rootIdx: -1, headIdx: h, updateIdx: -1})

		case hasUpdate:
			up := e.update[0]
			updateOnly = append(updateOnly, placed{value: clone(u.update[up]), id: id, rootIdx: -1, headIdx: -1, updateIdx: up})
		}
	}

	out := make([]any, 0, len(anchored)+len(twins)+len(headOnly)+len(updateOnly))
	out = appendValues(out, u.order(anchored))
	slices.SortStableFunc(twins, func(a, b placed) int { return a.headIdx - b.headIdx })
	out = appendValues(out, twins)

	switch u.strategy {
	case KeepUpdateAndHeadUpdateFirst:
		out = appendValues(out, updateOnly)
		out = appendValues(out, headOnly)
	default:
		if u.strategy.keepHeadAdditions() {
			out = appendValues(out, headOnly)
		}
		if u.strategy.keepUpdateAdditions() {
			out = appendValues(out, updateOnly)
		}
	}
	return out
}

func appendValues(out []any, ps []placed) []any {
	for _, p := range ps {
		out = append(out, p.value)
	}
	return out
}

// align groups the elements of the three lists into entities. Only elements
// of different lists are compared. Entities are discovered in root, head,
// update order.
func (u *unifier) align() []*entity {
	nr, nh := len(u.root), len(u.head)
	n := nr + nh + len(u.update)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if rb < ra {
			ra, rb = rb, ra
		}
		parent[rb] = ra
	}

	// Under plain equality, copies of a value pair up by occurrence: the
	// k-th copy in one list matches the k-th copy in the others.
	_, byOccurrence := u.cmp.(EqualComparator)
	var occR, occH, occU []int
	if byOccurrence {
		occR, occH, occU = occurrences(u.root), occurrences(u.head), occurrences(u.update)
	}
	match := func(a, b any, occA []int, i int, occB []int, j int) bool {
		if byOccurrence && occA[i] != occB[j] {
			return false
		}
		return u.cmp.Match(a, b)
	}

	for i, r := range u.root {
		for j, h := range u.head {
			if match(r, h, occR, i, occH, j) {
				union(i, nr+j)
			}
		}
		for k, up := range u.update {
			if match(r, up, occR, i, occU, k) {
				union(i, nr+nh+k)
			}
		}
	}
	for j, h := range u.head {
		for k, up := range u.update {
			if match(h, up, occH, j, occU, k) {
				union(nr+j, nr+nh+k)
			}
		}
	}

	byRoot := make(map[int]*entity)
	var entities []*entity
	for node := range n {
		r := find(node)
		e, ok := byRoot[r]
		if !ok {
			e = &entity{}
			byRoot[r] = e
			entities = append(entities, e)
		}
		switch {
		case node < nr:
			e.root = append(e.root, node)
		case node < nr+nh:
			e.head = append(e.head, node-nr)
		default:
			e.update = append(e.update, node-nr-nh)
		}
	}
	return entities
}

// occurrences numbers each element by how many equal elements precede it.
func occurrences(list []any) []int {
	occ := make([]int, len(list))
	for i := range list {
		for j := range i {
			if Equal(list[j], list[i]) {
				occ[i]++
			}
		}
	}
	return occ
}

// identity names an entity after its first element, preferring root.
func (u *unifier) identity(e *entity) string {
	var elem any
	var from string
	var idx int
	switch {
	case len(e.root) > 0:
		elem, from, idx = u.root[e.root[0]], "root", e.root[0]
	case len(e.head) > 0:
		elem, from, idx = u.head[e.head[0]], "head", e.head[0]
	default:
		elem, from, idx = u.update[e.update[0]], "update", e.update[0]
	}
	if ider, ok := u.cmp.(Identifier); ok {
		if id := ider.Identify(elem); id != "" {
			return id
		}
	}
	return fmt.Sprintf("%s:%d", from, idx)
}

func (u *unifier) candidates(e *entity) []any {
	out := make([]any, 0, len(e.root)+len(e.head)+len(e.update))
	for _, i := range e.root {
		out = append(out, clone(u.root[i]))
	}
	for _, i := range e.head {
		out = append(out, clone(u.head[i]))
	}
	for _, i := range e.update {
		out = append(out, clone(u.update[i]))
	}
	return out
}

type side int

const (
	sideRoot side = iota
	sideHead
	sideUpdate
)

func (p placed) index(s side) int {
	switch s {
	case sideHead:
		return p.headIdx
	case sideUpdate:
		return p.updateIdx
	default:
		return p.rootIdx
	}
}

// order arranges the root-anchored entries. Root's order holds unless a side
// reordered the entries both sides kept; a single reordering side wins, and
// two different reorderings are a conflict.
func (u *unifier) order(anchored []placed) []placed {
	slices.SortStableFunc(anchored, func(a, b placed) int { return a.rootIdx - b.rootIdx })

	kept := lo.Filter(anchored, func(p placed, _ int) bool {
		return p.headIdx >= 0 && p.updateIdx >= 0
	})
	byHead := sortedBy(kept, sideHead)
	byUpdate := sortedBy(kept, sideUpdate)
	headMoved := !sameOrder(kept, byHead)
	updateMoved := !sameOrder(kept, byUpdate)

	by := sideRoot
	switch {
	case headMoved && updateMoved && !sameOrder(byHead, byUpdate):
		u.w.conflict(ConflictReorder, []any{ids(byHead), ids(byUpdate)})
		by = sideHead
	case headMoved:
		by = sideHead
	case updateMoved:
		by = sideUpdate
	}
	if by == sideRoot {
		return anchored
	}

	// Entries the chosen side lacks stay right after their root predecessor.
	type sortKey struct{ major, minor int }
	keys := make([]sortKey, len(anchored))
	prev := sortKey{major: -1}
	for i, p := range anchored {
		if idx := p.index(by); idx >= 0 {
			prev = sortKey{major: idx}
		} else {
			prev.minor++
		}
		keys[i] = prev
	}
	perm := make([]int, len(anchored))
	for i := range perm {
		perm[i] = i
	}
	slices.SortStableFunc(perm, func(a, b int) int {
		if keys[a].major != keys[b].major {
			return keys[a].major - keys[b].major
		}
		return keys[a].minor - keys[b].minor
	})
	out := make([]placed, len(anchored))
	for i, j := range perm {
		out[i] = anchored[j]
	}
	return out
}

func sortedBy(ps []placed, s side) []placed {
	sorted := slices.Clone(ps)
	slices.SortStableFunc(sorted, func(a, b placed) int { return a.index(s) - b.index(s) })
	return sorted
}

func sameOrder(a, b []placed) bool {
	return slices.EqualFunc(a, b, func(x, y placed) bool { return x.rootIdx == y.rootIdx })
}

func ids(ps []placed) []any {
	return lo.Map(ps, func(p placed, _ int) any { return p.id })
}

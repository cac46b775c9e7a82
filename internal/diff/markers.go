package diff

import (
	"sort"
	"strings"

	"github.com/dgallion1/wtselser/internal/dom"
	"golang.org/x/net/html"
)

// Marker is a set of change flags attached to a node for one diff run.
type Marker uint8

const (
	Inserted Marker = 1 << iota
	Deleted
	ModifiedWrapper
	ChildrenChanged
	SubtreeChanged
)

var markerNames = []struct {
	m    Marker
	name string
}{
	{Inserted, "inserted"},
	{Deleted, "deleted"},
	{ModifiedWrapper, "modified-wrapper"},
	{ChildrenChanged, "children-changed"},
	{SubtreeChanged, "subtree-changed"},
}

// Has reports whether every flag in x is set.
func (m Marker) Has(x Marker) bool { return m&x == x }

func (m Marker) String() string {
	var parts []string
	for _, mn := range markerNames {
		if m&mn.m != 0 {
			parts = append(parts, mn.name)
		}
	}
	return strings.Join(parts, ",")
}

type entry struct {
	set          Marker
	changedAttrs []string
}

// Markers is the side table of diff state for one run. The zero value is
// not usable; call NewMarkers.
type Markers struct {
	m map[*html.Node]*entry
}

func NewMarkers() *Markers {
	return &Markers{m: make(map[*html.Node]*entry)}
}

// Set adds flags to n. Changed attribute names are merged into the
// existing list.
func (mk *Markers) Set(n *html.Node, set Marker, changedAttrs ...string) {
	e := mk.m[n]
	if e == nil {
		e = &entry{}
		mk.m[n] = e
	}
	e.set |= set
	for _, a := range changedAttrs {
		if !contains(e.changedAttrs, a) {
			e.changedAttrs = append(e.changedAttrs, a)
		}
	}
	sort.Strings(e.changedAttrs)
}

// Get returns the flags on n. ok is false when n carries no markers.
func (mk *Markers) Get(n *html.Node) (Marker, bool) {
	if mk == nil {
		return 0, false
	}
	e := mk.m[n]
	if e == nil || e.set == 0 {
		return 0, false
	}
	return e.set, true
}

// ChangedAttrs lists attribute names recorded with ModifiedWrapper.
func (mk *Markers) ChangedAttrs(n *html.Node) []string {
	if mk == nil {
		return nil
	}
	if e := mk.m[n]; e != nil {
		return append([]string(nil), e.changedAttrs...)
	}
	return nil
}

// Has reports whether n carries flag m. Deleted is answered by looking
// for a deletion marker node in front of n.
func (mk *Markers) Has(n *html.Node, m Marker) bool {
	if m == Deleted {
		return IsDiffMarker(n.PrevSibling, Deleted)
	}
	set, _ := mk.Get(n)
	return set&m != 0
}

// HasAny reports whether n carries any flag or is itself a marker node.
func (mk *Markers) HasAny(n *html.Node) bool {
	_, ok := mk.Get(n)
	return ok || dom.IsDiffMarkerNode(n)
}

// OnlySubtreeChanged reports whether n itself is unchanged and only its
// descendants were edited.
func (mk *Markers) OnlySubtreeChanged(n *html.Node) bool {
	set, ok := mk.Get(n)
	if !ok {
		return false
	}
	return set&^(SubtreeChanged|ChildrenChanged) == 0
}

// OnlyWrapperChanged reports whether n's own tag or attributes changed
// while everything inside it stayed as it was.
func (mk *Markers) OnlyWrapperChanged(n *html.Node) bool {
	set, _ := mk.Get(n)
	return set == ModifiedWrapper
}

// Clear drops n's markers.
func (mk *Markers) Clear(n *html.Node) {
	delete(mk.m, n)
}

// Reset drops all markers.
func (mk *Markers) Reset() {
	mk.m = make(map[*html.Node]*entry)
}

// Len is the number of marked nodes.
func (mk *Markers) Len() int { return len(mk.m) }

// MarkChange records m on n and propagates: the parent gets
// ChildrenChanged and every ancestor up to stop gets SubtreeChanged.
func (mk *Markers) MarkChange(n *html.Node, m Marker, stop *html.Node) {
	mk.Set(n, m)
	p := n.Parent
	if p == nil || n == stop {
		return
	}
	mk.Set(p, ChildrenChanged|SubtreeChanged)
	for a := p; a != stop && a.Parent != nil; {
		a = a.Parent
		mk.Set(a, SubtreeChanged)
	}
}

// IsDiffMarker reports whether n is a synthetic marker node of the given
// kind.
func IsDiffMarker(n *html.Node, kind Marker) bool {
	if !dom.IsDiffMarkerNode(n) {
		return false
	}
	return dom.HasTypeOf(n, dom.DiffMarkerTypeOf+kind.String())
}

// IsDeletedBlock reports whether n marks a deleted run containing a block.
func IsDeletedBlock(n *html.Node) bool {
	_, ok := dom.LookupAttr(n, "data-is-block")
	return IsDiffMarker(n, Deleted) && ok
}

// NewDeletedMarker builds the synthetic node standing in for removed
// content.
func NewDeletedMarker(isBlock bool) *html.Node {
	n := dom.NewElement("meta", html.Attribute{Key: "typeof", Val: dom.DiffMarkerTypeOf + Deleted.String()})
	if isBlock {
		dom.SetAttr(n, "data-is-block", "true")
	}
	return n
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Package diff annotates an edited DOM with change markers relative to
// the DOM it was derived from.
package diff

import (
	"github.com/dgallion1/wtselser/internal/dom"
	"golang.org/x/net/html"
)

type opKind int

const (
	opMatch opKind = iota
	opInsert
	opDelete
)

type op struct {
	kind     opKind
	old, new *html.Node
}

type differ struct {
	cmp   Comparer
	marks *Markers
}

// Diff compares the body of oldDoc with the body of newDoc and returns a
// fresh marker table for newDoc. Deletion marker nodes left in newDoc by
// an earlier run are removed first; newDoc is otherwise only changed by
// splicing in new deletion markers. oldDoc is not modified.
func Diff(oldDoc, newDoc *dom.Document) *Markers {
	if oldDoc == nil || newDoc == nil || oldDoc.Body == nil || newDoc.Body == nil {
		panic("diff: nil document root")
	}
	StripMarkers(newDoc.Body)
	df := &differ{
		cmp:   Comparer{Old: oldDoc, New: newDoc},
		marks: NewMarkers(),
	}
	df.diffChildren(oldDoc.Body, newDoc.Body)
	return df.marks
}

// StripMarkers removes synthetic marker nodes under root.
func StripMarkers(root *html.Node) {
	var stale []*html.Node
	dom.Walk(root, func(n *html.Node) bool {
		if dom.IsDiffMarkerNode(n) {
			stale = append(stale, n)
			return false
		}
		return true
	})
	for _, n := range stale {
		dom.Remove(n)
	}
}

// diffChildren aligns the child lists of a matched pair, marks newP and
// its children, and reports whether anything below newP changed.
func (df *differ) diffChildren(oldP, newP *html.Node) bool {
	ops := df.align(dom.Children(oldP), dom.Children(newP))

	direct, below := false, false
	var deleted []*html.Node
	flushDeleted := func(before *html.Node) {
		if len(deleted) == 0 {
			return
		}
		isBlock := false
		for _, o := range deleted {
			if dom.IsBlock(o) {
				isBlock = true
			}
		}
		newP.InsertBefore(NewDeletedMarker(isBlock), before)
		deleted = nil
		direct = true
	}

	for _, o := range ops {
		switch o.kind {
		case opDelete:
			deleted = append(deleted, o.old)
		case opInsert:
			flushDeleted(o.new)
			df.marks.Set(o.new, Inserted)
			direct = true
		case opMatch:
			flushDeleted(o.new)
			if changed := df.cmp.ChangedAttrs(o.old, o.new); o.new.Type == html.ElementNode && (o.old.Data != o.new.Data || len(changed) > 0) {
				df.marks.Set(o.new, ModifiedWrapper, changed...)
				direct = true
			}
			if o.new.Type != html.ElementNode || dom.IsEncapsulationWrapper(o.new) {
				continue
			}
			if df.cmp.Deep(o.old, o.new) {
				continue
			}
			if df.diffChildren(o.old, o.new) {
				below = true
			}
		}
	}
	flushDeleted(nil)

	switch {
	case direct:
		df.marks.Set(newP, ChildrenChanged|SubtreeChanged)
	case below:
		df.marks.Set(newP, SubtreeChanged)
	}
	return direct || below
}

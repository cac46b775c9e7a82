package normalize

import (
	"strings"

	"github.com/dgallion1/wtselser/internal/diff"
	"github.com/dgallion1/wtselser/internal/dom"
	"golang.org/x/net/html"
)

// Attributes that do not stop two links from merging.
var linkIgnorableAttrs = map[string]bool{"id": true, "title": true}

func attrsEqual(a, b *html.Node, ignore map[string]bool) bool {
	am := make(map[string]string, len(a.Attr))
	for _, at := range a.Attr {
		if !ignore[at.Key] {
			am[at.Key] = at.Val
		}
	}
	seen := 0
	for _, at := range b.Attr {
		if ignore[at.Key] {
			continue
		}
		v, ok := am[at.Key]
		if !ok || v != at.Val {
			return false
		}
		seen++
	}
	return seen == len(am)
}

// similar reports whether a and b would serialize with the same wrapper
// markup. Links compare attributes; other wikitext tags ignore them.
func (r *run) similar(a, b *html.Node) bool {
	if dom.IsElementNamed(a, "a") {
		return dom.IsElement(b) && attrsEqual(a, b, linkIgnorableAttrs) &&
			dom.DataMWEqual(r.doc.DataMW(a), r.doc.DataMW(b))
	}
	aHTML := dom.IsElement(a) && r.doc.IsLiteralHTML(a)
	bHTML := dom.IsElement(b) && r.doc.IsLiteralHTML(b)
	if !aHTML && !bHTML {
		return true
	}
	return aHTML && bHTML && attrsEqual(a, b, nil) &&
		dom.DataMWEqual(r.doc.DataMW(a), r.doc.DataMW(b))
}

func (r *run) mergeable(a, b *html.Node) bool {
	return dom.NodeName(a) == dom.NodeName(b) && r.similar(a, b)
}

// swappable reports whether a's sole child could trade places with a so
// that the child merges with b.
func (r *run) swappable(a, b *html.Node) bool {
	if dom.NumNonDeletedChildren(a) != 1 {
		return false
	}
	child := dom.FirstNonDeletedChild(a)
	return r.similar(a, child) && r.mergeable(child, b)
}

func (r *run) rewriteablePair(a, b *html.Node) bool {
	if dom.IsQuoteElt(a) {
		// Adjacent quote runs never come out of the parser, so such a pair
		// is always the product of an edit.
		return dom.IsQuoteElt(b)
	}
	if dom.IsElementNamed(a, "a") {
		return dom.IsElementNamed(b, "a") && (r.doc.IsNew(a) || r.doc.IsNew(b))
	}
	return false
}

// normalizeSiblingPair minimizes the adjacent pair and returns the node to
// pair with next.
func (r *run) normalizeSiblingPair(a, b *html.Node) *html.Node {
	if !r.rewriteablePair(a, b) {
		return b
	}
	switch {
	case r.mergeable(a, b):
		a = r.merge(a, b)
	case r.swappable(a, b):
		a = r.merge(r.swap(a, dom.FirstNonDeletedChild(a)), b)
	case r.swappable(b, a):
		a = r.merge(a, r.swap(b, dom.FirstNonDeletedChild(b)))
	default:
		return b
	}
	// a has new children; its grandchildren are already minimized.
	r.processSubtree(a, false)
	if dom.IsElementNamed(a, "a") {
		r.moveTrailingSpacesOut(a)
	}
	return a
}

// merge moves b's children (and any markers between the two) into a and
// removes b.
func (r *run) merge(a, b *html.Node) *html.Node {
	sentinel := b.FirstChild
	for next := a.NextSibling; next != nil && next != b; next = a.NextSibling {
		dom.Append(a, next)
	}
	dom.MigrateChildren(b, a, nil)
	dom.Remove(b)
	dom.MergeAdjacentText(a)

	if sentinel != nil && sentinel.Parent != nil {
		r.moved(sentinel)
		r.mark(a, diff.ChildrenChanged, true)
	}
	if a.NextSibling != nil {
		r.moved(a.NextSibling)
	}
	r.mark(a.Parent, diff.ChildrenChanged, false)
	return a
}

// swap exchanges a with its sole child b: b takes a's place and a wraps
// b's former children.
func (r *run) swap(a, b *html.Node) *html.Node {
	swapNodes(a, b)

	if a.FirstChild != nil {
		r.moved(a.FirstChild)
	}
	r.moved(a)
	r.moved(b)
	r.mark(a, diff.ChildrenChanged, true)
	r.mark(b, diff.ChildrenChanged, true)
	r.mark(b.Parent, diff.ChildrenChanged, false)
	return b
}

func swapNodes(a, b *html.Node) {
	dom.MigrateChildren(b, a, nil)
	dom.InsertBefore(b, a)
	dom.Append(b, a)
}

func edgeChild(n *html.Node, rtl bool) *html.Node {
	if rtl {
		return dom.LastNonDeletedChild(n)
	}
	return dom.FirstNonDeletedChild(n)
}

func isContentNode(n *html.Node) bool {
	return !dom.IsComment(n) && !(dom.IsText(n) && dom.IsWhitespace(n.Data)) && !dom.IsDiffMarkerNode(n)
}

// hoistLinks moves rendering-transparent nodes at one edge of a heading
// out of it, trimming the whitespace they leave behind.
func (r *run) hoistLinks(node *html.Node, rtl bool) {
	sibling := edgeChild(node, rtl)
	hoistable := false
	for sibling != nil {
		var next *html.Node
		if rtl {
			next = dom.PreviousNonDeletedSibling(sibling)
		} else {
			next = dom.NextNonDeletedSibling(sibling)
		}
		if isContentNode(sibling) {
			if !r.doc.IsRenderingTransparent(sibling) || dom.IsEncapsulationWrapper(sibling) {
				break
			}
			hoistable = true
		}
		sibling = next
	}
	if !hoistable {
		return
	}

	move := edgeChild(node, rtl)
	first := move
	for move != nil && move != sibling {
		if rtl {
			dom.InsertAfter(move, node)
		} else {
			dom.InsertBefore(move, node)
		}
		move = edgeChild(node, rtl)
	}
	if dom.IsText(sibling) {
		if rtl {
			sibling.Data = strings.TrimRight(sibling.Data, " \t\r\n\f")
		} else {
			sibling.Data = strings.TrimLeft(sibling.Data, " \t\r\n\f")
		}
	}

	r.moved(first)
	if sibling != nil {
		r.moved(sibling)
	}
	r.mark(node, diff.ChildrenChanged, true)
	r.mark(node.Parent, diff.ChildrenChanged, false)
}

// stripBRs replaces every <br> below node with a space.
func (r *run) stripBRs(node *html.Node) {
	for child := node.FirstChild; child != nil; {
		next := child.NextSibling
		if dom.IsElementNamed(child, "br") {
			node.InsertBefore(dom.NewText(" "), child)
			node.RemoveChild(child)
		} else if dom.IsElement(child) {
			r.stripBRs(child)
		}
		child = next
	}
}

// stripIfEmpty removes node when it has no meaningful content and
// returns the next sibling, otherwise returns node.
func (r *run) stripIfEmpty(node *html.Node) *html.Node {
	next := dom.NextNonDeletedSibling(node)
	dp := r.doc.DataParsoidOrEmpty(node)
	autoInserted := dp.AutoInsertedStart || dp.AutoInsertedEnd
	strippable := !(r.opts.RTTestMode && autoInserted) &&
		dom.EssentiallyEmpty(node, r.opts.RTTestMode) &&
		!(r.opts.RTTestMode && dp.Stx == "html")
	if !strippable {
		return node
	}
	r.mark(node, diff.Deleted, true)
	dom.Remove(node)
	return next
}

// moveTrailingSpacesOut shifts trailing whitespace of the link text to
// after the link.
func (r *run) moveTrailingSpacesOut(node *html.Node) {
	if r.opts.RTTestMode {
		return
	}
	next := dom.NextNonDeletedSibling(node)
	last := dom.LastNonDeletedChild(node)
	if !dom.IsText(last) {
		return
	}
	trailing := trailingWSRe.FindString(last.Data)
	if trailing == "" {
		return
	}
	last.Data = last.Data[:len(last.Data)-len(trailing)]
	if next != nil && (!dom.IsText(next) || !leadingWSRe.MatchString(next.Data)) {
		if !dom.IsText(next) {
			txt := dom.NewText("")
			node.Parent.InsertBefore(txt, next)
			next = txt
		}
		next.Data = trailing + next.Data
		r.mark(next, diff.Inserted, true)
	}
	r.mark(last, diff.Inserted, true)
	r.mark(node.Parent, diff.ChildrenChanged, false)
}

// escapeCellPrefix adds a space in front of cell content that would read
// as row or table syntax.
func (r *run) escapeCellPrefix(node *html.Node) {
	stx := r.doc.Stx(node)
	if stx == "html" || (stx == "row" && dom.FirstNonSepChild(node.Parent) != node) {
		return
	}
	first := dom.FirstNonDeletedChild(node)
	if dom.IsText(first) && cellEscapeRe.MatchString(first.Data) {
		first.Data = " " + first.Data
		r.mark(first, diff.Inserted, true)
	}
}

// mergeEmptyParagraph turns <p></p><p>x</p> into <p><br>x</p> so the
// empty paragraph keeps its newline.
func (r *run) mergeEmptyParagraph(node *html.Node) *html.Node {
	next := dom.NextNonSepSibling(node)
	if !dom.IsElementNamed(next, "p") || r.doc.IsLiteralHTML(next) {
		return next
	}
	br := dom.NewElement("br")
	next.InsertBefore(br, next.FirstChild)
	if !r.isInsertedContent(next) {
		r.mark(br, diff.Inserted, false)
	}
	r.mark(node, diff.Deleted, false)
	dom.Remove(node)
	return next
}

func (r *run) isInsertedContent(node *html.Node) bool {
	for n := node; n != nil; n = n.Parent {
		if r.marks.Has(n, diff.Inserted) {
			return true
		}
		if n == r.doc.Body {
			return false
		}
	}
	return false
}

// stripBidiCharsAroundCategories removes LRM/RLM runs that trail text in
// front of a category link.
func (r *run) stripBidiCharsAroundCategories(node *html.Node) *html.Node {
	if !dom.IsText(node) || (!dom.IsCategoryLink(node.PrevSibling) && !dom.IsCategoryLink(node.NextSibling)) {
		return node
	}
	next := node.NextSibling
	if next != nil && !dom.IsCategoryLink(next) {
		return node
	}
	before := len(node.Data)
	node.Data = bidiAroundCatRe.ReplaceAllString(node.Data, "")
	if len(node.Data) == before {
		return node
	}
	r.log.Warn("LRM/RLM unicode chars stripped around categories", "kind", "bidi")
	if node.Data == "" {
		ret := dom.NextNonDeletedSibling(node)
		r.mark(node, diff.Deleted, false)
		dom.Remove(node)
		return ret
	}
	r.mark(node, diff.Inserted, false)
	return node
}

package wts

import (
	"regexp"
	"strings"

	"github.com/dgallion1/wtselser/internal/dom"
	"golang.org/x/net/html"
)

var (
	nlNonSpaceRe     = regexp.MustCompile(`\n[^\s]`)
	commentOnlyLine  = regexp.MustCompile(`^(?:[ \t]*<!--[\s\S]*?-->[ \t]*)+$`)
	leadingCommentRe = regexp.MustCompile(`^(?:[ \t]*<!--[\s\S]*?-->[ \t]*)*`)
)

// pHandler writes paragraphs. Paragraphs have no markup of their own;
// the blank lines around them are the markup.
type pHandler struct{ baseHandler }

func (pHandler) handle(st *State, n *html.Node, _ bool) *html.Node {
	st.serializeChildren(n, nil)
	return n.NextSibling
}

func (h pHandler) before(st *State, n, other *html.Node) nlConstraint {
	if n.Parent == other && (dom.IsListItem(other) || dom.IsElementNamed(other, "td", "th", "body")) {
		if dom.IsElementNamed(other, "td", "th", "body") {
			return nl(0, 1)
		}
		return nl(0, 0)
	}
	prevSep := dom.PreviousNonSepSibling(n)
	if other == dom.PreviousNonDeletedSibling(n) && isWikitextP(st, other) ||
		(st.treatAsPPTransition(other) && other == prevSep && !st.currLineHasBlockNode(other, false)) {
		return nl(2, 2)
	}
	if st.treatAsPPTransition(other) ||
		(dom.IsBlock(other) && other.Data != "blockquote" && n.Parent == other) ||
		(st.solTransparentSingleLine(other) && dom.IsElement(other) && st.doc.IsNew(n)) {
		if !hasAncestorNamed(other, "figcaption") {
			return nl(1, 2)
		}
	}
	return nl(0, 2)
}

func (h pHandler) after(st *State, n, other *html.Node) nlConstraint {
	lastIsBR := dom.IsElementNamed(n.LastChild, "br")
	if !lastIsBR && st.isPPTransition(other) &&
		!st.currLineHasBlockNode(n, true) && !st.nextLineMightHaveBlockNode(other) {
		return nl(2, 2)
	}
	if dom.IsElementNamed(other, "body") {
		return nl(0, 2)
	}
	if st.treatAsPPTransition(other) ||
		(dom.IsBlock(other) && other.Data != "blockquote" && n.Parent == other) {
		if !hasAncestorNamed(other, "figcaption") {
			return nl(1, 2)
		}
	}
	return nl(0, 2)
}

func isWikitextP(st *State, n *html.Node) bool {
	return dom.IsElementNamed(n, "p") && !st.doc.IsLiteralHTML(n)
}

// treatAsPPTransition reports whether n sits in running text the way a
// paragraph would.
func (st *State) treatAsPPTransition(n *html.Node) bool {
	if dom.IsText(n) {
		return true
	}
	return dom.IsElement(n) && !dom.IsElementNamed(n, "body") && !dom.IsBlock(n) &&
		!st.doc.IsLiteralHTML(n) && !dom.IsEncapsulationWrapper(n) &&
		!dom.IsSolTransparentLink(n) && !mwIncludesRe.MatchString(dom.Attr(n, "typeof"))
}

func (st *State) isPPTransition(n *html.Node) bool {
	return n != nil && (isWikitextP(st, n) || st.treatAsPPTransition(n))
}

func (st *State) isBlockWithVisibleWT(n *html.Node) bool {
	return dom.IsBlock(n) && !st.zeroWidthWikitext(n)
}

// currLineHasBlockNode walks back from n looking for a block written on
// the same wikitext line.
func (st *State) currLineHasBlockNode(n *html.Node, skipNode bool) bool {
	if !skipNode && nlNonSpaceRe.MatchString(dom.TextContent(n)) {
		return false
	}
	parent := n.Parent
	cur := dom.PreviousNonDeletedSibling(n)
	for {
		for cur != nil {
			if st.isBlockWithVisibleWT(cur) {
				return true
			}
			if strings.Contains(dom.TextContent(cur), "\n") {
				return false
			}
			cur = dom.PreviousNonDeletedSibling(cur)
			if cur != nil && st.line.firstNode != nil && dom.IsAncestorOf(cur, st.line.firstNode) {
				return false
			}
		}
		if parent == nil || parent == st.root || dom.IsElementNamed(parent, "body") {
			return false
		}
		cur = parent
		parent = cur.Parent
	}
}

// nextLineMightHaveBlockNode looks ahead from n for a block written on
// the line n starts.
func (st *State) nextLineMightHaveBlockNode(n *html.Node) bool {
	for cur := dom.NextNonDeletedSibling(n); cur != nil; cur = dom.NextNonDeletedSibling(cur) {
		if dom.IsText(cur) {
			if strings.Contains(cur.Data, "\n") {
				return false
			}
			continue
		}
		if !dom.IsElement(cur) {
			continue
		}
		if tagsRequiringSOL[cur.Data] && !st.doc.IsLiteralHTML(cur) {
			return false
		}
		return st.isBlockWithVisibleWT(cur)
	}
	return false
}

func hasAncestorNamed(n *html.Node, tag string) bool {
	for p := n; p != nil; p = p.Parent {
		if dom.IsElementNamed(p, tag) {
			return true
		}
	}
	return false
}

// headingHandler writes == headings ==.
type headingHandler struct {
	baseHandler
	marker string
}

func (h headingHandler) handle(st *State, n *html.Node, _ bool) *html.Node {
	if dom.FirstNonDeletedChild(n) == nil {
		st.emitChunk(h.marker+"<nowiki/>"+h.marker, n)
		return n.NextSibling
	}
	st.emitChunk(h.marker+st.leadingSpace(n, " "), n)
	st.singleLine.enforce()
	st.serializeChildren(n, nil)
	st.singleLine.pop()
	st.emitChunk(st.trailingSpace(n, " ")+h.marker, n)
	return n.NextSibling
}

func (headingHandler) before(st *State, n, other *html.Node) nlConstraint {
	prev := dom.PreviousNonSepSibling(n)
	if st.doc.IsNew(n) && prev != nil {
		return nl(2, 2)
	}
	if prev == other && dom.IsElement(other) && st.doc.IsNew(other) {
		return nl(2, 2)
	}
	return nl(1, 2)
}

func (headingHandler) after(*State, *html.Node, *html.Node) nlConstraint { return nl(1, 2) }

// listHandler writes ul, ol and dl. The items carry the bullets.
type listHandler struct{ baseHandler }

func (listHandler) handle(st *State, n *html.Node, _ bool) *html.Node {
	st.singleLine.disable()
	fc := dom.FirstNonSepChild(n)
	for st.isBuilderInserted(fc) {
		fc = dom.FirstNonSepChild(fc)
	}
	if !dom.IsListItem(fc) || st.doc.IsLiteralHTML(fc) {
		st.emitChunk(st.listBullets(n), n)
	}
	st.serializeChildren(n, nil)
	st.singleLine.pop()
	return n.NextSibling
}

func (listHandler) before(_ *State, n, other *html.Node) nlConstraint {
	if dom.IsElementNamed(other, "body") {
		return nl(0, 0)
	}
	if other == n.Parent && dom.IsListItem(other) {
		return nl(0, 0)
	}
	return nl(1, 2)
}

func (listHandler) after(st *State, n, other *html.Node) nlConstraint {
	return st.wtListEOL(n, other)
}

// listItemHandler writes li and dt, and dd outside row syntax.
type listItemHandler struct{ baseHandler }

func (listItemHandler) handle(st *State, n *html.Node, _ bool) *html.Node {
	fc := dom.FirstNonSepChild(n)
	if !dom.IsList(fc) || st.doc.IsLiteralHTML(fc) {
		st.emitChunk(st.listBullets(n), n)
	}
	st.singleLine.enforce()
	st.serializeChildren(n, listItemEscaper(n))
	st.singleLine.pop()
	return n.NextSibling
}

func (listItemHandler) before(_ *State, n, other *html.Node) nlConstraint {
	if other == n.Parent {
		return nl(0, 0)
	}
	return nl(1, 2)
}

func (listItemHandler) after(st *State, n, other *html.Node) nlConstraint {
	return st.wtListEOL(n, other)
}

func (listItemHandler) firstChild(_ *State, _, other *html.Node) nlConstraint {
	if !dom.IsList(other) {
		return nl(0, 0)
	}
	return nlConstraint{}
}

// ddHandler adds the ;term:definition row form to list items.
type ddHandler struct{ listItemHandler }

func (h ddHandler) handle(st *State, n *html.Node, wrapperUnmodified bool) *html.Node {
	if st.doc.Stx(n) != "row" {
		return h.listItemHandler.handle(st, n, wrapperUnmodified)
	}
	st.emitChunk(":"+st.leadingSpace(n, ""), n)
	st.singleLine.enforce()
	st.serializeChildren(n, listItemEscaper(n))
	st.singleLine.pop()
	return n.NextSibling
}

func (h ddHandler) before(st *State, n, other *html.Node) nlConstraint {
	if st.doc.Stx(n) == "row" {
		return nl(0, 0)
	}
	return h.listItemHandler.before(st, n, other)
}

// brHandler writes line breaks. A break leading a paragraph stands for
// an extra blank line.
type brHandler struct{ baseHandler }

func (brHandler) handle(st *State, n *html.Node, _ bool) *html.Node {
	if st.singleLine.enforced() || st.doc.IsLiteralHTML(n) || !st.paragraphBreak(n) {
		st.emitChunk("<br />", n)
		return n.NextSibling
	}
	st.emitChunk("", n)
	return n.NextSibling
}

func (brHandler) before(st *State, n, other *html.Node) nlConstraint {
	if other == n.Parent && st.paragraphBreak(n) {
		return nl(1, 2)
	}
	return nlConstraint{}
}

func (brHandler) after(st *State, n, _ *html.Node) nlConstraint {
	if st.paragraphBreak(n) && !st.doc.IsLiteralHTML(n) {
		return nl(1, 2)
	}
	return nlConstraint{}
}

func (st *State) paragraphBreak(n *html.Node) bool {
	return isWikitextP(st, n.Parent) && dom.PreviousNonSepSibling(n) == nil
}

// hrHandler writes ---- rules.
type hrHandler struct{ baseHandler }

func (hrHandler) handle(st *State, n *html.Node, _ bool) *html.Node {
	dashes := 4
	if d := st.doc.DSR(n); d.Valid() && d.End-d.Start > dashes {
		if src, ok := st.origSrc(d.Start, d.End); ok && strings.Trim(src, "-") == "" {
			dashes = len(src)
		}
	}
	st.emitChunk(strings.Repeat("-", dashes), n)
	return n.NextSibling
}

func (hrHandler) before(*State, *html.Node, *html.Node) nlConstraint { return nl(1, 2) }
func (hrHandler) after(*State, *html.Node, *html.Node) nlConstraint  { return nl(0, 2) }

// preHandler writes indent-pre blocks: every line starts with a space.
type preHandler struct{ baseHandler }

func (preHandler) handle(st *State, n *html.Node, _ bool) *html.Node {
	content := st.serializeChildrenToString(n, nil, &st.inIndentPre)
	trailingNL := strings.HasSuffix(content, "\n")
	content = strings.TrimSuffix(content, "\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if commentOnlyLine.MatchString(line) {
			continue
		}
		lead := leadingCommentRe.FindString(line)
		lines[i] = lead + " " + line[len(lead):]
	}
	st.emitChunk(strings.Join(lines, "\n"), n)
	if trailingNL {
		st.appendSep("\n")
	}
	return n.NextSibling
}

func (preHandler) before(st *State, _, other *html.Node) nlConstraint {
	if dom.IsElementNamed(other, "pre") && !st.doc.IsLiteralHTML(other) {
		return nlConstraint{min: 2, hasMin: true}
	}
	return nlConstraint{min: 1, hasMin: true}
}

func (preHandler) after(st *State, _, other *html.Node) nlConstraint {
	if dom.IsElementNamed(other, "pre") && !st.doc.IsLiteralHTML(other) {
		return nlConstraint{min: 2, hasMin: true}
	}
	return nlConstraint{min: 1, hasMin: true}
}

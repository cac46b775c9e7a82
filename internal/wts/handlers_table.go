package wts

import (
	"strings"

	"github.com/dgallion1/wtselser/internal/dom"
	"golang.org/x/net/html"
)

// maxNLsInTable is the newline limit between table parts. New parts are
// kept compact.
func (st *State) maxNLsInTable(n, other *html.Node) int {
	if st.doc.IsNew(n) || (dom.IsElement(other) && st.doc.IsNew(other)) {
		return 1
	}
	return 2
}

// serializeTableTag writes the opening markup of a table part. An empty
// endSymbol with hasEnd false means cell syntax, where attributes are
// closed by " |".
func (st *State) serializeTableTag(symbol, endSymbol string, hasEnd bool, n *html.Node, wrapperUnmodified bool) string {
	if wrapperUnmodified {
		d := st.doc.DSR(n)
		src, _ := st.origSrc(d.Start, d.Start+d.OpenWidth)
		return src
	}
	attrs := st.serializeAttributes(n)
	if attrs == "" {
		return symbol + endSymbol
	}
	if !hasEnd {
		endSymbol = " |"
	}
	return symbol + " " + attrs + endSymbol
}

// stxInfoValidForTableCell reports whether the recorded row syntax of a
// cell can still be used.
func (st *State) stxInfoValidForTableCell(n *html.Node) bool {
	if st.doc.Stx(n) != "row" {
		return true
	}
	prev := dom.PreviousNonDeletedSibling(n)
	return prev != nil && prev.Data == n.Data
}

type tableHandler struct{ baseHandler }

func (tableHandler) handle(st *State, n *html.Node, wrapperUnmodified bool) *html.Node {
	indent := dom.IsElementNamed(n.Parent, "dd") && dom.PreviousNonSepSibling(n) == nil
	if indent {
		st.singleLine.disable()
	}
	st.emitChunk(st.serializeTableTag("{|", "", true, n, wrapperUnmodified), n)
	st.wikiTableNesting++
	st.serializeChildren(n, nil)
	st.wikiTableNesting--
	if st.sep.constraints == nil {
		st.sep.constraints = &sepConstraints{min: 1, max: 2, kind: sepChildParent}
	}
	end := "|}"
	if wrapperUnmodified {
		d := st.doc.DSR(n)
		if src, ok := st.origSrc(d.InnerEnd(), d.End); ok {
			end = src
		}
	}
	if !st.doc.DataParsoidOrEmpty(n).AutoInsertedEnd {
		st.emitChunk(end, n)
	}
	if indent {
		st.singleLine.pop()
	}
	return n.NextSibling
}

func (tableHandler) before(_ *State, n, other *html.Node) nlConstraint {
	if n.Parent == other && dom.IsElementNamed(other, "dd") {
		return nl(0, 2)
	}
	return nl(1, 2)
}

func (tableHandler) after(_ *State, _, other *html.Node) nlConstraint {
	if dom.IsElementNamed(other, "body") {
		return nl(0, 2)
	}
	return nl(1, 2)
}

func (tableHandler) firstChild(st *State, n, other *html.Node) nlConstraint {
	return nl(1, st.maxNLsInTable(n, other))
}

func (tableHandler) lastChild(st *State, n, other *html.Node) nlConstraint {
	return nl(1, st.maxNLsInTable(n, other))
}

// tbodyHandler writes only its children; wikitext has no row groups.
type tbodyHandler struct{ baseHandler }

type captionHandler struct{ baseHandler }

func (captionHandler) handle(st *State, n *html.Node, wrapperUnmodified bool) *html.Node {
	st.emitChunk(st.serializeTableTag("|+", "", false, n, wrapperUnmodified), n)
	saved := st.inCaption
	st.inCaption = true
	st.serializeChildren(n, nil)
	st.inCaption = saved
	return n.NextSibling
}

func (captionHandler) before(st *State, n, other *html.Node) nlConstraint {
	return nl(1, st.maxNLsInTable(n, other))
}

func (captionHandler) after(st *State, n, other *html.Node) nlConstraint {
	return nl(1, st.maxNLsInTable(n, other))
}

type trHandler struct{ baseHandler }

func (trHandler) handle(st *State, n *html.Node, wrapperUnmodified bool) *html.Node {
	if st.trWikitextNeeded(n) {
		st.emitChunk(st.serializeTableTag("|-", "", true, n, wrapperUnmodified), n)
	}
	st.serializeChildren(n, nil)
	return n.NextSibling
}

// trWikitextNeeded reports whether a row needs its |- line. The first
// row of a table may omit it.
func (st *State) trWikitextNeeded(n *html.Node) bool {
	if prev := dom.PreviousNonSepSibling(n); prev != nil && !dom.IsDiffMarkerNode(prev) {
		return true
	}
	if len(n.Attr) > 0 {
		return true
	}
	if d := st.doc.DSR(n); d != nil && d.OpenWidth > 0 {
		return true
	}
	// A row following a caption in the parent table still needs its own line.
	if p := n.Parent; dom.IsElementNamed(p, "tbody", "thead", "tfoot") {
		if prev := dom.PreviousNonSepSibling(p); dom.IsElementNamed(prev, "caption") {
			return true
		}
	}
	return false
}

func (trHandler) before(st *State, n, other *html.Node) nlConstraint {
	if st.trWikitextNeeded(n) {
		return nl(1, st.maxNLsInTable(n, other))
	}
	return nl(0, st.maxNLsInTable(n, other))
}

func (trHandler) after(st *State, n, other *html.Node) nlConstraint {
	return nl(0, st.maxNLsInTable(n, other))
}

// cellHandler writes td (|, ||) and th (!, !!) cells.
type cellHandler struct {
	baseHandler
	single, double string
	wrap           func(n *html.Node, inWide bool) escaper
}

type tdHandler struct{ baseHandler }
type thHandler struct{ baseHandler }

var (
	tdCell = cellHandler{single: "|", double: "||", wrap: tdEscaper}
	thCell = cellHandler{single: "!", double: "!!", wrap: func(*html.Node, bool) escaper { return thEscaper }}
)

func (tdHandler) handle(st *State, n *html.Node, wu bool) *html.Node { return tdCell.handle(st, n, wu) }
func (thHandler) handle(st *State, n *html.Node, wu bool) *html.Node { return thCell.handle(st, n, wu) }

func (tdHandler) before(st *State, n, other *html.Node) nlConstraint { return cellBefore(st, n, other) }
func (thHandler) before(st *State, n, other *html.Node) nlConstraint { return cellBefore(st, n, other) }

func (tdHandler) after(st *State, n, other *html.Node) nlConstraint {
	return nl(0, st.maxNLsInTable(n, other))
}

func (thHandler) after(st *State, n, other *html.Node) nlConstraint {
	return nl(0, st.maxNLsInTable(n, other))
}

func (c cellHandler) handle(st *State, n *html.Node, wrapperUnmodified bool) *html.Node {
	usable := st.stxInfoValidForTableCell(n)
	symbol := c.single
	if usable && st.doc.Stx(n) == "row" {
		symbol = c.double
	}
	// A cell that ends up starting a line cannot use row syntax.
	if st.onSOL || (st.sep.constraints != nil && st.sep.constraints.min > 0) {
		symbol = strings.Replace(symbol, c.double, c.single, 1)
	}
	tag := st.serializeTableTag(symbol, "", false, n, wrapperUnmodified)
	inWide := strings.HasPrefix(tag, c.double) || strings.HasPrefix(tag, "{{!}}{{!}}")
	st.emitChunk(tag+st.leadingSpace(n, ""), n)
	st.serializeChildren(n, c.wrap(n, inWide))
	st.emitChunk(st.trailingSpace(n, ""), n)
	return n.NextSibling
}

func cellBefore(st *State, n, other *html.Node) nlConstraint {
	if st.doc.Stx(n) == "row" && st.stxInfoValidForTableCell(n) {
		return nl(0, 0)
	}
	return nl(1, st.maxNLsInTable(n, other))
}

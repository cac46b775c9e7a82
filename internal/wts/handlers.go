package wts

import (
	"regexp"
	"strings"

	"github.com/dgallion1/wtselser/internal/dom"
	"golang.org/x/net/html"
)

// handler is the wikitext production for one kind of element. handle
// emits n and returns the node to continue with; nil ends the walk of
// the current sibling list.
type handler interface {
	handle(st *State, n *html.Node, wrapperUnmodified bool) *html.Node
	before(st *State, n, other *html.Node) nlConstraint
	after(st *State, n, other *html.Node) nlConstraint
	firstChild(st *State, n, other *html.Node) nlConstraint
	lastChild(st *State, n, other *html.Node) nlConstraint
	forceSOL() bool
}

// baseHandler asks for nothing. Productions embed it and override what
// they need.
type baseHandler struct {
	sol bool
}

func (baseHandler) handle(st *State, n *html.Node, _ bool) *html.Node {
	st.serializeChildren(n, nil)
	return n.NextSibling
}

func (baseHandler) before(*State, *html.Node, *html.Node) nlConstraint     { return nlConstraint{} }
func (baseHandler) after(*State, *html.Node, *html.Node) nlConstraint      { return nlConstraint{} }
func (baseHandler) firstChild(*State, *html.Node, *html.Node) nlConstraint { return nlConstraint{} }
func (baseHandler) lastChild(*State, *html.Node, *html.Node) nlConstraint  { return nlConstraint{} }
func (h baseHandler) forceSOL() bool                                       { return h.sol }

var (
	textHandler   = baseHandler{}
	mwIncludesRe  = regexp.MustCompile(`^mw:Includes/`)
	listBulletsRe = regexp.MustCompile(`^[*#:;]{2,}$`)
)

// registry maps tag names to productions.
type registry map[string]handler

func defaultRegistry() registry {
	r := registry{
		"body":       bodyHandler{},
		"p":          pHandler{baseHandler{sol: true}},
		"br":         brHandler{},
		"hr":         hrHandler{baseHandler{sol: true}},
		"pre":        preHandler{baseHandler{sol: true}},
		"ul":         listHandler{baseHandler{sol: true}},
		"ol":         listHandler{baseHandler{sol: true}},
		"dl":         listHandler{baseHandler{sol: true}},
		"li":         listItemHandler{baseHandler{sol: true}},
		"dt":         listItemHandler{baseHandler{sol: true}},
		"dd":         ddHandler{listItemHandler{baseHandler{sol: true}}},
		"i":          quoteHandler{quote: "''"},
		"b":          quoteHandler{quote: "'''"},
		"a":          linkHandler{},
		"link":       linkHandler{},
		"meta":       metaHandler{},
		"span":       spanHandler{},
		"figure":     htmlTagHandler{},
		"table":      tableHandler{baseHandler{sol: true}},
		"tbody":      tbodyHandler{},
		"thead":      tbodyHandler{},
		"tfoot":      tbodyHandler{},
		"caption":    captionHandler{},
		"tr":         trHandler{},
		"td":         tdHandler{},
		"th":         thHandler{},
		"blockquote": htmlTagHandler{},
	}
	for lvl := 1; lvl <= 6; lvl++ {
		r["h"+string(rune('0'+lvl))] = headingHandler{baseHandler: baseHandler{sol: true}, marker: strings.Repeat("=", lvl)}
	}
	return r
}

// handlerFor resolves the production for n.
func (s *Serializer) handlerFor(st *State, n *html.Node) handler {
	if !dom.IsElement(n) {
		return textHandler
	}
	switch {
	case dom.IsElementNamed(n, "body"):
		return s.handlers["body"]
	case dom.IsFirstEncapsulationWrapper(n):
		return encapsulatedHandler{}
	case dom.IsDiffMarkerNode(n):
		return textHandler
	}
	if st.doc.IsLiteralHTML(n) && !dom.IsElementNamed(n, "a", "link", "meta", "span") {
		return htmlTagHandler{}
	}
	if st.inHTMLListOrTable(n) {
		return htmlTagHandler{}
	}
	if h, ok := s.handlers[n.Data]; ok {
		return h
	}
	if allowedLiteralTags[n.Data] {
		return htmlTagHandler{}
	}
	return unknownHandler{}
}

// inHTMLListOrTable reports whether n is a new list item or table part
// whose container is written as literal HTML.
func (st *State) inHTMLListOrTable(n *html.Node) bool {
	if !st.doc.IsNew(n) || n.Parent == nil {
		return false
	}
	p := n.Parent
	for st.isBuilderInserted(p) {
		p = p.Parent
	}
	switch {
	case dom.IsListItem(n):
		return dom.IsList(p) && st.doc.IsLiteralHTML(p)
	case dom.IsElementNamed(n, "tr", "td", "th", "caption", "tbody"):
		return dom.IsElementNamed(p, "table", "tbody", "tr") && st.doc.IsLiteralHTML(p)
	}
	return false
}

func (st *State) isBuilderInserted(n *html.Node) bool {
	if !dom.IsElement(n) {
		return false
	}
	dp := st.doc.DataParsoid(n)
	return dp != nil && dp.AutoInsertedStart && dp.AutoInsertedEnd
}

// wtListEOL is the newline bound after a list or list item.
func (st *State) wtListEOL(n, other *html.Node) nlConstraint {
	if !dom.IsElement(other) || dom.IsElementNamed(other, "body") {
		return nl(0, 2)
	}
	if dom.IsFirstEncapsulationWrapper(other) {
		if dom.IsList(n) {
			return nl(1, 2)
		}
		return nl(0, 2)
	}

	next := dom.NextNonSepSibling(n)
	dp := st.doc.DataParsoidOrEmpty(other)
	switch {
	case (next == other && dp.Stx == "html") || dp.Src != "":
		return nl(0, 2)
	case next == other && (dom.IsList(other) || dom.IsListItem(other)):
		switch {
		case dom.IsList(n) && other.Data == n.Data:
			return nl(2, 2)
		case dom.IsListItem(n) || dom.IsElementNamed(n.Parent, "li", "dd"):
			return nl(1, 1)
		default:
			return nl(1, 2)
		}
	case dom.IsList(other) || dp.Stx == "html":
		return nlConstraint{}
	case dom.IsBlock(n.Parent) && dom.LastNonSepChild(n.Parent) == n:
		return nl(1, 2)
	case dom.IsFormattingElt(other):
		return nl(1, 1)
	}
	return nl(2, 2)
}

var (
	parentBullets = map[string]string{"ul": "*", "ol": "#"}
	listBullets   = map[string]string{"ul": "", "ol": "", "dl": "", "li": "", "dt": ";", "dd": ":"}
)

// listBullets builds the bullet chain for n from its list ancestors.
func (st *State) listBullets(n *html.Node) string {
	space := st.leadingSpace(n, " ")
	var res string
	for ; n != nil && dom.IsElement(n); n = n.Parent {
		dp := st.doc.DataParsoidOrEmpty(n)
		bullet, isList := listBullets[n.Data]
		switch {
		case dp.Stx != "html" && isList:
			if n.Data != "li" {
				res = bullet + res
				continue
			}
			p := n.Parent
			for p != nil && parentBullets[p.Data] == "" {
				p = p.Parent
			}
			if p == nil {
				st.fault(KindDataFault, "li", errTopLevelListItem)
				continue
			}
			res = parentBullets[p.Data] + res
		case dp.Stx != "html" || !dp.AutoInsertedStart || !dp.AutoInsertedEnd:
			return withSpace(res, space)
		}
	}
	return withSpace(res, space)
}

func withSpace(bullets, space string) string {
	if bullets == "" {
		return ""
	}
	return bullets + space
}

// leadingSpace is the space written after an opening marker such as a
// bullet or a heading's equals signs.
func (st *State) leadingSpace(n *html.Node, def string) string {
	fc := dom.FirstNonDeletedChild(n)
	if st.doc.IsNew(n) {
		if fc != nil && (!dom.IsText(fc) || !startsWithSpace(fc.Data)) {
			return def
		}
		return ""
	}
	if st.selser && (fc == nil || !dom.IsElement(fc)) {
		d := st.doc.DSR(n)
		if d.Valid() && d.ValidTagWidths() {
			off := d.InnerStart()
			if off < d.InnerEnd() {
				if s, ok := st.origSrc(off, off+1); ok && (s == " " || s == "\t") {
					return s
				}
			}
		}
	}
	return ""
}

// trailingSpace is the counterpart of leadingSpace before a closing
// marker.
func (st *State) trailingSpace(n *html.Node, def string) string {
	lc := dom.LastNonDeletedChild(n)
	if st.doc.IsNew(n) {
		if lc != nil && (!dom.IsText(lc) || !endsWithSpace(lc.Data)) {
			return def
		}
		return ""
	}
	if st.selser && (lc == nil || !dom.IsElement(lc)) {
		d := st.doc.DSR(n)
		if d.Valid() && d.ValidTagWidths() {
			off := d.InnerEnd() - 1
			if off > d.InnerStart() {
				if s, ok := st.origSrc(off, off+1); ok && (s == " " || s == "\t") {
					return s
				}
			}
		}
	}
	return ""
}

func startsWithSpace(s string) bool {
	return s != "" && strings.ContainsAny(s[:1], " \t\r\n\f")
}

func endsWithSpace(s string) bool {
	return s != "" && strings.ContainsAny(s[len(s)-1:], " \t\r\n\f")
}

// emitPlaceholderSrc writes the recorded source of an uneditable node.
func (st *State) emitPlaceholderSrc(n *html.Node) {
	src := st.doc.DataParsoidOrEmpty(n).Src
	if selfClosingNowikiRe.MatchString(src) {
		st.hasSelfClosingNowikis = true
	}
	if strings.Trim(src, "\n") == "" && src != "" {
		st.appendSep(src)
		return
	}
	st.emitWikitext(src, n)
}

// bodyHandler serializes the document root.
type bodyHandler struct{ baseHandler }

func (bodyHandler) firstChild(*State, *html.Node, *html.Node) nlConstraint { return nl(0, 0) }
func (bodyHandler) lastChild(*State, *html.Node, *html.Node) nlConstraint  { return nl(0, 0) }

// htmlTagHandler writes an element as literal HTML tags.
type htmlTagHandler struct{ baseHandler }

func (htmlTagHandler) handle(st *State, n *html.Node, wrapperUnmodified bool) *html.Node {
	st.emitChunk(st.serializeHTMLTag(n, wrapperUnmodified), n)
	if !voidElements[n.Data] {
		st.serializeChildren(n, nil)
	}
	st.emitChunk(st.serializeHTMLEndTag(n, wrapperUnmodified), n)
	return n.NextSibling
}

func (htmlTagHandler) before(st *State, n, other *html.Node) nlConstraint {
	if st.doc.IsNew(n) && dom.IsBlock(n) && other != n.Parent && !dom.IsElementNamed(other, "body") {
		return nl(1, 2)
	}
	return nlConstraint{}
}

func (htmlTagHandler) after(st *State, n, other *html.Node) nlConstraint {
	if st.doc.IsNew(n) && dom.IsBlock(n) && other != n.Parent && !dom.IsElementNamed(other, "body") {
		return nl(1, 2)
	}
	return nlConstraint{}
}

// unknownHandler writes tags wikitext has no production for as escaped
// HTML so nothing is lost.
type unknownHandler struct{ baseHandler }

func (unknownHandler) handle(st *State, n *html.Node, _ bool) *html.Node {
	st.fault(KindUnknownProduction, n.Data, nil)
	blob := dom.OuterHTML(n)
	st.emitWikitext("<nowiki>"+escapeNowikiTags(blob)+"</nowiki>", n)
	return n.NextSibling
}

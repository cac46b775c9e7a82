package wts

import (
	"html"
	"strings"

	"github.com/dgallion1/wtselser/internal/dom"
	xhtml "golang.org/x/net/html"
)

// quoteHandler writes '' and ''' runs.
type quoteHandler struct {
	baseHandler
	quote string
}

func (h quoteHandler) handle(st *State, n *xhtml.Node, _ bool) *xhtml.Node {
	if precedingQuoteNeedsEscape(n) {
		st.emitWikitext("<nowiki/>", n)
	}
	st.emitChunk(h.quote, n)
	if dom.FirstNonDeletedChild(n) == nil {
		st.emitWikitext("<nowiki/>", n)
	} else {
		st.serializeChildren(n, nil)
		// Adjacent runs of the same kind share one pair of quotes.
		for next := n.NextSibling; st.continuesQuoteRun(n, next); next = next.NextSibling {
			st.serializeChildren(next, nil)
			n = next
		}
	}
	st.emitChunk(h.quote, n)
	return n.NextSibling
}

// continuesQuoteRun reports whether next can be written inside the quotes
// already opened for n. Both must end and start in plain text, and next
// must not be due for a copy from the source.
func (st *State) continuesQuoteRun(n, next *xhtml.Node) bool {
	if !dom.IsElementNamed(next, n.Data) || st.doc.IsLiteralHTML(n) || st.doc.IsLiteralHTML(next) ||
		st.serializeAttributes(n) != st.serializeAttributes(next) {
		return false
	}
	if st.selser && !st.inModifiedContent && !st.doc.IsNew(next) && !st.marks.HasAny(next) {
		return false
	}
	last, first := n.LastChild, next.FirstChild
	if !dom.IsText(last) || !dom.IsText(first) || last.Data == "" || first.Data == "" {
		return false
	}
	return !strings.HasSuffix(last.Data, "'") && !strings.HasPrefix(first.Data, "'")
}

// precedingQuoteNeedsEscape reports whether n directly follows a quote
// of the same kind: ''a''''b'' would not read back as two runs.
func precedingQuoteNeedsEscape(n *xhtml.Node) bool {
	prev := dom.PreviousNonDeletedSibling(n)
	for prev != nil && dom.IsElement(prev) && prev.LastChild != nil && !dom.IsQuoteElt(prev) {
		prev = prev.LastChild
	}
	if !dom.IsQuoteElt(prev) {
		return false
	}
	if prev.Data == n.Data {
		return true
	}
	last := dom.LastNonDeletedChild(prev)
	return dom.IsQuoteElt(last) && last.Data == n.Data
}

// spanHandler covers the typed spans the parser emits for entities,
// nowikis and placeholders. Other spans are plain HTML.
type spanHandler struct{ baseHandler }

func (spanHandler) handle(st *State, n *xhtml.Node, wrapperUnmodified bool) *xhtml.Node {
	dp := st.doc.DataParsoidOrEmpty(n)
	unedited := !st.doc.IsNew(n) && !st.marks.HasAny(n)
	switch {
	case dom.HasTypeOf(n, "mw:Entity"):
		text := dom.TextContent(n)
		if dp.Src != "" && html.UnescapeString(dp.Src) == text {
			st.emitWikitext(dp.Src, n)
		} else {
			st.serializeText(text, n, false)
		}
	case dom.HasTypeOf(n, "mw:Nowiki"):
		if dp.Src != "" && unedited {
			st.emitWikitext(dp.Src, n)
			break
		}
		text := escapeNowikiTags(dom.TextContent(n))
		st.emitWikitext("<nowiki>"+text+"</nowiki>", n)
	case dom.HasTypeOf(n, "mw:Placeholder"):
		st.emitPlaceholderSrc(n)
	case dom.HasTypeOf(n, "mw:FallbackId"):
	case dom.HasTypeOf(n, "mw:DisplaySpace"):
		st.emitWikitext(" ", n)
	case st.doc.IsLiteralHTML(n) || len(n.Attr) > 0:
		return htmlTagHandler{}.handle(st, n, wrapperUnmodified)
	default:
		st.serializeChildren(n, nil)
	}
	return n.NextSibling
}

// metaHandler writes behaviour switches, include markers and default
// sort keys. Metas without a wikitext form produce nothing.
type metaHandler struct{ baseHandler }

func (metaHandler) handle(st *State, n *xhtml.Node, wrapperUnmodified bool) *xhtml.Node {
	dp := st.doc.DataParsoidOrEmpty(n)
	typeOf, _ := dom.TypeOfWithPrefix(n, "mw:")
	property := dom.Attr(n, "property")

	switch {
	case st.doc.IsLiteralHTML(n):
		return htmlTagHandler{}.handle(st, n, wrapperUnmodified)
	case property == "mw:PageProp/categorydefaultsort":
		if dp.Src != "" && !st.marks.HasAny(n) {
			st.emitWikitext(dp.Src, n)
		} else {
			st.emitWikitext("{{DEFAULTSORT:"+dom.Attr(n, "content")+"}}", n)
		}
	case dom.IsBehaviorSwitch(n):
		if dp.Src != "" {
			st.emitWikitext(dp.Src, n)
		} else {
			name := strings.TrimPrefix(typeOf, "mw:PageProp/")
			st.emitWikitext("__"+strings.ToUpper(name)+"__", n)
		}
	case strings.HasPrefix(typeOf, "mw:Includes/"):
		if dp.Src != "" {
			st.emitWikitext(dp.Src, n)
			break
		}
		tag := strings.ToLower(strings.TrimPrefix(typeOf, "mw:Includes/"))
		if name, ok := strings.CutSuffix(tag, "/end"); ok {
			st.emitWikitext("</"+name+">", n)
		} else {
			st.emitWikitext("<"+tag+">", n)
		}
	case typeOf == "mw:Placeholder":
		st.emitPlaceholderSrc(n)
	}
	return n.NextSibling
}

func (metaHandler) before(st *State, n, other *xhtml.Node) nlConstraint {
	if dom.IsBehaviorSwitch(n) && st.doc.IsNew(n) {
		return nl(1, 2)
	}
	return nlConstraint{}
}

func (metaHandler) after(st *State, n, other *xhtml.Node) nlConstraint {
	if dom.IsBehaviorSwitch(n) && st.doc.IsNew(n) {
		return nl(1, 2)
	}
	return nlConstraint{}
}

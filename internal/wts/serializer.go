// Package wts writes an annotated DOM back out as wikitext. In selective
// mode, regions the diff left unmarked are copied from the original
// source and only edited regions are regenerated.
package wts

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/dgallion1/wtselser/internal/diff"
	"github.com/dgallion1/wtselser/internal/dom"
	"github.com/dgallion1/wtselser/internal/templatedata"
	"golang.org/x/net/html"
)

// Options are the per-request serializer flags.
type Options struct {
	// RTTestMode turns off heuristics that make round-trip tests noisy.
	RTTestMode bool
	// InTemplate is set when the content is itself a template body.
	InTemplate bool
}

// SelserData is the original revision a DOM was edited from.
type SelserData struct {
	Wikitext string
}

// Result is the output of one serialization.
type Result struct {
	Wikitext string
	// Selser is true when original source was available for reuse.
	Selser bool
	Faults []*Fault
}

// Serializer converts DOMs to wikitext. It holds no per-document state
// and may be shared between goroutines.
type Serializer struct {
	opts     Options
	tpl      templatedata.Provider
	log      *slog.Logger
	handlers registry
}

// New builds a Serializer. tpl may be nil, in which case new template
// parameters are laid out with the default formats.
func New(opts Options, tpl templatedata.Provider, log *slog.Logger) *Serializer {
	return &Serializer{
		opts:     opts,
		tpl:      tpl,
		log:      logger(log),
		handlers: defaultRegistry(),
	}
}

var (
	sepPrefixRe         = regexp.MustCompile(`^[ \t]*\n+[ \t\r\n]*`)
	sepSuffixRe         = regexp.MustCompile(`\n[ \t\r\n]*$`)
	selfClosingNowikiRe = regexp.MustCompile(`<nowiki\s*/>`)
	trailingNowikiRe    = regexp.MustCompile(`(?m)^([^=\n]*?)(?:<nowiki\s*/>\s*)+$`)
	parsoidIDRe         = regexp.MustCompile(`^mw[\w-]{2,}$`)
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// Serialize writes doc as wikitext. When sel is non-nil, marks must be
// the diff of doc against the DOM of sel.Wikitext; unmarked regions are
// then copied from sel.Wikitext. The only error is cancellation of ctx.
func (s *Serializer) Serialize(ctx context.Context, doc *dom.Document, marks *diff.Markers, sel *SelserData) (*Result, error) {
	if doc == nil || doc.Body == nil {
		panic("wts: nil document root")
	}
	selser := sel != nil
	src := ""
	if selser {
		src = sel.Wikitext
		if marks == nil {
			marks = diff.NewMarkers()
		}
	}
	st := newState(ctx, s, doc, marks, src, selser)
	out, err := s.serializeDOM(st, doc.Body)
	if err != nil {
		return nil, err
	}
	return &Result{Wikitext: out, Selser: selser, Faults: st.faults}, nil
}

// Render serializes the children of root from scratch. It satisfies
// normalize.Renderer.
func (s *Serializer) Render(ctx context.Context, doc *dom.Document, root *html.Node) (string, error) {
	if doc == nil || root == nil {
		panic("wts: nil render root")
	}
	st := newState(ctx, s, doc, nil, "", false)
	st.root = root
	return s.serializeDOM(st, root)
}

func (s *Serializer) serializeDOM(st *State, root *html.Node) (string, error) {
	st.kickOff(root, nil)
	if st.err != nil {
		return "", st.err
	}
	out := st.out.String()
	if st.selser || st.hasSelfClosingNowikis {
		out = trailingNowikiRe.ReplaceAllString(out, "$1")
	}
	st.log.Debug("serialized document",
		"selser", st.selser,
		"bytes", len(out),
		"faults", len(st.faults),
	)
	return out, nil
}

// serializeNode emits n and returns the next node to visit.
func (s *Serializer) serializeNode(st *State, n *html.Node) *html.Node {
	var h handler
	switch n.Type {
	case html.ElementNode:
		if dom.IsDiffMarkerNode(n) {
			st.updateModificationFlags(n)
			st.updateSep(n)
			return n.NextSibling
		}
		h = s.handlerFor(st, n)
	case html.TextNode:
		if !st.inIndentPre && dom.IsWhitespace(n.Data) {
			st.appendSep(n.Data)
			return n.NextSibling
		}
		h = textHandler
		if st.selser {
			prev := n.PrevSibling
			st.currNodeUnmodified = !st.inModifiedContent && !st.marks.HasAny(n) &&
				((prev == nil && n.Parent == st.root) || (prev != nil && !dom.IsDiffMarkerNode(prev)))
		}
	case html.CommentNode:
		st.appendSep(commentWT(n.Data))
		return n.NextSibling
	default:
		return n.NextSibling
	}

	prev := dom.PreviousNonSepSibling(n)
	if prev == nil {
		prev = n.Parent
	}
	st.updateSeparatorConstraints(prev, s.handlerFor(st, prev), n, h)

	var next *html.Node
	if n.Type == html.ElementNode {
		next = s.serializeDOMNode(st, n, h)
	} else {
		st.serializeText(n.Data, n, false)
		next = n.NextSibling
	}

	after := dom.NextNonSepSibling(n)
	if after == nil {
		after = n.Parent
	}
	if after != nil {
		st.updateSeparatorConstraints(n, h, after, s.handlerFor(st, after))
	}
	st.updateModificationFlags(n)
	return next
}

// serializeDOMNode copies n from the original source when it is
// unmodified and dispatches to its production otherwise.
func (s *Serializer) serializeDOMNode(st *State, n *html.Node, h handler) *html.Node {
	wrapperUnmodified := false
	dp := st.doc.DataParsoid(n)

	if st.selser && !st.inModifiedContent && dp != nil && dp.DSR.Valid() &&
		st.origSrcValidInEditedContext(n) &&
		(dp.DSR.End > dp.DSR.Start ||
			(dom.IsElementNamed(n, "p", "br") && dp.DSR.End == dp.DSR.Start) ||
			dp.Fostered || dp.Misnested) {
		if !st.marks.HasAny(n) {
			if src, ok := st.origSrc(dp.DSR.Start, dp.DSR.End); ok {
				return s.reuseSource(st, n, src)
			}
			st.fault(KindSelserInconsistency, n.Data,
				fmt.Errorf("source range [%d,%d) outside %d bytes", dp.DSR.Start, dp.DSR.End, len(st.src)))
		} else {
			autoInserted := dp.AutoInsertedStart || dp.AutoInsertedEnd
			tagsInSource := dp.DSR.ValidTagWidths() && dp.DSR.End <= len(st.src)
			wrapperUnmodified = st.marks.OnlySubtreeChanged(n) && tagsInSource &&
				(!autoInserted || dom.IsElementNamed(n, "td", "th", "tr"))
			if _, literal := h.(htmlTagHandler); literal && tagsInSource && !autoInserted &&
				st.marks.OnlyWrapperChanged(n) {
				if inner, ok := st.origSrc(dp.DSR.InnerStart(), dp.DSR.InnerEnd()); ok {
					return s.reuseInnerSource(st, n, inner)
				}
			}
		}
	}

	st.currNodeUnmodified = false
	saved := st.inModifiedContent
	if st.selser && st.marks.Has(n, diff.Inserted) {
		st.inModifiedContent = true
	}
	next := h.handle(st, n, wrapperUnmodified)
	st.inModifiedContent = saved
	return next
}

// reuseInnerSource writes fresh tags for n around its original content.
func (s *Serializer) reuseInnerSource(st *State, n *html.Node, inner string) *html.Node {
	st.currNodeUnmodified = false
	st.emitChunk(st.serializeHTMLTag(n, false), n)
	st.emitChunk(inner, n)
	st.emitChunk(st.serializeHTMLEndTag(n, false), n)
	return n.NextSibling
}

func (s *Serializer) reuseSource(st *State, n *html.Node, src string) *html.Node {
	st.currNodeUnmodified = true

	// A wrapper with no markup of its own separates its first child, not
	// itself, from what came before.
	if c := st.sep.constraints; c != nil && c.kind == sepSibling &&
		n.FirstChild != nil && st.zeroWidthWikitext(n) {
		c.onSOL = st.onSOL
		c.kind = sepParentChild
		c.a, c.b = n, n.FirstChild
	}

	disable := dom.IsFirstEncapsulationWrapper(n) || dom.IsList(n) ||
		(dom.IsElementNamed(n, "table") && dom.IsElementNamed(n.Parent, "dd") && dom.PreviousNonSepSibling(n) == nil)
	if disable {
		st.singleLine.disable()
	}
	st.emitChunk(src, n)
	if disable {
		st.singleLine.pop()
	}

	if dom.IsFirstEncapsulationWrapper(n) {
		return dom.NextAfterEncapsulated(n)
	}
	return n.NextSibling
}

// serializeText emits running text. Newline runs at either end are
// moved into the separator.
func (st *State) serializeText(text string, n *html.Node, omitEscaping bool) {
	suffix := sepSuffixRe.FindString(text)
	text = text[:len(text)-len(suffix)]
	if !st.inIndentPre {
		if prefix := sepPrefixRe.FindString(text); prefix != "" {
			st.appendSep(prefix)
			text = text[len(prefix):]
		}
	}
	if !omitEscaping {
		text = escapeEntities(text)
		st.escapeText = (st.onSOL || !st.currNodeUnmodified) && !st.inHTMLPre
	}
	st.emitChunk(text, n)
	st.escapeText = false
	if suffix != "" && st.sep.src == "" {
		st.appendSep(suffix)
	}
}

// emitWikitext emits text that is already wikitext.
func (st *State) emitWikitext(text string, n *html.Node) {
	st.serializeText(text, n, true)
}

// serializeHTMLTag writes the start tag of a literal HTML element.
func (st *State) serializeHTMLTag(n *html.Node, wrapperUnmodified bool) string {
	if n.Data == "pre" {
		st.inHTMLPre = true
	}
	if wrapperUnmodified {
		d := st.doc.DSR(n)
		src, _ := st.origSrc(d.Start, d.InnerStart())
		return src
	}
	if st.doc.DataParsoidOrEmpty(n).AutoInsertedStart {
		return ""
	}
	attrs := st.serializeAttributes(n)
	if attrs != "" {
		attrs = " " + attrs
	}
	if voidElements[n.Data] {
		return "<" + n.Data + attrs + " />"
	}
	return "<" + n.Data + attrs + ">"
}

// serializeHTMLEndTag writes the end tag of a literal HTML element.
func (st *State) serializeHTMLEndTag(n *html.Node, wrapperUnmodified bool) string {
	if n.Data == "pre" {
		st.inHTMLPre = false
	}
	if wrapperUnmodified {
		d := st.doc.DSR(n)
		src, _ := st.origSrc(d.InnerEnd(), d.End)
		return src
	}
	if st.doc.DataParsoidOrEmpty(n).AutoInsertedEnd || voidElements[n.Data] {
		return ""
	}
	return "</" + n.Data + ">"
}

// serializeAttributes writes n's visible attributes. Parser bookkeeping
// and generated ids are left out.
func (st *State) serializeAttributes(n *html.Node) string {
	var out []string
	for _, a := range n.Attr {
		k, v := a.Key, a.Val
		switch k {
		case "data-parsoid", "data-mw", "data-parsoid-diff", "data-ve-changed":
			continue
		case "id":
			if parsoidIDRe.MatchString(v) || (dom.HeadingLevel(n) > 0 && !st.doc.IsLiteralHTML(n)) {
				continue
			}
		case "about":
			if strings.HasPrefix(v, "#mwt") {
				continue
			}
		case "typeof":
			v = dropTokens(v, func(t string) bool { return strings.HasPrefix(t, "mw:") })
			if v == "" {
				continue
			}
		case "class":
			v = dropTokens(v, func(t string) bool { return t == "mw-empty-elt" })
			if v == "" {
				continue
			}
		}
		if v == "" {
			out = append(out, k+`=""`)
			continue
		}
		out = append(out, k+`="`+escapeAttrValue(v)+`"`)
	}
	return strings.Join(out, " ")
}

func escapeAttrValue(v string) string {
	v = escapeEntities(v)
	v = strings.ReplaceAll(v, ">", "&gt;")
	return strings.ReplaceAll(v, `"`, "&quot;")
}

func dropTokens(v string, drop func(string) bool) string {
	var keep []string
	for _, t := range strings.Fields(v) {
		if !drop(t) {
			keep = append(keep, t)
		}
	}
	return strings.Join(keep, " ")
}

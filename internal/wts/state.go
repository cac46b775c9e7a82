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

var (
	solRe = regexp.MustCompile(`(?:^|\n)(?:<!--[\s\S]*?-->)*$`)

	// Leading characters of an unedited paragraph that would be read as
	// markup once the paragraph ends up at the start of a line.
	solSensitiveRe      = regexp.MustCompile(`^(?:[*#:;]|\{\||.*=$)`)
	solTableSensitiveRe = regexp.MustCompile(`^[|!]`)
	solIndentPreRe      = regexp.MustCompile(`^ [^\s]`)
	leadingMetaRe       = regexp.MustCompile(`^(?:<!--[\s\S]*?-->|\[\[Category:[^\]]*\]\])*`)
)

// separator is the whitespace waiting to be flushed before the next chunk.
type separator struct {
	src            string
	constraints    *sepConstraints
	lastSourceNode *html.Node
}

type currLine struct {
	text      strings.Builder
	firstNode *html.Node
}

// singleLineContext tracks nested regions that must not emit newlines.
// A disabled entry shadows the enforced entries below it.
type singleLineContext struct {
	stack []bool
}

func (c *singleLineContext) enforce()       { c.stack = append(c.stack, true) }
func (c *singleLineContext) disable()       { c.stack = append(c.stack, false) }
func (c *singleLineContext) enforced() bool { return len(c.stack) > 0 && c.stack[len(c.stack)-1] }

func (c *singleLineContext) pop() {
	if len(c.stack) > 0 {
		c.stack = c.stack[:len(c.stack)-1]
	}
}

// escaper reports whether text must be wrapped in nowiki as a whole to
// survive in one syntactic context.
type escaper func(st *State, text string, n *html.Node) bool

// State is the mutable state of one serialization. It is not safe for
// concurrent use and is discarded when the run ends.
type State struct {
	ctx    context.Context
	ser    *Serializer
	doc    *dom.Document
	marks  *diff.Markers
	root   *html.Node
	src    string
	selser bool
	log    *slog.Logger
	tpl    *templatedata.Cache

	faults []*Fault
	err    error

	out  *strings.Builder
	sep  separator
	line currLine

	onSOL           bool
	atStartOfOutput bool
	escapeText      bool

	inModifiedContent  bool
	currNodeUnmodified bool
	prevNodeUnmodified bool
	prevNode           *html.Node

	inIndentPre      bool
	inHTMLPre        bool
	inLink           bool
	inCaption        bool
	inAttribute      bool
	wikiTableNesting int

	singleLine singleLineContext
	escapers   []escaper

	hasSelfClosingNowikis bool
}

func newState(ctx context.Context, s *Serializer, doc *dom.Document, marks *diff.Markers, src string, selser bool) *State {
	return &State{
		ctx:             ctx,
		ser:             s,
		doc:             doc,
		marks:           marks,
		root:            doc.Body,
		src:             src,
		selser:          selser,
		log:             s.log,
		tpl:             templatedata.NewCache(s.tpl),
		out:             &strings.Builder{},
		onSOL:           true,
		atStartOfOutput: true,
	}
}

// origSrc slices the original wikitext.
func (st *State) origSrc(start, end int) (string, bool) {
	if start < 0 || end < start || end > len(st.src) {
		return "", false
	}
	return st.src[start:end], true
}

func (st *State) appendSep(text string) {
	st.sep.src += text
}

// updateSep records n as the last node whose source position bounds the
// pending separator.
func (st *State) updateSep(n *html.Node) {
	st.sep.lastSourceNode = n
}

func (st *State) resetSep() {
	st.sep.constraints = nil
	st.sep.src = ""
}

func (st *State) resetCurrLine(n *html.Node) {
	st.line.text.Reset()
	st.line.firstNode = n
}

func (st *State) updateModificationFlags(n *html.Node) {
	st.prevNodeUnmodified = st.currNodeUnmodified
	st.currNodeUnmodified = false
	st.prevNode = n
}

// sepIntroducedSOL updates onSOL after sep has been written.
func (st *State) sepIntroducedSOL(sep string) {
	if strings.HasSuffix(commentRe.ReplaceAllString(sep, ""), "\n") {
		st.onSOL = true
	}
}

func (st *State) emitSep(sep string, n *html.Node) {
	if st.singleLine.enforced() {
		sep = strings.ReplaceAll(sep, "\n", " ")
	}
	st.out.WriteString(sep)
	st.line.text.WriteString(sep)
	st.resetSep()
	st.updateSep(n)
	st.sepIntroducedSOL(sep)
}

// emitSepForNode flushes the pending separator in front of n, reusing the
// original text when both neighbours are unmodified.
func (st *State) emitSepForNode(n *html.Node) {
	again := n == st.sep.lastSourceNode
	prev := st.prevNode
	origSepUsable := !again && prev != nil &&
		st.prevNodeUnmodified && !st.nextToDeletedBlock(prev, true) &&
		st.currNodeUnmodified && !st.nextToDeletedBlock(n, false)

	if origSepUsable {
		origSep, ok := "", false
		if dom.IsElement(prev) && dom.IsElement(n) {
			dsrA, dsrB := st.doc.DSR(prev), st.doc.DSR(n)
			if dsrA.Valid() && dsrB.Valid() {
				origSep, ok = st.origSrc(dsrA.End, dsrB.Start)
			}
		} else {
			origSep, ok = st.sep.src, true
		}
		if ok && isValidSep(origSep) {
			st.emitSep(origSep, n)
			return
		}
	}

	sep, _ := st.buildSep(n)
	st.emitSep(sep, n)
}

// emitChunk writes text produced for n, preceded by the pending
// separator.
func (st *State) emitChunk(text string, n *html.Node) {
	if st.singleLine.enforced() {
		text = strings.ReplaceAll(text, "\n", " ")
	}
	st.emitSepForNode(n)

	if st.onSOL {
		st.resetCurrLine(n)
	}

	switch {
	case st.escapeText:
		text = st.escapeWikitext(text, n)
		st.escapeText = false
	case st.selser && st.onSOL && st.currNodeUnmodified && !st.prevNodeUnmodified:
		text = st.protectSOLParagraph(text, n)
	}

	st.line.text.WriteString(text)
	st.out.WriteString(text)

	if text != "" {
		st.onSOL = solRe.MatchString(text)
		st.atStartOfOutput = false
	}
}

// protectSOLParagraph nowikis the first character of an unedited
// paragraph that now starts a line and would otherwise parse as markup.
func (st *State) protectSOLParagraph(text string, n *html.Node) string {
	if !dom.IsElementNamed(n, "p") || st.doc.IsLiteralHTML(n) {
		return text
	}
	if !dom.IsText(dom.FirstNonSepChild(n)) {
		return text
	}
	prefix := leadingMetaRe.FindString(text)
	rest := text[len(prefix):]
	firstLine, _, _ := strings.Cut(rest, "\n")
	sensitive := solSensitiveRe.MatchString(firstLine) ||
		(st.wikiTableNesting > 0 && solTableSensitiveRe.MatchString(firstLine)) ||
		(solIndentPreRe.MatchString(firstLine) && !st.hasBlockquoteAncestor(n))
	if !sensitive || rest == "" {
		return text
	}
	return prefix + "<nowiki>" + rest[:1] + "</nowiki>" + rest[1:]
}

func (st *State) hasBlockquoteAncestor(n *html.Node) bool {
	for p := n.Parent; p != nil && p != st.root; p = p.Parent {
		if dom.IsElementNamed(p, "blockquote") {
			return true
		}
	}
	return false
}

// origSrcValidInEditedContext reports whether n's original source still
// means the same thing next to its current neighbours. Row-syntax table
// cells (a||b) depend on the cell before them.
func (st *State) origSrcValidInEditedContext(n *html.Node) bool {
	if !dom.IsElementNamed(n, "td", "th") || st.doc.Stx(n) != "row" {
		return true
	}
	prev := dom.PreviousNonDeletedSibling(n)
	for prev != nil && dom.IsSeparator(prev) {
		prev = dom.PreviousNonDeletedSibling(prev)
	}
	return dom.IsElement(prev) && prev.Data == n.Data
}

// serializeChildren serializes n's children in order, pushing esc for
// the text they contain.
func (st *State) serializeChildren(n *html.Node, esc escaper) {
	if esc != nil {
		st.escapers = append(st.escapers, esc)
	}
	for child := n.FirstChild; child != nil; {
		if n == st.root && st.ctx != nil {
			if err := st.ctx.Err(); err != nil {
				st.err = fmt.Errorf("serialize: %w", err)
				break
			}
		}
		if st.err != nil {
			break
		}
		child = st.ser.serializeNode(st, child)
	}
	if esc != nil {
		st.escapers = st.escapers[:len(st.escapers)-1]
	}
	st.currNodeUnmodified = false
}

// kickOff serializes the children of n as a unit, flushing the trailing
// separator against n itself.
func (st *State) kickOff(n *html.Node, esc escaper) {
	st.updateSep(n)
	st.currNodeUnmodified = false
	st.updateModificationFlags(n)
	st.resetCurrLine(n.FirstChild)
	st.serializeChildren(n, esc)
	st.emitChunk("", n)
}

// serializeChildrenToString serializes n's children into a detached
// buffer. flag is raised for the duration, e.g. &st.inLink.
func (st *State) serializeChildrenToString(n *html.Node, esc escaper, flag *bool) string {
	saved := struct {
		out                      *strings.Builder
		sep                      separator
		onSOL, atStart           bool
		lineText                 string
		lineFirst                *html.Node
		currUnmodified, prevUnmo bool
		prevNode                 *html.Node
	}{
		st.out, st.sep, st.onSOL, st.atStartOfOutput,
		st.line.text.String(), st.line.firstNode,
		st.currNodeUnmodified, st.prevNodeUnmodified, st.prevNode,
	}
	var oldFlag bool
	if flag != nil {
		oldFlag = *flag
		*flag = true
	}

	st.out = &strings.Builder{}
	st.sep = separator{}
	st.onSOL = false
	st.atStartOfOutput = false
	st.kickOff(n, esc)
	bits := st.out.String()

	if flag != nil {
		*flag = oldFlag
	}
	st.out = saved.out
	st.sep = saved.sep
	st.onSOL = saved.onSOL
	st.atStartOfOutput = saved.atStart
	st.line.text.Reset()
	st.line.text.WriteString(saved.lineText)
	st.line.firstNode = saved.lineFirst
	st.currNodeUnmodified = saved.currUnmodified
	st.prevNodeUnmodified = saved.prevUnmo
	st.prevNode = saved.prevNode
	return bits
}

// currentEscaper is the innermost context escaper, or nil for running
// text.
func (st *State) currentEscaper() escaper {
	if len(st.escapers) == 0 {
		return nil
	}
	return st.escapers[len(st.escapers)-1]
}

// escapeWikitext makes text safe in the current context.
func (st *State) escapeWikitext(text string, n *html.Node) string {
	opts := escapeOpts{node: n}
	if n != nil {
		opts.isLastChild = dom.NextNonDeletedSibling(n) == nil
	}
	return escapeText(st, text, opts)
}

package wts

import (
	"regexp"
	"strings"

	"github.com/dgallion1/wtselser/internal/diff"
	"github.com/dgallion1/wtselser/internal/dom"
	"golang.org/x/net/html"
)

// nlConstraint is what a handler asks for between itself and a
// neighbour. The zero value expresses no preference.
type nlConstraint struct {
	min, max       int
	hasMin, hasMax bool
}

func nl(min, max int) nlConstraint {
	return nlConstraint{min: min, max: max, hasMin: true, hasMax: true}
}

type sepKind int

const (
	sepSibling sepKind = iota
	sepParentChild
	sepChildParent
)

// sepConstraints is the resolved bound on the pending separator plus
// the pair of nodes it sits between.
type sepConstraints struct {
	min, max int

	onSOL    bool
	forceSOL bool
	kind     sepKind
	a, b     *html.Node
}

var (
	commentRe         = regexp.MustCompile(`<!--[\s\S]*?-->`)
	commentLineRe     = regexp.MustCompile(`\n(?:[ \t]*<!--[\s\S]*?-->[ \t]*)+\n`)
	validSepRe        = regexp.MustCompile(`^(?:\s|<!--[\s\S]*?-->)*$`)
	wsCommentsSepRe   = regexp.MustCompile(`( +)(<!--[\s\S]*?-->[^\n]*)?$`)
	nlWsCommentsSepRe = regexp.MustCompile(`\n+ +(<!--[\s\S]*?-->[^\n]*)?$`)
)

// tagsRequiringSOL always start a wikitext line.
var tagsRequiringSOL = map[string]bool{
	"pre": true, "hr": true, "li": true, "dt": true, "dd": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

var childTableTags = map[string]bool{
	"tbody": true, "thead": true, "tfoot": true, "tr": true,
	"caption": true, "th": true, "td": true,
}

// combineNl resolves the constraint between a and b. On conflict b wins.
// The upper bound defaults to 2: more newlines start a new paragraph.
func combineNl(a, b nlConstraint) sepConstraints {
	minNl, maxNl, hasMax := 0, 0, a.hasMax
	if a.hasMin {
		minNl = a.min
	}
	if a.hasMax {
		maxNl = a.max
	}
	if b.hasMin {
		if hasMax && maxNl < b.min {
			minNl, maxNl = b.min, b.min
		} else {
			minNl = max(minNl, b.min)
		}
	}
	if b.hasMax {
		switch {
		case minNl > b.max:
			minNl, maxNl = b.max, b.max
		case hasMax:
			maxNl = min(maxNl, b.max)
		default:
			maxNl = b.max
		}
		hasMax = true
	}
	if !hasMax {
		maxNl = 2
	}
	return sepConstraints{min: minNl, max: maxNl}
}

// mergeConstraints folds a new bound into one still pending. The newer
// bound wins a conflict.
func mergeConstraints(old, nc sepConstraints) sepConstraints {
	res := sepConstraints{min: max(old.min, nc.min), max: min(old.max, nc.max)}
	if res.min > res.max {
		if nc.max > res.min {
			res.max = nc.max
		} else if nc.min > 0 && nc.min < res.min {
			res.min = nc.min
		}
		res.max = res.min
	}
	return res
}

// isValidSep reports whether s holds only whitespace and comments.
func isValidSep(s string) bool { return validSepRe.MatchString(s) }

// sepNewlines counts the newlines in sep that matter to the parser:
// newlines inside comments and those ending comment-only lines are
// ignored.
func sepNewlines(sep string) int {
	for {
		next := commentLineRe.ReplaceAllString(sep, "\n")
		if next == sep {
			break
		}
		sep = next
	}
	return strings.Count(commentRe.ReplaceAllString(sep, ""), "\n")
}

// updateSeparatorConstraints records the bound between a and b, merging
// it into whatever bound is already pending.
func (st *State) updateSeparatorConstraints(a *html.Node, ha handler, b *html.Node, hb handler) {
	var ac, bc nlConstraint
	var kind sepKind
	switch {
	case b.Parent == a:
		kind = sepParentChild
		ac = ha.firstChild(st, a, b)
		if dom.IsElement(b) {
			bc = hb.before(st, b, a)
		}
	case a.Parent == b:
		kind = sepChildParent
		if dom.IsElement(a) {
			ac = ha.after(st, a, b)
		}
		bc = hb.lastChild(st, b, a)
	default:
		kind = sepSibling
		if dom.IsElement(a) {
			ac = ha.after(st, a, b)
		}
		if dom.IsElement(b) {
			bc = hb.before(st, b, a)
		}
	}

	c := combineNl(ac, bc)
	if st.sep.constraints != nil {
		c = mergeConstraints(*st.sep.constraints, c)
	}
	c.onSOL = st.onSOL
	c.forceSOL = hb.forceSOL()
	c.kind = kind
	c.a, c.b = a, b
	st.sep.constraints = &c
}

// makeSeparator adjusts sep until its newline count fits c.
func (st *State) makeSeparator(sep string, c *sepConstraints) string {
	count := sepNewlines(sep)
	minNl := c.min
	if st.atStartOfOutput && minNl > 0 {
		minNl--
	}

	switch {
	case minNl > 0 && count < minNl:
		nls := strings.Repeat("\n", minNl-count)
		prepend := false
		switch c.kind {
		case sepParentChild:
			first := dom.FirstNonDeletedChild(c.a)
			prepend = !isContentNode(first) &&
				!(dom.IsElement(c.b) && childTableTags[c.b.Data] && !st.doc.IsLiteralHTML(c.b))
		case sepSibling:
			prepend = st.doc.IsLiteralHTML(c.b)
		}
		if prepend {
			return nls + sep
		}
		return sep + nls
	case count > c.max:
		return stripNewlines(sep, count-c.max)
	}
	return sep
}

// stripNewlines removes n newlines from the end of sep, leaving comments
// intact.
func stripNewlines(sep string, n int) string {
	locs := commentRe.FindAllStringIndex(sep, -1)
	var bits []string
	prev := 0
	for _, loc := range locs {
		bits = append(bits, sep[prev:loc[0]], sep[loc[0]:loc[1]])
		prev = loc[1]
	}
	bits = append(bits, sep[prev:])

	for i := len(bits) - 1; i >= 0 && n > 0; i-- {
		if commentRe.MatchString(bits[i]) {
			continue
		}
		for n > 0 && strings.Contains(bits[i], "\n") {
			bits[i] = strings.Replace(bits[i], "\n", "", 1)
			n--
		}
	}
	return strings.Join(bits, "")
}

// makeSepIndentPreSafe keeps leading spaces on the separator's last line
// from turning the next line into an indented pre block.
func (st *State) makeSepIndentPreSafe(sep string, c *sepConstraints) string {
	if st.inIndentPre {
		return sep
	}
	forceSOL := c.forceSOL && c.kind != sepChildParent
	if !nlWsCommentsSepRe.MatchString(sep) &&
		!(wsCommentsSepRe.MatchString(sep) && (c.onSOL || forceSOL)) {
		return sep
	}

	nodeB := c.b
	safe := false
	switch {
	case nodeB != nil && suppressesIndentPre(nodeB):
		safe = true
	case c.kind == sepSibling || (c.a != nil && c.a == st.root):
		for nodeB != nil && (dom.IsDiffMarkerNode(nodeB) || st.doc.IsRenderingTransparent(nodeB)) {
			nodeB = nodeB.NextSibling
		}
		safe = nodeB == nil || suppressesIndentPre(nodeB)
	}
	if nodeB != nil && !safe && nodeB != st.root {
		for p := nodeB.Parent; p != nil && p != st.root; p = p.Parent {
			if dom.IsElementNamed(p, "blockquote") ||
				(dom.IsBlock(p) && (p.Data != "p" || st.doc.IsLiteralHTML(p))) {
				safe = true
				break
			}
		}
	}

	strip := (c.onSOL || forceSOL) && dom.IsElement(c.b) &&
		!st.doc.IsLiteralHTML(c.b) && tagsRequiringSOL[c.b.Data]
	if safe && !strip {
		return sep
	}
	loc := wsCommentsSepRe.FindStringSubmatchIndex(sep)
	if loc == nil {
		return sep
	}
	spaces := sep[loc[2]:loc[3]]
	rest := ""
	if loc[4] >= 0 {
		rest = sep[loc[4]:loc[5]]
	}
	if strip {
		return sep[:loc[0]] + rest
	}
	st.onSOL = false
	return sep[:loc[0]] + "<nowiki>" + spaces + "</nowiki>" + rest
}

func suppressesIndentPre(n *html.Node) bool {
	return dom.IsBlock(n) && !dom.IsElementNamed(n, "p")
}

// isContentNode reports whether n renders something other than
// whitespace.
func isContentNode(n *html.Node) bool {
	return n != nil && !dom.IsComment(n) && !dom.IsDiffMarkerNode(n) &&
		!(dom.IsText(n) && dom.IsWhitespace(n.Data))
}

// handleAutoInserted returns n's source range with the widths of tags
// the parser invented set to unknown.
func (st *State) handleAutoInserted(n *html.Node) *dom.DSR {
	dp := st.doc.DataParsoid(n)
	if dp == nil || dp.DSR == nil {
		return nil
	}
	d := *dp.DSR
	if dp.AutoInsertedStart {
		d.OpenWidth = -1
	}
	if dp.AutoInsertedEnd {
		d.CloseWidth = -1
	}
	return &d
}

// zeroWidthWikitext reports whether n has no wikitext markup of its own.
func (st *State) zeroWidthWikitext(n *html.Node) bool {
	if !dom.IsElement(n) {
		return false
	}
	if n.Data == "p" && !st.doc.IsLiteralHTML(n) {
		return true
	}
	dp := st.doc.DataParsoid(n)
	return dp != nil && dp.AutoInsertedStart && dp.AutoInsertedEnd
}

// nextToDeletedBlock reports whether a deleted block sits right before
// or after n in the wikitext. Sol-transparent single-line neighbours and
// zero-width parents are looked through.
func (st *State) nextToDeletedBlock(orig *html.Node, before bool) bool {
	if orig == nil || orig == st.root || dom.IsElementNamed(orig, "body") {
		return false
	}
	for {
		n := orig
		for {
			if before {
				n = n.PrevSibling
			} else {
				n = n.NextSibling
			}
			if diff.IsDiffMarker(n, diff.Deleted) {
				return diff.IsDeletedBlock(n)
			}
			if n == nil || !st.solTransparentSingleLine(n) {
				break
			}
		}
		if n != nil {
			return false
		}
		parent := orig.Parent
		if parent == nil || !st.zeroWidthWikitext(parent) {
			return false
		}
		orig = parent
	}
}

// solTransparentSingleLine reports whether n emits wikitext that neither
// renders nor ends a line.
func (st *State) solTransparentSingleLine(n *html.Node) bool {
	if dom.IsText(n) {
		return strings.Trim(n.Data, " \t") == ""
	}
	return st.doc.IsRenderingTransparent(n)
}

// precedingSeparatorTextLen is the source length of the separator nodes
// in front of n, or false when a non-separator precedes it.
func precedingSeparatorTextLen(n *html.Node) (int, bool) {
	total := 0
	for p := n.PrevSibling; p != nil; p = p.PrevSibling {
		switch {
		case dom.IsText(p) && dom.IsWhitespace(p.Data):
			total += len(p.Data)
		case dom.IsComment(p):
			total += len(commentWT(p.Data))
		default:
			return 0, false
		}
	}
	return total, true
}

// buildSep computes the separator to emit before node when the original
// one between two unmodified neighbours cannot be reused directly.
func (st *State) buildSep(node *html.Node) (string, bool) {
	prev := st.sep.lastSourceNode
	sep, have := "", false

	if node != prev && st.selser && prev != nil && !st.inModifiedContent &&
		!st.nextToDeletedBlock(prev, true) && !st.nextToDeletedBlock(node, false) &&
		st.origSrcValidInEditedContext(prev) && st.origSrcValidInEditedContext(node) {
		sep, have = st.sepFromSource(prev, node)
		if have {
			sep = st.keepParagraphBreak(prev, node, sep)
		}
	}

	c := st.sep.constraints
	if c == nil {
		c = &sepConstraints{}
	}
	if !have || (st.sep.src != "" && st.sep.src != sep) {
		if st.sep.constraints == nil && st.sep.src == "" {
			return "", false
		}
		sep, have = st.makeSeparator(st.sep.src, c), true
	}
	return st.makeSepIndentPreSafe(sep, c), have
}

// keepParagraphBreak pads a separator taken from the source so that two
// sibling paragraphs stay apart when either of them is re-serialized.
func (st *State) keepParagraphBreak(prev, node *html.Node, sep string) string {
	pa, pb := st.enclosingParagraph(prev), st.enclosingParagraph(node)
	if pa == nil || pb == nil || pa == pb || pa.Parent != pb.Parent {
		return sep
	}
	if !st.marks.HasAny(pa) && !st.marks.HasAny(pb) {
		return sep
	}
	if count := sepNewlines(sep); count < 2 {
		sep += strings.Repeat("\n", 2-count)
	}
	return sep
}

// enclosingParagraph returns n or its nearest wikitext paragraph
// ancestor below the serialization root.
func (st *State) enclosingParagraph(n *html.Node) *html.Node {
	for ; n != nil && n != st.root; n = n.Parent {
		if isWikitextP(st, n) {
			return n
		}
	}
	return nil
}

// sepFromSource recovers the original text between prev and node from
// their source ranges and their containment relationship.
func (st *State) sepFromSource(prev, node *html.Node) (string, bool) {
	var dsrA, dsrB *dom.DSR
	switch {
	case dom.IsElement(prev):
		dsrA = st.handleAutoInserted(prev)
	default:
		parent := prev.Parent
		if prev.NextSibling == nil && parent != node && dom.IsElement(parent) {
			if d := st.doc.DSR(parent); d != nil && d.CloseWidth == 0 {
				dsrA = st.handleAutoInserted(parent)
			}
		} else if dom.IsElement(prev.PrevSibling) && !st.marks.Has(parent, diff.ChildrenChanged) {
			if d := st.doc.DSR(prev.PrevSibling); d.Valid() {
				width := len(prev.Data)
				if dom.IsComment(prev) {
					width = len(commentWT(prev.Data))
				}
				dsrA = dom.NewDSR(d.End, d.End+width, 0, 0)
			}
		}
	}
	if dsrA == nil {
		return "", false
	}

	if dom.IsElement(node) {
		n := node
		if prev.Parent == node {
			for n.NextSibling == nil && n != st.root && n.Parent != nil && !st.doc.DSR(n).Valid() {
				n = n.Parent
			}
		}
		dsrB = st.handleAutoInserted(n)
	} else if parent := node.Parent; parent != prev && dom.IsElement(parent) {
		if d := st.doc.DSR(parent); d != nil && d.OpenWidth == 0 {
			if sepLen, ok := precedingSeparatorTextLen(node); ok {
				c := *d
				if c.Start >= 0 {
					c.Start += sepLen
				}
				dsrB = &c
			}
		}
	}
	if !dsrA.Valid() || !dsrB.Valid() {
		return "", false
	}

	var sep string
	var ok bool
	switch {
	case dsrA.Start <= dsrB.Start:
		switch {
		case dsrB.End <= dsrA.End:
			if dsrA.Start == dsrB.Start && dsrA.End == dsrB.End {
				sep, ok = "", true
			} else if dsrA.OpenWidth >= 0 {
				sep, ok = st.origSrc(dsrA.InnerStart(), dsrB.Start)
			}
		case dsrA.End <= dsrB.Start:
			sep, ok = st.origSrc(dsrA.End, dsrB.Start)
		case dsrB.CloseWidth >= 0:
			sep, ok = st.origSrc(dsrA.End, dsrB.InnerEnd())
		}
	case dsrA.End <= dsrB.End:
		if dsrB.CloseWidth >= 0 {
			sep, ok = st.origSrc(dsrA.End, dsrB.InnerEnd())
		}
	default:
		st.log.Debug("source ranges run backwards", "prev", dom.NodeName(prev), "node", dom.NodeName(node))
	}
	if ok && sep != "" && !isValidSep(sep) {
		return "", false
	}
	return sep, ok
}

func commentWT(data string) string {
	return "<!--" + strings.ReplaceAll(data, "-->", "--&gt;") + "-->"
}

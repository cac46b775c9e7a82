package wts

import (
	"regexp"
	"strings"

	"github.com/dgallion1/wtselser/internal/dom"
	"golang.org/x/net/html"
)

var (
	entityRe          = regexp.MustCompile(`&([#0-9a-zA-Z]+;)`)
	nowikiTagRe       = regexp.MustCompile(`(?i)<(/?nowiki\s*/?\s*)>`)
	escapedNowikiRe   = regexp.MustCompile(`(?i)&lt;(/?nowiki\s*/?\s*)&gt;`)
	trailingNlsRe     = regexp.MustCompile(`(?:\r?\n)*$`)
	magicWordLinkRe   = regexp.MustCompile(`(?:^|\W)(?:RFC|ISBN|PMID)\s`)
	autolinkRe        = regexp.MustCompile(`(?i)(?:https?|ftp|mailto|irc|news):|//`)
	nlIndentRe        = regexp.MustCompile(`\n +[^\r\n]*?[^\s]+`)
	solIndentRe       = regexp.MustCompile(`^ +[^\r\n]*?[^\s]+`)
	specialCharsRe    = regexp.MustCompile(`[<>\[\]\-+|!=#*:;~{}]|__[^_]*__`)
	langConverterRe   = regexp.MustCompile(`-\{|\}-`)
	quoteRunRe        = regexp.MustCompile(`''+`)
	transclusionRe    = regexp.MustCompile(`\{\{|\}\}`)
	multiLineRe       = regexp.MustCompile(`\n.`)
	tildesRe          = regexp.MustCompile(`~{3,5}`)
	notSOLUnsafeRe    = regexp.MustCompile(`''|[<>]|\[.*\]|\]|(=[ ]*(\n|$))|__[^_]*__`)
	solUnsafeRe       = regexp.MustCompile(`(^|\n)[ #*:;=]|[<\[\]>|'!]|----|__[^_]*__`)
	closeBracketRe    = regexp.MustCompile(`[^\[]*\]`)
	afterBracketRe    = regexp.MustCompile(`\][^\]]*$`)
	linksEscapeRe     = regexp.MustCompile(`(\[\[)|(\]\])|(-\{)|(^[^\[]*\]$)`)
	headingLevelRe    = regexp.MustCompile(`^h([1-6])$`)
	listBulletsLineRe = regexp.MustCompile(`^[#*:;]*$`)
	thLineRe          = regexp.MustCompile(`^\s*!`)
	thTextRe          = regexp.MustCompile(`^[^\n]*!!|\|`)
	tdSOLRe           = regexp.MustCompile(`^[\-+}]`)
	linkLikeRe        = regexp.MustCompile(`\[\[[^\[\]{}|<>\n]+(?:\|[^\]\n]*)?\]\]|\[(?i:https?:|ftp:|mailto:|//)[^\s\]]+(?:[ \t][^\]\n]*)?\]`)
)

// Start-of-line constructs.
var (
	solHeadingRe  = regexp.MustCompile(`^=[^\n]+=[ \t]*$`)
	solHRRe       = regexp.MustCompile(`^-{4,}`)
	solTableRe    = regexp.MustCompile(`^\{\|`)
	solListRe     = regexp.MustCompile(`^[*#:;]+`)
	solInTableRe  = regexp.MustCompile(`^(?:\|\}|\|\+|\|-|\||!)`)
	solCommentsRe = regexp.MustCompile(`^(?:<!--[\s\S]*?-->)+`)
)

// inlineRe finds constructs that are markup wherever they occur.
var inlineRe = regexp.MustCompile(
	`(?P<quote>''+)` +
		`|(?P<wikilink>\[\[[^\[\]{}|<>\n]+(?:\|[^\]\n]*)?\]\])` +
		`|(?P<extlink>\[(?i:https?:|ftp:|mailto:|irc:|news:|//)[^\s\]]+(?:[ \t][^\]\n]*)?\])` +
		`|(?P<url>\b(?i:https?|ftp)://[^\s<>\[\]"]+)` +
		`|(?P<comment><!--[\s\S]*?(?:-->|$))` +
		`|(?P<tag></?(?P<tagname>[A-Za-z][A-Za-z0-9]*)(?:\s[^<>]*)?/?>)` +
		`|(?P<switch>__(?P<switchname>[A-Z]+)__)` +
		`|(?P<magic>\b(?:RFC|PMID)[ \t]+\d+\b|\bISBN[ \t]+(?:97[89][- ]?)?(?:\d[- ]?){9}[\dXx]\b)` +
		`|(?P<lang>-\{|\}-)`,
)

var (
	inlineQuote      = inlineRe.SubexpIndex("quote")
	inlineURL        = inlineRe.SubexpIndex("url")
	inlineMagic      = inlineRe.SubexpIndex("magic")
	inlineTagName    = inlineRe.SubexpIndex("tagname")
	inlineSwitchName = inlineRe.SubexpIndex("switchname")
)

// allowedLiteralTags are HTML tags wikitext accepts verbatim.
var allowedLiteralTags = map[string]bool{
	"abbr": true, "b": true, "bdi": true, "bdo": true, "big": true, "blockquote": true,
	"br": true, "caption": true, "center": true, "cite": true, "code": true,
	"data": true, "dd": true, "del": true, "dfn": true, "div": true, "dl": true,
	"dt": true, "em": true, "font": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "hr": true, "i": true, "ins": true,
	"kbd": true, "li": true, "mark": true, "ol": true, "p": true, "pre": true,
	"q": true, "rb": true, "rp": true, "rt": true, "rtc": true, "ruby": true,
	"s": true, "samp": true, "small": true, "span": true, "strike": true,
	"strong": true, "sub": true, "sup": true, "table": true, "td": true,
	"th": true, "time": true, "tr": true, "tt": true, "u": true, "ul": true,
	"var": true, "wbr": true,
}

// extensionTags are tag names the wiki parses as extensions.
var extensionTags = map[string]bool{
	"nowiki": true, "pre": true, "ref": true, "references": true,
	"gallery": true, "math": true, "syntaxhighlight": true, "source": true,
	"poem": true, "templatedata": true, "includeonly": true, "noinclude": true,
	"onlyinclude": true, "indicator": true, "section": true, "timeline": true,
}

var behaviorSwitches = map[string]bool{
	"NOTOC": true, "FORCETOC": true, "TOC": true, "NOEDITSECTION": true,
	"NEWSECTIONLINK": true, "NONEWSECTIONLINK": true, "NOGALLERY": true,
	"HIDDENCAT": true, "EXPECTUNUSEDCATEGORY": true, "NOCONTENTCONVERT": true,
	"NOCC": true, "NOTITLECONVERT": true, "NOTC": true, "INDEX": true,
	"NOINDEX": true, "STATICREDIRECT": true, "DISAMBIG": true,
}

// blockScopeTags start on a new line when written as wikitext.
var blockScopeTags = map[string]bool{
	"p": true, "ul": true, "ol": true, "dl": true, "li": true, "dt": true, "dd": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"pre": true, "hr": true, "table": true, "caption": true, "tr": true,
	"td": true, "th": true, "tbody": true, "blockquote": true,
}

func escapeEntities(s string) string {
	return entityRe.ReplaceAllString(s, "&amp;$1")
}

func escapeNowikiTags(s string) string {
	return nowikiTagRe.ReplaceAllString(s, "&lt;$1&gt;")
}

type tokKind int

const (
	tokText tokKind = iota
	tokNewline
	tokMarkup
)

type wtToken struct {
	kind tokKind
	src  string
}

type escapeOpts struct {
	node        *html.Node
	multiline   bool
	isLastChild bool
}

// scanWikitext splits text into plain runs and the smallest runs that
// would parse as markup.
func (st *State) scanWikitext(text string, sol bool) []wtToken {
	var toks []wtToken
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			toks = append(toks, wtToken{kind: tokNewline, src: "\n"})
			sol = true
		}
		toks = append(toks, st.scanLine(line, sol)...)
	}
	return toks
}

func (st *State) scanLine(line string, sol bool) []wtToken {
	var toks []wtToken
	if sol && !st.inIndentPre {
		if c := solCommentsRe.FindString(line); c != "" {
			toks = append(toks, wtToken{kind: tokMarkup, src: c})
			line = line[len(c):]
		}
		if solHeadingRe.MatchString(line) {
			return append(toks, wtToken{kind: tokMarkup, src: line})
		}
		var prefix string
		switch {
		case st.wikiTableNesting > 0 && solInTableRe.MatchString(line):
			prefix = solInTableRe.FindString(line)
		case solTableRe.MatchString(line):
			prefix = solTableRe.FindString(line)
		case solHRRe.MatchString(line):
			prefix = solHRRe.FindString(line)
		case solListRe.MatchString(line):
			prefix = solListRe.FindString(line)
		}
		if prefix != "" {
			toks = append(toks, wtToken{kind: tokMarkup, src: prefix})
			line = line[len(prefix):]
		}
	}

	pos := 0
	for _, m := range inlineRe.FindAllStringSubmatchIndex(line, -1) {
		if !st.isInlineMarkup(line, m) {
			continue
		}
		if m[0] > pos {
			toks = append(toks, wtToken{kind: tokText, src: line[pos:m[0]]})
		}
		toks = append(toks, wtToken{kind: tokMarkup, src: line[m[0]:m[1]]})
		pos = m[1]
	}
	if pos < len(line) {
		toks = append(toks, wtToken{kind: tokText, src: line[pos:]})
	}
	return toks
}

func (st *State) isInlineMarkup(line string, m []int) bool {
	group := func(i int) (string, bool) {
		if m[2*i] < 0 {
			return "", false
		}
		return line[m[2*i]:m[2*i+1]], true
	}
	if _, ok := group(inlineURL); ok {
		return !st.inLink && !st.inAttribute
	}
	if _, ok := group(inlineMagic); ok {
		return !st.inLink && !st.inAttribute
	}
	if name, ok := group(inlineTagName); ok {
		name = strings.ToLower(name)
		return allowedLiteralTags[name] || extensionTags[name]
	}
	if name, ok := group(inlineSwitchName); ok {
		return behaviorSwitches[name]
	}
	return true
}

func (st *State) hasWikitextTokens(text string, sol bool) bool {
	if st.inIndentPre {
		sol = false
	}
	for _, t := range st.scanWikitext(text, sol) {
		if t.kind == tokMarkup {
			return true
		}
	}
	return false
}

// escapedText wraps the markup-like runs of text in nowiki. With
// fullWrap the whole text is wrapped.
func (st *State) escapedText(sol bool, orig string, fullWrap, dontWrapIfUnnecessary bool) string {
	nls := trailingNlsRe.FindString(orig)
	text := orig[:len(orig)-len(nls)]
	if fullWrap {
		return "<nowiki>" + text + "</nowiki>" + nls
	}

	text = escapedNowikiRe.ReplaceAllString(text, "<$1>")
	var buf strings.Builder
	added := false
	for _, t := range st.scanWikitext(text, sol) {
		switch t.kind {
		case tokNewline:
			buf.WriteString(t.src)
			sol = true
		case tokText:
			s := escapeNowikiTags(t.src)
			if sol && strings.HasPrefix(s, " ") && !st.inIndentPre {
				buf.WriteString("<nowiki> </nowiki>")
				s = s[1:]
				added = true
			}
			buf.WriteString(s)
			sol = false
		case tokMarkup:
			buf.WriteString("<nowiki>" + escapeNowikiTags(t.src) + "</nowiki>")
			added = true
			sol = false
		}
	}
	if !added && !dontWrapIfUnnecessary {
		return "<nowiki>" + text + "</nowiki>" + nls
	}
	return buf.String() + nls
}

// escapeText protects running text so that it reads back as the same
// text. It follows the cheapest test that settles the question.
func escapeText(st *State, text string, opts escapeOpts) string {
	hasMagic := magicWordLinkRe.MatchString(text)
	hasAutolink := autolinkRe.MatchString(text)
	fullCheck := !st.inLink && (hasMagic || hasAutolink)
	indentPreSafe := st.inIndentPre
	sol := st.onSOL && !indentPreSafe

	var hasQuote, indentPreUnsafe, hasSpecial bool
	if !fullCheck {
		hasQuote = strings.Contains(text, "'")
		indentPreUnsafe = !indentPreSafe &&
			(nlIndentRe.MatchString(text) || (sol && solIndentRe.MatchString(text)))
		hasSpecial = specialCharsRe.MatchString(text)
		if langConverterRe.MatchString(text) {
			fullCheck = true
		}
	}
	if !fullCheck && !hasQuote && !indentPreUnsafe && !hasSpecial {
		return text
	}

	if esc := st.currentEscaper(); esc != nil && esc(st, text, opts.node) {
		return st.escapedText(false, text, true, false)
	}

	if quoteRunRe.MatchString(text) || hasLeadingEscapableQuote(opts.node) || hasTrailingEscapableQuote(opts.node) {
		if fullCheck || indentPreUnsafe || (hasSpecial && st.hasWikitextTokens(text, sol)) {
			return st.escapedText(sol, text, false, false)
		}
		if q := escapedQuoteSiblingText(text, opts.node); q != "" {
			return q
		}
	}

	if transclusionRe.MatchString(text) {
		return st.escapedText(false, text, false, false)
	}

	if multiLineRe.MatchString(text) {
		st.escapers = append(st.escapers, nil)
		lines := strings.Split(text, "\n")
		lineOpts := opts
		for i, line := range lines {
			if i > 0 {
				st.onSOL = true
				st.line.text.Reset()
				lineOpts.multiline = true
			}
			lines[i] = escapeText(st, line, lineOpts)
		}
		st.escapers = st.escapers[:len(st.escapers)-1]
		ret := strings.Join(lines, "\n")
		if ret == text && st.hasWikitextTokens(text, sol) {
			ret = st.escapedText(sol, text, false, false)
		}
		return ret
	}

	hasTildes := tildesRe.MatchString(text)
	if !fullCheck && !hasTildes {
		if !sol && !notSOLUnsafeRe.MatchString(text) {
			return text
		}
		if sol && !solUnsafeRe.MatchString(text) {
			return text
		}
	}

	if indentPreUnsafe && (!st.hasBlocksOnLine(st.line.firstNode, true) || opts.multiline) {
		return st.escapedText(sol, text, false, false)
	}

	text = escapeNowikiTags(text)
	switch {
	case hasTildes:
		return st.escapedText(sol, text, false, false)
	case st.hasWikitextTokens(text, sol):
		return st.escapedText(sol, text, false, false)
	case closeBracketRe.MatchString(text) && st.textCanParseAsLink(text):
		return st.escapedText(sol, text, false, false)
	case opts.isLastChild && strings.HasSuffix(text, "="):
		line := st.line.text.String()
		first := st.line.firstNode
		if first != nil && dom.IsElement(first) {
			if m := headingLevelRe.FindStringSubmatch(first.Data); m != nil {
				lvl := int(m[1][0] - '0')
				combined := line + text
				if lvl < len(combined) && combined[lvl] == '=' {
					return st.escapedText(sol, text, false, false)
				}
				return text
			}
		}
		if strings.HasPrefix(line, "=") {
			return st.escapedText(sol, text, false, false)
		}
	}
	return text
}

// textCanParseAsLink reports whether a closing bracket in text would
// complete a link opened earlier on the current line.
func (st *State) textCanParseAsLink(text string) bool {
	text = afterBracketRe.ReplaceAllString(text, "]")
	if strings.Contains(text, "\n") {
		return false
	}
	str := st.line.text.String() + text
	boundary := len(str) - len(text)
	for _, m := range linkLikeRe.FindAllStringIndex(str, -1) {
		if m[1] > boundary {
			return true
		}
	}
	return false
}

// hasBlocksOnLine looks ahead on the current line for block content
// that suppresses indent-pre.
func (st *State) hasBlocksOnLine(n *html.Node, first bool) bool {
	if n == nil {
		return false
	}
	if first {
		tc := dom.TextContent(n)
		if len(tc) > 1 && strings.Contains(tc[1:], "\n") {
			return false
		}
		n = n.NextSibling
	}
	for ; n != nil; n = n.NextSibling {
		if dom.IsElement(n) {
			if dom.IsBlock(n) {
				return !st.startsOnANewLine(n)
			}
			if n.FirstChild != nil && st.hasBlocksOnLine(n.FirstChild, false) {
				return true
			}
			continue
		}
		if strings.Contains(dom.TextContent(n), "\n") {
			return false
		}
	}
	return false
}

func (st *State) startsOnANewLine(n *html.Node) bool {
	return blockScopeTags[n.Data] && !st.doc.IsLiteralHTML(n) && n.Data != "blockquote"
}

func hasLeadingEscapableQuote(n *html.Node) bool {
	if !dom.IsText(n) || !strings.HasPrefix(n.Data, "'") {
		return false
	}
	prev := dom.PreviousNonDeletedSibling(n)
	if prev == nil {
		prev = n.Parent
	}
	return dom.IsQuoteElt(prev)
}

func hasTrailingEscapableQuote(n *html.Node) bool {
	if !dom.IsText(n) || !strings.HasSuffix(n.Data, "'") {
		return false
	}
	next := dom.NextNonDeletedSibling(n)
	if next == nil {
		next = n.Parent
	}
	return dom.IsQuoteElt(next)
}

// escapedQuoteSiblingText protects apostrophes next to '' or '''
// markup. Runs of two or more are wrapped whole.
func escapedQuoteSiblingText(text string, n *html.Node) string {
	if quoteRunRe.MatchString(text) {
		first := strings.Index(text, "'")
		last := strings.LastIndex(text, "'")
		return text[:first] + "<nowiki>" + text[first:last+1] + "</nowiki>" + text[last+1:]
	}
	out := ""
	if hasTrailingEscapableQuote(n) {
		out = text + "<nowiki/>"
	}
	if hasLeadingEscapableQuote(n) {
		if out == "" {
			out = text
		}
		out = "<nowiki/>" + out
	}
	return out
}

func isFirstContentNode(n *html.Node) bool {
	return dom.PreviousNonDeletedSibling(n) == nil
}

// Context escapers. Each reports whether text must be wrapped whole.

func wikilinkEscaper(_ *State, text string, _ *html.Node) bool {
	return linksEscapeRe.MatchString(text)
}

func extLinkEscaper(_ *State, text string, _ *html.Node) bool {
	return strings.Contains(text, "]")
}

func listItemEscaper(li *html.Node) escaper {
	return func(st *State, text string, n *html.Node) bool {
		if n == nil || n.Parent != li {
			return false
		}
		if li.Data == "dt" && strings.Contains(text, ":") {
			return true
		}
		if listBulletsLineRe.MatchString(st.line.text.String()) && isFirstContentNode(n) {
			return solListRe.MatchString(text)
		}
		return false
	}
}

func thEscaper(st *State, text string, _ *html.Node) bool {
	return thLineRe.MatchString(st.line.text.String()) && thTextRe.MatchString(text)
}

func tdEscaper(td *html.Node, inWideTD bool) escaper {
	return func(st *State, text string, n *html.Node) bool {
		if n != nil && st.line.firstNode != td {
			return false
		}
		if strings.Contains(text, "|") {
			return true
		}
		if inWideTD || n == nil || st.line.text.String() != "|" || !tdSOLRe.MatchString(text) {
			return false
		}
		for p := n; p != nil && p != td; p = p.Parent {
			if !isFirstContentNode(p) || !(p == n || st.zeroWidthWikitext(p)) {
				return false
			}
		}
		return true
	}
}

// escapeLinkContent protects the text of a piped link.
func (st *State) escapeLinkContent(str string, sol bool, n *html.Node) string {
	str = escapeEntities(str)
	oldSOL, oldInLink := st.onSOL, st.inLink
	st.onSOL = sol
	st.inLink = true
	st.escapers = append(st.escapers, wikilinkEscaper)
	res := escapeText(st, str, escapeOpts{node: n})
	st.escapers = st.escapers[:len(st.escapers)-1]
	st.inLink = oldInLink
	st.onSOL = oldSOL
	return res
}

var (
	bracketPairRe    = regexp.MustCompile(`\[\[([^\[\]]*)\]\]|\{\{([^{}]*)\}\}|-\{([^{}]*)\}-`)
	unmatchedBraceRe = regexp.MustCompile(`\{\{|\}\}|\[\[|\]\]|-\{`)
	trailingBraceRe  = regexp.MustCompile(`\}$`)
	protectedNowiki  = regexp.MustCompile(`<nowiki>[^<]*</nowiki>`)
)

type tplArgOpts struct {
	serializeAsNamed   bool
	templateArg        bool
	argPositionalIndex int
	numPositionalArgs  int
	argIndex           int
	numArgs            int
}

// argSegment is a run of a template argument. Markup runs (nested
// transclusions, links, tags, comments and nowikis) are copied verbatim.
type argSegment struct {
	src         string
	checkNowiki bool
}

// splitTplArg separates the parts of a template argument that parse as
// self-contained constructs from the plain text between them.
func splitTplArg(arg string) []argSegment {
	var segs []argSegment
	plain := 0
	flush := func(end int) {
		if end > plain {
			segs = append(segs, argSegment{src: arg[plain:end], checkNowiki: true})
		}
	}
	for i := 0; i < len(arg); {
		end := -1
		switch {
		case strings.HasPrefix(arg[i:], "{{"):
			end = matchBalanced(arg, i, "{{", "}}")
		case strings.HasPrefix(arg[i:], "[["):
			end = matchBalanced(arg, i, "[[", "]]")
		case strings.HasPrefix(arg[i:], "<!--"):
			if j := strings.Index(arg[i:], "-->"); j >= 0 {
				end = i + j + 3
			}
		case strings.HasPrefix(strings.ToLower(arg[i:]), "<nowiki>"):
			if j := strings.Index(strings.ToLower(arg[i:]), "</nowiki>"); j >= 0 {
				end = i + j + len("</nowiki>")
			}
		case arg[i] == '<':
			if m := inlineRe.FindStringSubmatchIndex(arg[i:]); m != nil && m[0] == 0 && m[2*inlineTagName] >= 0 {
				end = i + m[1]
			}
		}
		if end < 0 {
			i++
			continue
		}
		flush(i)
		src := arg[i:end]
		segs = append(segs, argSegment{
			src:         src,
			checkNowiki: strings.HasPrefix(strings.ToLower(src), "<nowiki>") && !protectedNowiki.MatchString(src),
		})
		plain = end
		i = end
	}
	flush(len(arg))
	return segs
}

// matchBalanced returns the end of the construct opened at i, or -1.
func matchBalanced(s string, i int, open, close string) int {
	depth := 0
	for j := i; j < len(s); {
		switch {
		case strings.HasPrefix(s[j:], open):
			depth++
			j += len(open)
		case strings.HasPrefix(s[j:], close):
			depth--
			j += len(close)
			if depth == 0 {
				return j
			}
		default:
			j++
		}
	}
	return -1
}

// escapeTplArg protects a template argument value. It reports whether
// the argument has to be written in named form.
func escapeTplArg(arg string, opts tplArgOpts) (string, bool) {
	var buf strings.Builder
	openNowiki := false
	named := opts.serializeAsNamed
	segs := splitTplArg(arg)

	for i, seg := range segs {
		last := i == len(segs)-1
		str := seg.src
		if !seg.checkNowiki {
			if openNowiki {
				buf.WriteString("</nowiki>")
				openNowiki = false
			}
			buf.WriteString(str)
			continue
		}

		if !opts.templateArg && !named && strings.Contains(str, "=") {
			if opts.numPositionalArgs == 0 || opts.numPositionalArgs == opts.argPositionalIndex {
				named = true
			}
		}

		reasons := 0
		var subst func(string) string
		stripped := bracketPairRe.ReplaceAllString(str, "_${1}${2}${3}_")
		if unmatchedBraceRe.MatchString(stripped) {
			reasons++
		}
		if !opts.templateArg && !named && strings.Contains(str, "=") {
			reasons++
		}
		if opts.argIndex == opts.numArgs && last && trailingBraceRe.MatchString(str) {
			reasons++
			subst = func(s string) string { return strings.TrimSuffix(s, "}") + "<nowiki>}</nowiki>" }
		}
		if strings.Contains(str, "|") {
			reasons++
			subst = func(s string) string { return strings.ReplaceAll(s, "|", "{{!}}") }
		}

		if !openNowiki && reasons == 1 && subst != nil {
			str = subst(str)
			reasons = 0
		}
		if !openNowiki && reasons > 0 {
			buf.WriteString("<nowiki>")
			openNowiki = true
		}
		if reasons == 0 && openNowiki {
			buf.WriteString("</nowiki>")
			openNowiki = false
		}
		buf.WriteString(str)
	}
	if openNowiki {
		buf.WriteString("</nowiki>")
	}
	return buf.String(), named
}

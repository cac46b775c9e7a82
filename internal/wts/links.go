package wts

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/wtselser/internal/dom"
	"golang.org/x/net/html"
)

var (
	// Characters that cannot appear literally in an external link target.
	extLinkUnsafeRe = regexp.MustCompile(`[\]\[<>"\x00-\x20\x7F\x{00A0}\x{1680}\x{180E}\x{2000}-\x{200A}\x{202F}\x{205F}\x{3000}]`)
	urlProtocolRe   = regexp.MustCompile(`(?i)^(?:https?|ftps?|ircs?|news|mailto|gopher|svn|git|sftp|ssh|telnet|worldwind|xmpp):`)
	colonPrefixRe   = regexp.MustCompile(`(?i)^(?:category|file|image|media):`)
	interwikiHrefRe = regexp.MustCompile(`^(?:https?:)?//([a-z][a-z-]*)\.wikipedia\.org/wiki/(.+)$`)

	isbnHrefRe  = regexp.MustCompile(`^\./Special:BookSources/(\d+[\dXx]?)$`)
	rfcHrefRe   = regexp.MustCompile(`^(?:https?:)?//tools\.ietf\.org/html/rfc(\d+)$`)
	pmidHrefRe  = regexp.MustCompile(`^(?:https?:)?//www\.ncbi\.nlm\.nih\.gov/pubmed/(\d+)\?dopt=Abstract$`)
	magicTextRe = regexp.MustCompile(`^(ISBN|RFC|PMID)[ \x{00A0}]+([\dXx][\dXx -]*)$`)
)

// linkHandler writes <a> and <link> elements: wikilinks, external links,
// categories, redirects and interlanguage links.
type linkHandler struct{ baseHandler }

func (linkHandler) handle(st *State, n *html.Node, wrapperUnmodified bool) *html.Node {
	switch {
	case st.doc.IsLiteralHTML(n):
		return htmlTagHandler{}.handle(st, n, wrapperUnmodified)
	case dom.IsElementNamed(n, "link"):
		st.serializeLinkElement(n)
	case dom.HasRel(n, "mw:WikiLink") || dom.HasRel(n, "mw:MediaLink"):
		st.serializeWikiLink(n)
	case dom.HasRel(n, "mw:ExtLink"):
		st.serializeExtLink(n)
	default:
		st.serializePlainAnchor(n)
	}
	return n.NextSibling
}

func (linkHandler) before(st *State, n, other *html.Node) nlConstraint {
	if dom.IsSolTransparentLink(n) && st.doc.IsNew(n) && !dom.IsElementNamed(other, "body") {
		return nl(1, 2)
	}
	return nlConstraint{}
}

func (linkHandler) after(st *State, n, other *html.Node) nlConstraint {
	if dom.IsSolTransparentLink(n) && st.doc.IsNew(n) && !dom.IsElementNamed(other, "body") {
		return nl(1, 2)
	}
	return nlConstraint{}
}

// linkTarget returns the target of n. The recorded source spelling is
// used while the href is unchanged; fromSrc reports that case.
func (st *State) linkTarget(n *html.Node) (target string, fromSrc bool) {
	href := dom.Attr(n, "href")
	dp := st.doc.DataParsoidOrEmpty(n)
	if sa, ok := dp.SA["href"]; ok && !st.doc.IsNew(n) && !contains(st.marks.ChangedAttrs(n), "href") {
		return sa, true
	}
	return href, false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// hrefToTitle turns a ./Title href into a page title.
func hrefToTitle(href string) string {
	href = strings.TrimPrefix(href, "./")
	if t, err := url.PathUnescape(href); err == nil {
		href = t
	}
	return strings.ReplaceAll(href, "_", " ")
}

// normalizeTitle compares titles the way the wiki does: underscores are
// spaces and the first letter is case-insensitive.
func normalizeTitle(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", " "))
	s = strings.Join(strings.Fields(s), " ")
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// escapeLinkTarget makes a title safe inside [[ ]].
func escapeLinkTarget(title string) string {
	title = escapeEntities(title)
	if colonPrefixRe.MatchString(title) {
		return ":" + title
	}
	return title
}

// allText reports whether all children of n are text nodes.
func allText(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !dom.IsText(c) {
			return false
		}
	}
	return true
}

func (st *State) serializeLinkChildren(n *html.Node, esc escaper) string {
	st.singleLine.enforce()
	s := st.serializeChildrenToString(n, esc, &st.inLink)
	st.singleLine.pop()
	return s
}

func (st *State) serializeWikiLink(n *html.Node) {
	target, fromSrc := st.linkTarget(n)
	title := hrefToTitle(target)
	edited := st.doc.IsNew(n) || st.marks.HasAny(n)
	content := dom.TextContent(n)
	dp := st.doc.DataParsoidOrEmpty(n)

	linkSrc := target
	if !fromSrc {
		linkSrc = escapeLinkTarget(title)
	}

	// The source spelling is shown verbatim as link text, so it has to
	// match exactly; a rebuilt target can take the text's spelling.
	sameTitle := content == strings.TrimPrefix(title, ":")
	if !fromSrc {
		sameTitle = normalizeTitle(content) == normalizeTitle(strings.TrimPrefix(title, ":"))
	}
	simple := n.FirstChild != nil && allText(n) && (edited || dp.Stx != "piped") && sameTitle
	if simple {
		if !fromSrc {
			linkSrc = escapeLinkTarget(content)
		}
		st.emitWikitext("[["+linkSrc+"]]", n)
	} else {
		contentSrc := ""
		if n.FirstChild != nil {
			contentSrc = st.serializeLinkChildren(n, wikilinkEscaper)
		}
		if contentSrc == "" {
			// [[Foo|]] would be expanded by the pipe trick.
			contentSrc = "<nowiki/>"
		}
		st.emitWikitext("[["+linkSrc+"|"+contentSrc+"]]", n)
	}

	// Letters directly after ]] would be pulled into the link text.
	if next := n.NextSibling; dom.IsText(next) && edited {
		if r, _ := utf8.DecodeRuneInString(next.Data); unicode.IsLetter(r) {
			st.emitWikitext("<nowiki/>", n)
		}
	}
}

func (st *State) serializeExtLink(n *html.Node) {
	target, fromSrc := st.linkTarget(n)
	href := dom.Attr(n, "href")
	content := dom.TextContent(n)

	if src, ok := magicLinkSrc(href, content); ok && allText(n) {
		st.emitWikitext(src, n)
		return
	}

	urlSrc := target
	if !fromSrc {
		urlSrc = escapeExtLinkURL(href)
	}
	if allText(n) && (content == href || content == target) && urlProtocolRe.MatchString(content) {
		st.emitWikitext(urlSrc, n)
		return
	}

	contentSrc := ""
	if n.FirstChild != nil {
		contentSrc = st.serializeLinkChildren(n, extLinkEscaper)
	}
	if strings.HasPrefix(href, "#") {
		st.emitWikitext("[["+href+"|"+contentSrc+"]]", n)
		return
	}
	if contentSrc == "" {
		st.emitWikitext("["+urlSrc+"]", n)
		return
	}
	st.emitWikitext("["+urlSrc+" "+contentSrc+"]", n)
}

// magicLinkSrc recognises ISBN, RFC and PMID links whose text is still
// the magic word form.
func magicLinkSrc(href, content string) (string, bool) {
	m := magicTextRe.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	num := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, m[2])
	var re *regexp.Regexp
	switch m[1] {
	case "ISBN":
		re = isbnHrefRe
	case "RFC":
		re = rfcHrefRe
	default:
		re = pmidHrefRe
	}
	hm := re.FindStringSubmatch(href)
	if hm == nil || !strings.EqualFold(hm[1], num) {
		return "", false
	}
	return content, true
}

func escapeExtLinkURL(u string) string {
	u = extLinkUnsafeRe.ReplaceAllStringFunc(u, func(s string) string {
		r, _ := utf8.DecodeRuneInString(s)
		return fmt.Sprintf("&#x%X;", r)
	})
	return strings.ReplaceAll(u, "-{", "&#x2D;{")
}

// serializePlainAnchor writes an <a> without a link type. Anchors with an
// href become external links; others keep only their content.
func (st *State) serializePlainAnchor(n *html.Node) {
	href, ok := dom.LookupAttr(n, "href")
	if !ok || href == "" {
		st.serializeChildren(n, nil)
		return
	}
	if strings.HasPrefix(href, "./") {
		contentSrc := st.serializeLinkChildren(n, wikilinkEscaper)
		title := hrefToTitle(href)
		if normalizeTitle(contentSrc) == normalizeTitle(title) {
			st.emitWikitext("[["+escapeLinkTarget(title)+"]]", n)
		} else {
			st.emitWikitext("[["+escapeLinkTarget(title)+"|"+contentSrc+"]]", n)
		}
		return
	}
	contentSrc := st.serializeLinkChildren(n, extLinkEscaper)
	st.emitWikitext("["+escapeExtLinkURL(href)+" "+contentSrc+"]", n)
}

// serializeLinkElement writes category, redirect and language links.
func (st *State) serializeLinkElement(n *html.Node) {
	target, fromSrc := st.linkTarget(n)
	rel := dom.Attr(n, "rel")
	switch {
	case dom.IsCategoryLink(n):
		page, sortKey, _ := strings.Cut(target, "#")
		name := page
		if !fromSrc {
			name = escapeEntities(hrefToTitle(page))
		}
		out := "[[" + name
		if sortKey != "" {
			if k, err := url.PathUnescape(sortKey); err == nil {
				sortKey = k
			}
			out += "|" + sortKey
		}
		st.emitWikitext(out+"]]", n)
	case strings.Contains(rel, "mw:PageProp/redirect"):
		dp := st.doc.DataParsoidOrEmpty(n)
		if dp.Src != "" && fromSrc {
			st.emitWikitext(dp.Src, n)
			return
		}
		title := target
		if !fromSrc {
			title = escapeLinkTarget(hrefToTitle(target))
		}
		st.emitWikitext("#REDIRECT [["+title+"]]", n)
	case strings.Contains(rel, "mw:PageProp/Language"):
		m := interwikiHrefRe.FindStringSubmatch(dom.Attr(n, "href"))
		if m == nil {
			st.fault(KindDataFault, "link", fmt.Errorf("unrecognised language link %q", dom.Attr(n, "href")))
			return
		}
		st.emitWikitext("[["+m[1]+":"+hrefToTitle(m[2])+"]]", n)
	default:
		st.emitPlaceholderSrc(n)
	}
}

package dom

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// DiffMarkerTypeOf prefixes the typeof of synthetic diff marker nodes.
const DiffMarkerTypeOf = "mw:DiffMarker/"

var (
	encapTypeRe      = regexp.MustCompile(`^mw:(?:Transclusion|Param|Extension/[^\s]+)$`)
	solTransparentRe = regexp.MustCompile(`(?:^|\s)mw:PageProp/(?:Category|redirect|Language)(?:$|\s|#)`)
	categoryRe       = regexp.MustCompile(`(?:^|\s)mw:PageProp/Category(?:$|\s)`)
)

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"body": true, "caption": true, "center": true, "dd": true, "details": true,
	"dir": true, "div": true, "dl": true, "dt": true, "fieldset": true,
	"figcaption": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hgroup": true, "hr": true, "li": true, "main": true,
	"menu": true, "nav": true, "ol": true, "p": true, "pre": true,
	"section": true, "summary": true, "table": true, "tbody": true,
	"td": true, "tfoot": true, "th": true, "thead": true, "tr": true, "ul": true,
}

var formattingTags = map[string]bool{
	"b": true, "big": true, "code": true, "em": true, "font": true, "i": true,
	"s": true, "small": true, "strike": true, "strong": true, "tt": true, "u": true,
}

// Walk visits n and its descendants in document order. Returning false
// from fn skips the node's children.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		Walk(c, fn)
		c = next
	}
}

func IsElement(n *html.Node) bool { return n != nil && n.Type == html.ElementNode }
func IsText(n *html.Node) bool    { return n != nil && n.Type == html.TextNode }
func IsComment(n *html.Node) bool { return n != nil && n.Type == html.CommentNode }

// IsElementNamed reports whether n is an element with one of the given tags.
func IsElementNamed(n *html.Node, tags ...string) bool {
	if !IsElement(n) {
		return false
	}
	for _, t := range tags {
		if n.Data == t {
			return true
		}
	}
	return false
}

// NodeName is the lower-case tag name, or #text / #comment.
func NodeName(n *html.Node) string {
	switch n.Type {
	case html.ElementNode:
		return n.Data
	case html.TextNode:
		return "#text"
	case html.CommentNode:
		return "#comment"
	case html.DocumentNode:
		return "#document"
	}
	return ""
}

func LookupAttr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func Attr(n *html.Node, key string) string {
	v, _ := LookupAttr(n, key)
	return v
}

func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func RemoveAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

// TypeOf splits the typeof attribute.
func TypeOf(n *html.Node) []string {
	return strings.Fields(Attr(n, "typeof"))
}

func HasTypeOf(n *html.Node, t string) bool {
	for _, v := range TypeOf(n) {
		if v == t {
			return true
		}
	}
	return false
}

// TypeOfWithPrefix returns the first typeof value starting with prefix.
func TypeOfWithPrefix(n *html.Node, prefix string) (string, bool) {
	for _, v := range TypeOf(n) {
		if strings.HasPrefix(v, prefix) {
			return v, true
		}
	}
	return "", false
}

func HasRel(n *html.Node, rel string) bool {
	for _, v := range strings.Fields(Attr(n, "rel")) {
		if v == rel {
			return true
		}
	}
	return false
}

func About(n *html.Node) string { return Attr(n, "about") }

// IsDiffMarkerNode reports whether n is a synthetic diff marker.
func IsDiffMarkerNode(n *html.Node) bool {
	if !IsElementNamed(n, "meta") {
		return false
	}
	_, ok := TypeOfWithPrefix(n, DiffMarkerTypeOf)
	return ok
}

func isFirstEncapsulationWrapper(n *html.Node) bool {
	for _, t := range TypeOf(n) {
		if encapTypeRe.MatchString(t) {
			return true
		}
	}
	return false
}

// IsFirstEncapsulationWrapper reports whether n itself carries an
// encapsulation typeof.
func IsFirstEncapsulationWrapper(n *html.Node) bool {
	return IsElement(n) && isFirstEncapsulationWrapper(n)
}

// FirstEncapsulationWrapper walks back over about-siblings to the node
// carrying the encapsulation typeof.
func FirstEncapsulationWrapper(n *html.Node) *html.Node {
	if !IsElement(n) {
		return nil
	}
	about := About(n)
	for cur := n; cur != nil; cur = cur.PrevSibling {
		if !IsElement(cur) {
			continue
		}
		if isFirstEncapsulationWrapper(cur) && (cur == n || About(cur) == about) {
			return cur
		}
		if about == "" || About(cur) != about {
			return nil
		}
	}
	return nil
}

// IsEncapsulationWrapper reports whether n is part of generated content
// (a transclusion or extension output).
func IsEncapsulationWrapper(n *html.Node) bool {
	return FirstEncapsulationWrapper(n) != nil
}

// AboutSiblings returns n plus the following siblings sharing its about id.
// Whitespace text between them is included.
func AboutSiblings(n *html.Node) []*html.Node {
	out := []*html.Node{n}
	about := About(n)
	if about == "" {
		return out
	}
	var pending []*html.Node
	for cur := n.NextSibling; cur != nil; cur = cur.NextSibling {
		if IsElement(cur) && About(cur) == about {
			out = append(out, pending...)
			out = append(out, cur)
			pending = nil
			continue
		}
		if IsText(cur) && IsWhitespace(cur.Data) {
			pending = append(pending, cur)
			continue
		}
		break
	}
	return out
}

// NextAfterEncapsulated returns the sibling after n's about group.
func NextAfterEncapsulated(n *html.Node) *html.Node {
	sibs := AboutSiblings(n)
	return sibs[len(sibs)-1].NextSibling
}

func IsCategoryLink(n *html.Node) bool {
	return IsElementNamed(n, "link") && categoryRe.MatchString(Attr(n, "rel"))
}

func IsSolTransparentLink(n *html.Node) bool {
	return IsElementNamed(n, "link") && solTransparentRe.MatchString(Attr(n, "rel"))
}

// IsBehaviorSwitch reports whether n is a __MAGIC__ word meta.
func IsBehaviorSwitch(n *html.Node) bool {
	if !IsElementNamed(n, "meta") {
		return false
	}
	_, ok := TypeOfWithPrefix(n, "mw:PageProp/")
	return ok
}

// IsRenderingTransparent reports whether n produces no rendered output:
// comments, category/redirect links, behaviour switches and other
// non-literal metas.
func (d *Document) IsRenderingTransparent(n *html.Node) bool {
	if IsComment(n) || IsSolTransparentLink(n) {
		return true
	}
	if IsElementNamed(n, "meta") {
		return !IsDiffMarkerNode(n) && !d.IsLiteralHTML(n)
	}
	return IsElementNamed(n, "span") && HasTypeOf(n, "mw:FallbackId")
}

func IsBlock(n *html.Node) bool { return IsElement(n) && blockTags[n.Data] }

func IsBlockTag(tag string) bool { return blockTags[tag] }

func IsFormattingElt(n *html.Node) bool { return IsElement(n) && formattingTags[n.Data] }

// IsQuoteElt reports whether n maps to '' or ''' markup.
func IsQuoteElt(n *html.Node) bool { return IsElementNamed(n, "i", "b") }

// HeadingLevel returns 1-6 for h1-h6 and 0 otherwise.
func HeadingLevel(n *html.Node) int {
	if !IsElement(n) || len(n.Data) != 2 || n.Data[0] != 'h' {
		return 0
	}
	if l := int(n.Data[1] - '0'); l >= 1 && l <= 6 {
		return l
	}
	return 0
}

func IsList(n *html.Node) bool     { return IsElementNamed(n, "ul", "ol", "dl") }
func IsListItem(n *html.Node) bool { return IsElementNamed(n, "li", "dt", "dd") }

// IsWhitespace reports whether s holds only HTML whitespace.
func IsWhitespace(s string) bool {
	return strings.TrimLeft(s, " \t\r\n\f") == ""
}

// IsSeparator reports whether n is a comment or whitespace-only text.
func IsSeparator(n *html.Node) bool {
	return IsComment(n) || (IsText(n) && IsWhitespace(n.Data))
}

// TextContent concatenates all descendant text.
func TextContent(n *html.Node) string {
	if IsText(n) {
		return n.Data
	}
	var buf strings.Builder
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			buf.WriteString(c.Data)
		}
		return true
	})
	return buf.String()
}

func PreviousNonSepSibling(n *html.Node) *html.Node {
	c := n.PrevSibling
	for c != nil && IsSeparator(c) {
		c = c.PrevSibling
	}
	return c
}

func NextNonSepSibling(n *html.Node) *html.Node {
	c := n.NextSibling
	for c != nil && IsSeparator(c) {
		c = c.NextSibling
	}
	return c
}

func FirstNonSepChild(n *html.Node) *html.Node {
	c := n.FirstChild
	for c != nil && IsSeparator(c) {
		c = c.NextSibling
	}
	return c
}

func LastNonSepChild(n *html.Node) *html.Node {
	c := n.LastChild
	for c != nil && IsSeparator(c) {
		c = c.PrevSibling
	}
	return c
}

func PreviousNonDeletedSibling(n *html.Node) *html.Node {
	c := n.PrevSibling
	for c != nil && IsDiffMarkerNode(c) {
		c = c.PrevSibling
	}
	return c
}

func NextNonDeletedSibling(n *html.Node) *html.Node {
	c := n.NextSibling
	for c != nil && IsDiffMarkerNode(c) {
		c = c.NextSibling
	}
	return c
}

func FirstNonDeletedChild(n *html.Node) *html.Node {
	c := n.FirstChild
	for c != nil && IsDiffMarkerNode(c) {
		c = c.NextSibling
	}
	return c
}

func LastNonDeletedChild(n *html.Node) *html.Node {
	c := n.LastChild
	for c != nil && IsDiffMarkerNode(c) {
		c = c.PrevSibling
	}
	return c
}

// NumNonDeletedChildren counts children other than diff markers.
func NumNonDeletedChildren(n *html.Node) int {
	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !IsDiffMarkerNode(c) {
			count++
		}
	}
	return count
}

// Children returns a snapshot of n's child list.
func Children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// Remove detaches n from its parent.
func Remove(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// InsertBefore moves n in front of ref.
func InsertBefore(n, ref *html.Node) {
	Remove(n)
	ref.Parent.InsertBefore(n, ref)
}

// InsertAfter moves n behind ref.
func InsertAfter(n, ref *html.Node) {
	Remove(n)
	ref.Parent.InsertBefore(n, ref.NextSibling)
}

// Append moves n to the end of parent's children.
func Append(parent, n *html.Node) {
	Remove(n)
	parent.AppendChild(n)
}

// MigrateChildren moves all children of from into to, in front of before
// (nil appends).
func MigrateChildren(from, to, before *html.Node) {
	for c := from.FirstChild; c != nil; {
		next := c.NextSibling
		from.RemoveChild(c)
		to.InsertBefore(c, before)
		c = next
	}
}

// MergeAdjacentText joins neighbouring text children of n and drops empty
// ones.
func MergeAdjacentText(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if IsText(c) {
			for next != nil && IsText(next) {
				c.Data += next.Data
				after := next.NextSibling
				n.RemoveChild(next)
				next = after
			}
			if c.Data == "" {
				n.RemoveChild(c)
			}
		}
		c = next
	}
}

// EssentiallyEmpty reports whether n has no element, comment or
// non-blank text children. Diff markers do not count. With strict, any
// text counts.
func EssentiallyEmpty(n *html.Node, strict bool) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case IsElement(c) && !IsDiffMarkerNode(c):
			return false
		case IsText(c) && (strict || strings.Trim(c.Data, " \t") != ""):
			return false
		case IsComment(c):
			return false
		}
	}
	return true
}

// IsAncestorOf reports whether a is a strict ancestor of n.
func IsAncestorOf(a, n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == a {
			return true
		}
	}
	return false
}

// OuterHTML renders n.
func OuterHTML(n *html.Node) string {
	var buf strings.Builder
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

// InnerHTML renders n's children.
func InnerHTML(n *html.Node) string {
	var buf strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return buf.String()
		}
	}
	return buf.String()
}

package diff

import (
	"regexp"
	"sort"

	"github.com/dgallion1/wtselser/internal/dom"
	"golang.org/x/net/html"
)

// Attributes that never make two nodes different.
var ignoredAttrs = map[string]bool{
	"data-parsoid-diff": true,
	"data-ve-changed":   true,
	"about":             true,
}

var generatedIDRe = regexp.MustCompile(`^mw[\w-]{2,}$`)

// Comparer decides node equality between an old and a new document.
type Comparer struct {
	Old *dom.Document
	New *dom.Document

	// IgnoreDataParsoid skips the parser bookkeeping comparison. Used when
	// one side comes from a fresh parse of synthesized text.
	IgnoreDataParsoid bool
}

// Shallow compares node type, tag, attributes and attachments, but not
// children.
func (c Comparer) Shallow(a, b *html.Node) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case html.TextNode, html.CommentNode:
		return a.Data == b.Data
	case html.ElementNode:
		return a.Data == b.Data && len(c.ChangedAttrs(a, b)) == 0
	}
	return true
}

// Deep compares whole subtrees. Encapsulated content is compared by its
// wrapper only.
func (c Comparer) Deep(a, b *html.Node) bool {
	if !c.Shallow(a, b) {
		return false
	}
	if a.Type != html.ElementNode || dom.IsEncapsulationWrapper(b) {
		return true
	}
	ca, cb := a.FirstChild, b.FirstChild
	for ca != nil && cb != nil {
		if !c.Deep(ca, cb) {
			return false
		}
		ca, cb = ca.NextSibling, cb.NextSibling
	}
	return ca == nil && cb == nil
}

// ChangedAttrs lists attributes whose values differ between the old
// element a and the new element b. data-mw and data-parsoid take part
// under their attribute names.
func (c Comparer) ChangedAttrs(a, b *html.Node) []string {
	av := attrMap(a)
	bv := attrMap(b)
	var changed []string
	for k, v := range av {
		if w, ok := bv[k]; !ok || w != v {
			changed = append(changed, k)
		}
	}
	for k := range bv {
		if _, ok := av[k]; !ok {
			changed = append(changed, k)
		}
	}
	if !dom.DataMWEqual(c.Old.DataMW(a), c.New.DataMW(b)) {
		changed = append(changed, "data-mw")
	}
	if !c.IgnoreDataParsoid && !dom.DataParsoidEqual(c.Old.DataParsoid(a), c.New.DataParsoid(b)) {
		changed = append(changed, "data-parsoid")
	}
	sort.Strings(changed)
	return changed
}

func attrMap(n *html.Node) map[string]string {
	m := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		if ignoredAttrs[a.Key] {
			continue
		}
		if a.Key == "id" && generatedIDRe.MatchString(a.Val) {
			continue
		}
		m[a.Key] = a.Val
	}
	return m
}

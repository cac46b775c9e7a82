// Package redlinks strips the "page does not exist yet" query parameters
// that the renderer adds to wikilinks.
package redlinks

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const wikiLinkSelector = `a[rel~="mw:WikiLink"]`

// Run rewrites every red wikilink href under root back to its plain
// target and returns how many links changed.
func Run(root *html.Node) int {
	if root == nil {
		panic("redlinks: nil root")
	}
	changed := 0
	goquery.NewDocumentFromNode(root).Find(wikiLinkSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		if clean, ok := CleanHref(href); ok {
			s.SetAttr("href", clean)
			changed++
		}
	})
	return changed
}

// CleanHref drops action=edit and redlink=1 from href. Other parameters
// keep their order and spelling; the fragment is kept as written. ok is
// false when href is not a red link.
func CleanHref(href string) (string, bool) {
	base, fragment, hasFragment := strings.Cut(href, "#")
	path, query, hasQuery := strings.Cut(base, "?")
	if !hasQuery {
		return href, false
	}

	var kept []string
	sawEdit, sawRedlink := false, false
	for _, pair := range strings.Split(query, "&") {
		key, val, _ := strings.Cut(pair, "=")
		key, _ = url.QueryUnescape(key)
		val, _ = url.QueryUnescape(val)
		switch {
		case key == "action" && val == "edit":
			sawEdit = true
		case key == "redlink" && val == "1":
			sawRedlink = true
		default:
			kept = append(kept, pair)
		}
	}
	if !sawEdit || !sawRedlink {
		return href, false
	}

	out := path
	if len(kept) > 0 {
		out += "?" + strings.Join(kept, "&")
	}
	if hasFragment {
		out += "#" + fragment
	}
	return out, true
}

package importer

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dgallion1/wtselser/internal/dom"
)

// HTMLImporter handles HTML files. The body is kept as is, minus
// non-content elements and any parser annotations.
type HTMLImporter struct{}

func (p *HTMLImporter) Import(r io.Reader, filename string) (*Imported, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := baseTitle(filename)
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		title = t
	}

	body := doc.Find("body").First()
	if body.Length() == 0 {
		return nil, fmt.Errorf("parse html: no body element")
	}
	body.Find("script, style, nav, footer, header, noscript, template").Remove()

	// Imported markup is new content; stale annotations would make the
	// serializer look for source that does not exist.
	body.Find("*").Each(func(_ int, s *goquery.Selection) {
		s.RemoveAttr("data-parsoid")
		s.RemoveAttr("data-mw")
		s.RemoveAttr("about")
		if t, ok := s.Attr("typeof"); ok && strings.HasPrefix(t, "mw:") {
			s.RemoveAttr("typeof")
		}
	})

	return &Imported{Title: title, Doc: dom.Load(doc.Nodes[0], body.Nodes[0])}, nil
}

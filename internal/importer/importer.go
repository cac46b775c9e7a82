// Package importer turns uploaded documents into new-content DOMs. The
// results carry no parse metadata, so the serializer writes them from
// scratch.
package importer

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/wtselser/internal/dom"
	"golang.org/x/net/html"
)

// Imported is a converted document.
type Imported struct {
	Title string
	Doc   *dom.Document
}

// Importer converts raw document bytes into a DOM.
type Importer interface {
	Import(r io.Reader, filename string) (*Imported, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// Options tune individual importers.
type Options struct {
	PDFFallbackPdftotext bool
}

// ForFile returns the appropriate importer for a filename.
func ForFile(filename string, opts Options) (Importer, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextImporter{}, nil
	case ".md", ".markdown":
		return &MarkdownImporter{}, nil
	case ".csv":
		return &CSVImporter{}, nil
	case ".html", ".htm":
		return &HTMLImporter{}, nil
	case ".pdf":
		return &PDFImporter{FallbackPdftotext: opts.PDFFallbackPdftotext}, nil
	case ".docx":
		return &DOCXImporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

func baseTitle(filename string) string {
	return strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
}

// builder appends block content to a fresh document.
type builder struct {
	doc *dom.Document
}

func newBuilder() *builder {
	return &builder{doc: dom.New()}
}

func (b *builder) heading(level int, text string) {
	level = min(max(level, 1), 6)
	h := dom.NewElement(fmt.Sprintf("h%d", level))
	dom.Append(h, dom.NewText(text))
	dom.Append(b.doc.Body, h)
}

// paragraph adds text as a <p>. Blank text is dropped.
func (b *builder) paragraph(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	p := dom.NewElement("p")
	dom.Append(p, dom.NewText(text))
	dom.Append(b.doc.Body, p)
}

func (b *builder) append(n *html.Node) {
	dom.Append(b.doc.Body, n)
}

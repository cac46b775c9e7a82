package dom

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	attrDataParsoid = "data-parsoid"
	attrDataMW      = "data-mw"
)

// DataError records an attachment that could not be decoded. The node is
// treated as having no attachment.
type DataError struct {
	Tag  string
	Attr string
	Err  error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("%s on <%s>: %v", e.Attr, e.Tag, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

type nodeData struct {
	parsoid *DataParsoid
	mw      *DataMW
}

// Document is an annotated DOM. data-parsoid and data-mw live in a side
// table keyed by node so they never leak into rendered attributes.
type Document struct {
	Root *html.Node
	Body *html.Node

	// Errors collects attachments that failed to decode during Load.
	Errors []*DataError

	data map[*html.Node]*nodeData
}

// Parse reads annotated HTML. Input without a <body> tag is parsed as a
// body fragment so leading <link>/<meta> elements stay in the body.
func Parse(src string) (*Document, error) {
	lower := strings.ToLower(src)
	if strings.Contains(lower, "<body") || strings.Contains(lower, "<html") {
		root, err := html.Parse(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("parse html: %w", err)
		}
		body := findBody(root)
		if body == nil {
			return nil, fmt.Errorf("parse html: no body element")
		}
		return Load(root, body), nil
	}

	body := NewElement("body")
	nodes, err := html.ParseFragment(strings.NewReader(src), body)
	if err != nil {
		return nil, fmt.Errorf("parse html fragment: %w", err)
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}
	return Load(body, body), nil
}

// MustParse is Parse for fixtures that are known to be well formed.
func MustParse(src string) *Document {
	d, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return d
}

// Load wraps an existing tree, moving data-parsoid and data-mw attributes
// into the side table.
func Load(root, body *html.Node) *Document {
	d := &Document{Root: root, Body: body, data: make(map[*html.Node]*nodeData)}
	Walk(body, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			d.absorb(n)
		}
		return true
	})
	return d
}

// New returns an empty document.
func New() *Document {
	body := NewElement("body")
	return &Document{Root: body, Body: body, data: make(map[*html.Node]*nodeData)}
}

func (d *Document) absorb(n *html.Node) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		switch a.Key {
		case attrDataParsoid:
			dp := &DataParsoid{}
			if err := json.Unmarshal([]byte(a.Val), dp); err != nil {
				d.Errors = append(d.Errors, &DataError{Tag: n.Data, Attr: a.Key, Err: err})
				continue
			}
			d.entry(n).parsoid = dp
		case attrDataMW:
			mw := &DataMW{}
			if err := json.Unmarshal([]byte(a.Val), mw); err != nil {
				d.Errors = append(d.Errors, &DataError{Tag: n.Data, Attr: a.Key, Err: err})
				continue
			}
			d.entry(n).mw = mw
		default:
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

func (d *Document) entry(n *html.Node) *nodeData {
	e := d.data[n]
	if e == nil {
		e = &nodeData{}
		d.data[n] = e
	}
	return e
}

// DataParsoid returns the node's parse metadata or nil.
func (d *Document) DataParsoid(n *html.Node) *DataParsoid {
	if e := d.data[n]; e != nil {
		return e.parsoid
	}
	return nil
}

// DataParsoidOrEmpty never returns nil.
func (d *Document) DataParsoidOrEmpty(n *html.Node) *DataParsoid {
	if dp := d.DataParsoid(n); dp != nil {
		return dp
	}
	return &DataParsoid{}
}

func (d *Document) SetDataParsoid(n *html.Node, dp *DataParsoid) {
	d.entry(n).parsoid = dp
}

// DataMW returns the node's invocation data or nil.
func (d *Document) DataMW(n *html.Node) *DataMW {
	if e := d.data[n]; e != nil {
		return e.mw
	}
	return nil
}

func (d *Document) SetDataMW(n *html.Node, mw *DataMW) {
	d.entry(n).mw = mw
}

// DSR returns the node's source range, or nil.
func (d *Document) DSR(n *html.Node) *DSR {
	if dp := d.DataParsoid(n); dp != nil {
		return dp.DSR
	}
	return nil
}

// IsNew reports whether an element was created after the parse: it has no
// parse metadata.
func (d *Document) IsNew(n *html.Node) bool {
	return n.Type == html.ElementNode && d.DataParsoid(n) == nil
}

// IsLiteralHTML reports whether the element was written as an HTML tag in
// the source.
func (d *Document) IsLiteralHTML(n *html.Node) bool {
	dp := d.DataParsoid(n)
	return dp != nil && dp.Stx == "html"
}

// Stx returns the syntax variant recorded for n.
func (d *Document) Stx(n *html.Node) string {
	if dp := d.DataParsoid(n); dp != nil {
		return dp.Stx
	}
	return ""
}

// Clone copies the subtree rooted at n together with its attachments.
// The copy is detached.
func (d *Document) Clone(n *html.Node) *html.Node {
	c := shallowCopy(n)
	if e := d.data[n]; e != nil {
		d.data[c] = &nodeData{parsoid: e.parsoid.Clone(), mw: e.mw.Clone()}
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.AppendChild(d.Clone(ch))
	}
	return c
}

// Adopt copies the attachments of n and its descendants from other into d,
// for nodes parsed in one document and spliced into another.
func (d *Document) Adopt(other *Document, n *html.Node) {
	Walk(n, func(x *html.Node) bool {
		if e := other.data[x]; e != nil {
			d.data[x] = e
		}
		return true
	})
}

// Forget drops the attachments of n and its descendants.
func (d *Document) Forget(n *html.Node) {
	Walk(n, func(x *html.Node) bool {
		delete(d.data, x)
		return true
	})
}

// Attrs returns the element attributes with the attachments re-encoded as
// data-parsoid and data-mw.
func (d *Document) Attrs(n *html.Node) []html.Attribute {
	attrs := append([]html.Attribute(nil), n.Attr...)
	if dp := d.DataParsoid(n); dp != nil {
		if b, err := json.Marshal(dp); err == nil {
			attrs = append(attrs, html.Attribute{Key: attrDataParsoid, Val: string(b)})
		}
	}
	if mw := d.DataMW(n); mw != nil {
		if b, err := json.Marshal(mw); err == nil {
			attrs = append(attrs, html.Attribute{Key: attrDataMW, Val: string(b)})
		}
	}
	return attrs
}

// Annotated renders the body contents with the attachments written back
// as attributes.
func (d *Document) Annotated() string {
	var annotate func(n *html.Node) *html.Node
	annotate = func(n *html.Node) *html.Node {
		c := shallowCopy(n)
		if n.Type == html.ElementNode {
			c.Attr = d.Attrs(n)
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			c.AppendChild(annotate(ch))
		}
		return c
	}
	return InnerHTML(annotate(d.Body))
}

// NewElement builds a detached element.
func NewElement(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Lookup([]byte(tag)),
		Data:     tag,
		Attr:     attrs,
	}
}

// NewText builds a detached text node.
func NewText(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func shallowCopy(n *html.Node) *html.Node {
	return &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

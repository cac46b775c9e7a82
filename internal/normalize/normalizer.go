// Package normalize rewrites edited DOM subtrees into forms with a known
// wikitext production.
package normalize

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/dgallion1/wtselser/internal/diff"
	"github.com/dgallion1/wtselser/internal/dom"
	"golang.org/x/net/html"
)

// Parser turns wikitext into an annotated DOM. It is only used to check
// that a proposed rewrite round-trips.
type Parser interface {
	Parse(ctx context.Context, wikitext string) (*dom.Document, error)
}

// Renderer serializes the children of root to wikitext without reusing
// any original source.
type Renderer interface {
	Render(ctx context.Context, doc *dom.Document, root *html.Node) (string, error)
}

// Recorder receives the outcome of each verified rewrite.
type Recorder interface {
	RecordNormalization(rule string, committed bool)
}

// Options mirrors the site flags that control scrubbing.
type Options struct {
	ScrubWikitext  bool
	RTTestMode     bool
	ScrubBidiChars bool
}

// Normalizer applies the scrubbing rules. It holds no per-document state
// and may be shared.
type Normalizer struct {
	opts     Options
	parser   Parser
	renderer Renderer
	recorder Recorder
	log      *slog.Logger
}

// New builds a Normalizer. parser and renderer may be nil, in which case
// rewrites that need verification are never applied.
func New(opts Options, parser Parser, renderer Renderer, log *slog.Logger) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{opts: opts, parser: parser, renderer: renderer, log: log}
}

// WithRecorder attaches a metrics sink.
func (nz *Normalizer) WithRecorder(r Recorder) *Normalizer {
	nz.recorder = r
	return nz
}

// run is the state of one Normalize call.
type run struct {
	*Normalizer
	ctx        context.Context
	doc        *dom.Document
	marks      *diff.Markers
	selser     bool
	inInserted bool
}

// Normalize scrubs doc in place. marks is the table produced by diff.Diff
// for doc; a nil table means the document is serialized from scratch.
// Rewrites are recorded in marks so the serializer stops reusing source
// for the touched regions. Without ScrubWikitext this is a no-op.
func (nz *Normalizer) Normalize(ctx context.Context, doc *dom.Document, marks *diff.Markers) {
	if doc == nil || doc.Body == nil {
		panic("normalize: nil document root")
	}
	if !nz.opts.ScrubWikitext {
		return
	}
	r := &run{
		Normalizer: nz,
		ctx:        ctx,
		doc:        doc,
		marks:      marks,
		selser:     marks != nil,
	}
	r.processNode(doc.Body, true)
}

var (
	headingRe       = regexp.MustCompile(`^h[1-6]$`)
	cellEscapeRe    = regexp.MustCompile(`^[-+}]`)
	trailingWSRe    = regexp.MustCompile(`\s+$`)
	leadingWSRe     = regexp.MustCompile(`^\s+`)
	bidiAroundCatRe = regexp.MustCompile(`([\x{200e}\x{200f}]+\n)?[\x{200e}\x{200f}]+$`)
)

// processNode normalizes node until it stops changing and returns the
// node that ends up in its place. With recurse, the subtree is handled
// first.
func (r *run) processNode(node *html.Node, recurse bool) *html.Node {
	for {
		for node != nil && dom.IsFirstEncapsulationWrapper(node) {
			node = dom.NextAfterEncapsulated(node)
		}
		if node == nil {
			return nil
		}

		inserted := r.marks.Has(node, diff.Inserted)
		if inserted {
			if r.inInserted {
				r.log.Warn("nested inserted diff markers", "kind", "data_fault", "tag", dom.NodeName(node))
			}
			r.inInserted = true
		}

		if recurse && dom.IsElement(node) {
			r.processSubtree(node, true)
		}
		next := r.normalizeNode(node)

		if inserted {
			r.inInserted = false
		}
		if next == node {
			return node
		}
		node = next
	}
}

// processSubtree walks node's children pairwise for tag minimization.
func (r *run) processSubtree(node *html.Node, recurse bool) {
	a := dom.FirstNonDeletedChild(node)
	if a == nil {
		return
	}
	a = r.processNode(a, recurse)
	for a != nil {
		b := dom.NextNonDeletedSibling(a)
		if b == nil {
			return
		}
		b = r.processNode(b, recurse)
		if b != nil && dom.PreviousNonDeletedSibling(b) == a {
			a = r.normalizeSiblingPair(a, b)
		} else {
			a = b
		}
	}
}

func (r *run) skipUnmodified(node *html.Node) bool {
	return r.selser && node != r.doc.Body && !r.inInserted && !r.marks.HasAny(node)
}

// normalizeNode applies the per-tag rules. It returns node when nothing
// changed, otherwise the node to continue with.
func (r *run) normalizeNode(node *html.Node) *html.Node {
	if r.opts.ScrubBidiChars {
		if next := r.stripBidiCharsAroundCategories(node); next != node {
			return next
		}
	}
	if r.skipUnmodified(node) {
		return node
	}

	switch {
	case dom.IsElement(node) && headingRe.MatchString(node.Data):
		r.hoistLinks(node, false)
		r.hoistLinks(node, true)
		r.stripBRs(node)
		return r.stripIfEmpty(node)

	case dom.IsQuoteElt(node):
		return r.stripIfEmpty(node)

	case dom.IsElementNamed(node, "a"):
		next := dom.NextNonDeletedSibling(node)
		if dom.Attr(node, "rel") == "mw:WikiLink" && r.stripIfEmpty(node) != node {
			return next
		}
		r.moveTrailingSpacesOut(node)
		return r.moveFormatTagOutsideATag(node)

	case dom.IsElementNamed(node, "td"):
		r.escapeCellPrefix(node)
		return node

	case dom.IsElementNamed(node, "font") && len(node.Attr) == 0:
		// Continue with the first unwrapped child so it is paired with
		// whatever precedes the font tag.
		next := dom.FirstNonDeletedChild(node)
		if next == nil {
			next = dom.NextNonDeletedSibling(node)
		}
		dom.MigrateChildren(node, node.Parent, node)
		r.mark(node.Parent, diff.ChildrenChanged, false)
		dom.Remove(node)
		return next

	case dom.IsElementNamed(node, "p") && !r.doc.IsLiteralHTML(node) &&
		node.FirstChild == nil && node.Parent != nil && dom.NumNonDeletedChildren(node.Parent) != 1:
		return r.mergeEmptyParagraph(node)
	}
	return node
}

// mark records a change in selser mode. Parents of inserted or deleted
// nodes become children-changed; without dontRecurse every ancestor below
// the body becomes subtree-changed.
func (r *run) mark(node *html.Node, m diff.Marker, dontRecurse bool) {
	if !r.selser || node == nil || r.marks.Has(node, m) {
		return
	}
	if r.inInserted && m == diff.Inserted {
		return
	}
	if !r.doc.IsNew(node) {
		if m == diff.Deleted {
			if node.Parent != nil {
				node.Parent.InsertBefore(diff.NewDeletedMarker(dom.IsBlock(node)), node)
			}
		} else {
			r.marks.Set(node, m)
		}
		if (m == diff.Inserted || m == diff.Deleted) && node.Parent != nil {
			r.marks.Set(node.Parent, diff.ChildrenChanged)
		}
	}
	if dontRecurse {
		return
	}
	for p := node.Parent; dom.IsElement(p) && p != r.doc.Body; p = p.Parent {
		if r.marks.Has(p, diff.SubtreeChanged) {
			return
		}
		if !r.doc.IsNew(p) {
			r.marks.Set(p, diff.SubtreeChanged)
		}
	}
}

// moved flags a node whose position changed.
func (r *run) moved(node *html.Node) {
	r.mark(node, diff.ModifiedWrapper, true)
}

package normalize

import (
	"strings"

	"github.com/dgallion1/wtselser/internal/diff"
	"github.com/dgallion1/wtselser/internal/dom"
	"golang.org/x/net/html"
)

const ruleFormatHoist = "format-hoist"

// moveFormatTagOutsideATag turns [[X|'''X''']] style links into '''[[X]]'''
// when the link text equals the target. The rewrite is only committed if
// the result survives a render and reparse unchanged.
func (r *run) moveFormatTagOutsideATag(node *html.Node) *html.Node {
	if r.opts.RTTestMode {
		return node
	}
	if sibling := dom.NextNonDeletedSibling(node); sibling != nil {
		r.normalizeSiblingPair(node, sibling)
	}

	first := dom.FirstNonDeletedChild(node)
	var firstNext *html.Node
	if first != nil {
		firstNext = dom.NextNonDeletedSibling(first)
	}

	href, ok := dom.LookupAttr(node, "href")
	if !ok {
		r.log.Error("href is missing from a tag", "html", dom.OuterHTML(node))
		return node
	}

	if !dom.IsElement(first) || firstNext != nil {
		return node
	}
	for _, attr := range []string{"color", "style", "class"} {
		if _, has := dom.LookupAttr(first, attr); has {
			return node
		}
	}
	if dom.TextContent(node) != strings.TrimPrefix(href, "./") {
		return node
	}
	if !dom.IsFormattingElt(first) {
		return node
	}

	committed := r.verifyHoist(node)
	if r.recorder != nil {
		r.recorder.RecordNormalization(ruleFormatHoist, committed)
	}
	if !committed {
		r.log.Debug("reverted normalization", "rule", ruleFormatHoist, "href", href)
		return node
	}
	for child := dom.FirstNonDeletedChild(node); dom.IsFormattingElt(child); child = dom.FirstNonDeletedChild(node) {
		r.swap(node, child)
	}
	return first
}

// verifyHoist applies the hoist to a detached copy of link, renders the
// copy, reparses the text and checks the reparse reproduces the copy.
func (r *run) verifyHoist(link *html.Node) bool {
	if r.parser == nil || r.renderer == nil {
		return false
	}
	scratch := dom.NewElement("body")
	candidate := r.doc.Clone(link)
	scratch.AppendChild(candidate)
	defer r.doc.Forget(scratch)

	for child := dom.FirstNonDeletedChild(candidate); dom.IsFormattingElt(child); child = dom.FirstNonDeletedChild(candidate) {
		swapNodes(candidate, child)
	}

	wt, err := r.renderer.Render(r.ctx, r.doc, scratch)
	if err != nil {
		r.log.Debug("render candidate failed", "rule", ruleFormatHoist, "error", err)
		return false
	}
	reparsed, err := r.parser.Parse(r.ctx, wt)
	if err != nil {
		r.log.Debug("reparse candidate failed", "rule", ruleFormatHoist, "error", err)
		return false
	}
	return sameContent(reparsed, r.doc, reparsed.Body, scratch)
}

// sameContent compares the reparsed body with the candidate container.
// The paragraph the parser wraps around inline content is looked through.
func sameContent(reparsed, doc *dom.Document, got, want *html.Node) bool {
	gotNodes := trimSeparators(dom.Children(got))
	wantNodes := trimSeparators(dom.Children(want))
	if len(gotNodes) == 1 && dom.IsElementNamed(gotNodes[0], "p") &&
		(len(wantNodes) != 1 || !dom.IsElementNamed(wantNodes[0], "p")) {
		gotNodes = trimSeparators(dom.Children(gotNodes[0]))
	}
	if len(gotNodes) != len(wantNodes) {
		return false
	}
	cmp := diff.Comparer{Old: reparsed, New: doc, IgnoreDataParsoid: true}
	for i := range gotNodes {
		if !cmp.Deep(gotNodes[i], wantNodes[i]) {
			return false
		}
	}
	return true
}

func trimSeparators(nodes []*html.Node) []*html.Node {
	for len(nodes) > 0 && dom.IsSeparator(nodes[0]) {
		nodes = nodes[1:]
	}
	for len(nodes) > 0 && dom.IsSeparator(nodes[len(nodes)-1]) {
		nodes = nodes[:len(nodes)-1]
	}
	return nodes
}

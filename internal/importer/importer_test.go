package importer

import (
	"strings"
	"testing"

	"github.com/dgallion1/wtselser/internal/dom"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"
)

// blocks lists the element children of the body as "tag:text".
func blocks(d *dom.Document) []string {
	var out []string
	for _, c := range dom.Children(d.Body) {
		if c.Type != html.ElementNode {
			continue
		}
		out = append(out, c.Data+":"+strings.TrimSpace(dom.TextContent(c)))
	}
	return out
}

func TestTextImporter_ParagraphSplitting(t *testing.T) {
	input := "First paragraph line one.\nFirst paragraph line two.\n\nSecond paragraph.\n\n\n\nThird paragraph."
	got, err := (&TextImporter{}).Import(strings.NewReader(input), "notes.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Title != "notes" {
		t.Errorf("expected title %q, got %q", "notes", got.Title)
	}
	want := []string{
		"p:First paragraph line one.\nFirst paragraph line two.",
		"p:Second paragraph.",
		"p:Third paragraph.",
	}
	if diff := cmp.Diff(want, blocks(got.Doc)); diff != "" {
		t.Errorf("blocks mismatch (-want +got):\n%s", diff)
	}
}

func TestTextImporter_EmptyInput(t *testing.T) {
	got, err := (&TextImporter{}).Import(strings.NewReader(""), "empty.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Doc.Body.FirstChild != nil {
		t.Error("expected an empty body")
	}
}

func TestMarkdownImporter_Headings(t *testing.T) {
	input := "# Title\n\nIntro text.\n\n## Section A\n\nSection A content.\n"
	got, err := (&MarkdownImporter{}).Import(strings.NewReader(input), "doc.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Title != "Title" {
		t.Errorf("expected title %q, got %q", "Title", got.Title)
	}
	want := []string{"h1:Title", "p:Intro text.", "h2:Section A", "p:Section A content."}
	if diff := cmp.Diff(want, blocks(got.Doc)); diff != "" {
		t.Errorf("blocks mismatch (-want +got):\n%s", diff)
	}
}

func TestMarkdownImporter_NoHeadingUsesFilename(t *testing.T) {
	got, err := (&MarkdownImporter{}).Import(strings.NewReader("just text"), "dir/readme.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Title != "readme" {
		t.Errorf("expected title %q, got %q", "readme", got.Title)
	}
}

func TestCSVImporter_Wikitable(t *testing.T) {
	input := "name,age\nalice,30\nbob,41\n"
	got, err := (&CSVImporter{}).Import(strings.NewReader(input), "people.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	table := got.Doc.Body.FirstChild
	if !dom.IsElementNamed(table, "table") {
		t.Fatalf("expected a table, got %v", table)
	}
	if dom.Attr(table, "class") != "wikitable" {
		t.Errorf("expected class wikitable, got %q", dom.Attr(table, "class"))
	}
	rows := dom.Children(table.FirstChild)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].FirstChild.Data != "th" || rows[1].FirstChild.Data != "td" {
		t.Errorf("expected a header row followed by data rows")
	}
	if got := dom.TextContent(rows[2]); got != "bob41" {
		t.Errorf("expected %q, got %q", "bob41", got)
	}
}

func TestHTMLImporter_StripsChromeAndAnnotations(t *testing.T) {
	input := `<html><head><title>Page</title><script>x()</script></head><body>` +
		`<nav>menu</nav><p data-parsoid='{"dsr":[0,1,0,0]}'>Hello</p>` +
		`<span typeof="mw:Transclusion" about="#mwt1">t</span></body></html>`
	got, err := (&HTMLImporter{}).Import(strings.NewReader(input), "page.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Title != "Page" {
		t.Errorf("expected title %q, got %q", "Page", got.Title)
	}
	kids := dom.Children(got.Doc.Body)
	if len(kids) != 2 {
		t.Fatalf("expected 2 children, got %d", len(kids))
	}
	if !got.Doc.IsNew(kids[0]) {
		t.Error("expected imported paragraph to be new content")
	}
	if dom.IsEncapsulationWrapper(kids[1]) {
		t.Error("expected transclusion markup to be dropped")
	}
}

func TestPagesToDoc(t *testing.T) {
	b := pagesToDoc("a\n\nb\f  \fc")
	want := []string{"h2:Page 1", "p:a", "p:b", "h2:Page 3", "p:c"}
	if diff := cmp.Diff(want, blocks(b.doc)); diff != "" {
		t.Errorf("blocks mismatch (-want +got):\n%s", diff)
	}

	single := pagesToDoc("only page")
	if diff := cmp.Diff([]string{"p:only page"}, blocks(single.doc)); diff != "" {
		t.Errorf("blocks mismatch (-want +got):\n%s", diff)
	}
}

func TestForFile(t *testing.T) {
	for _, name := range []string{"a.txt", "a.MD", "a.csv", "a.htm", "a.pdf", "a.docx"} {
		if _, err := ForFile(name, Options{}); err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
		}
		if !IsSupportedExtension(name) {
			t.Errorf("%s: expected supported extension", name)
		}
	}
	if _, err := ForFile("a.exe", Options{}); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestStyleLevel(t *testing.T) {
	for style, want := range map[string]int{"Heading1": 1, "heading 3": 3, "Title": -1, "Normal": 0, "Heading9": 0} {
		if got := styleLevel(style); got != want {
			t.Errorf("%s: expected %d, got %d", style, want, got)
		}
	}
}

package dom

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParse_MovesAttachmentsIntoSideTable(t *testing.T) {
	d, err := Parse(`<p data-parsoid='{"dsr":[0,5,0,0]}'>Hello</p>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := d.Body.FirstChild
	if p == nil || p.Data != "p" {
		t.Fatalf("expected <p>, got %v", p)
	}
	if _, ok := LookupAttr(p, "data-parsoid"); ok {
		t.Error("data-parsoid should not remain a visible attribute")
	}
	dsr := d.DSR(p)
	if dsr == nil || dsr.Start != 0 || dsr.End != 5 {
		t.Fatalf("expected dsr [0,5], got %+v", dsr)
	}
	if d.IsNew(p) {
		t.Error("parsed element with data-parsoid should not be new")
	}
	if got := OuterHTML(p); got != "<p>Hello</p>" {
		t.Errorf("expected clean render, got %q", got)
	}
}

func TestParse_LeadingLinkStaysInBody(t *testing.T) {
	d := MustParse(`<link rel="mw:PageProp/Category" href="./Category:Foo"><p>x</p>`)
	first := d.Body.FirstChild
	if !IsCategoryLink(first) {
		t.Fatalf("expected category link as first body child, got %q", NodeName(first))
	}
}

func TestParse_MalformedAttachmentIsRecorded(t *testing.T) {
	d := MustParse(`<p data-parsoid='{"dsr":'>x</p>`)
	if len(d.Errors) != 1 {
		t.Fatalf("expected 1 data error, got %d", len(d.Errors))
	}
	if !d.IsNew(d.Body.FirstChild) {
		t.Error("node with undecodable data-parsoid should be treated as new")
	}
}

func TestDSR_NullWidths(t *testing.T) {
	var dsr DSR
	if err := json.Unmarshal([]byte(`[3,9,null,2]`), &dsr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dsr.OpenWidth != -1 || dsr.CloseWidth != 2 {
		t.Errorf("expected widths -1/2, got %d/%d", dsr.OpenWidth, dsr.CloseWidth)
	}
	if !dsr.Valid() {
		t.Error("range should be valid")
	}
	if dsr.ValidTagWidths() {
		t.Error("tag widths should be invalid with a null open width")
	}
	b, _ := json.Marshal(dsr)
	if string(b) != "[3,9,null,2]" {
		t.Errorf("expected [3,9,null,2], got %s", b)
	}
}

func TestParams_PreserveOrder(t *testing.T) {
	var mw DataMW
	src := `{"parts":[{"template":{"target":{"wt":"Tpl"},"params":{"z":{"wt":"1"},"a":{"wt":"2"},"m":{"html":"<b>x</b>"}},"i":0}}]}`
	if err := json.Unmarshal([]byte(src), &mw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	params := mw.Parts[0].Template.Params
	var names []string
	for _, p := range params {
		names = append(names, p.Name)
	}
	if strings.Join(names, ",") != "z,a,m" {
		t.Errorf("expected z,a,m, got %v", names)
	}
	out, err := json.Marshal(&mw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out), `"params":{"z":{"wt":"1"},"a":{"wt":"2"}`) {
		t.Errorf("params order lost in %s", out)
	}
}

func TestDataMWEqual_IgnoresParamOrder(t *testing.T) {
	a := &DataMW{Parts: []Part{{Template: &Transclusion{Target: Target{WT: "T"}}}}}
	b := a.Clone()
	a.Parts[0].Template.Params.Set("x", "1")
	a.Parts[0].Template.Params.Set("y", "2")
	b.Parts[0].Template.Params.Set("y", "2")
	b.Parts[0].Template.Params.Set("x", "1")
	if !DataMWEqual(a, b) {
		t.Error("expected equal data-mw regardless of param order")
	}
	b.Parts[0].Template.Params.Set("x", "3")
	if DataMWEqual(a, b) {
		t.Error("expected different data-mw after value change")
	}
}

func TestAboutSiblings(t *testing.T) {
	d := MustParse(`<span about="#mwt1" typeof="mw:Transclusion">a</span> <span about="#mwt1">b</span><p>c</p>`)
	first := d.Body.FirstChild
	sibs := AboutSiblings(first)
	if len(sibs) != 3 {
		t.Fatalf("expected 3 nodes in about group, got %d", len(sibs))
	}
	if next := NextAfterEncapsulated(first); !IsElementNamed(next, "p") {
		t.Errorf("expected <p> after group, got %q", NodeName(next))
	}
	if !IsEncapsulationWrapper(sibs[2]) {
		t.Error("about-sibling should count as encapsulation wrapper")
	}
}

func TestMergeAdjacentText(t *testing.T) {
	p := NewElement("p")
	p.AppendChild(NewText("a"))
	p.AppendChild(NewText(""))
	p.AppendChild(NewText("b"))
	p.AppendChild(NewElement("br"))
	p.AppendChild(NewText(""))
	MergeAdjacentText(p)
	if got := InnerHTML(p); got != "ab<br/>" {
		t.Errorf("expected %q, got %q", "ab<br/>", got)
	}
}

func TestClone_CopiesAttachments(t *testing.T) {
	d := MustParse(`<p data-parsoid='{"dsr":[0,3,0,0]}'><i data-parsoid='{"dsr":[0,3,1,1]}'>x</i></p>`)
	c := d.Clone(d.Body.FirstChild)
	if c.Parent != nil {
		t.Error("clone should be detached")
	}
	if d.DSR(c.FirstChild) == nil || d.DSR(c.FirstChild).OpenWidth != 1 {
		t.Error("clone lost data-parsoid")
	}
	d.DSR(c).End = 99
	if d.DSR(d.Body.FirstChild).End != 3 {
		t.Error("clone shares data-parsoid with original")
	}
}

func TestAnnotated_RestoresAttributes(t *testing.T) {
	d := MustParse(`<p data-parsoid='{"stx":"html"}'>x</p>`)
	out := d.Annotated()
	if !strings.Contains(out, `data-parsoid="{&#34;stx&#34;:&#34;html&#34;}"`) {
		t.Errorf("expected data-parsoid in %q", out)
	}
}

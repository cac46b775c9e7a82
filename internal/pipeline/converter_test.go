package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgallion1/wtselser/internal/dom"
	"github.com/dgallion1/wtselser/internal/metrics"
	"github.com/dgallion1/wtselser/internal/normalize"
	"github.com/dgallion1/wtselser/internal/wts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stubParser struct {
	html  string
	err   error
	calls int
}

func (p *stubParser) Parse(_ context.Context, _ string) (*dom.Document, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return dom.Parse(p.html)
}

const (
	origWikitext = "First para.\n\nSecond para."
	origHTML     = `<p data-parsoid='{"dsr":[0,11,0,0]}'>First para.</p>` + "\n\n" +
		`<p data-parsoid='{"dsr":[13,25,0,0]}'>Second para.</p>`
	editedHTML = `<p data-parsoid='{"dsr":[0,11,0,0]}'>First para.</p>` + "\n\n" +
		`<p data-parsoid='{"dsr":[13,25,0,0]}'>Second edited.</p>`
)

func newTestConverter(parser *stubParser) *Converter {
	var p normalize.Parser
	if parser != nil {
		p = parser
	}
	return NewConverter(ConverterConfig{}, nil, p, metrics.New(prometheus.NewRegistry()), metrics.NewLatencyWindow(time.Hour), nil)
}

func TestConverter_EmptyInput(t *testing.T) {
	_, err := newTestConverter(nil).Convert(context.Background(), Request{HTML: "  "})
	if !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
}

func TestConverter_FullSerialization(t *testing.T) {
	out, err := newTestConverter(nil).Convert(context.Background(), Request{HTML: `<p>Hello world</p>`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Wikitext != "Hello world" {
		t.Errorf("expected %q, got %q", "Hello world", out.Wikitext)
	}
	if out.Selser {
		t.Error("expected a full serialization")
	}
}

func TestConverter_SelserWithOriginalHTML(t *testing.T) {
	c := newTestConverter(nil)
	out, err := c.Convert(context.Background(), Request{
		HTML:     editedHTML,
		Original: &Original{Wikitext: origWikitext, HTML: origHTML},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "First para.\n\nSecond edited."
	if out.Wikitext != want {
		t.Errorf("expected %q, got %q", want, out.Wikitext)
	}
	if !out.Selser {
		t.Error("expected a selective serialization")
	}
	if n := c.window.Snapshot().Selser.Count; n != 1 {
		t.Errorf("expected 1 selser sample, got %d", n)
	}
}

func TestConverter_ParsesOriginalWhenHTMLMissing(t *testing.T) {
	parser := &stubParser{html: origHTML}
	out, err := newTestConverter(parser).Convert(context.Background(), Request{
		HTML:     editedHTML,
		Original: &Original{Wikitext: origWikitext},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parser.calls != 1 {
		t.Errorf("expected 1 parser call, got %d", parser.calls)
	}
	if !out.Selser {
		t.Error("expected a selective serialization")
	}
}

func TestConverter_ParserFailure(t *testing.T) {
	parser := &stubParser{err: errors.New("parsoid down")}
	_, err := newTestConverter(parser).Convert(context.Background(), Request{
		HTML:     editedHTML,
		Original: &Original{Wikitext: origWikitext},
	})
	if err == nil || !errors.Is(err, parser.err) {
		t.Errorf("expected wrapped parser error, got %v", err)
	}
}

func TestConverter_NoParserFallsBackToFull(t *testing.T) {
	out, err := newTestConverter(nil).Convert(context.Background(), Request{
		HTML:     `<p>Hello world</p>`,
		Original: &Original{Wikitext: "Hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Selser {
		t.Error("expected a full serialization without original html")
	}
}

func TestConverter_CleansRedLinks(t *testing.T) {
	out, err := newTestConverter(nil).Convert(context.Background(), Request{
		HTML: `<p><a rel="mw:WikiLink" href="./Foo?action=edit&amp;redlink=1">Foo</a></p>`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Wikitext != "[[Foo]]" {
		t.Errorf("expected %q, got %q", "[[Foo]]", out.Wikitext)
	}
}

func TestConverter_ConvertDocumentNil(t *testing.T) {
	if _, err := newTestConverter(nil).ConvertDocument(context.Background(), nil, false); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
}

func TestConverter_ReportsSerializerFaults(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewConverter(ConverterConfig{}, nil, nil, metrics.New(reg), nil, nil)

	out, err := c.Convert(context.Background(), Request{HTML: `<p>x</p><blink>y</blink>`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Faults) != 1 {
		t.Fatalf("expected 1 fault, got %d", len(out.Faults))
	}
	if out.Faults[0].Kind != wts.KindUnknownProduction || out.Faults[0].Tag != "blink" {
		t.Errorf("expected unknown_production on blink, got %v", out.Faults[0])
	}
	if n, err := testutil.GatherAndCount(reg, "wtselser_serializer_faults_total"); err != nil || n != 1 {
		t.Errorf("expected 1 fault series, got %d (%v)", n, err)
	}
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dgallion1/wtselser/internal/diff"
	"github.com/dgallion1/wtselser/internal/dom"
	"github.com/dgallion1/wtselser/internal/metrics"
	"github.com/dgallion1/wtselser/internal/normalize"
	"github.com/dgallion1/wtselser/internal/redlinks"
	"github.com/dgallion1/wtselser/internal/templatedata"
	"github.com/dgallion1/wtselser/internal/wts"
)

// ErrEmptyInput is returned for a request without HTML.
var ErrEmptyInput = errors.New("empty html input")

// Original is the revision an edit started from.
type Original struct {
	Wikitext string `json:"wikitext"`
	// HTML is the parse of Wikitext. When empty it is fetched from the
	// parser, if one is configured.
	HTML string `json:"html,omitempty"`
}

// Request is one HTML to wikitext conversion.
type Request struct {
	HTML          string
	Original      *Original
	ScrubWikitext bool
	InTemplate    bool
}

// Output is the converted wikitext.
type Output struct {
	Wikitext string       `json:"wikitext"`
	Selser   bool         `json:"selser"`
	Faults   []*wts.Fault `json:"-"`
}

// ConverterConfig holds the process-wide conversion flags.
type ConverterConfig struct {
	RTTestMode     bool
	ScrubBidiChars bool
}

// Converter runs diff, normalize, red link removal and serialization.
type Converter struct {
	cfg     ConverterConfig
	tpl     templatedata.Provider
	parser  normalize.Parser
	metrics *metrics.Metrics
	window  *metrics.LatencyWindow
	tracer  trace.Tracer
	log     *slog.Logger
}

// NewConverter wires the collaborators. Any of tpl, parser, m and window
// may be nil.
func NewConverter(cfg ConverterConfig, tpl templatedata.Provider, parser normalize.Parser, m *metrics.Metrics, window *metrics.LatencyWindow, log *slog.Logger) *Converter {
	if log == nil {
		log = slog.Default()
	}
	return &Converter{
		cfg:     cfg,
		tpl:     tpl,
		parser:  parser,
		metrics: m,
		window:  window,
		tracer:  otel.Tracer("github.com/dgallion1/wtselser/internal/pipeline"),
		log:     log,
	}
}

// Convert turns req.HTML into wikitext. With an original revision the
// output reuses its source for everything the edit did not touch.
func (c *Converter) Convert(ctx context.Context, req Request) (*Output, error) {
	if strings.TrimSpace(req.HTML) == "" {
		return nil, ErrEmptyInput
	}
	doc, err := dom.Parse(req.HTML)
	if err != nil {
		return nil, fmt.Errorf("parse edited html: %w", err)
	}
	return c.observe(ctx, doc, req)
}

// ConvertDocument serializes a document that has no original revision,
// such as an imported file.
func (c *Converter) ConvertDocument(ctx context.Context, doc *dom.Document, scrub bool) (*Output, error) {
	if doc == nil || doc.Body == nil {
		return nil, ErrEmptyInput
	}
	return c.observe(ctx, doc, Request{ScrubWikitext: scrub})
}

func (c *Converter) observe(ctx context.Context, doc *dom.Document, req Request) (*Output, error) {
	ctx, span := c.tracer.Start(ctx, "wtselser.convert",
		trace.WithAttributes(
			attribute.Bool("original", req.Original != nil),
			attribute.Bool("scrub", req.ScrubWikitext),
		))
	defer span.End()

	start := time.Now()
	out, err := c.convert(ctx, doc, req)
	elapsed := time.Since(start)

	selser := out != nil && out.Selser
	c.metrics.ObserveConversion(selser, elapsed, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if c.window != nil {
		c.window.Record(elapsed, selser)
	}
	for _, f := range out.Faults {
		c.metrics.ObserveFault(string(f.Kind))
	}
	span.SetAttributes(attribute.Bool("selser", selser), attribute.Int("faults", len(out.Faults)))
	span.SetStatus(codes.Ok, "")
	return out, nil
}

func (c *Converter) convert(ctx context.Context, doc *dom.Document, req Request) (*Output, error) {
	for _, e := range doc.Errors {
		c.log.Warn("ignoring bad annotation", "kind", wts.KindDataFault, "tag", e.Tag, "detail", e.Error())
	}

	var marks *diff.Markers
	var sel *wts.SelserData
	if req.Original != nil {
		oldDoc, err := c.originalDoc(ctx, req.Original)
		if err != nil {
			return nil, err
		}
		if oldDoc != nil {
			_, span := c.tracer.Start(ctx, "wtselser.diff")
			marks = diff.Diff(oldDoc, doc)
			span.SetAttributes(attribute.Int("markers", marks.Len()))
			span.End()
			sel = &wts.SelserData{Wikitext: req.Original.Wikitext}
		}
	}

	ser := wts.New(wts.Options{RTTestMode: c.cfg.RTTestMode, InTemplate: req.InTemplate}, c.tpl, c.log)

	nctx, span := c.tracer.Start(ctx, "wtselser.normalize")
	nz := normalize.New(normalize.Options{
		ScrubWikitext:  req.ScrubWikitext,
		RTTestMode:     c.cfg.RTTestMode,
		ScrubBidiChars: c.cfg.ScrubBidiChars,
	}, c.parser, ser, c.log)
	if c.metrics != nil {
		nz = nz.WithRecorder(c.metrics)
	}
	nz.Normalize(nctx, doc, marks)
	span.End()

	if n := redlinks.Run(doc.Body); n > 0 {
		c.log.Debug("cleaned red links", "count", n)
	}

	sctx, span := c.tracer.Start(ctx, "wtselser.serialize")
	defer span.End()
	res, err := ser.Serialize(sctx, doc, marks, sel)
	if err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	return &Output{Wikitext: res.Wikitext, Selser: res.Selser, Faults: res.Faults}, nil
}

// originalDoc returns the DOM of the original revision. It is nil when
// no HTML was given and no parser is configured; the conversion then
// falls back to a full serialization.
func (c *Converter) originalDoc(ctx context.Context, orig *Original) (*dom.Document, error) {
	if orig.HTML != "" {
		d, err := dom.Parse(orig.HTML)
		if err != nil {
			return nil, fmt.Errorf("parse original html: %w", err)
		}
		return d, nil
	}
	if c.parser == nil {
		c.log.Warn("original html missing and no parser configured, serializing from scratch")
		return nil, nil
	}
	ctx, span := c.tracer.Start(ctx, "wtselser.parse_original")
	defer span.End()
	d, err := c.parser.Parse(ctx, orig.Wikitext)
	if err != nil {
		return nil, fmt.Errorf("parse original wikitext: %w", err)
	}
	return d, nil
}

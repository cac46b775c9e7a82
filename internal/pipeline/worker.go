package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/wtselser/internal/importer"
	"github.com/dgallion1/wtselser/internal/metrics"
)

// Worker processes a single import job.
type Worker struct {
	conv    *Converter
	opts    importer.Options
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewWorker(conv *Converter, opts importer.Options, m *metrics.Metrics, log *slog.Logger) *Worker {
	return &Worker{conv: conv, opts: opts, metrics: m, log: log}
}

// Process imports the job's file and serializes it.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	imp, err := importer.ForFile(job.Filename, w.opts)
	if err != nil {
		w.fail(log, job, "parsing", err)
		return
	}
	doc, err := imp.Import(bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		w.fail(log, job, "parsing", fmt.Errorf("import: %w", err))
		return
	}
	if doc.Doc.Body.FirstChild == nil {
		w.fail(log, job, "parsing", fmt.Errorf("no content"))
		return
	}

	// Phase 2: Serialize
	job.SetStatus(StatusSerializing, "serializing")
	out, err := w.conv.ConvertDocument(ctx, doc.Doc, job.Scrub)
	if err != nil {
		w.fail(log, job, "serializing", err)
		return
	}
	for _, f := range out.Faults {
		job.AddError(f.Error())
	}

	job.Complete(doc.Title, out.Wikitext, len(out.Faults))
	w.metrics.ObserveJob(string(StatusCompleted))
	log.Info("import complete", "title", doc.Title, "bytes", len(out.Wikitext), "faults", len(out.Faults))
}

func (w *Worker) fail(log *slog.Logger, job *Job, phase string, err error) {
	log.Error("import failed", "phase", phase, "error", err)
	job.AddError(err.Error())
	job.SetStatus(StatusFailed, phase)
	w.metrics.ObserveJob(string(StatusFailed))
}

package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/dgallion1/wtselser/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func waitFinished(t *testing.T, job *Job) JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := job.Snapshot()
		if snap.Status.Finished() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", job.ID)
	return JobSnapshot{}
}

func startOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	o := NewOrchestrator(OrchestratorConfig{WorkerCount: 2, MaxQueueSize: 4, JobTTL: time.Hour},
		NewConverter(ConverterConfig{}, nil, nil, m, nil, nil), m, nil)
	o.Start(context.Background())
	t.Cleanup(o.Stop)
	return o
}

func TestOrchestrator_ImportsTextFile(t *testing.T) {
	o := startOrchestrator(t)

	job := NewJob("notes.txt", []byte("First.\n\nSecond."), false)
	if err := o.Submit(job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := waitFinished(t, job)
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (%v)", snap.Status, snap.Errors)
	}
	got, _ := o.GetJob(job.ID).Result()
	if got != "First.\n\nSecond." {
		t.Errorf("expected %q, got %q", "First.\n\nSecond.", got)
	}
	if snap.Title != "notes" {
		t.Errorf("expected title %q, got %q", "notes", snap.Title)
	}
}

func TestOrchestrator_UnsupportedFileFails(t *testing.T) {
	o := startOrchestrator(t)

	job := NewJob("binary.exe", []byte{0, 1, 2}, false)
	if err := o.Submit(job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := waitFinished(t, job)
	if snap.Status != StatusFailed {
		t.Errorf("expected failed, got %q", snap.Status)
	}
	if snap.Phase != "parsing" || len(snap.Errors) == 0 {
		t.Errorf("expected a parsing error, got phase %q errors %v", snap.Phase, snap.Errors)
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	// Not started: nothing drains the queue.
	o := NewOrchestrator(OrchestratorConfig{WorkerCount: 1, MaxQueueSize: 1}, nil, nil, nil)
	if err := o.Submit(NewJob("a.txt", nil, false)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	job := NewJob("b.txt", nil, false)
	if err := o.Submit(job); err == nil {
		t.Fatal("expected queue full error")
	}
	if job.Snapshot().Status != StatusFailed {
		t.Errorf("expected rejected job to be failed")
	}
}

package templatedata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type countingProvider struct {
	calls atomic.Int32
	td    *TemplateData
	err   error
}

func (p *countingProvider) Fetch(_ context.Context, _ string) (*TemplateData, error) {
	p.calls.Add(1)
	return p.td, p.err
}

func TestTemplateData_Usable(t *testing.T) {
	var nilTD *TemplateData
	if nilTD.Usable() {
		t.Error("nil templatedata should not be usable")
	}
	if (&TemplateData{Missing: true}).Usable() {
		t.Error("missing template should not be usable")
	}
	if (&TemplateData{NoTemplateData: true}).Usable() {
		t.Error("template without templatedata should not be usable")
	}
	if !(&TemplateData{Format: "block"}).Usable() {
		t.Error("expected usable templatedata")
	}
}

func TestCache_RemembersAnswers(t *testing.T) {
	p := &countingProvider{td: &TemplateData{Format: "inline"}}
	c := NewCache(p)
	for i := 0; i < 3; i++ {
		td, err := c.Fetch(context.Background(), "Template:X")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if td.Format != "inline" {
			t.Errorf("expected inline, got %q", td.Format)
		}
	}
	if n := p.calls.Load(); n != 1 {
		t.Errorf("expected 1 provider call, got %d", n)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}
}

func TestCache_RemembersNilAnswer(t *testing.T) {
	p := &countingProvider{}
	c := NewCache(p)
	c.Fetch(context.Background(), "Template:None")
	c.Fetch(context.Background(), "Template:None")
	if n := p.calls.Load(); n != 1 {
		t.Errorf("expected 1 provider call, got %d", n)
	}
}

func TestCache_DoesNotRememberErrors(t *testing.T) {
	p := &countingProvider{err: errors.New("boom")}
	c := NewCache(p)
	for i := 0; i < 2; i++ {
		if _, err := c.Fetch(context.Background(), "Template:X"); err == nil {
			t.Fatal("expected error")
		}
	}
	if n := p.calls.Load(); n != 2 {
		t.Errorf("expected 2 provider calls, got %d", n)
	}
}

func TestCache_NilProvider(t *testing.T) {
	td, err := NewCache(nil).Fetch(context.Background(), "Template:X")
	if err != nil || td != nil {
		t.Errorf("expected (nil, nil), got (%v, %v)", td, err)
	}
}

func TestLoadFile(t *testing.T) {
	s, err := LoadFile("testdata/templatedata.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	td, _ := s.Fetch(context.Background(), "Template:Infobox")
	want := &TemplateData{
		Title:      "Template:Infobox",
		Format:     "block",
		ParamOrder: []string{"name", "image", "caption"},
		Params:     map[string]Param{"name": {Aliases: []string{"title"}}},
	}
	if diff := cmp.Diff(want, td); diff != "" {
		t.Errorf("Infobox mismatch (-want +got):\n%s", diff)
	}
	if got := td.Aliases("name"); len(got) != 1 || got[0] != "title" {
		t.Errorf("expected [title], got %v", got)
	}

	bare, _ := s.Fetch(context.Background(), "Template:Bare")
	if bare == nil || bare.Usable() {
		t.Errorf("empty entry should be present but unusable, got %+v", bare)
	}
	none, _ := s.Fetch(context.Background(), "Template:Unknown")
	if none != nil {
		t.Errorf("expected nil for unknown title, got %+v", none)
	}
}

func TestParse_UnderscoreTitlesMatchLinkTitles(t *testing.T) {
	s, err := Parse([]byte("Template:Cite_web:\n  format: inline\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, title := range []string{"Template:Cite web", "Template:Cite_web"} {
		td, _ := s.Fetch(context.Background(), title)
		if td == nil {
			t.Fatalf("expected templatedata for %q", title)
		}
		if td.Title != "Template:Cite web" {
			t.Errorf("expected %q, got %q", "Template:Cite web", td.Title)
		}
	}
}

func TestParse_DuplicateTitles(t *testing.T) {
	_, err := Parse([]byte("Template:A_b:\n  format: inline\nTemplate:A b:\n  format: block\n"))
	if err == nil {
		t.Fatal("expected error for a title listed twice")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile("testdata/nope.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestBackoff_Bounds(t *testing.T) {
	for attempt := 0; attempt < 8; attempt++ {
		d := Backoff(attempt)
		if d < 250*time.Millisecond || d > 7500*time.Millisecond {
			t.Errorf("attempt %d: backoff %v out of range", attempt, d)
		}
	}
}

func TestAPIClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("action") != "templatedata" {
			t.Errorf("expected action=templatedata, got %q", q.Get("action"))
		}
		if q.Get("titles") != "Template:Foo" {
			t.Errorf("expected titles=Template:Foo, got %q", q.Get("titles"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"pages": map[string]any{
				"42": map[string]any{
					"title":      "Template:Foo",
					"format":     "block",
					"paramOrder": []string{"a", "b"},
					"params": map[string]any{
						"a": map[string]any{"aliases": []string{"alpha"}},
					},
				},
			},
		})
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, 0, 5*time.Second, nil)
	defer c.Close()
	td, err := c.Fetch(context.Background(), "Template:Foo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if td.Format != "block" {
		t.Errorf("expected block, got %q", td.Format)
	}
	if diff := cmp.Diff([]string{"a", "b"}, td.ParamOrder); diff != "" {
		t.Errorf("paramOrder mismatch (-want +got):\n%s", diff)
	}
	if got := td.Aliases("a"); len(got) != 1 || got[0] != "alpha" {
		t.Errorf("expected [alpha], got %v", got)
	}
}

func TestAPIClient_MissingPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pages":{"-1":{"title":"Template:Nope","missing":true}}}`))
	}))
	defer srv.Close()

	td, err := NewAPIClient(srv.URL, 0, 5*time.Second, nil).Fetch(context.Background(), "Template:Nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if td == nil || !td.Missing || td.Usable() {
		t.Errorf("expected missing templatedata, got %+v", td)
	}
}

func TestAPIClient_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"pages":{"1":{"title":"Template:Foo","format":"inline"}}}`))
	}))
	defer srv.Close()

	td, err := NewAPIClient(srv.URL, 0, 5*time.Second, nil).Fetch(context.Background(), "Template:Foo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if td.Format != "inline" {
		t.Errorf("expected inline, got %q", td.Format)
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("expected 2 requests, got %d", n)
	}
}

func TestAPIClient_ClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewAPIClient(srv.URL, 0, 5*time.Second, nil).Fetch(context.Background(), "Template:Foo")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRetryable(err) {
		t.Errorf("400 should not be retryable: %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("expected 1 request, got %d", n)
	}
}

func TestAPIClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":"badvalue","info":"nope"}}`))
	}))
	defer srv.Close()

	if _, err := NewAPIClient(srv.URL, 0, 5*time.Second, nil).Fetch(context.Background(), "Template:Foo"); err == nil {
		t.Fatal("expected error")
	}
}

func TestChain_FirstUsableAnswerWins(t *testing.T) {
	static := Static{"Template:A": {Title: "Template:A", Format: "block"}}
	remote := &countingProvider{td: &TemplateData{Format: "inline"}}
	c := Chain{static, remote}

	td, err := c.Fetch(context.Background(), "Template:A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if td.Format != "block" {
		t.Errorf("expected block, got %q", td.Format)
	}
	if n := remote.calls.Load(); n != 0 {
		t.Errorf("expected no remote call, got %d", n)
	}

	td, _ = c.Fetch(context.Background(), "Template:B")
	if td.Format != "inline" {
		t.Errorf("expected inline from fallback, got %q", td.Format)
	}
}

func TestChain_ErrorOnlyWithoutAnswer(t *testing.T) {
	boom := errors.New("boom")
	failing := &countingProvider{err: boom}

	if _, err := (Chain{failing, Static{}}).Fetch(context.Background(), "Template:X"); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}

	missing := &countingProvider{td: &TemplateData{Missing: true}}
	td, err := Chain{failing, missing}.Fetch(context.Background(), "Template:X")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if td == nil || !td.Missing {
		t.Errorf("expected the missing answer, got %+v", td)
	}
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/wtselser/internal/pipeline"
)

// maxTransformBytes bounds a JSON transform request body.
const maxTransformBytes = 16 << 20

type transformRequest struct {
	HTML          string             `json:"html"`
	Original      *pipeline.Original `json:"original,omitempty"`
	ScrubWikitext *bool              `json:"scrub_wikitext,omitempty"`
	InTemplate    bool               `json:"in_template,omitempty"`

	// Title and Revision identify the page in the access log.
	Title    string `json:"title,omitempty"`
	Revision int64  `json:"revision,omitempty"`
}

type transformResponse struct {
	Wikitext string   `json:"wikitext"`
	Selser   bool     `json:"selser"`
	Warnings []string `json:"warnings,omitempty"`
}

// handleTransform converts edited HTML to wikitext, selectively when the
// original revision is supplied.
func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTransformBytes)

	var req transformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return
	}

	note := noteFor(r)
	note.title, note.revision = req.Title, req.Revision

	scrub := s.cfg.ScrubWikitext
	if req.ScrubWikitext != nil {
		scrub = *req.ScrubWikitext
	}

	out, err := s.orchestrator.Converter().Convert(r.Context(), pipeline.Request{
		HTML:          req.HTML,
		Original:      req.Original,
		ScrubWikitext: scrub,
		InTemplate:    req.InTemplate,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyInput) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.log.Error("transform failed", "error", err, "request_id", requestID(r))
		jsonError(w, "transform failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	note.mode, note.faults = "full", len(out.Faults)
	if out.Selser {
		note.mode = "selser"
	}

	resp := transformResponse{Wikitext: out.Wikitext, Selser: out.Selser}
	for _, f := range out.Faults {
		resp.Warnings = append(resp.Warnings, f.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Package parsoid talks to a Parsoid REST endpoint to turn wikitext into
// annotated HTML.
package parsoid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgallion1/wtselser/internal/dom"
	"golang.org/x/net/html"
)

// Client communicates with the Parsoid transform API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient talks to baseURL, e.g. "https://en.wikipedia.org/api/rest_v1".
// apiKey is sent as a bearer token when set.
func NewClient(baseURL, apiKey string, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// transformRequest is the body for POST /transform/wikitext/to/pagebundle.
type transformRequest struct {
	Wikitext string `json:"wikitext"`
	BodyOnly bool   `json:"body_only"`
}

// PageBundle is the pagebundle response: HTML with data-parsoid and
// data-mw kept out of line, keyed by element id.
type PageBundle struct {
	HTML struct {
		Body string `json:"body"`
	} `json:"html"`
	DataParsoid struct {
		IDs map[string]json.RawMessage `json:"ids"`
	} `json:"data-parsoid"`
	DataMW struct {
		IDs map[string]json.RawMessage `json:"ids"`
	} `json:"data-mw"`
}

// Parse converts wikitext to an annotated document.
func (c *Client) Parse(ctx context.Context, wikitext string) (*dom.Document, error) {
	body, err := json.Marshal(transformRequest{Wikitext: wikitext, BodyOnly: true})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transform/wikitext/to/pagebundle", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("parsoid transform: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("parsoid transform: status %d: %s", resp.StatusCode, string(respBody))
	}

	var pb PageBundle
	if err := json.NewDecoder(resp.Body).Decode(&pb); err != nil {
		return nil, fmt.Errorf("decode pagebundle: %w", err)
	}
	c.log.Debug("parsoid transform", "bytes", len(wikitext), "duration_ms", time.Since(start).Milliseconds())
	return pb.Document()
}

// Document parses the bundle's HTML and attaches the out-of-line data.
// Entries that do not decode are skipped and the element counts as
// unannotated.
func (pb *PageBundle) Document() (*dom.Document, error) {
	doc, err := dom.Parse(pb.HTML.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if id := dom.Attr(n, "id"); id != "" {
			if raw, ok := pb.DataParsoid.IDs[id]; ok {
				var dp dom.DataParsoid
				if err := json.Unmarshal(raw, &dp); err == nil {
					doc.SetDataParsoid(n, &dp)
				}
			}
			if raw, ok := pb.DataMW.IDs[id]; ok {
				var mw dom.DataMW
				if err := json.Unmarshal(raw, &mw); err == nil {
					doc.SetDataMW(n, &mw)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc.Body)
	return doc, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

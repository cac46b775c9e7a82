package templatedata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// APIClient asks a MediaWiki action API for templatedata.
type APIClient struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *slog.Logger
}

// NewAPIClient talks to endpoint, e.g. "https://en.wikipedia.org/w/api.php".
// rps caps the request rate; zero or less disables the cap.
func NewAPIClient(endpoint string, rps float64, timeout time.Duration, log *slog.Logger) *APIClient {
	if log == nil {
		log = slog.Default()
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &APIClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

type apiResponse struct {
	Pages map[string]*TemplateData `json:"pages"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// Fetch retrieves templatedata for title, retrying transient failures.
func (c *APIClient) Fetch(ctx context.Context, title string) (*TemplateData, error) {
	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			wait := Backoff(attempt - 1)
			c.log.Debug("retrying templatedata fetch", "title", title, "attempt", attempt, "backoff", wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		td, err := c.fetchOnce(ctx, title)
		if err == nil {
			return td, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("fetch templatedata %s: %w", title, lastErr)
}

func (c *APIClient) fetchOnce(ctx context.Context, title string) (*TemplateData, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	q := url.Values{}
	q.Set("action", "templatedata")
	q.Set("format", "json")
	q.Set("formatversion", "2")
	q.Set("redirects", "1")
	q.Set("includeMissingTitles", "1")
	q.Set("titles", title)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("templatedata api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("templatedata api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("templatedata error: %s: %s", apiResp.Error.Code, apiResp.Error.Info)
	}
	for _, td := range apiResp.Pages {
		if td != nil {
			return td, nil
		}
	}
	return nil, nil
}

// Close releases idle connections.
func (c *APIClient) Close() {
	c.httpClient.CloseIdleConnections()
}

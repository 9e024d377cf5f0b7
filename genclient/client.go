// Package genclient provides a typed HTTP client to a System Server's
// /health and /generate endpoints, with retry-with-backoff and a per-endpoint
// circuit breaker.
package genclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/musicarena/fabric/apperrors"
)

const (
	connectTimeout     = 5 * time.Second
	defaultTotalDeadline = 180 * time.Second
	maxAdditionalRetries = 2
	initialBackoff     = 1 * time.Second
	backoffFactor      = 2.0
)

// DetailedTextToMusicPrompt mirrors the structured prompt sent to a System
// Server's /generate endpoint.
type DetailedTextToMusicPrompt struct {
	OverallPrompt string  `json:"overall_prompt"`
	Duration      float64 `json:"duration"`
	Instrumental  bool    `json:"instrumental"`
	Lyrics        *string `json:"lyrics,omitempty"`
	LyricsTheme   *string `json:"lyrics_theme,omitempty"`
	LyricsStyle   *string `json:"lyrics_style,omitempty"`
	Seed          int32   `json:"seed"`
}

// GenerateMetadata carries the System Server's observability fields.
type GenerateMetadata struct {
	BatchSize    int     `json:"batch_size"`
	QueueWaitMs  float64 `json:"queue_wait_ms"`
	GenerateMs   float64 `json:"generate_ms"`
	ModelWarm    bool    `json:"model_warm"`
}

// TextToMusicResponse mirrors a System Server's /generate response.
type TextToMusicResponse struct {
	AudioB64   string           `json:"audio_b64"`
	SampleRate int              `json:"sample_rate"`
	Lyrics     *string          `json:"lyrics,omitempty"`
	Metadata   GenerateMetadata `json:"metadata"`
}

// HealthResult reports the outcome of a /health probe.
type HealthResult struct {
	OK      bool
	Latency time.Duration
}

// Client is a per-system HTTP client. It is stateless aside from the
// connection pool and circuit breaker state, both safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitBreaker
}

// Option configures a Client.
type Option func(*Client)

// WithTotalDeadline overrides the default 180s total deadline.
func WithTotalDeadline(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a Client targeting baseURL (e.g. "http://system-noise-quiet:8090").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultTotalDeadline,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
		breaker: newCircuitBreaker(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health probes the System Server's liveness.
func (c *Client) Health(ctx context.Context) (HealthResult, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return HealthResult{}, apperrors.Internal("genclient.Health", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthResult{}, apperrors.Unreachable("genclient.Health", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return HealthResult{OK: resp.StatusCode == http.StatusOK, Latency: time.Since(start)}, nil
}

// Generate dispatches a generation request with retry-with-backoff (up to
// maxAdditionalRetries additional attempts, only on Unreachable/5xx/
// BatchTimeout) and circuit-breaker short-circuiting.
func (c *Client) Generate(ctx context.Context, prompt DetailedTextToMusicPrompt) (*TextToMusicResponse, error) {
	if c.breaker.shortCircuit() {
		return nil, apperrors.Unreachable("genclient.Generate", fmt.Errorf("circuit open"))
	}
	if c.httpClient.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	var lastErr error
	backoff := initialBackoff
	for attempt := 0; attempt <= maxAdditionalRetries; attempt++ {
		resp, err := c.doGenerate(ctx, prompt)
		if err == nil {
			c.breaker.recordSuccess()
			return resp, nil
		}
		lastErr = err

		var appErr *apperrors.AppError
		retryable := false
		if aerr, ok := asAppError(err); ok {
			appErr = aerr
			retryable = appErr.Retryable()
		}
		if appErr != nil && appErr.Code == apperrors.CodeUnreachable {
			c.breaker.recordFailure()
		}
		if !retryable || attempt == maxAdditionalRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, apperrors.Internal("genclient.Generate", ctx.Err())
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * backoffFactor)
	}
	return nil, lastErr
}

func (c *Client) doGenerate(ctx context.Context, prompt DetailedTextToMusicPrompt) (*TextToMusicResponse, error) {
	body, err := json.Marshal(prompt)
	if err != nil {
		return nil, apperrors.Internal("genclient.Generate", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Internal("genclient.Generate", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Unreachable("genclient.Generate", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		var out TextToMusicResponse
		if err := json.Unmarshal(respBody, &out); err != nil {
			return nil, apperrors.Internal("genclient.Generate", err)
		}
		return &out, nil
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, apperrors.Busy("genclient.Generate")
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, apperrors.GenerateFailed("genclient.Generate", fmt.Errorf("rejected (%d): %s", resp.StatusCode, respBody))
	case resp.StatusCode >= 500:
		return nil, apperrors.New(apperrors.CodeUnreachable, "genclient.Generate", fmt.Sprintf("server error (%d)", resp.StatusCode), nil)
	default:
		return nil, apperrors.Internal("genclient.Generate", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
}

func asAppError(err error) (*apperrors.AppError, bool) {
	type unwrapper interface{ Unwrap() error }
	for e := err; e != nil; {
		if ae, ok := e.(*apperrors.AppError); ok {
			return ae, true
		}
		u, ok := e.(unwrapper)
		if !ok {
			return nil, false
		}
		e = u.Unwrap()
	}
	return nil, false
}

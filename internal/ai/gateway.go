// Package ai contains the outbound provider gateway, the story segmenter,
// and the prompt catalog used by the generation orchestrator.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"reverie/internal/models"
	"reverie/internal/observability"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultMaxAttempts bounds retries for idempotent provider calls.
	DefaultMaxAttempts = 3

	baseBackoff = 1 * time.Second
	maxBackoff  = 10 * time.Second
)

// ProviderSettings configures the outbound provider client. Constructed once
// at startup and injected; there is no ambient global lookup.
type ProviderSettings struct {
	APIKey  string
	BaseURL string
	// Timeout is the per-attempt upper bound; exceeding it counts as a
	// retryable network failure.
	Timeout time.Duration
}

// Gateway issues calls to the generation provider with bounded retry and
// exponential backoff. It holds no per-request state and is safe for
// concurrent use.
type Gateway struct {
	client *resty.Client

	// sleep is replaced in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGateway builds a gateway from provider settings.
func NewGateway(s ProviderSettings) *Gateway {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New().
		SetBaseURL(s.BaseURL).
		SetTimeout(timeout).
		SetAuthToken(s.APIKey).
		SetHeader("User-Agent", "reverie/1.0")
	return &Gateway{client: client, sleep: sleepContext}
}

// Backoff returns the delay applied before retrying attempt i (0-indexed):
// min(1s * 2^i, 10s).
func Backoff(attempt int) time.Duration {
	d := baseBackoff << uint(attempt)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PostJSON posts body as JSON and unmarshals a 2xx response into out,
// retrying per the gateway's classification rules.
func (g *Gateway) PostJSON(ctx context.Context, path string, body any, out any, maxAttempts int) error {
	return g.do(ctx, path, maxAttempts, func(ctx context.Context) (*resty.Response, error) {
		return g.client.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(out).
			Post(path)
	})
}

// PostMultipart posts a multipart form carrying one file plus fields and
// unmarshals a 2xx response into out.
func (g *Gateway) PostMultipart(ctx context.Context, path string, fields map[string]string, fileField, fileName string, data []byte, out any, maxAttempts int) error {
	return g.do(ctx, path, maxAttempts, func(ctx context.Context) (*resty.Response, error) {
		return g.client.R().
			SetContext(ctx).
			SetFileReader(fileField, fileName, bytes.NewReader(data)).
			SetFormData(fields).
			SetResult(out).
			Post(path)
	})
}

// PostBinary posts body as JSON and returns the raw response bytes and
// content type. Exactly one attempt is made; any failure is terminal.
func (g *Gateway) PostBinary(ctx context.Context, path string, body any) ([]byte, string, error) {
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(body).
		SetDoNotParseResponse(false).
		Post(path)
	if err != nil {
		observability.ProviderCallsTotal.WithLabelValues(path, "terminal").Inc()
		return nil, "", models.NewTerminalError(0, err.Error())
	}
	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		observability.ProviderCallsTotal.WithLabelValues(path, "terminal").Inc()
		return nil, "", models.NewTerminalError(status, providerErrorMessage(resp.Body()))
	}
	observability.ProviderCallsTotal.WithLabelValues(path, "success").Inc()
	return resp.Body(), resp.Header().Get("Content-Type"), nil
}

// do runs the bounded retry loop. 4xx except 429 fails immediately; 429, 5xx
// and network-level failures retry with backoff between attempts (never after
// the last one).
func (g *Gateway) do(ctx context.Context, endpoint string, maxAttempts int, send func(context.Context) (*resty.Response, error)) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	// Attempts run inside the provider span so child spans and propagation
	// headers carry it.
	ctx, span := observability.StartProviderSpan(ctx, endpoint)

	var lastStatus int
	var lastMessage string
	attempts := 0

	for attempt := 0; attempt < maxAttempts; attempt++ {
		attempts++

		resp, err := send(ctx)
		if err != nil {
			// Timeout, connection reset or similar. Retryable.
			lastStatus, lastMessage = 0, err.Error()
		} else {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				observability.ProviderCallsTotal.WithLabelValues(endpoint, "success").Inc()
				observability.EndProviderSpan(span, attempts, nil)
				return nil
			}

			message := providerErrorMessage(resp.Body())
			if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
				terminal := models.NewTerminalError(status, message)
				observability.ProviderCallsTotal.WithLabelValues(endpoint, "terminal").Inc()
				observability.EndProviderSpan(span, attempts, terminal)
				return terminal
			}
			lastStatus, lastMessage = status, message
		}

		if attempt < maxAttempts-1 {
			observability.ProviderRetriesTotal.WithLabelValues(endpoint).Inc()
			if sleepErr := g.sleep(ctx, Backoff(attempt)); sleepErr != nil {
				observability.EndProviderSpan(span, attempts, sleepErr)
				return sleepErr
			}
		}
	}

	exhausted := models.NewExhaustedRetriesError(lastStatus, lastMessage, attempts)
	observability.ProviderCallsTotal.WithLabelValues(endpoint, "exhausted").Inc()
	observability.EndProviderSpan(span, attempts, exhausted)
	return exhausted
}

// providerErrorMessage extracts a human-readable message from a provider
// error body, falling back to the raw body.
func providerErrorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/sevigo/review-relay/internal/config"
	"github.com/sevigo/review-relay/internal/core"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"

	retryBaseDelay = 500 * time.Millisecond
)

// ReviewClient invokes the Anthropic Messages API with timeout and retry
// policy and parses the reply into a ReviewResult.
type ReviewClient struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	maxRetries  int
	timeout     time.Duration
	baseDelay   time.Duration
	baseURL     string
	limiter     *rate.Limiter
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewReviewClient creates a client from the model configuration. The limiter
// bounds outbound calls to the provider across all pipeline runs.
func NewReviewClient(cfg config.ModelConfig, limiter *rate.Limiter, logger *slog.Logger) *ReviewClient {
	return &ReviewClient{
		apiKey:      cfg.APIKey,
		model:       cfg.Name,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		timeout:     cfg.Timeout,
		baseDelay:   retryBaseDelay,
		baseURL:     anthropicAPIURL,
		limiter:     limiter,
		httpClient:  &http.Client{},
		logger:      logger,
	}
}

// Review sends the prompt to the model and parses the structured reply.
// Transport faults are retried; an unparseable reply is not an error but
// degrades to the raw-text fallback result.
func (c *ReviewClient) Review(ctx context.Context, prompt *core.ReviewPrompt) (*core.ReviewResult, error) {
	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return ParseReviewReply(raw), nil
}

// transientError marks a provider fault worth retrying: 5xx, rate-limit
// signal or a timed-out attempt.
type transientError struct {
	err     error
	timeout bool
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func (c *ReviewClient) complete(ctx context.Context, prompt *core.ReviewPrompt) (string, error) {
	payload, err := json.Marshal(anthropicRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		System:      prompt.System,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt.User},
		},
	})
	if err != nil {
		return "", core.NewModelError(err, "failed to marshal model request")
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return "", core.NewTimeoutError(err, "model call aborted while waiting to retry")
			}
		}

		text, err := c.attempt(ctx, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err

		var te *transientError
		if !errors.As(err, &te) {
			// Non-retriable provider error: fail immediately.
			return "", err
		}
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("transient model error, retrying",
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"error", err)
	}

	var te *transientError
	if errors.As(lastErr, &te) && te.timeout {
		return "", core.NewTimeoutError(lastErr, "model call timed out after %d attempts", c.maxRetries+1)
	}
	return "", core.NewModelError(lastErr, "model call failed after %d attempts", c.maxRetries+1)
}

// attempt performs a single bounded call to the provider.
func (c *ReviewClient) attempt(ctx context.Context, payload []byte) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", core.NewTimeoutError(err, "model call aborted while waiting on rate limit")
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", core.NewModelError(err, "failed to create model request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// A deadline on the attempt context is a transient timeout; any
		// other transport failure is transient too.
		timedOut := errors.Is(err, context.DeadlineExceeded) || attemptCtx.Err() != nil
		return "", &transientError{err: err, timeout: timedOut}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &transientError{err: fmt.Errorf("reading model response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// Parsed below.
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode >= 500:
		return "", &transientError{err: fmt.Errorf("model API returned status %d", resp.StatusCode)}
	default:
		return "", core.NewModelError(
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200)),
			"model API rejected the request (status %d)", resp.StatusCode)
	}

	var result anthropicResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &transientError{err: fmt.Errorf("malformed model response envelope: %w", err)}
	}

	var text string
	for _, block := range result.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", &transientError{err: fmt.Errorf("model returned an empty reply")}
	}
	return text, nil
}

// backoff sleeps exponentially with jitter before the given attempt.
func (c *ReviewClient) backoff(ctx context.Context, attempt int) error {
	delay := c.baseDelay * time.Duration(1<<uint(attempt-1))
	delay += time.Duration(rand.Int63n(int64(delay / 2)))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

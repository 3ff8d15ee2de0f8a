// Package ai implements domain.LLMClient over the OpenAI and Anthropic
// chat APIs with provider fallback.
//
// The configured default provider is tried first; any other configured
// provider serves as fallback. Each provider sits behind its own circuit
// breaker, transient failures are retried with exponential backoff, and an
// optional Redis token bucket caps the outbound request rate per provider.
package ai

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-release-gate/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-release-gate/internal/adapter/observability"
	"github.com/fairyhunter13/ai-release-gate/internal/config"
	"github.com/fairyhunter13/ai-release-gate/internal/domain"
	"github.com/fairyhunter13/ai-release-gate/internal/service/ratelimiter"
)

const defaultMaxTokens = 1024

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return defaultMaxTokens
	}
	return n
}

type provider interface {
	name() string
	model() string
	complete(ctx domain.Context, req domain.CompletionRequest) (string, error)
}

// Client implements domain.LLMClient across the configured providers.
type Client struct {
	cfg       config.Config
	providers []provider
	breakers  *CircuitBreakerManager
	limiter   ratelimiter.Limiter
	tokens    *tokencount.Counter
}

// New constructs a client from the configured provider credentials. The
// limiter may be nil, in which case calls are not locally rate limited.
func New(cfg config.Config, limiter ratelimiter.Limiter) *Client {
	hc := &http.Client{
		Timeout:   60 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	c := &Client{
		cfg:      cfg,
		breakers: NewCircuitBreakerManager(),
		limiter:  limiter,
		tokens:   tokencount.NewCounter(),
	}
	if cfg.OpenAIAPIKey != "" {
		c.providers = append(c.providers, &openAIProvider{baseURL: cfg.OpenAIBaseURL, apiKey: cfg.OpenAIAPIKey, hc: hc})
	}
	if cfg.AnthropicAPIKey != "" {
		c.providers = append(c.providers, &anthropicProvider{baseURL: cfg.AnthropicBaseURL, apiKey: cfg.AnthropicAPIKey, hc: hc})
	}

	// Preferred provider first, the rest keep their order as fallbacks.
	sort.SliceStable(c.providers, func(i, j int) bool {
		return c.providers[i].name() == cfg.DefaultLLMProvider && c.providers[j].name() != cfg.DefaultLLMProvider
	})
	return c
}

// Complete sends the request to the first healthy provider and falls back to
// the others on failure. The response has markdown fences stripped so
// analyzers can parse it line by line.
func (c *Client) Complete(ctx domain.Context, req domain.CompletionRequest) (string, error) {
	if len(c.providers) == 0 {
		return "", fmt.Errorf("op=ai.Complete: no provider API keys configured: %w", domain.ErrNoProviders)
	}

	var lastErr error
	for _, p := range c.providers {
		br := c.breakers.GetBreaker(p.name())
		if !br.ShouldAttempt() {
			slog.Warn("llm provider skipped, circuit open", slog.String("provider", p.name()))
			lastErr = fmt.Errorf("provider %s: circuit open", p.name())
			continue
		}
		if c.limiter != nil {
			allowed, retryAfter, err := c.limiter.Allow(ctx, "llm:"+p.name(), 1)
			if err == nil && !allowed {
				slog.Warn("llm provider over local rate budget",
					slog.String("provider", p.name()),
					slog.Duration("retry_after", retryAfter))
				lastErr = fmt.Errorf("provider %s: %w", p.name(), domain.ErrRateLimited)
				continue
			}
		}

		out, err := c.callWithRetry(ctx, p, req)
		if err != nil {
			br.RecordFailure()
			slog.Warn("llm provider failed, trying next", slog.String("provider", p.name()), slog.Any("error", err))
			lastErr = err
			continue
		}
		br.RecordSuccess()
		c.logUsage(p, req, out)
		return CleanResponse(out), nil
	}
	return "", fmt.Errorf("op=ai.Complete: all providers failed: %w", lastErr)
}

// callWithRetry drives one provider through the exponential backoff loop.
// Permanent errors from the provider stop the retries immediately.
func (c *Client) callWithRetry(ctx domain.Context, p provider, req domain.CompletionRequest) (string, error) {
	var out string
	op := func() error {
		start := time.Now()
		text, err := p.complete(ctx, req)
		status := "ok"
		if err != nil {
			status = "error"
		}
		observability.RecordLLMRequest(p.name(), status, time.Since(start))
		if err != nil {
			return err
		}
		out = text
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	maxElapsed, initial, maxInterval, multiplier := c.cfg.AIBackoff()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier

	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		return "", fmt.Errorf("op=ai.complete provider=%s: %w", p.name(), err)
	}
	return out, nil
}

func (c *Client) logUsage(p provider, req domain.CompletionRequest, completion string) {
	usage := c.tokens.CalculateUsage(req.SystemPrompt, req.Prompt, completion, p.model(), p.name())
	slog.Debug("llm call complete",
		slog.String("provider", p.name()),
		slog.String("model", p.model()),
		slog.Int("prompt_tokens", usage.PromptTokens),
		slog.Int("completion_tokens", usage.CompletionTokens),
		slog.Int("total_tokens", usage.TotalTokens))
}

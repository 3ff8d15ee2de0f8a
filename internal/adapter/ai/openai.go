package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/ai-release-gate/internal/domain"
)

const openAIModel = "gpt-4-turbo-preview"

type openAIProvider struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

func (p *openAIProvider) name() string  { return "openai" }
func (p *openAIProvider) model() string { return openAIModel }

// complete performs a single chat completions attempt. Retry classification
// happens in checkStatus; the client owns the backoff loop.
func (p *openAIProvider) complete(ctx domain.Context, req domain.CompletionRequest) (string, error) {
	body := map[string]any{
		"model":       openAIModel,
		"temperature": req.Temperature,
		"max_tokens":  maxTokensOrDefault(req.MaxTokens),
		"messages": []map[string]string{
			{"role": "system", "content": req.SystemPrompt},
			{"role": "user", "content": req.Prompt},
		},
	}
	b, _ := json.Marshal(body)

	r, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	r.Header.Set("Authorization", "Bearer "+p.apiKey)
	r.Header.Set("Content-Type", "application/json")

	resp, err := p.hc.Do(r)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("failed to read response body", slog.String("provider", p.name()), slog.Any("error", err))
		return "", err
	}
	if err := checkStatus(p.name(), resp, bodyBytes); err != nil {
		return "", err
	}

	var out struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		slog.Error("llm provider decode error", slog.String("provider", p.name()), slog.Any("error", err))
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", backoff.Permanent(errors.New("empty choices from openai"))
	}
	if out.Model != "" && out.Model != openAIModel {
		slog.Warn("model substitution detected",
			slog.String("provider", p.name()),
			slog.String("requested_model", openAIModel),
			slog.String("actual_model", out.Model))
	}
	return out.Choices[0].Message.Content, nil
}

// checkStatus translates provider HTTP statuses into retry decisions: 429
// and 5xx are retryable, remaining 4xx are permanent.
func checkStatus(provider string, resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet := string(body)
	if len(snippet) > 512 {
		snippet = snippet[:512]
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		slog.Warn("llm provider rate limited",
			slog.String("provider", provider),
			slog.Int("status", resp.StatusCode),
			slog.String("x_request_id", resp.Header.Get("X-Request-Id")))
		return fmt.Errorf("rate limited: 429")
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		slog.Warn("llm provider 4xx",
			slog.String("provider", provider),
			slog.Int("status", resp.StatusCode),
			slog.String("body", snippet))
		return backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	}
	slog.Error("llm provider non-2xx",
		slog.String("provider", provider),
		slog.Int("status", resp.StatusCode),
		slog.String("body", snippet))
	return fmt.Errorf("status %d", resp.StatusCode)
}

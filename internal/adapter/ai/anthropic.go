package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/ai-release-gate/internal/domain"
)

const (
	anthropicModel   = "claude-3-5-sonnet-20241022"
	anthropicVersion = "2023-06-01"
)

type anthropicProvider struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

func (p *anthropicProvider) name() string  { return "anthropic" }
func (p *anthropicProvider) model() string { return anthropicModel }

// complete performs a single messages API attempt. Unlike the OpenAI chat
// API, the system prompt is a top-level field and max_tokens is mandatory.
func (p *anthropicProvider) complete(ctx domain.Context, req domain.CompletionRequest) (string, error) {
	body := map[string]any{
		"model":       anthropicModel,
		"max_tokens":  maxTokensOrDefault(req.MaxTokens),
		"temperature": req.Temperature,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
	}
	if req.SystemPrompt != "" {
		body["system"] = req.SystemPrompt
	}
	b, _ := json.Marshal(body)

	r, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	r.Header.Set("x-api-key", p.apiKey)
	r.Header.Set("anthropic-version", anthropicVersion)
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
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		slog.Error("llm provider decode error", slog.String("provider", p.name()), slog.Any("error", err))
		return "", err
	}
	for _, block := range out.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", backoff.Permanent(errors.New("no text content from anthropic"))
}

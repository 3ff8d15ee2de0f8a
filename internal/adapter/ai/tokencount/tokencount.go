// Package tokencount estimates token usage for LLM API calls.
//
// It uses tiktoken-go, a Go port of OpenAI's tiktoken library. Counts for
// OpenAI models are exact; Claude models use the cl100k_base encoding as a
// close approximation. Usage figures feed debug logs and cost tracking only,
// they never gate a request.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// TokenUsage holds token counts for one LLM call.
type TokenUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
	Provider         string `json:"provider"`
}

// Counter provides thread-safe token counting with cached encodings.
type Counter struct {
	encodingCache map[string]*tiktoken.Tiktoken
	mu            sync.RWMutex
}

// NewCounter creates a new token counter.
func NewCounter() *Counter {
	return &Counter{encodingCache: make(map[string]*tiktoken.Tiktoken)}
}

func (c *Counter) encodingFor(model string) (*tiktoken.Tiktoken, error) {
	normalized := normalizeModelName(model)

	c.mu.RLock()
	if enc, ok := c.encodingCache[normalized]; ok {
		c.mu.RUnlock()
		return enc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodingCache[normalized]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(normalized)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding",
			slog.String("model", model),
			slog.String("normalized", normalized),
			slog.Any("error", err))
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	c.encodingCache[normalized] = enc
	return enc, nil
}

// normalizeModelName maps provider model IDs onto tiktoken-known names.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)
	switch {
	case strings.Contains(model, "gpt-4"):
		return "gpt-4"
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	case strings.Contains(model, "claude"):
		// Claude tokenizes differently; cl100k_base is a close approximation.
		return "gpt-4"
	default:
		return "gpt-4"
	}
}

// CountTokens counts tokens in text for the given model.
func (c *Counter) CountTokens(text, model string) (int, error) {
	enc, err := c.encodingFor(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountChatTokens counts prompt tokens for a system+user chat request,
// including the per-message framing overhead OpenAI-compatible APIs charge.
func (c *Counter) CountChatTokens(systemPrompt, userPrompt, model string) (int, error) {
	enc, err := c.encodingFor(model)
	if err != nil {
		return 0, err
	}

	// 3 tokens of framing plus 1 for the role name, per message, and 3 to
	// prime the assistant reply. Matches the OpenAI cookbook accounting for
	// gpt-3.5-turbo and gpt-4.
	const tokensPerMessage, tokensPerRole, replyPrimer = 3, 1, 3

	n := replyPrimer
	for _, msg := range []struct{ role, content string }{
		{"system", systemPrompt},
		{"user", userPrompt},
	} {
		n += tokensPerMessage + tokensPerRole
		n += len(enc.Encode(msg.role, nil, nil))
		n += len(enc.Encode(msg.content, nil, nil))
	}
	return n, nil
}

// CalculateUsage computes full usage for a completed chat call. When the
// encoding is unavailable it falls back to a rough 4-chars-per-token
// estimate, so it always returns a usable figure.
func (c *Counter) CalculateUsage(systemPrompt, userPrompt, completion, model, provider string) *TokenUsage {
	promptTokens, err := c.CountChatTokens(systemPrompt, userPrompt, model)
	if err != nil {
		slog.Warn("failed to count prompt tokens, using estimate", slog.String("model", model), slog.Any("error", err))
		promptTokens = (len(systemPrompt) + len(userPrompt)) / 4
	}

	completionTokens, err := c.CountTokens(completion, model)
	if err != nil {
		slog.Warn("failed to count completion tokens, using estimate", slog.String("model", model), slog.Any("error", err))
		completionTokens = len(completion) / 4
	}

	return &TokenUsage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Model:            model,
		Provider:         provider,
	}
}

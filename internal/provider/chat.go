package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ppiankov/scopeguard/internal/model"
)

// ChatConfig holds parameters for an OpenAI-compatible chat-completions backend.
type ChatConfig struct {
	APIURL    string
	APIKey    string
	Model     string
	MaxTokens int
	// HTTPClient is optional; its timeout is not used, the caller's context bounds the call.
	HTTPClient *http.Client
}

// Chat reasons through an OpenAI-compatible chat-completions endpoint
// (Groq, Ollama, vLLM, OpenAI). These backends keep no server-side
// reasoning state, so the model is asked to emit a compact "state" note
// which is handed back as the continuity token and replayed next turn.
type Chat struct {
	cfg    ChatConfig
	client *http.Client
}

const chatStateInstruction = `

Also include a "state" field: one or two sentences summarising the scope position reached so far in this conversation (what was requested, what was ruled in or out). It will be given back to you on the next turn.`

// NewChat creates a chat-completions provider.
func NewChat(cfg ChatConfig) (*Chat, error) {
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("chat: API URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("chat: model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 600
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Chat{cfg: cfg, client: client}, nil
}

// Name returns the provider name.
func (c *Chat) Name() string { return "chat:" + c.cfg.Model }

// Reason makes one chat-completions call.
func (c *Chat) Reason(ctx context.Context, req Request) (*Response, error) {
	messages := []map[string]string{
		{"role": "system", "content": systemPrompt + chatStateInstruction},
	}
	if !req.PriorSignature.IsZero() {
		messages = append(messages, map[string]string{
			"role":    "system",
			"content": "Scope state from the previous turn: " + string(req.PriorSignature.Bytes()),
		})
	}
	messages = append(messages, map[string]string{
		"role":    "user",
		"content": userPrompt(req.Scope.ScopeDescription, req.Message),
	})

	body, err := json.Marshal(map[string]any{
		"model":       c.cfg.Model,
		"messages":    messages,
		"max_tokens":  c.cfg.MaxTokens,
		"temperature": 0,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chat: create request: %w", err)
	}
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("chat: %w", ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("chat: HTTP %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(respBody)), 200))
	}

	var result struct {
		ID      string `json:"id"`
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil || len(result.Choices) == 0 {
		return nil, fmt.Errorf("chat: %w: no choices", ErrMalformedResponse)
	}

	verdict := cleanJSON(result.Choices[0].Message.Content)
	if verdict == "" {
		return nil, fmt.Errorf("chat: %w: empty message content", ErrMalformedResponse)
	}

	modelName := result.Model
	if modelName == "" {
		modelName = c.cfg.Model
	}
	return &Response{
		Verdict:   verdict,
		Signature: chatSignature(verdict, result.ID),
		Model:     modelName,
	}, nil
}

// chatSignature picks the continuity token: the model's own state note when
// present, otherwise the completion id.
func chatSignature(verdict, completionID string) model.Signature {
	var note struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal([]byte(verdict), &note); err == nil {
		if s := strings.TrimSpace(note.State); s != "" {
			return model.NewSignature([]byte(s))
		}
	}
	return model.NewSignature([]byte(completionID))
}

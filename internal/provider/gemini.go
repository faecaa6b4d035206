package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/ppiankov/scopeguard/internal/model"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// responseRefPrefix marks a continuity token built from the response ID
// because the backend issued no thought signature. Only unmarked tokens are
// replayed as a ThoughtSignature.
const responseRefPrefix = "gemini-response:"

// GeminiConfig holds parameters for the Gemini backend.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string // overrides the API endpoint, used by tests and proxies
	// IncludeThoughts asks the backend for thought summaries, which also makes
	// it issue thought signatures on every turn.
	IncludeThoughts bool
}

// Gemini reasons through the Google Gemini API. Continuity is carried by the
// backend's thought signatures, which are replayed on a model turn.
type Gemini struct {
	client   *genai.Client
	model    string
	thoughts bool
}

var verdictSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"allowed":           {Type: genai.TypeBoolean},
		"reasoning":         {Type: genai.TypeString},
		"suggestedResponse": {Type: genai.TypeString},
	},
	Required:         []string{"allowed", "reasoning", "suggestedResponse"},
	PropertyOrdering: []string{"allowed", "reasoning", "suggestedResponse"},
}

// NewGemini creates a Gemini provider.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Gemini{
		client:   client,
		model:    modelName,
		thoughts: cfg.IncludeThoughts,
	}, nil
}

// Name returns the provider name.
func (g *Gemini) Name() string { return "gemini:" + g.model }

// Reason makes one GenerateContent call.
func (g *Gemini) Reason(ctx context.Context, req Request) (*Response, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    verdictSchema,
		Temperature:       genai.Ptr[float32](0),
	}
	if g.thoughts {
		config.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, geminiContents(req), config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
			return nil, fmt.Errorf("gemini: %w: %s", ErrRateLimited, apiErr.Message)
		}
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}

	return extractGemini(resp, g.model)
}

// geminiContents builds the conversation. On follow-up turns a thought
// signature is attached to a model turn so the backend can resume its
// reasoning state without the transcript being replayed. A response
// reference is not a signature the backend can decode; it goes back as text.
func geminiContents(req Request) []*genai.Content {
	prompt := userPrompt(req.Scope.ScopeDescription, req.Message)
	if req.PriorSignature.IsZero() {
		return []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	}

	prior := req.PriorSignature.Bytes()
	if ref, ok := bytes.CutPrefix(prior, []byte(responseRefPrefix)); ok {
		return []*genai.Content{
			genai.NewContentFromText("This continues an earlier scope conversation (response "+string(ref)+"). Judge the new message against the same contract.", genai.RoleUser),
			genai.NewContentFromText(prompt, genai.RoleUser),
		}
	}

	return []*genai.Content{
		genai.NewContentFromText("SCOPE CONTRACT:\n"+strings.TrimRight(req.Scope.ScopeDescription, "\n"), genai.RoleUser),
		genai.NewContentFromParts([]*genai.Part{{
			Text:             "Prior scope assessment on record.",
			ThoughtSignature: prior,
		}}, genai.RoleModel),
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
}

func extractGemini(resp *genai.GenerateContentResponse, modelName string) (*Response, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini: %w: no candidates", ErrMalformedResponse)
	}

	var text strings.Builder
	var sig []byte
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if len(part.ThoughtSignature) > 0 {
			sig = part.ThoughtSignature
		}
		if part.Thought {
			continue
		}
		text.WriteString(part.Text)
	}

	verdict := cleanJSON(text.String())
	if verdict == "" {
		return nil, fmt.Errorf("gemini: %w: empty candidate text", ErrMalformedResponse)
	}
	if len(sig) == 0 && resp.ResponseID != "" {
		sig = []byte(responseRefPrefix + resp.ResponseID)
	}

	if resp.ModelVersion != "" {
		modelName = resp.ModelVersion
	}
	return &Response{
		Verdict:   verdict,
		Signature: model.NewSignature(sig),
		Model:     modelName,
	}, nil
}

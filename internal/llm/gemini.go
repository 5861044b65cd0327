// CLAUDE:SUMMARY LLM Provider for Google Gemini on the generative-ai-go SDK
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider implements the Provider interface on the Gemini SDK.
type GeminiProvider struct {
	client *genai.Client
	models []string
}

func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, &ProviderError{Provider: "gemini", Err: ErrNoAPIKey}
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Err: fmt.Errorf("creating client: %w", err)}
	}
	return &GeminiProvider{
		client: client,
		models: []string{"gemini-2.0-flash", "gemini-2.0-flash-lite"},
	}, nil
}

func (p *GeminiProvider) Name() string     { return "gemini" }
func (p *GeminiProvider) Models() []string { return p.models }

func (p *GeminiProvider) Close() error { return p.client.Close() }

func (p *GeminiProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	name := req.Model
	if name == "" {
		name = p.models[0]
	}
	model := p.client.GenerativeModel(name)

	system, rest := req.System()
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	cfg := genai.GenerationConfig{}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = genai.Ptr(int32(req.MaxTokens))
	}
	model.GenerationConfig = cfg

	parts := make([]genai.Part, 0, len(rest))
	for _, m := range rest {
		parts = append(parts, genai.Text(m.Content))
	}
	if len(parts) == 0 {
		return nil, &ProviderError{Provider: "gemini", Model: name, Err: fmt.Errorf("no prompt")}
	}

	start := time.Now()
	resp, err := model.GenerateContent(ctx, parts...)
	latency := time.Since(start)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Model: name, Err: err}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &ProviderError{Provider: "gemini", Model: name, Err: ErrEmptyResponse}
	}

	cand := resp.Candidates[0]
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	content := strings.TrimSpace(sb.String())
	if content == "" {
		return nil, &ProviderError{Provider: "gemini", Model: name, Err: ErrEmptyResponse}
	}

	out := &Response{
		Provider:     "gemini",
		Model:        name,
		Content:      content,
		FinishReason: cand.FinishReason.String(),
		Latency:      latency,
	}
	if resp.UsageMetadata != nil {
		out.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		out.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// CLAUDE:SUMMARY OpenAI-compatible chat-completions Provider over net/http (Groq, HuggingFace router)
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// CompatProvider speaks the OpenAI chat-completions wire format. Groq and
// the HuggingFace router both expose it.
type CompatProvider struct {
	name     string
	baseURL  string
	apiKey   string
	models   []string
	defModel string
	client   *http.Client
}

// CompatConfig configures an OpenAI-compatible provider.
type CompatConfig struct {
	Name         string
	BaseURL      string // e.g. "https://api.groq.com/openai/v1"
	APIKey       string
	Models       []string
	DefaultModel string
}

func NewCompatProvider(cfg CompatConfig) *CompatProvider {
	defModel := cfg.DefaultModel
	if defModel == "" && len(cfg.Models) > 0 {
		defModel = cfg.Models[0]
	}
	return &CompatProvider{
		name:     cfg.Name,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		models:   cfg.Models,
		defModel: defModel,
		client:   newHTTPClient(),
	}
}

func (p *CompatProvider) Name() string     { return p.name }
func (p *CompatProvider) Models() []string { return p.models }

func (p *CompatProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.defModel
	}
	if model == "" {
		return nil, &ProviderError{Provider: p.name, Err: fmt.Errorf("no model specified")}
	}

	body := chatRequest{Model: model, Messages: req.Messages}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = &req.MaxTokens
	}
	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	var out chatResponse
	latency, err := postJSON(ctx, p.client, p.baseURL+"/chat/completions", headers, body, &out)
	if err != nil {
		return nil, &ProviderError{Provider: p.name, Model: model, Err: err}
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, &ProviderError{Provider: p.name, Model: model, Err: ErrEmptyResponse}
	}
	if out.Model == "" {
		out.Model = model
	}
	choice := out.Choices[0]
	return &Response{
		Provider:     p.name,
		Model:        out.Model,
		Content:      strings.TrimSpace(choice.Message.Content),
		TokensIn:     out.Usage.PromptTokens,
		TokensOut:    out.Usage.CompletionTokens,
		FinishReason: choice.FinishReason,
		Latency:      latency,
	}, nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

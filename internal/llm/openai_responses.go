package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// OpenAIProvider talks to OpenAI through the official SDK's Responses API.
type OpenAIProvider struct {
	client *openai.Client
	models []string
}

func NewOpenAIProvider(apiKey string, opts ...option.RequestOption) *OpenAIProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(opts...)
	return &OpenAIProvider{
		client: &client,
		models: []string{"gpt-4o-mini", "gpt-4.1-mini"},
	}
}

func (p *OpenAIProvider) Name() string     { return "openai" }
func (p *OpenAIProvider) Models() []string { return p.models }

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.models[0]
	}
	system, rest := req.System()

	items := make([]responses.ResponseInputItemUnionParam, 0, len(rest))
	for _, m := range rest {
		role := responses.EasyInputMessageRoleUser
		if m.Role == "assistant" {
			role = responses.EasyInputMessageRoleAssistant
		}
		items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, role))
	}
	params := responses.ResponseNewParams{
		Model: model,
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: items},
	}
	if system != "" {
		params.Instructions = openai.String(system)
	}
	if req.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	start := time.Now()
	resp, err := p.client.Responses.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		if strings.Contains(err.Error(), "429") {
			err = fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return nil, &ProviderError{Provider: "openai", Model: model, Err: err}
	}
	content := strings.TrimSpace(resp.OutputText())
	if content == "" {
		return nil, &ProviderError{Provider: "openai", Model: model, Err: ErrEmptyResponse}
	}
	return &Response{
		Provider:     "openai",
		Model:        string(resp.Model),
		Content:      content,
		TokensIn:     int(resp.Usage.InputTokens),
		TokensOut:    int(resp.Usage.OutputTokens),
		FinishReason: string(resp.Status),
		Latency:      latency,
	}, nil
}

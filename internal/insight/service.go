package insight

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/redflag/internal/llm"
)

// Status is the explicit result of an insight attempt.
type Status string

const (
	StatusDisabled  Status = "disabled"
	StatusGenerated Status = "generated"
	StatusFailed    Status = "failed"
)

// Outcome is returned instead of an error; a disabled feature is not a
// failure.
type Outcome struct {
	Status Status `json:"status"`
	Text   string `json:"text,omitempty"`
	Model  string `json:"model,omitempty"`
	Prompt string `json:"-"`
	Err    error  `json:"-"`
}

// Completer is the part of llm.Client the service needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Service generates insights through a Completer.
type Service struct {
	llm       Completer
	model     string
	maxTokens int
	timeout   time.Duration
}

// New returns a service; a nil or provider-less completer yields a service
// that always reports StatusDisabled.
func New(c Completer, model string, maxTokens int) *Service {
	if e, ok := c.(interface{ Enabled() bool }); ok && !e.Enabled() {
		c = nil
	}
	return &Service{llm: c, model: model, maxTokens: maxTokens, timeout: 45 * time.Second}
}

func (s *Service) Enabled() bool { return s != nil && s.llm != nil }

// Generate builds the prompt and asks the model for an insight.
func (s *Service) Generate(ctx context.Context, r Request) Outcome {
	if !s.Enabled() {
		return Outcome{Status: StatusDisabled}
	}
	system, user := BuildPrompt(r)
	out := Outcome{Prompt: FullText(system, user)}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.llm.Complete(ctx, llm.Request{
		Model:       s.model,
		Messages:    []llm.Message{{Role: "system", Content: system}, {Role: "user", Content: user}},
		Temperature: 0.7,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		slog.Warn("insight generation failed", "error", err)
		out.Status, out.Err = StatusFailed, err
		return out
	}
	out.Text = strings.TrimSpace(resp.Content)
	if out.Text == "" {
		out.Status, out.Err = StatusFailed, llm.ErrEmptyResponse
		return out
	}
	out.Status = StatusGenerated
	out.Model = resp.Provider + ": " + resp.Model
	slog.Info("insight generated", "provider", resp.Provider, "model", resp.Model, "tokens_out", resp.TokensOut)
	return out
}

// Package ai wraps the text-generation providers behind a single blocking
// Generate call.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/kaitanna/kaitanna-backend/internal/config"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
)

const (
	generateTimeout = 30 * time.Second
	maxOutputTokens = 500

	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-3-5-haiku-latest"

	// SystemPrompt sets the assistant's voice for every chat reply.
	SystemPrompt = "You are Kaitanna, a warm and supportive companion in a mood tracking and journaling app. " +
		"Listen carefully, reflect the user's feelings back, and keep replies short and kind. " +
		"You are not a therapist; if the user mentions self-harm, encourage them to reach out to a professional or a local helpline."
)

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("empty response from AI")

// Generator turns a prompt into a reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// New builds the generator selected by cfg. It returns nil when no provider
// is configured.
func New(cfg config.AIConfig) (Generator, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	switch normalizeProvider(cfg.Provider) {
	case "openai", "openai-compatible":
		return newOpenAI(cfg), nil
	case "anthropic":
		return newAnthropic(cfg), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}

func normalizeProvider(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, "_", "-")
	return strings.ReplaceAll(t, " ", "")
}

type openAIGenerator struct {
	client openaiclient.Client
	model  string
}

func newOpenAI(cfg config.AIConfig) *openAIGenerator {
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(cfg.APIKey),
		openaioption.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openaioption.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultOpenAIModel
	}
	return &openAIGenerator{client: openaiclient.NewClient(opts...), model: model}
}

func (g *openAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	resp, err := g.client.Chat.Completions.New(ctx, openaiclient.ChatCompletionNewParams{
		Model: openaiclient.ChatModel(g.model),
		Messages: []openaiclient.ChatCompletionMessageParamUnion{
			openaiclient.SystemMessage(SystemPrompt),
			openaiclient.UserMessage(prompt),
		},
		MaxCompletionTokens: openaiclient.Int(maxOutputTokens),
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return nonEmpty(resp.Choices[0].Message.Content)
}

type anthropicGenerator struct {
	client anthropicclient.Client
	model  string
}

func newAnthropic(cfg config.AIConfig) *anthropicGenerator {
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(cfg.APIKey),
		anthropicoption.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultAnthropicModel
	}
	return &anthropicGenerator{client: anthropicclient.NewClient(opts...), model: model}
}

func (g *anthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	msg, err := g.client.Messages.New(ctx, anthropicclient.MessageNewParams{
		Model:     anthropicclient.Model(g.model),
		MaxTokens: maxOutputTokens,
		System:    []anthropicclient.TextBlockParam{{Text: SystemPrompt}},
		Messages: []anthropicclient.MessageParam{
			anthropicclient.NewUserMessage(anthropicclient.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return nonEmpty(out.String())
}

func nonEmpty(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Package genai generates docent review messages using the OpenAI API.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/emoseum/journey/internal/models"
)

// DefaultModel is used when no model option is provided.
var DefaultModel = openai.ChatModelGPT4oMini

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
	Model  openai.ChatModel
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// Client wraps the OpenAI chat completion API for docent message generation.
type Client struct {
	client openai.Client
	model  openai.ChatModel
}

// NewClient initializes a GenAI client, falling back to the OPENAI_API_KEY
// environment variable when no key option is given.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	return &Client{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
	}, nil
}

// GenerateDocentMessage produces a review message for a completed journey
// record, returning the generated content together with the token usage
// reported by the API.
func (c *Client) GenerateDocentMessage(ctx context.Context, rec *models.JourneyRecord) (models.ReviewMessage, error) {
	systemPrompt, userPrompt := buildDocentPrompt(rec)

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		slog.Error("Client.GenerateDocentMessage: completion failed", "error", err, "key", rec.RecordKey)
		return models.ReviewMessage{}, fmt.Errorf("completion request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return models.ReviewMessage{}, fmt.Errorf("no choices returned")
	}

	msg := models.ReviewMessage{
		Content: completion.Choices[0].Message.Content,
		Metadata: &models.ReviewMetadata{
			TokenUsage: models.TokenUsage{
				PromptTokens:     int(completion.Usage.PromptTokens),
				CompletionTokens: int(completion.Usage.CompletionTokens),
				TotalTokens:      int(completion.Usage.TotalTokens),
			},
			Model:  completion.Model,
			Method: models.MethodGPT,
		},
	}
	slog.Debug("Client.GenerateDocentMessage: message generated",
		"key", rec.RecordKey, "tokens", msg.TotalTokens())
	return msg, nil
}

// buildDocentPrompt assembles the system and user prompts from the record's
// diary, keywords, title and coping style.
func buildDocentPrompt(rec *models.JourneyRecord) (string, string) {
	systemPrompt := "You are a warm, encouraging museum docent guiding a visitor " +
		"through their own emotional-reflection artwork. Respond with a short, " +
		"supportive message (3-5 sentences) that acknowledges the visitor's " +
		"feelings and gently reinforces what they noticed about themselves. " +
		"Do not give clinical advice."

	var b strings.Builder
	fmt.Fprintf(&b, "Diary entry:\n%s\n", rec.DiaryText)
	if len(rec.EmotionKeywords) > 0 {
		fmt.Fprintf(&b, "\nEmotion keywords: %s\n", strings.Join(rec.EmotionKeywords, ", "))
	}
	if rec.Title != "" {
		fmt.Fprintf(&b, "\nThe visitor titled their artwork: %q", rec.Title)
	}
	if rec.GuidedQuestion != "" {
		fmt.Fprintf(&b, "\nGuided question they reflected on: %q", rec.GuidedQuestion)
	}
	if rec.CopingStyle != "" {
		fmt.Fprintf(&b, "\nCoping style: %s", rec.CopingStyle)
	}
	return systemPrompt, b.String()
}

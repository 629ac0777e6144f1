package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ampora-ai/ampora-web/internal/models"
	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAI is a request gateway answering with an OpenAI chat model. Any OpenAI compatible endpoint,
// such as OpenRouter, can be used by setting the base URL.
type OpenAI struct {
	model        string
	systemPrompt string

	params LLMParameters

	client *goopenai.Client

	logger *slog.Logger
}

// LLMParameters holds the optional sampling parameters forwarded to chat completion APIs. Nil fields
// keep the provider's defaults.
type LLMParameters struct {
	Temperature *float32 `yaml:"temperature"`
	TopP        *float32 `yaml:"topP"`
	MaxTokens   *int     `yaml:"maxTokens"`
	Stop        []string `yaml:"stop"`
	Seed        *int     `yaml:"seed"`
}

// NewOpenAI creates a new OpenAI gateway. An empty baseURL selects the OpenAI API.
func NewOpenAI(apiKey, baseURL, model, systemPrompt string, params LLMParameters, logger *slog.Logger) OpenAI {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return OpenAI{
		model:        model,
		systemPrompt: systemPrompt,
		params:       params,
		client:       goopenai.NewClientWithConfig(cfg),
		logger:       logger.With(slog.String("module", "openai")),
	}
}

// SendMessage streams the completion for text and returns it once complete.
func (o OpenAI) SendMessage(ctx context.Context, text, _ string) (models.Reply, error) {
	var msgs []goopenai.ChatCompletionMessage
	if o.systemPrompt != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: o.systemPrompt,
		})
	}
	msgs = append(msgs, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: text,
	})

	stream, err := o.client.CreateChatCompletionStream(ctx, o.chatRequest(msgs))
	if err != nil {
		return models.Reply{}, o.gatewayError(err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return models.Reply{}, o.gatewayError(err)
		}

		if len(response.Choices) == 0 {
			continue
		}
		sb.WriteString(response.Choices[0].Delta.Content)
	}

	o.logger.Debug("Completion received", slog.Int("length", sb.Len()))

	return models.Reply{Text: sb.String()}, nil
}

func (o OpenAI) gatewayError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &models.GatewayError{
		Message: fmt.Sprintf("OpenAI request failed: %v", err),
		Timeout: isTimeoutErr(err),
		Err:     err,
	}
}

func (o OpenAI) chatRequest(messages []goopenai.ChatCompletionMessage) goopenai.ChatCompletionRequest {
	req := goopenai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   true,
	}

	if o.params.Temperature != nil {
		req.Temperature = *o.params.Temperature
	}
	if o.params.TopP != nil {
		req.TopP = *o.params.TopP
	}
	if o.params.MaxTokens != nil {
		req.MaxTokens = *o.params.MaxTokens
	}
	if o.params.Stop != nil {
		req.Stop = o.params.Stop
	}
	if o.params.Seed != nil {
		req.Seed = o.params.Seed
	}

	return req
}

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ampora-ai/ampora-web/internal/models"
	"github.com/ollama/ollama/api"
)

// Ollama is a request gateway answering with a model served by an Ollama instance.
type Ollama struct {
	host         string
	model        string
	systemPrompt string

	client *api.Client
}

// NewOllama creates a new Ollama gateway with the specified host URL and model name.
func NewOllama(host, model, systemPrompt string) (Ollama, error) {
	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, fmt.Errorf("invalid ollama host: %w", err)
	}

	return Ollama{
		host:         host,
		model:        model,
		systemPrompt: systemPrompt,
		client:       api.NewClient(u, &http.Client{}),
	}, nil
}

// SendMessage streams the model's answer to text and returns it once complete. The context can be
// used to cancel ongoing requests.
func (o Ollama) SendMessage(ctx context.Context, text, _ string) (models.Reply, error) {
	var msgs []api.Message
	if o.systemPrompt != "" {
		msgs = append(msgs, api.Message{
			Role:    "system",
			Content: o.systemPrompt,
		})
	}
	msgs = append(msgs, api.Message{
		Role:    string(models.SenderUser),
		Content: text,
	})

	t := true
	req := api.ChatRequest{
		Model:    o.model,
		Messages: msgs,
		Stream:   &t,
	}

	var sb strings.Builder
	if err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
		sb.WriteString(res.Message.Content)
		return nil
	}); err != nil {
		if errors.Is(err, context.Canceled) {
			return models.Reply{}, err
		}
		return models.Reply{}, &models.GatewayError{
			Message: fmt.Sprintf("Ollama request failed: %v", err),
			Timeout: isTimeoutErr(err),
			Err:     err,
		}
	}

	return models.Reply{Text: sb.String()}, nil
}

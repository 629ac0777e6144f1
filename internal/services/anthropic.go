package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ampora-ai/ampora-web/internal/models"
	"github.com/tmaxmax/go-sse"
)

// Anthropic is a request gateway answering with a Claude model through the Anthropic messages API.
type Anthropic struct {
	endpoint     string
	apiKey       string
	model        string
	systemPrompt string
	maxTokens    int

	client *http.Client
}

type anthropicChatRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens,omitempty"`
	Stream    bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicStreamResponse struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

const (
	anthropicAPIEndpoint = "https://api.anthropic.com/v1"
	anthropicVersion     = "2023-06-01"
)

// NewAnthropic creates a new Anthropic gateway. An empty endpoint selects the public API.
func NewAnthropic(endpoint, apiKey, model, systemPrompt string, maxTokens int) Anthropic {
	if endpoint == "" {
		endpoint = anthropicAPIEndpoint
	}
	return Anthropic{
		endpoint:     strings.TrimSuffix(endpoint, "/"),
		apiKey:       apiKey,
		model:        model,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		client:       &http.Client{},
	}
}

// SendMessage streams the model's answer to text as server-sent events and returns it once the
// message stops.
func (a Anthropic) SendMessage(ctx context.Context, text, _ string) (models.Reply, error) {
	reqBody := anthropicChatRequest{
		Model: a.model,
		Messages: []anthropicMessage{
			{Role: string(models.SenderUser), Content: text},
		},
		System:    a.systemPrompt,
		MaxTokens: a.maxTokens,
		Stream:    true,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return models.Reply{}, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/messages", bytes.NewBuffer(jsonBody))
	if err != nil {
		return models.Reply{}, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return models.Reply{}, err
		}
		return models.Reply{}, &models.GatewayError{
			Message: fmt.Sprintf("Anthropic request failed: %v", err),
			Timeout: isTimeoutErr(err),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e anthropicError
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error.Message == "" {
			return models.Reply{}, &models.GatewayError{Message: fmt.Sprintf("HTTP error! status: %d", resp.StatusCode)}
		}
		return models.Reply{}, &models.GatewayError{Message: fmt.Sprintf("anthropic error %s: %s", e.Error.Type, e.Error.Message)}
	}

	var sb strings.Builder
	for ev, err := range sse.Read(resp.Body, nil) {
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return models.Reply{}, err
			}
			return models.Reply{}, &models.GatewayError{
				Message: fmt.Sprintf("error reading response: %v", err),
				Timeout: isTimeoutErr(err),
				Err:     err,
			}
		}
		switch ev.Type {
		case "error":
			var e anthropicError
			if err := json.Unmarshal([]byte(ev.Data), &e); err != nil {
				return models.Reply{}, fmt.Errorf("error unmarshaling error: %w", err)
			}
			return models.Reply{}, &models.GatewayError{Message: fmt.Sprintf("anthropic error %s: %s", e.Error.Type, e.Error.Message)}
		case "message_stop":
			return models.Reply{Text: sb.String()}, nil
		case "content_block_delta":
			var res anthropicStreamResponse
			if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
				return models.Reply{}, fmt.Errorf("error unmarshaling response: %w", err)
			}
			sb.WriteString(res.Delta.Text)
		default:
			continue
		}
	}

	return models.Reply{Text: sb.String()}, nil
}

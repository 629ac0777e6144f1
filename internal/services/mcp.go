package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MegaGrindStone/go-mcp"
	"github.com/ampora-ai/ampora-web/internal/models"
)

// MCP is a request gateway that forwards each message to a tool exposed by an MCP server, typically a
// media generation tool.
type MCP struct {
	client   *mcp.Client
	toolName string

	logger *slog.Logger
}

const errLoggerKey = "err"

type mcpToolArguments struct {
	Message   string `json:"message"`
	AuthToken string `json:"auth_token,omitempty"`
}

// NewMCP creates a gateway calling toolName on client.
func NewMCP(client *mcp.Client, toolName string, logger *slog.Logger) MCP {
	return MCP{
		client:   client,
		toolName: toolName,
		logger:   logger.With(slog.String("module", "mcp")),
	}
}

// SendMessage calls the tool with text and builds the reply from the text contents of the result. A
// text content holding a JSON object with "response" and "video_url" keys is decoded, so tools can
// return generated media.
func (m MCP) SendMessage(ctx context.Context, text, authToken string) (models.Reply, error) {
	args, err := json.Marshal(mcpToolArguments{Message: text, AuthToken: authToken})
	if err != nil {
		return models.Reply{}, fmt.Errorf("error marshaling tool arguments: %w", err)
	}

	res, err := m.client.CallTool(ctx, mcp.CallToolParams{
		Name:      m.toolName,
		Arguments: args,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return models.Reply{}, err
		}
		m.logger.Error("Tool call failed",
			slog.String("toolName", m.toolName),
			slog.String(errLoggerKey, err.Error()))
		return models.Reply{}, &models.GatewayError{
			Message: fmt.Sprintf("Tool call failed: %v", err),
			Timeout: isTimeoutErr(err),
			Err:     err,
		}
	}

	reply := mcpReply(res.Content)
	if res.IsError {
		msg := reply.Text
		if msg == "" {
			msg = fmt.Sprintf("Tool %s failed", m.toolName)
		}
		return models.Reply{}, &models.GatewayError{Message: msg}
	}

	return reply, nil
}

func mcpReply(contents []mcp.Content) models.Reply {
	var reply models.Reply
	var texts []string

	for _, content := range contents {
		if content.Type != mcp.ContentTypeText {
			continue
		}

		var res backendChatResponse
		if err := json.Unmarshal([]byte(content.Text), &res); err == nil && (res.Response != "" || res.VideoURL != nil) {
			if res.Response != "" {
				texts = append(texts, res.Response)
			}
			if res.VideoURL != nil && reply.ArtifactURL == "" {
				reply.ArtifactURL = *res.VideoURL
			}
			continue
		}
		texts = append(texts, content.Text)
	}

	reply.Text = strings.Join(texts, "\n\n")
	return reply
}

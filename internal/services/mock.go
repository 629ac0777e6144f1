package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ampora-ai/ampora-web/internal/models"
)

// Mock is a request gateway that answers from a fixed set of canned replies after a simulated network
// delay. It lets the dashboard run without a backend.
type Mock struct {
	delay       time.Duration
	artifactURL string
}

// DefaultMockDelay is the simulated processing time of the mock gateway.
const DefaultMockDelay = 1500 * time.Millisecond

// NewMock creates a mock gateway. When artifactURL is set, video generation prompts are answered with
// it as the generated media.
func NewMock(delay time.Duration, artifactURL string) Mock {
	return Mock{
		delay:       delay,
		artifactURL: artifactURL,
	}
}

// SendMessage waits for the simulated delay, then replies based on keywords found in text. The wait
// is abandoned when ctx is done.
func (m Mock) SendMessage(ctx context.Context, text, _ string) (models.Reply, error) {
	if m.delay > 0 {
		timer := time.NewTimer(m.delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return models.Reply{}, ctx.Err()
		case <-timer.C:
		}
	}

	return m.reply(text), nil
}

func (m Mock) reply(text string) models.Reply {
	lower := strings.ToLower(text)

	switch {
	case containsAny(lower, "video", "generate", "create"):
		return models.Reply{
			Text: "I'm processing your video generation request. This will take a few moments. " +
				"The backend is working on creating your video content!",
			ArtifactURL: m.artifactURL,
		}
	case hasWord(lower, "hello", "hi"):
		return models.Reply{
			Text: "Hello! I'm Ampora AI. I can help you generate video content. " +
				"Try asking me to create a video or generate content!",
		}
	case strings.Contains(lower, "help"):
		return models.Reply{
			Text: "I can help you:\n• Generate video content\n• Create lecture videos\n• Process your requests\n\n" +
				"Try: 'Create a video about machine learning' or 'Generate a lecture on Python basics'",
		}
	default:
		return models.Reply{
			Text: fmt.Sprintf("I understand you said: %q. The backend chat service is currently in development. "+
				"This is a mock response for testing. Once the backend is ready, I'll be able to process your "+
				"requests and generate videos!", text),
		}
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasWord(s string, words ...string) bool {
	for _, field := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z')
	}) {
		for _, w := range words {
			if field == w {
				return true
			}
		}
	}
	return false
}

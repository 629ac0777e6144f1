package services

import (
	"testing"

	"github.com/MegaGrindStone/go-mcp"
)

func TestMCPReply(t *testing.T) {
	tests := []struct {
		name         string
		contents     []mcp.Content
		wantText     string
		wantArtifact string
	}{
		{
			name: "Plain text",
			contents: []mcp.Content{
				{Type: mcp.ContentTypeText, Text: "first"},
				{Type: mcp.ContentTypeText, Text: "second"},
			},
			wantText: "first\n\nsecond",
		},
		{
			name: "Structured reply",
			contents: []mcp.Content{
				{Type: mcp.ContentTypeText, Text: `{"response":"Your video is ready","video_url":"https://x/y.mp4"}`},
			},
			wantText:     "Your video is ready",
			wantArtifact: "https://x/y.mp4",
		},
		{
			name: "JSON without reply keys",
			contents: []mcp.Content{
				{Type: mcp.ContentTypeText, Text: `{"status":"ok"}`},
			},
			wantText: `{"status":"ok"}`,
		},
		{
			name:     "No content",
			wantText: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mcpReply(tt.contents)
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
			if got.ArtifactURL != tt.wantArtifact {
				t.Errorf("ArtifactURL = %q, want %q", got.ArtifactURL, tt.wantArtifact)
			}
		})
	}
}

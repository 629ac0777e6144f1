package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ampora-ai/ampora-web/internal/chat"
	"github.com/ampora-ai/ampora-web/internal/services"
	"gopkg.in/yaml.v3"
)

func TestConfigUnmarshalYAML(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantType any
		wantErr  bool
	}{
		{
			name: "Mock gateway",
			yaml: `
port: "9090"
gateway:
  provider: mock
  delay: 10ms
  artifactURL: https://cdn.example.com/sample.mp4
`,
			wantType: &mockConfig{},
		},
		{
			name: "Backend gateway",
			yaml: `
gateway:
  provider: backend
  url: http://localhost:8000
  timeout: 30s
`,
			wantType: &backendConfig{},
		},
		{
			name: "Ollama gateway",
			yaml: `
gateway:
  provider: ollama
  model: llama3.2
`,
			wantType: &ollamaConfig{},
		},
		{
			name: "OpenAI gateway",
			yaml: `
gateway:
  provider: openai
  model: gpt-4o-mini
  parameters:
    temperature: 0.2
`,
			wantType: &openAIConfig{},
		},
		{
			name: "Anthropic gateway",
			yaml: `
gateway:
  provider: anthropic
  model: claude-3-5-haiku-latest
  maxTokens: 1024
`,
			wantType: &anthropicConfig{},
		},
		{
			name: "MCP gateway",
			yaml: `
gateway:
  provider: mcp
  toolName: generate_video
  sse:
    url: http://localhost:3001/sse
`,
			wantType: &mcpConfig{},
		},
		{
			name: "No gateway",
			yaml: `
port: "9090"
`,
			wantType: nil,
		},
		{
			name: "Missing provider",
			yaml: `
gateway:
  model: llama3.2
`,
			wantErr: true,
		},
		{
			name: "Unknown provider",
			yaml: `
gateway:
  provider: carrier-pigeon
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg config
			err := yaml.Unmarshal([]byte(tt.yaml), &cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			switch tt.wantType.(type) {
			case nil:
				if cfg.Gateway != nil {
					t.Errorf("Gateway = %T, want nil", cfg.Gateway)
				}
			case *mockConfig:
				if _, ok := cfg.Gateway.(*mockConfig); !ok {
					t.Errorf("Gateway = %T, want *mockConfig", cfg.Gateway)
				}
			case *backendConfig:
				if _, ok := cfg.Gateway.(*backendConfig); !ok {
					t.Errorf("Gateway = %T, want *backendConfig", cfg.Gateway)
				}
			case *ollamaConfig:
				if _, ok := cfg.Gateway.(*ollamaConfig); !ok {
					t.Errorf("Gateway = %T, want *ollamaConfig", cfg.Gateway)
				}
			case *openAIConfig:
				if _, ok := cfg.Gateway.(*openAIConfig); !ok {
					t.Errorf("Gateway = %T, want *openAIConfig", cfg.Gateway)
				}
			case *anthropicConfig:
				if _, ok := cfg.Gateway.(*anthropicConfig); !ok {
					t.Errorf("Gateway = %T, want *anthropicConfig", cfg.Gateway)
				}
			case *mcpConfig:
				if _, ok := cfg.Gateway.(*mcpConfig); !ok {
					t.Errorf("Gateway = %T, want *mcpConfig", cfg.Gateway)
				}
			}
		})
	}
}

func TestConfigUnmarshalYAMLFields(t *testing.T) {
	input := `
port: "9090"
systemPrompt: You help people make videos.
logLevel: debug
reveal:
  minDelay: 5ms
  maxDelay: 15ms
storePath: /tmp/ampora/store.db
sessionTTL: 1h
accounts:
  - username: alice
    email: alice@example.com
    password: secret1
gateway:
  provider: mock
  delay: 250ms
  artifactURL: https://cdn.example.com/sample.mp4
`
	var cfg config
	if err := yaml.Unmarshal([]byte(input), &cfg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want %q", cfg.Port, "9090")
	}
	if cfg.Reveal.MinDelay != 5*time.Millisecond || cfg.Reveal.MaxDelay != 15*time.Millisecond {
		t.Errorf("Reveal = %+v, want [5ms, 15ms)", cfg.Reveal)
	}
	if cfg.SessionTTL != time.Hour {
		t.Errorf("SessionTTL = %v, want %v", cfg.SessionTTL, time.Hour)
	}
	if len(cfg.Accounts) != 1 || cfg.Accounts[0].Username != "alice" {
		t.Errorf("Accounts = %+v, want alice only", cfg.Accounts)
	}
	level, err := cfg.logLevel()
	if err != nil || level != slog.LevelDebug {
		t.Errorf("logLevel() = %v, %v, want %v", level, err, slog.LevelDebug)
	}

	mock, ok := cfg.Gateway.(*mockConfig)
	if !ok {
		t.Fatalf("Gateway = %T, want *mockConfig", cfg.Gateway)
	}
	if mock.Delay == nil || *mock.Delay != 250*time.Millisecond {
		t.Errorf("Delay = %v, want 250ms", mock.Delay)
	}
	if mock.ArtifactURL != "https://cdn.example.com/sample.mp4" {
		t.Errorf("ArtifactURL = %q", mock.ArtifactURL)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("Missing file", func(t *testing.T) {
		cfg, err := loadConfig(filepath.Join(t.TempDir(), "config.yaml"))
		if err != nil {
			t.Fatalf("loadConfig() error = %v", err)
		}
		if cfg.Port != defaultPort {
			t.Errorf("Port = %q, want %q", cfg.Port, defaultPort)
		}
		if cfg.Reveal.MinDelay != chat.DefaultMinDelay || cfg.Reveal.MaxDelay != chat.DefaultMaxDelay {
			t.Errorf("Reveal = %+v, want default range", cfg.Reveal)
		}
		if _, ok := cfg.Gateway.(*mockConfig); !ok {
			t.Errorf("Gateway = %T, want *mockConfig", cfg.Gateway)
		}
		if cfg.SessionTTL != services.DefaultSessionTTL {
			t.Errorf("SessionTTL = %v, want %v", cfg.SessionTTL, services.DefaultSessionTTL)
		}
		if len(cfg.Accounts) != len(services.DefaultAccounts) {
			t.Errorf("Accounts = %d, want %d", len(cfg.Accounts), len(services.DefaultAccounts))
		}
	})

	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{
			name: "Valid",
			yaml: "port: \"9090\"\n",
		},
		{
			name:    "Inverted reveal range",
			yaml:    "reveal:\n  minDelay: 60ms\n  maxDelay: 20ms\n",
			wantErr: true,
		},
		{
			name:    "Malformed",
			yaml:    "port: [\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o600); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}

			_, err := loadConfig(path)
			if (err != nil) != tt.wantErr {
				t.Errorf("loadConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGatewayConfigs(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	negative := -time.Second

	tests := []struct {
		name    string
		cfg     gatewayConfig
		wantErr bool
	}{
		{
			name: "Mock",
			cfg:  mockConfig{},
		},
		{
			name:    "Mock with negative delay",
			cfg:     mockConfig{Delay: &negative},
			wantErr: true,
		},
		{
			name: "Backend",
			cfg:  backendConfig{URL: "http://localhost:8000"},
		},
		{
			name:    "Backend without url",
			cfg:     backendConfig{},
			wantErr: true,
		},
		{
			name:    "Backend with relative url",
			cfg:     backendConfig{URL: "/api"},
			wantErr: true,
		},
		{
			name:    "Ollama without model",
			cfg:     ollamaConfig{},
			wantErr: true,
		},
		{
			name: "OpenAI",
			cfg:  openAIConfig{APIKey: "sk-test", Model: "gpt-4o-mini"},
		},
		{
			name:    "OpenAI without model",
			cfg:     openAIConfig{APIKey: "sk-test"},
			wantErr: true,
		},
		{
			name: "Anthropic",
			cfg:  anthropicConfig{APIKey: "key", Model: "claude-3-5-haiku-latest", MaxTokens: 1024},
		},
		{
			name:    "Anthropic without maxTokens",
			cfg:     anthropicConfig{APIKey: "key", Model: "claude-3-5-haiku-latest"},
			wantErr: true,
		},
		{
			name:    "MCP without tool",
			cfg:     mcpConfig{SSE: &mcpSSEServerConfig{URL: "http://localhost:3001/sse"}},
			wantErr: true,
		},
		{
			name:    "MCP without server",
			cfg:     mcpConfig{ToolName: "generate_video"},
			wantErr: true,
		},
		{
			name: "MCP with two servers",
			cfg: mcpConfig{
				ToolName: "generate_video",
				SSE:      &mcpSSEServerConfig{URL: "http://localhost:3001/sse"},
				StdIO:    &mcpStdIOServerConfig{Command: "video-mcp"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, release, err := tt.cfg.gateway(context.Background(), "prompt", logger)
			if (err != nil) != tt.wantErr {
				t.Fatalf("gateway() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			defer release()
			if gw == nil {
				t.Error("gateway() returned nil gateway")
			}
		})
	}
}

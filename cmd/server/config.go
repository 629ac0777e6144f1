package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/MegaGrindStone/go-mcp"
	"github.com/ampora-ai/ampora-web/internal/chat"
	"github.com/ampora-ai/ampora-web/internal/services"
	"gopkg.in/yaml.v3"
)

type gatewayConfig interface {
	// gateway builds the configured gateway. The returned release func frees whatever the gateway
	// holds open and must be called once it is no longer used.
	gateway(ctx context.Context, systemPrompt string, logger *slog.Logger) (chat.Gateway, func(), error)
}

// BaseGatewayConfig contains the common fields for all gateway configurations.
type BaseGatewayConfig struct {
	Provider string `yaml:"provider"`
}

type config struct {
	Port         string             `yaml:"port"`
	SystemPrompt string             `yaml:"systemPrompt"`
	LogLevel     string             `yaml:"logLevel"`
	Reveal       revealConfig       `yaml:"reveal"`
	Gateway      gatewayConfig      `yaml:"gateway"`
	StorePath    string             `yaml:"storePath"`
	SessionTTL   time.Duration      `yaml:"sessionTTL"`
	Accounts     []services.Account `yaml:"accounts"`
}

type revealConfig struct {
	MinDelay time.Duration `yaml:"minDelay"`
	MaxDelay time.Duration `yaml:"maxDelay"`
}

type mockConfig struct {
	BaseGatewayConfig `yaml:",inline"`
	Delay             *time.Duration `yaml:"delay"`
	ArtifactURL       string         `yaml:"artifactURL"`
}

type backendConfig struct {
	BaseGatewayConfig `yaml:",inline"`
	URL               string        `yaml:"url"`
	Timeout           time.Duration `yaml:"timeout"`
}

type ollamaConfig struct {
	BaseGatewayConfig `yaml:",inline"`
	Host              string `yaml:"host"`
	Model             string `yaml:"model"`
}

type openAIConfig struct {
	BaseGatewayConfig `yaml:",inline"`
	APIKey            string                 `yaml:"apiKey"`
	BaseURL           string                 `yaml:"baseURL"`
	Model             string                 `yaml:"model"`
	Parameters        services.LLMParameters `yaml:"parameters"`
}

type anthropicConfig struct {
	BaseGatewayConfig `yaml:",inline"`
	Endpoint          string `yaml:"endpoint"`
	APIKey            string `yaml:"apiKey"`
	Model             string `yaml:"model"`
	MaxTokens         int    `yaml:"maxTokens"`
}

type mcpConfig struct {
	BaseGatewayConfig `yaml:",inline"`
	ToolName          string                `yaml:"toolName"`
	SSE               *mcpSSEServerConfig   `yaml:"sse"`
	StdIO             *mcpStdIOServerConfig `yaml:"stdio"`
}

type mcpSSEServerConfig struct {
	URL string `yaml:"url"`
}

type mcpStdIOServerConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

const (
	defaultPort = "8080"

	mcpClientName    = "ampora-web"
	mcpClientVersion = "0.1.0"
)

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port         string             `yaml:"port"`
		SystemPrompt string             `yaml:"systemPrompt"`
		LogLevel     string             `yaml:"logLevel"`
		Reveal       revealConfig       `yaml:"reveal"`
		Gateway      map[string]any     `yaml:"gateway"`
		StorePath    string             `yaml:"storePath"`
		SessionTTL   time.Duration      `yaml:"sessionTTL"`
		Accounts     []services.Account `yaml:"accounts"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	c.SystemPrompt = rawConfig.SystemPrompt
	c.LogLevel = rawConfig.LogLevel
	c.Reveal = rawConfig.Reveal
	c.StorePath = rawConfig.StorePath
	c.SessionTTL = rawConfig.SessionTTL
	c.Accounts = rawConfig.Accounts

	if rawConfig.Gateway == nil {
		c.Gateway = nil
		return nil
	}

	provider, ok := rawConfig.Gateway["provider"].(string)
	if !ok {
		return fmt.Errorf("gateway provider is required")
	}

	gatewayRawYAML, err := yaml.Marshal(rawConfig.Gateway)
	if err != nil {
		return err
	}

	var gw gatewayConfig
	switch provider {
	case "mock":
		gw = &mockConfig{}
	case "backend":
		gw = &backendConfig{}
	case "ollama":
		gw = &ollamaConfig{}
	case "openai":
		gw = &openAIConfig{}
	case "anthropic":
		gw = &anthropicConfig{}
	case "mcp":
		gw = &mcpConfig{}
	default:
		return fmt.Errorf("unknown gateway provider: %s", provider)
	}

	if err := yaml.Unmarshal(gatewayRawYAML, gw); err != nil {
		return err
	}

	c.Gateway = gw

	return nil
}

// loadConfig reads the config file at path. A missing file yields the defaults.
func loadConfig(path string) (config, error) {
	cfg := config{}

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return config{}, fmt.Errorf("error opening config file: %w", err)
	default:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return config{}, fmt.Errorf("error decoding config file: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c *config) applyDefaults() {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.Reveal.MinDelay == 0 && c.Reveal.MaxDelay == 0 {
		c.Reveal.MinDelay = chat.DefaultMinDelay
		c.Reveal.MaxDelay = chat.DefaultMaxDelay
	}
	if c.Gateway == nil {
		c.Gateway = &mockConfig{BaseGatewayConfig: BaseGatewayConfig{Provider: "mock"}}
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = services.DefaultSessionTTL
	}
	if c.Accounts == nil {
		c.Accounts = services.DefaultAccounts
	}
}

func (c config) validate() error {
	if c.Reveal.MinDelay < 0 || c.Reveal.MaxDelay < c.Reveal.MinDelay {
		return fmt.Errorf("invalid reveal delay range [%s, %s)", c.Reveal.MinDelay, c.Reveal.MaxDelay)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("sessionTTL must not be negative")
	}
	return nil
}

func (c config) revealDelay() chat.DelayFunc {
	return chat.RandomDelay(c.Reveal.MinDelay, c.Reveal.MaxDelay)
}

func (c config) logLevel() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid logLevel: %w", err)
	}
	return level, nil
}

func noRelease() {}

func (m mockConfig) gateway(context.Context, string, *slog.Logger) (chat.Gateway, func(), error) {
	delay := services.DefaultMockDelay
	if m.Delay != nil {
		delay = *m.Delay
	}
	if delay < 0 {
		return nil, nil, fmt.Errorf("mock delay must not be negative")
	}
	return services.NewMock(delay, m.ArtifactURL), noRelease, nil
}

func (b backendConfig) gateway(context.Context, string, *slog.Logger) (chat.Gateway, func(), error) {
	if b.URL == "" {
		return nil, nil, fmt.Errorf("url is required")
	}
	timeout := b.Timeout
	if timeout == 0 {
		timeout = services.DefaultBackendTimeout
	}
	backend, err := services.NewBackend(b.URL, timeout)
	if err != nil {
		return nil, nil, err
	}
	return backend, noRelease, nil
}

func (o ollamaConfig) gateway(_ context.Context, systemPrompt string, _ *slog.Logger) (chat.Gateway, func(), error) {
	if o.Model == "" {
		return nil, nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	ollama, err := services.NewOllama(host, o.Model, systemPrompt)
	if err != nil {
		return nil, nil, err
	}
	return ollama, noRelease, nil
}

func (o openAIConfig) gateway(_ context.Context, systemPrompt string, logger *slog.Logger) (chat.Gateway, func(), error) {
	if o.Model == "" {
		return nil, nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return services.NewOpenAI(apiKey, o.BaseURL, o.Model, systemPrompt, o.Parameters, logger), noRelease, nil
}

func (a anthropicConfig) gateway(_ context.Context, systemPrompt string, _ *slog.Logger) (chat.Gateway, func(), error) {
	if a.Model == "" {
		return nil, nil, fmt.Errorf("model is required")
	}
	if a.MaxTokens == 0 {
		return nil, nil, fmt.Errorf("maxTokens is required")
	}

	apiKey := a.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return services.NewAnthropic(a.Endpoint, apiKey, a.Model, systemPrompt, a.MaxTokens), noRelease, nil
}

// gateway connects to the configured MCP server and waits until the handshake completes.
func (m mcpConfig) gateway(ctx context.Context, _ string, logger *slog.Logger) (chat.Gateway, func(), error) {
	if m.ToolName == "" {
		return nil, nil, fmt.Errorf("toolName is required")
	}
	if (m.SSE == nil) == (m.StdIO == nil) {
		return nil, nil, fmt.Errorf("exactly one of sse or stdio is required")
	}

	info := mcp.Info{
		Name:    mcpClientName,
		Version: mcpClientVersion,
	}

	var (
		cli *mcp.Client
		cmd *exec.Cmd
	)
	if m.SSE != nil {
		cli = mcp.NewClient(info, mcp.NewSSEClient(m.SSE.URL, nil))
	} else {
		cmd = exec.Command(m.StdIO.Command, m.StdIO.Args...)
		in, err := cmd.StdinPipe()
		if err != nil {
			return nil, nil, err
		}
		out, err := cmd.StdoutPipe()
		if err != nil {
			return nil, nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, nil, fmt.Errorf("failed to start MCP server: %w", err)
		}
		cli = mcp.NewClient(info, mcp.NewStdIO(out, in))
	}

	connectCtx, connectCancel := context.WithCancel(context.Background())
	release := func() {
		connectCancel()
		if cmd == nil {
			return
		}
		if err := cmd.Wait(); err != nil {
			logger.Warn("Failed to wait for stdIO command", slog.String(errLoggerKey, err.Error()))
		}
	}

	ready := make(chan struct{})
	errs := make(chan error, 1)
	go func() {
		if err := cli.Connect(connectCtx, ready); err != nil {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		release()
		return nil, nil, fmt.Errorf("failed to connect to MCP server: %w", err)
	case <-ctx.Done():
		release()
		return nil, nil, ctx.Err()
	case <-ready:
	}

	logger.Info("Connected to MCP server", slog.String("server", cli.ServerInfo().Name))

	return services.NewMCP(cli, m.ToolName, logger), release, nil
}

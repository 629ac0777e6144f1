package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	amporaweb "github.com/ampora-ai/ampora-web"
	"github.com/ampora-ai/ampora-web/internal/chat"
	"github.com/ampora-ai/ampora-web/internal/handlers"
	"github.com/ampora-ai/ampora-web/internal/services"
	"github.com/spf13/cobra"
)

const (
	errLoggerKey = "err"

	conversationPruneInterval = 10 * time.Minute
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ampora",
	Short: "Ampora AI dashboard chat",
	Long: `Ampora serves the dashboard chat of the Ampora AI video assistant.

Replies are revealed one character at a time and can be interrupted while
they are pending or being revealed.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard over HTTP",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(),
		"path to the YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(cfgDir, "ampora", "config.yaml")
}

// setup loads the config and builds the logger and the gateway shared by every command.
func setup(ctx context.Context) (config, *slog.Logger, chat.Gateway, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return config{}, nil, nil, nil, err
	}

	level, err := cfg.logLevel()
	if err != nil {
		return config{}, nil, nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	gateway, release, err := cfg.Gateway.gateway(ctx, cfg.SystemPrompt, logger)
	if err != nil {
		return config{}, nil, nil, nil, fmt.Errorf("error creating gateway: %w", err)
	}

	return cfg, logger, gateway, release, nil
}

// startLoop runs a new event loop until the returned stop func is called.
func startLoop() (*chat.EventLoop, func()) {
	loop := chat.NewEventLoop()
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	return loop, func() {
		cancel()
		<-loop.Done()
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, gateway, release, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer release()

	storePath := cfg.StorePath
	if storePath == "" {
		storePath = filepath.Join(filepath.Dir(configPath), "store.db")
	}
	if err := os.MkdirAll(filepath.Dir(storePath), 0755); err != nil {
		return fmt.Errorf("error creating store directory: %w", err)
	}

	boltDB, err := services.NewBoltDB(storePath, cfg.SessionTTL)
	if err != nil {
		return err
	}
	defer boltDB.Close()

	if err := boltDB.SeedAccounts(cmd.Context(), cfg.Accounts); err != nil {
		return fmt.Errorf("error seeding accounts: %w", err)
	}

	loop, stopLoop := startLoop()
	defer stopLoop()

	m, err := handlers.NewMain(loop, gateway, boltDB, cfg.revealDelay(), logger)
	if err != nil {
		return err
	}

	// Serve static files
	staticFS, err := fs.Sub(amporaweb.StaticFS, "static")
	if err != nil {
		return err
	}
	fileServer := http.FileServer(http.FS(staticFS))

	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("/", m.HandleHome)
	mux.HandleFunc("/login", m.HandleLogin)
	mux.HandleFunc("/signup", m.HandleSignup)
	mux.HandleFunc("/logout", m.HandleLogout)
	mux.HandleFunc("/chats", m.HandleChats)
	mux.HandleFunc("/chats/cancel", m.HandleCancel)
	mux.HandleFunc("/sse", m.HandleSSE)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sseClosed := make(chan struct{})
	srv.RegisterOnShutdown(func() {
		defer close(sseClosed)
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sse server", slog.String(errLoggerKey, err.Error()))
		}
	})

	pruneCtx, stopPrune := context.WithCancel(context.Background())
	pruneDone := make(chan struct{})
	go func() {
		defer close(pruneDone)
		pruneConversations(pruneCtx, m, conversationPruneInterval)
	}()
	defer func() {
		stopPrune()
		<-pruneDone
	}()

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting", slog.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String(errLoggerKey, err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String(errLoggerKey, err.Error()))
			}
		}
		<-sseClosed
	}

	return nil
}

// pruneConversations drops conversations of expired sessions every interval until ctx is done.
func pruneConversations(ctx context.Context, m handlers.Main, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.PruneConversations(ctx)
		}
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"intake-chat/internal/backend"
	"intake-chat/internal/cache"
	"intake-chat/internal/config"
	"intake-chat/internal/core"
	"intake-chat/internal/db"
	"intake-chat/internal/events"
	httpserver "intake-chat/internal/http"
	"intake-chat/internal/httpclient"
	"intake-chat/internal/logger"
	"intake-chat/internal/render"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the intake chat HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger.Init(cfg.Log.Level, os.Stdout)
	return cfg, nil
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := backend.NewCloudClient(httpclient.New(cfg.Backend.Timeout), cfg.Backend.BaseURL, cfg.Backend.Prefix)

	broker := events.NewBroker()
	publisher, err := buildPublisher(ctx, cfg, broker)
	if err != nil {
		return err
	}
	defer publisher.Close()

	var lookups cache.Cache = cache.Nop{}
	if cfg.Redis.Addr != "" {
		lookups = cache.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
	}
	defer lookups.Close()

	sessions := core.NewSessionStore(cfg.Session.IdleTTL)
	go sessions.Run(ctx, cfg.Session.SweepInterval)

	chat := core.NewChatService(client, publisher, lookups, cfg.Session.MessageCap)
	summarizer := core.NewSummarizer(client, render.NewMarkdown())

	handler, err := httpserver.NewServer(sessions, chat, summarizer, broker, httpserver.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})
	if err != nil {
		return fmt.Errorf("constructing server: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":    cfg.Addr(),
			"backend": cfg.Backend.BaseURL,
		}).Info("Intake chat server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Log.Info("Shutting down intake chat server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	broker.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}
	logger.Log.Info("Intake chat server stopped")
	return nil
}

// buildPublisher wires the configured event sinks. With Postgres configured
// the doctor stream is fed from LISTEN so every replica sees every event;
// otherwise events go to the local broker directly.
func buildPublisher(ctx context.Context, cfg *config.Config, broker *events.Broker) (events.Publisher, error) {
	var sinks events.Multi
	if len(cfg.Kafka.Brokers) > 0 {
		sinks = append(sinks, events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic))
	}
	if cfg.Database.URL == "" {
		return append(sinks, broker), nil
	}

	conn, err := db.Open(ctx, cfg.Database.URL)
	if err != nil {
		sinks.Close()
		return nil, err
	}
	sinks = append(sinks, db.NewNotifier(conn, cfg.Database.NotifyChannel))
	if err := db.Listen(ctx, cfg.Database.URL, cfg.Database.NotifyChannel, broker); err != nil {
		sinks.Close()
		return nil, err
	}
	return sinks, nil
}

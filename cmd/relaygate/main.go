package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/relaygate/internal/auth"
	"github.com/rickgao/relaygate/internal/checkpoint"
	"github.com/rickgao/relaygate/internal/config"
	"github.com/rickgao/relaygate/internal/database"
	"github.com/rickgao/relaygate/internal/dispatch"
	"github.com/rickgao/relaygate/internal/gateway"
	"github.com/rickgao/relaygate/internal/journal"
	"github.com/rickgao/relaygate/internal/rest"
	"github.com/rickgao/relaygate/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := pflag.StringP("config", "c", "configs/relaygate.yaml", "path to config file (.yaml or .toml)")
	envFile := pflag.String("env-file", ".env", "optional dotenv file loaded before the config")
	logLevel := pflag.String("log-level", "", "override log.level (debug, info, warn, error)")
	showVersion := pflag.BoolP("version", "v", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		os.Stdout.WriteString(version.String() + "\n")
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := loadEnvFile(*envFile); err != nil {
		logger.Error("failed to load env file", "path", *envFile, "error", err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger = newLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting relaygate",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	creds, err := auth.LoadCredentials(cfg.Auth.Token, cfg.Auth.TokenFile)
	if err != nil {
		logger.Error("failed to load credentials", "error", err)
		os.Exit(1)
	}
	logger.Info("credentials loaded", "token", creds.Redacted())

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, creds, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("relaygate exited", "error", err)
		os.Exit(1)
	}

	logger.Info("relaygate stopped")
}

func run(ctx context.Context, cfg *config.Config, creds *auth.Credentials, logger *slog.Logger) error {
	restClient := rest.NewClient(
		cfg.REST.BaseURL,
		creds,
		rest.WithLogger(logger),
		rest.WithTimeout(cfg.REST.Timeout),
		rest.WithUserAgent(cfg.REST.UserAgent),
	)

	if cfg.Gateway.URL == "" {
		gb, err := restClient.GatewayBot(ctx)
		if err != nil {
			return err
		}
		cfg.Gateway.URL = gb.URL
		logger.Info("discovered gateway",
			"url", gb.URL,
			"recommended_shards", gb.Shards,
			"session_starts_remaining", gb.SessionStartLimit.Remaining,
		)
	}

	dispatcher := dispatch.New(logger)
	logLifecycle(dispatcher, logger)

	mcfg := managerConfig(cfg.Gateway, creds.Token)
	mcfg.CheckpointTimeout = cfg.Checkpoint.Timeout

	if cfg.Checkpoint.Enabled {
		store, err := checkpoint.New(ctx, checkpoint.Config{
			Host:      cfg.Checkpoint.Host,
			Port:      cfg.Checkpoint.Port,
			Password:  cfg.Checkpoint.Password,
			DB:        cfg.Checkpoint.DB,
			KeyPrefix: cfg.Checkpoint.KeyPrefix,
			TTL:       cfg.Checkpoint.TTL,
			ShardID:   cfg.Gateway.ShardID,
		}, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		mcfg.Checkpoint = store
		logger.Info("session checkpoint enabled", "key", store.Key())
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Journal.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Journal.Database.Host,
			"port", cfg.Journal.Database.Port,
			"database", cfg.Journal.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		writer := journal.NewWriter(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			BufferSize:    cfg.Journal.BufferSize,
		}, pool, logger)
		if err := writer.EnsureSchema(ctx); err != nil {
			return err
		}
		dispatcher.SubscribeAll(writer.Handle)

		g.Go(func() error {
			return writer.Run(gctx, shutdownTimeout)
		})
	}

	manager := gateway.NewManager(mcfg, dispatcher, logger)
	g.Go(func() error {
		err := manager.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err == nil {
			// Disconnected; cancel the group so the journal stops too.
			return context.Canceled
		}
		return err
	})

	logger.Info("relaygate running",
		"gateway", cfg.Gateway.URL,
		"shard_id", cfg.Gateway.ShardID,
		"shard_count", cfg.Gateway.ShardCount,
		"journal", cfg.Journal.Enabled,
	)

	return g.Wait()
}

// managerConfig maps file configuration onto the gateway manager.
func managerConfig(gc config.GatewayConfig, token string) gateway.ManagerConfig {
	attempts := gc.MaxReconnectAttempts
	if attempts < 0 {
		attempts = 0
	}
	return gateway.ManagerConfig{
		URL:                  gc.URL,
		Version:              gc.Version,
		Encoding:             gc.Encoding,
		Token:                token,
		Intents:              gateway.Intents(gc.Intents),
		Compress:             gc.Compress,
		LargeThreshold:       gc.LargeThreshold,
		ShardID:              gc.ShardID,
		ShardCount:           gc.ShardCount,
		ReconnectBaseDelay:   gc.ReconnectBaseDelay,
		ReconnectMaxDelay:    gc.ReconnectMaxDelay,
		MaxReconnectAttempts: attempts,
		WriteTimeout:         gc.WriteTimeout,
		HandshakeTimeout:     gc.HandshakeTimeout,
		BufferSize:           gc.BufferSize,
		CommandLimit:         gc.CommandLimit,
		CommandWindow:        gc.CommandWindow,
	}
}

func newLogger(w io.Writer, lc config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(lc.Level)}
	if strings.EqualFold(lc.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// loadEnvFile loads path into the environment. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func logLifecycle(d *dispatch.Dispatcher, logger *slog.Logger) {
	dispatch.On(d, func(ctx context.Context, ev dispatch.Ready, env dispatch.Envelope) error {
		logger.Info("ready",
			"user", ev.User.Username,
			"guilds", len(ev.Guilds),
			"session_id", ev.SessionID,
		)
		return nil
	})
	dispatch.On(d, func(ctx context.Context, ev dispatch.Connected, env dispatch.Envelope) error {
		logger.Info("gateway connected", "session_id", ev.SessionID, "resumed", ev.Resumed)
		return nil
	})
	dispatch.On(d, func(ctx context.Context, ev dispatch.Disconnected, env dispatch.Envelope) error {
		logger.Info("gateway disconnected", "code", ev.Code, "error", ev.Err)
		return nil
	})
}

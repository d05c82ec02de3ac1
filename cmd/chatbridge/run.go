package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatbridge/internal/bridge"
	"chatbridge/internal/config"
	"chatbridge/internal/domain"
	"chatbridge/internal/gchat"
	"chatbridge/internal/settings"
	"chatbridge/internal/web"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bridge daemon",
		Long:  "Starts the Discord bot, the Google Chat poller and the health endpoint. Press Ctrl+C to stop.",
		RunE:  runBridge,
	}
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := settings.Open(ctx, cfg.General.DBPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	st := store.Snapshot()
	chatClient, err := gchat.NewClient(ctx,
		cfg.GoogleChat.ClientID,
		cfg.GoogleChat.ClientSecret,
		st.AuthJSON,
		persistToken(store),
		logger,
	)
	if err != nil {
		return err
	}

	sender := bridge.NewChatSender(chatClient, store, logger,
		cfg.Bridge.SendAttempts,
		time.Duration(cfg.Bridge.RetryDelayMS)*time.Millisecond,
	)

	discord, err := bridge.NewDiscord(bridge.DiscordConfig{
		Token:  cfg.Discord.BotToken,
		Store:  store,
		Chat:   chatClient,
		Sender: sender,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	poller := bridge.NewPoller(bridge.PollerConfig{
		Chat:          chatClient,
		Forward:       bridge.NewWebhookForwarder(discord.Session(), store, logger),
		Store:         store,
		Commands:      bridge.NewInterpreter(cfg.Bridge.CommandPrefix, store, logger),
		DownloadDir:   cfg.General.DownloadDir,
		PollInterval:  time.Duration(cfg.Bridge.PollIntervalMS) * time.Millisecond,
		ErrorInterval: time.Duration(cfg.Bridge.ErrorIntervalMS) * time.Millisecond,
		Ready:         discord.Ready(),
		Logger:        logger,
	})

	go func() {
		if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("poller stopped", "err", err)
		}
	}()

	if cfg.Web.Enabled {
		healthSrv := web.NewServer(web.ServerConfig{
			Host: cfg.Web.Host,
			Port: cfg.Web.Port,
			Status: func() web.Status {
				return web.Status{
					BotReady:   discord.Connected(),
					GuildCount: discord.GuildCount(),
					LatencyMS:  discord.Latency().Milliseconds(),
				}
			},
			Logger: logger,
		})
		go func() {
			if err := healthSrv.Start(ctx); err != nil {
				logger.Error("health server stopped", "err", err)
			}
		}()
	}

	logger.Info("bridge starting", "version", version)
	return discord.Start(ctx)
}

// persistToken writes refreshed OAuth tokens back into the settings store so
// the next start does not need a new login.
func persistToken(store *settings.Store) gchat.TokenUpdateFunc {
	return func(tok *oauth2.Token) error {
		raw, err := json.Marshal(tok)
		if err != nil {
			return err
		}
		return store.Update(context.Background(), func(s *domain.Settings) {
			s.AuthJSON = string(raw)
		})
	}
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := os.Stderr
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.Warn("cannot open log file, logging to stderr", "path", cfg.General.LogFile, "err", err)
		} else {
			out = f
		}
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chatbridge/internal/config"
	"chatbridge/internal/domain"
	"chatbridge/internal/gchat"
	"chatbridge/internal/settings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	// A .env in the working directory feeds the ${VAR} references in the
	// config file. Missing file is fine.
	godotenv.Load()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "chatbridge",
		Short:   "Bridge between a Google Chat space and a Discord channel",
		Long:    "chatbridge relays messages both ways between one Google Chat space and one Discord channel, with per-sender identity mapping and attachment forwarding.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.chatbridge/config.yaml)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(loginCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Sample()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			fmt.Println("Edit the config (or set DISCORD_TOKEN, GCHAT_CLIENT_ID and GCHAT_CLIENT_SECRET), then run `chatbridge login`.")
			return nil
		},
	}
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize access to Google Chat",
		Long:  "Prints the Google consent URL, then exchanges the pasted redirect URL for a token. The token is stored in the settings database and refreshed automatically afterwards.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := settings.Open(ctx, cfg.General.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			oc := gchat.OAuthConfig(cfg.GoogleChat.ClientID, cfg.GoogleChat.ClientSecret)
			authURL := oc.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)

			fmt.Println("Open this URL in your browser and authorize the app:")
			fmt.Println()
			fmt.Println("  " + authURL)
			fmt.Println()
			fmt.Print("Paste the full redirect URL here: ")

			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("read redirect URL: %w", err)
			}

			code, err := extractAuthCode(strings.TrimSpace(line))
			if err != nil {
				return err
			}

			tok, err := oc.Exchange(ctx, code)
			if err != nil {
				return fmt.Errorf("token exchange: %w", err)
			}

			raw, err := json.Marshal(tok)
			if err != nil {
				return fmt.Errorf("encode token: %w", err)
			}
			if err := store.Update(ctx, func(s *domain.Settings) {
				s.AuthJSON = string(raw)
			}); err != nil {
				return fmt.Errorf("store token: %w", err)
			}

			logger.Info("login successful", "expires", tok.Expiry)
			return nil
		},
	}
}

// extractAuthCode pulls the code parameter out of a pasted redirect URL.
// A bare code is accepted too.
func extractAuthCode(input string) (string, error) {
	if input == "" {
		return "", fmt.Errorf("empty redirect URL")
	}
	if !strings.Contains(input, "://") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect URL: %w", err)
	}
	code := u.Query().Get("code")
	if code == "" {
		return "", fmt.Errorf("redirect URL has no code parameter")
	}
	return code, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [config.json]",
		Short: "Import settings from a legacy config.json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx := context.Background()
			store, err := settings.Open(ctx, cfg.General.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.ImportJSON(ctx, args[0]); err != nil {
				return fmt.Errorf("import: %w", err)
			}
			logger.Info("migration complete", "from", args[0], "db", cfg.General.DBPath)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show current bindings and credentials state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				return err
			}
			logger.Info("config", "path", cfgPath, "loaded", true)

			ctx := context.Background()
			store, err := settings.Open(ctx, cfg.General.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			st := store.Snapshot()
			logger.Info("bindings",
				"space", orUnset(st.SpaceID),
				"channel", orUnset(st.ChannelID),
				"webhook_bound", st.Webhook.ID != "",
			)
			logger.Info("state",
				"watermark", orUnset(st.Watermark),
				"users", len(st.Users),
				"blocked", len(st.BlockedSenders),
				"google_authorized", st.AuthJSON != "",
			)
			return nil
		},
	}
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. bridge.commandPrefix)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := yaml.Marshal(val)
			fmt.Print(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. bridge.pollIntervalMs 250)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := yaml.Marshal(config.Sanitize(cfg))
			fmt.Print(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the bridge daemon.
type Config struct {
	General    GeneralConfig    `yaml:"general"`
	Discord    DiscordConfig    `yaml:"discord"`
	GoogleChat GoogleChatConfig `yaml:"googleChat"`
	Bridge     BridgeConfig     `yaml:"bridge"`
	Web        WebConfig        `yaml:"web"`
}

type GeneralConfig struct {
	LogLevel    string `yaml:"logLevel"`
	LogFile     string `yaml:"logFile,omitempty"` // optional log file path
	DBPath      string `yaml:"dbPath"`
	DownloadDir string `yaml:"downloadDir,omitempty"` // staging area for relayed attachments; empty = system temp
}

// DiscordConfig holds the bot credentials. The channel and webhook bindings
// live in the settings store, not here, because the slash commands change
// them at runtime.
type DiscordConfig struct {
	BotToken string `yaml:"botToken"`
}

// GoogleChatConfig holds the OAuth client identity. The refreshed token is
// persisted in the settings store.
type GoogleChatConfig struct {
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
}

type BridgeConfig struct {
	CommandPrefix   string `yaml:"commandPrefix"`
	PollIntervalMS  int    `yaml:"pollIntervalMs"`
	ErrorIntervalMS int    `yaml:"errorIntervalMs"`
	SendAttempts    int    `yaml:"sendAttempts"`
	RetryDelayMS    int    `yaml:"retryDelayMs"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// DefaultConfigDir returns the default config directory (~/.chatbridge).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatbridge"
	}
	return filepath.Join(home, ".chatbridge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.DBPath = ExpandPath(cfg.General.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.General.DownloadDir = ExpandPath(cfg.General.DownloadDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.DBPath == "" {
		errs = append(errs, "general.dbPath is required")
	}

	if cfg.Discord.BotToken == "" {
		errs = append(errs, "discord.botToken is required")
	} else if unresolvedPlaceholder(cfg.Discord.BotToken) {
		errs = append(errs, "discord.botToken holds an unresolved ${VAR} reference; set the environment variable")
	}
	if cfg.GoogleChat.ClientID == "" || cfg.GoogleChat.ClientSecret == "" {
		errs = append(errs, "googleChat.clientId and googleChat.clientSecret are required")
	} else if unresolvedPlaceholder(cfg.GoogleChat.ClientID) || unresolvedPlaceholder(cfg.GoogleChat.ClientSecret) {
		errs = append(errs, "googleChat credentials hold an unresolved ${VAR} reference; set the environment variables")
	}

	if cfg.Bridge.CommandPrefix == "" {
		errs = append(errs, "bridge.commandPrefix must not be empty")
	}
	if cfg.Bridge.PollIntervalMS < 1 {
		errs = append(errs, "bridge.pollIntervalMs must be >= 1")
	}
	if cfg.Bridge.ErrorIntervalMS < 1 {
		errs = append(errs, "bridge.errorIntervalMs must be >= 1")
	}
	if cfg.Bridge.SendAttempts < 1 || cfg.Bridge.SendAttempts > 20 {
		errs = append(errs, "bridge.sendAttempts must be between 1 and 20")
	}
	if cfg.Bridge.RetryDelayMS < 1 {
		errs = append(errs, "bridge.retryDelayMs must be >= 1")
	}

	if cfg.Web.Port < 0 || cfg.Web.Port > 65535 {
		errs = append(errs, "web.port must be between 0 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// unresolvedPlaceholder reports whether a credential still carries a ${VAR}
// reference that env expansion left in place because the variable was unset.
func unresolvedPlaceholder(s string) bool {
	return envVarPattern.MatchString(s)
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

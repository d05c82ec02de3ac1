package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
			DBPath:   "~/.chatbridge/bridge.db",
		},
		Discord:    DiscordConfig{},
		GoogleChat: GoogleChatConfig{},
		Bridge: BridgeConfig{
			CommandPrefix:   "!",
			PollIntervalMS:  500,
			ErrorIntervalMS: 200,
			SendAttempts:    5,
			RetryDelayMS:    1000,
		},
		Web: WebConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
		},
	}
}

// Sample returns the config written by `chatbridge init`: the defaults with
// credential fields pointing at environment variables, so the file itself
// never has to hold secrets.
func Sample() *Config {
	cfg := Defaults()
	cfg.Discord.BotToken = "${DISCORD_TOKEN}"
	cfg.GoogleChat.ClientID = "${GCHAT_CLIENT_ID}"
	cfg.GoogleChat.ClientSecret = "${GCHAT_CLIENT_SECRET}"
	return cfg
}

package config

import "path/filepath"

// Defaults returns a config with sensible defaults for a fresh install.
func Defaults() *Config {
	dataDir := filepath.Join(DefaultConfigDir(), "data")

	return &Config{
		General: GeneralConfig{
			DataDir:  dataDir,
			LogLevel: "info",
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled:   false,
				ParseMode: "Markdown",
			},
		},
		Providers: map[string]ProviderConfig{
			"anthropic": {
				Enabled: false,
				APIBase: "https://api.anthropic.com",
				APIKey:  "${ANTHROPIC_API_KEY}",
			},
			"openai": {
				Enabled: false,
				APIBase: "https://api.openai.com/v1",
				APIKey:  "${OPENAI_API_KEY}",
			},
		},
		Relay: RelayConfig{
			DebounceMs:    2000,
			BusBufferSize: 100,
		},
		Correction: CorrectionConfig{
			Enabled:      false,
			Model:        "anthropic/claude-3-5-haiku-20241022",
			MinLength:    30,
			MaxTokens:    1024,
			ContextTurns: 4,
			RetryDelayMs: 2000,
		},
		Memory: MemoryConfig{
			Enabled:                   true,
			DBPath:                    filepath.Join(dataDir, "relaybot.db"),
			MaxHistoryPerConversation: 200,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9090",
		},
	}
}

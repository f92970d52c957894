package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"relaybot/internal/bus"
	"relaybot/internal/channel"
	"relaybot/internal/config"
	"relaybot/internal/correct"
	"relaybot/internal/domain"
	"relaybot/internal/memory"
	"relaybot/internal/metrics"
	"relaybot/internal/persona"
	"relaybot/internal/provider"
	"relaybot/internal/relay"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "relaybot",
		Short: "Relaybot: live-status chat relay with a correction pass",
		Long:  "Relaybot relays an agent's streaming output into chat surfaces as a single edited status message, and optionally rewrites final replies through a language-correction model before delivery.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.relaybot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())
	root.AddCommand(daemonCmd())

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
		Short: "Initialize config and data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "dataDir", cfg.General.DataDir)
			return nil
		},
	}
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the relay gateway",
		Long:  "Starts all enabled chat transports and the relay service. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = buildLogger(cfg)

	if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agentBus := bus.New(cfg.Relay.BusBufferSize, logger)
	events := bus.NewEventBus(logger)

	var store domain.TranscriptStore
	if cfg.Memory.Enabled {
		sqlStore, err := memory.NewSQLiteStore(cfg.Memory.DBPath, cfg.Memory.MaxHistoryPerConversation, logger)
		if err != nil {
			return fmt.Errorf("transcript store: %w", err)
		}
		defer sqlStore.Close()
		store = sqlStore
	}

	registry := provider.NewRegistry(cfg, logger)

	var speaker, addressee, styleNotes string
	if cfg.Correction.PersonaDir != "" {
		profiles, err := persona.LoadFromDirectory(cfg.Correction.PersonaDir, logger)
		if err != nil {
			logger.Warn("persona load failed", "err", err)
		} else if p := persona.Find(profiles, cfg.Correction.Persona); p != nil {
			speaker, addressee, styleNotes = p.Speaker, p.Addressee, p.StyleNotes
		}
	}

	orchestrator := correct.NewOrchestrator(correct.Policy{
		Enabled:    cfg.Correction.Enabled,
		Model:      cfg.Correction.Model,
		MinLength:  cfg.Correction.MinLength,
		MaxTokens:  cfg.Correction.MaxTokens,
		RetryDelay: time.Duration(cfg.Correction.RetryDelayMs) * time.Millisecond,
	}, registry, correct.NewRecentOutboundRing(3), logger)
	orchestrator.Events = events

	transports, telegramCh, err := buildTransports(cfg, agentBus)
	if err != nil {
		return err
	}
	if len(transports) == 0 {
		return fmt.Errorf("no chat transport enabled")
	}

	if cfg.Metrics.Enabled {
		metrics.BindEventBus(events)
		go serveMetrics(ctx, cfg.Metrics.Listen)
	}

	svc := relay.NewService(relay.ServiceConfig{
		AgentBus:     agentBus,
		Events:       events,
		Transports:   transports,
		Orchestrator: orchestrator,
		Store:        store,
		Logger:       logger,
		Debounce:     time.Duration(cfg.Relay.DebounceMs) * time.Millisecond,
		ContextTurns: cfg.Correction.ContextTurns,
		Speaker:      speaker,
		Addressee:    addressee,
		StyleNotes:   styleNotes,
	})

	go svc.Run(ctx)

	if telegramCh != nil {
		go func() {
			if err := telegramCh.StartPolling(ctx, agentBus); err != nil {
				logger.Error("telegram polling error", "err", err)
			}
		}()
	}

	logger.Info("gateway started. Press Ctrl+C to stop.", "version", version)

	<-ctx.Done()
	logger.Info("shutting down gateway...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, t := range transports {
			if closer, ok := t.(interface{ Close() error }); ok {
				if err := closer.Close(); err != nil {
					logger.Warn("transport close failed", "transport", t.Name(), "err", err)
				}
			}
		}
		agentBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

// buildTransports connects every enabled chat transport. The Telegram
// transport is returned separately so the caller can start its update
// polling loop.
func buildTransports(cfg *config.Config, sink domain.InboundSink) (map[string]domain.ChatTransport, *channel.Telegram, error) {
	transports := make(map[string]domain.ChatTransport)
	var telegramCh *channel.Telegram

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		telegramCh = channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			ParseMode: cfg.Channels.Telegram.ParseMode,
			Logger:    logger,
		})
		if err := telegramCh.Connect(); err != nil {
			return nil, nil, fmt.Errorf("telegram: %w", err)
		}
		transports["telegram"] = telegramCh
	}

	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token != "" {
		discordCh := channel.NewDiscord(channel.DiscordConfig{
			Token:   cfg.Channels.Discord.Token,
			GuildID: cfg.Channels.Discord.GuildID,
			Logger:  logger,
		})
		if err := discordCh.Connect(sink); err != nil {
			return nil, nil, fmt.Errorf("discord: %w", err)
		}
		transports["discord"] = discordCh
	}

	if cfg.Channels.Slack.Enabled && cfg.Channels.Slack.BotToken != "" {
		slackCh := channel.NewSlack(channel.SlackConfig{
			BotToken: cfg.Channels.Slack.BotToken,
			Logger:   logger,
		})
		if err := slackCh.Connect(); err != nil {
			return nil, nil, fmt.Errorf("slack: %w", err)
		}
		transports["slack"] = slackCh
	}

	return transports, telegramCh, nil
}

func serveMetrics(ctx context.Context, listen string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Collector.Handler())
	srv := &http.Server{Addr: listen, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", "addr", listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", "err", err)
	}
}

func buildLogger(cfg *config.Config) *slog.Logger {
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

	var out io.Writer = os.Stderr
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Warn("cannot open log file, using stderr", "path", cfg.General.LogFile, "err", err)
		} else {
			out = io.MultiWriter(os.Stderr, f)
		}
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				return nil
			}
			logger.Info("config", "path", cfgPath, "loaded", true)
			logger.Info("channels",
				"telegram", cfg.Channels.Telegram.Enabled,
				"discord", cfg.Channels.Discord.Enabled,
				"slack", cfg.Channels.Slack.Enabled,
			)
			logger.Info("correction",
				"enabled", cfg.Correction.Enabled,
				"model", cfg.Correction.Model,
			)

			if cfg.Correction.Enabled {
				registry := provider.NewRegistry(cfg, logger)
				if _, err := registry.Resolve(cfg.Correction.Model); err != nil {
					logger.Warn("correction model unresolvable", "err", err)
				} else {
					logger.Info("correction model resolvable", "model", cfg.Correction.Model)
				}
			}
			return nil
		},
	}
}

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background daemon",
	}
	cmd.AddCommand(installDaemonCmd())
	cmd.AddCommand(uninstallDaemonCmd())
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. relay.debounceMs)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. relay.debounceMs 1500)",
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
			if err := config.Validate(cfg); err != nil {
				return err
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
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sanitized := config.Sanitize(cfg)
			data, _ := json.MarshalIndent(sanitized, "", "  ")
			fmt.Println(string(data))
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

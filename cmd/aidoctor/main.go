package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"aidoctor/internal/config"
	"aidoctor/internal/language"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = newLogger("info", os.Stderr)

	root := &cobra.Command{
		Use:   "aidoctor",
		Short: "AI Doctor: voice and vision medical consultations",
		Long: "AI Doctor listens to a spoken or typed description of symptoms, optionally looks at a photo,\n" +
			"and answers like a doctor would, in text and speech, in the patient's language.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.aidoctor/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(consultCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(languagesCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(serviceCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the text logger used everywhere. Unknown levels fall
// back to info.
func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadRuntimeConfig loads the config for commands that talk to the remote
// services. A missing file means defaults; credentials come from the
// environment when the file leaves them empty. The returned closer
// releases the log file, if any.
func loadRuntimeConfig() (*config.Config, func(), error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debug("config not found, using defaults", "path", cfgPath)
		cfg = config.Defaults()
		cfg.General.OutputDir = config.ExpandPath(cfg.General.OutputDir)
	} else if err != nil {
		return nil, nil, err
	}
	config.ApplyEnv(cfg)

	closer := func() {}
	var out io.Writer = os.Stderr
	if cfg.General.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		closer = func() { f.Close() }
	}
	logger = newLogger(cfg.General.LogLevel, out)
	slog.SetDefault(logger)
	return cfg, closer, nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			outDir := config.ExpandPath(cfg.General.OutputDir)
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "outputDir", outDir)
			fmt.Printf("Set %s in your environment (or vision.apiKey in the config) before consulting.\n", config.EnvGroqKey)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadRuntimeConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			set := func(s string) string {
				if s == "" {
					return "missing"
				}
				return "set"
			}
			fmt.Printf("AI Doctor v%s\n\n", version)
			fmt.Printf("  %-22s %s\n", "Config", resolveConfigPath())
			fmt.Printf("  %-22s %s\n", "Output dir", cfg.General.OutputDir)
			fmt.Printf("  %-22s %s\n", "Default language", cfg.General.DefaultLanguage)
			fmt.Printf("  %-22s %s (%s)\n", "Vision model", cfg.Vision.Model, set(cfg.Vision.APIKey))
			fmt.Printf("  %-22s %s (%s)\n", "Speech-to-text", cfg.STT.Model, set(cfg.STT.APIKey))
			fmt.Printf("  %-22s %v\n", "Translation", cfg.Translation.Enabled)
			premium := "disabled"
			if cfg.Speech.Premium.APIKey != "" {
				premium = "enabled, voice " + cfg.Speech.Premium.Voice
			}
			fmt.Printf("  %-22s %s\n", "Premium speech", premium)
			fmt.Printf("  %-22s %s\n", "Emotion detection", set(cfg.Emotion.APIKey))
			fmt.Printf("  %-22s %v (%s)\n", "Playback", cfg.Playback.Enabled, cfg.Playback.Command)
			fmt.Printf("  %-22s %v (%s:%d)\n", "HTTP API", cfg.Channels.Web.Enabled, cfg.Channels.Web.Host, cfg.Channels.Web.Port)
			fmt.Printf("  %-22s %v\n", "Telegram", cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "")
			return nil
		},
	}
}

func languagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List supported reply languages",
		Run: func(cmd *cobra.Command, args []string) {
			for _, l := range language.All() {
				note := ""
				if l.Substitute {
					note = " (spoken as Hindi)"
				}
				fmt.Printf("  %-10s %s%s\n", l.Code, l.Name, note)
			}
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. general.defaultLanguage)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
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
		Short: "Set a config value (e.g. general.defaultLanguage Hindi)",
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
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
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

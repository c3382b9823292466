package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"aidoctor/internal/audio"
	"aidoctor/internal/config"
	"aidoctor/internal/knowledge"

	"github.com/spf13/cobra"
)

// checkResult tallies the diagnostics.
type checkResult struct {
	passed, warned, failed int
}

func (r *checkResult) pass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
	r.passed++
}

func (r *checkResult) warn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
	r.warned++
}

func (r *checkResult) fail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
	r.failed++
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your AI Doctor installation",
		Long: `Verifies that the configuration, credentials, output directory, playback
command and ports are set up. Reports pass/warn/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("AI Doctor diagnostics v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var r checkResult

			cfg, err := config.Load(cfgPath)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				r.warn("Config file", fmt.Sprintf("not found at %s, using defaults (run 'aidoctor init')", cfgPath))
				cfg = config.Defaults()
				cfg.General.OutputDir = config.ExpandPath(cfg.General.OutputDir)
			case err != nil:
				r.fail("Config validation", err.Error())
				return summarize(r)
			default:
				r.pass("Config file", cfgPath)
			}
			config.ApplyEnv(cfg)

			if cfg.Vision.APIKey == "" {
				r.fail("Vision credential", "set "+config.EnvGroqKey+" or vision.apiKey")
			} else {
				r.pass("Vision credential", cfg.Vision.Model)
			}
			if cfg.STT.APIKey == "" && cfg.Vision.APIKey == "" {
				r.fail("Speech-to-text", "no credential")
			} else {
				r.pass("Speech-to-text", cfg.STT.Model)
			}
			if cfg.Speech.Premium.APIKey == "" {
				r.warn("Premium speech", config.EnvElevenLabsKey+" not set, using basic speech")
			} else {
				r.pass("Premium speech", "voice "+cfg.Speech.Premium.Voice)
			}
			if cfg.Emotion.APIKey != "" {
				r.pass("Emotion detection", cfg.Emotion.URL)
			}

			if err := checkWritableDir(cfg.General.OutputDir); err != nil {
				r.fail("Output dir", err.Error())
			} else {
				r.pass("Output dir", cfg.General.OutputDir)
			}

			if cfg.Knowledge.File != "" {
				if _, err := knowledge.LoadFile(cfg.Knowledge.File); err != nil {
					r.fail("Knowledge file", err.Error())
				} else {
					r.pass("Knowledge file", cfg.Knowledge.File)
				}
			}

			if cfg.Playback.Enabled {
				p := audio.NewCommandPlayer(audio.CommandPlayerConfig{Command: cfg.Playback.Command, Args: cfg.Playback.Args})
				if err := p.Available(); err != nil {
					r.warn("Playback", fmt.Sprintf("%s not found, replies will only be saved", cfg.Playback.Command))
				} else {
					r.pass("Playback", cfg.Playback.Command)
				}
			}

			if cfg.Channels.Web.Enabled {
				addr := net.JoinHostPort(cfg.Channels.Web.Host, strconv.Itoa(cfg.Channels.Web.Port))
				if err := checkPort(addr); err != nil {
					r.warn("HTTP API port", fmt.Sprintf("%s may be in use: %v", addr, err))
				} else {
					r.pass("HTTP API port", addr+" available")
				}
			}
			if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
				r.fail("Telegram", "enabled but "+config.EnvTelegramToken+" is not set")
			}

			if cfg.General.LogFile != "" {
				if err := checkWritableDir(filepath.Dir(cfg.General.LogFile)); err != nil {
					r.warn("Log file", err.Error())
				} else {
					r.pass("Log file", cfg.General.LogFile)
				}
			}

			return summarize(r)
		},
	}
}

func summarize(r checkResult) error {
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		fmt.Printf("\nPlease fix the failed checks before consulting.\n")
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	if r.warned > 0 {
		fmt.Printf("\nAI Doctor should work but consider fixing the warnings.\n")
	} else {
		fmt.Printf("\nAll checks passed! AI Doctor is ready.\n")
	}
	return nil
}

// checkWritableDir creates dir if needed and proves a file can be written.
func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".aidoctor-check-")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}

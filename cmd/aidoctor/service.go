package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

const (
	launchdLabel = "com.aidoctor.serve"
	systemdUnit  = "aidoctor.service"
)

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Run 'aidoctor serve' as a user service (launchd/systemd)",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install the user service",
		Long:  "Writes a launchd agent (macOS) or a systemd user unit (Linux) that starts 'aidoctor serve' at login.",
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			unit, err := newServiceUnit(runtime.GOOS, home, execPath, resolveConfigPath())
			if err != nil {
				return err
			}
			if err := unit.install(); err != nil {
				return err
			}
			fmt.Printf("Service installed: %s\n", unit.path)
			for _, hint := range unit.hints {
				fmt.Println(hint)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "uninstall",
		Short: "Remove the user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			unit, err := newServiceUnit(runtime.GOOS, home, "", "")
			if err != nil {
				return err
			}
			if err := os.Remove(unit.path); err != nil {
				return fmt.Errorf("remove service file: %w", err)
			}
			fmt.Printf("Service uninstalled: %s\n", unit.path)
			return nil
		},
	})
	return cmd
}

// serviceUnit is a rendered service definition for one platform.
type serviceUnit struct {
	path    string
	content string
	logDir  string // created on install when set
	hints   []string
}

func newServiceUnit(goos, home, execPath, cfgPath string) (*serviceUnit, error) {
	r := strings.NewReplacer(
		"{{EXEC}}", execPath,
		"{{CONFIG}}", cfgPath,
		"{{LABEL}}", launchdLabel,
		"{{LOG}}", filepath.Join(home, ".aidoctor", "logs", "aidoctor.log"),
		"{{ERR_LOG}}", filepath.Join(home, ".aidoctor", "logs", "aidoctor-error.log"),
	)
	switch goos {
	case "darwin":
		path := filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
		return &serviceUnit{
			path:    path,
			content: r.Replace(launchdTemplate),
			logDir:  filepath.Join(home, ".aidoctor", "logs"),
			hints: []string{
				"To start: launchctl load " + path,
				"To stop:  launchctl unload " + path,
			},
		}, nil
	case "linux":
		return &serviceUnit{
			path:    filepath.Join(home, ".config", "systemd", "user", systemdUnit),
			content: r.Replace(systemdTemplate),
			hints: []string{
				"To start:  systemctl --user start aidoctor",
				"To enable: systemctl --user enable aidoctor",
				"Credentials: systemctl --user edit aidoctor, then add Environment=GROQ_API_KEY=...",
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", goos)
	}
}

func (u *serviceUnit) install() error {
	if u.logDir != "" {
		if err := os.MkdirAll(u.logDir, 0o755); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(u.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(u.path, []byte(u.content), 0o644)
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{EXEC}}</string>
        <string>serve</string>
        <string>--config</string>
        <string>{{CONFIG}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{LOG}}</string>
    <key>StandardErrorPath</key>
    <string>{{ERR_LOG}}</string>
</dict>
</plist>`

const systemdTemplate = `[Unit]
Description=AI Doctor consultation server
After=network-online.target

[Service]
Type=simple
ExecStart={{EXEC}} serve --config {{CONFIG}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target`

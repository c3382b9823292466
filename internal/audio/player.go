// Package audio plays synthesized replies on the local machine.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Player plays an audio file and blocks until playback ends.
type Player interface {
	Play(ctx context.Context, path string) error
}

// CommandPlayer plays files through an external program such as ffplay
// or mpg123. The file path is appended as the last argument.
type CommandPlayer struct {
	command string
	args    []string
	logger  *slog.Logger
}

type CommandPlayerConfig struct {
	Command string   // default: ffplay
	Args    []string // default: -nodisp -autoexit -loglevel quiet
	Logger  *slog.Logger
}

func NewCommandPlayer(cfg CommandPlayerConfig) *CommandPlayer {
	if cfg.Command == "" {
		cfg.Command = "ffplay"
		if cfg.Args == nil {
			cfg.Args = []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CommandPlayer{
		command: cfg.Command,
		args:    cfg.Args,
		logger:  cfg.Logger,
	}
}

// Available reports whether the player binary can be found on PATH.
func (p *CommandPlayer) Available() error {
	_, err := exec.LookPath(p.command)
	return err
}

func (p *CommandPlayer) Play(ctx context.Context, path string) error {
	args := append(append([]string(nil), p.args...), path)
	cmd := exec.CommandContext(ctx, p.command, args...)

	var stderr strings.Builder
	cmd.Stderr = &stderr

	p.logger.Debug("playing audio", "path", path, "player", p.command)
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("play %s: %w: %s", path, err, msg)
		}
		return fmt.Errorf("play %s: %w", path, err)
	}
	return nil
}

// Nop discards playback requests. Servers use it since the listener is
// remote.
type Nop struct{}

func (Nop) Play(context.Context, string) error { return nil }

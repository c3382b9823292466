package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"aidoctor/internal/agent"
	"aidoctor/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger("warn", &buf)
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	assert.True(t, newLogger("debug", &buf).Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, newLogger("bogus", &buf).Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, newLogger("bogus", &buf).Enabled(context.Background(), slog.LevelDebug))
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Defaults()
	cfg.General.OutputDir = filepath.Join(t.TempDir(), "audio")
	return cfg
}

func TestBuildDoctor_RequiresVisionKey(t *testing.T) {
	_, err := buildDoctor(testConfig(t), nil, newLogger("error", &bytes.Buffer{}))
	require.ErrorIs(t, err, agent.ErrMissingCredential)
	assert.Contains(t, err.Error(), config.EnvGroqKey)
}

func TestBuildDoctor_WiresWithCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.Vision.APIKey = "gsk_test"
	cfg.Speech.Premium.APIKey = "el_test"
	cfg.Vision.RequestsPerMinute = 30

	doc, err := buildDoctor(cfg, nil, newLogger("error", &bytes.Buffer{}))
	require.NoError(t, err)
	assert.NotNil(t, doc)
	assert.DirExists(t, cfg.General.OutputDir)
}

func TestBuildDoctor_BadKnowledgeFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Vision.APIKey = "gsk_test"
	cfg.Knowledge.File = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := buildDoctor(cfg, nil, newLogger("error", &bytes.Buffer{}))
	assert.Error(t, err)
}

func TestLocalPlayer_DisabledOrMissing(t *testing.T) {
	cfg := testConfig(t)
	log := newLogger("error", &bytes.Buffer{})

	cfg.Playback.Enabled = false
	assert.Nil(t, localPlayer(cfg, log))

	cfg.Playback.Enabled = true
	cfg.Playback.Command = "definitely-not-a-real-player-binary"
	assert.Nil(t, localPlayer(cfg, log))
}

func TestNewServiceUnit(t *testing.T) {
	unit, err := newServiceUnit("linux", "/home/pat", "/usr/local/bin/aidoctor", "/home/pat/.aidoctor/config.json")
	require.NoError(t, err)
	assert.Equal(t, "/home/pat/.config/systemd/user/aidoctor.service", unit.path)
	assert.Contains(t, unit.content, "ExecStart=/usr/local/bin/aidoctor serve --config /home/pat/.aidoctor/config.json")

	unit, err = newServiceUnit("darwin", "/Users/pat", "/opt/aidoctor", "/Users/pat/.aidoctor/config.json")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(unit.path, "Library/LaunchAgents/com.aidoctor.serve.plist"))
	assert.Contains(t, unit.content, "<string>/opt/aidoctor</string>")
	assert.Contains(t, unit.content, "<string>serve</string>")
	assert.Contains(t, unit.content, "/Users/pat/.aidoctor/logs/aidoctor.log")
	assert.NotContains(t, unit.content, "{{")

	_, err = newServiceUnit("windows", "C:\\", "", "")
	assert.Error(t, err)
}

func TestServiceUnit_Install(t *testing.T) {
	home := t.TempDir()
	unit, err := newServiceUnit("darwin", home, "/opt/aidoctor", "cfg.json")
	require.NoError(t, err)
	require.NoError(t, unit.install())
	assert.FileExists(t, unit.path)
	assert.DirExists(t, filepath.Join(home, ".aidoctor", "logs"))
}

func TestCheckWritableDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	require.NoError(t, checkWritableDir(dir))
	assert.DirExists(t, dir)
}

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestValidate_LogLevel(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error"} {
		cfg := Defaults()
		cfg.General.LogLevel = lvl
		assert.NoError(t, Validate(cfg), "level %q", lvl)
	}
	cfg := Defaults()
	cfg.General.LogLevel = "verbose"
	assert.Error(t, Validate(cfg))
}

func TestValidate_DefaultLanguage(t *testing.T) {
	cfg := Defaults()
	cfg.General.DefaultLanguage = "Hindi"
	assert.NoError(t, Validate(cfg))

	cfg.General.DefaultLanguage = "xx-unknown"
	assert.Error(t, Validate(cfg))
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Web.Port = -1
	assert.Error(t, Validate(cfg))

	cfg.Channels.Web.Port = 70000
	assert.Error(t, Validate(cfg))
}

func TestValidate_SessionMaxTurns(t *testing.T) {
	cfg := Defaults()
	cfg.Session.MaxTurns = 0
	assert.Error(t, Validate(cfg))

	cfg.Session.MaxTurns = 1
	assert.NoError(t, Validate(cfg))
}

func TestValidate_SessionLimits(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 1000, cfg.Session.MaxSessions)
	assert.Equal(t, 60, cfg.Session.IdleMinutes)

	cfg.Session.MaxSessions = 0
	assert.Error(t, Validate(cfg))

	cfg = Defaults()
	cfg.Session.IdleMinutes = -1
	assert.Error(t, Validate(cfg))

	cfg.Session.IdleMinutes = 0
	assert.NoError(t, Validate(cfg))
}

func TestValidate_RequestTimeoutBoundary(t *testing.T) {
	cfg := Defaults()
	cfg.General.RequestTimeoutSeconds = 1
	assert.NoError(t, Validate(cfg))
	cfg.General.RequestTimeoutSeconds = 600
	assert.NoError(t, Validate(cfg))
	cfg.General.RequestTimeoutSeconds = 0
	assert.Error(t, Validate(cfg))
	cfg.General.RequestTimeoutSeconds = 601
	assert.Error(t, Validate(cfg))
}

func TestValidate_PremiumKeyNeedsVoice(t *testing.T) {
	cfg := Defaults()
	cfg.Speech.Premium.APIKey = "el-key"
	cfg.Speech.Premium.Voice = ""
	assert.Error(t, Validate(cfg))
}

func TestValidate_PlaybackNeedsCommand(t *testing.T) {
	cfg := Defaults()
	cfg.Playback.Command = ""
	assert.Error(t, Validate(cfg))

	cfg.Playback.Enabled = false
	assert.NoError(t, Validate(cfg))
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "loud"
	cfg.Session.MaxTurns = 0
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "general.logLevel")
	assert.Contains(t, err.Error(), "session.maxTurns")
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	original := Defaults()
	original.Vision.Model = "llama-3.2-90b-vision-preview"
	original.Session.MaxTurns = 12
	require.NoError(t, Save(path, original))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "llama-3.2-90b-vision-preview", loaded.Vision.Model)
	assert.Equal(t, 12, loaded.Session.MaxTurns)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"general":{"logLevel":"debug","outputDir":"/tmp/out","defaultLanguage":"en","requestTimeoutSeconds":30}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.General.LogLevel)
	assert.Equal(t, "whisper-large-v3", cfg.STT.Model)
	assert.Equal(t, 50, cfg.Session.MaxTurns)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ValidatesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"session":{"maxTurns":0}}`), 0o644))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.maxTurns")
}

func TestLoad_WithEnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_AIDOCTOR_OUT", "/tmp/aidoctor-out")
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"general":{"outputDir":"${TEST_AIDOCTOR_OUT}","logLevel":"${TEST_AIDOCTOR_LEVEL:-warn}","defaultLanguage":"en","requestTimeoutSeconds":60}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/aidoctor-out", cfg.General.OutputDir)
	assert.Equal(t, "warn", cfg.General.LogLevel)
}

// --- ApplyEnv ---

func TestApplyEnv_FillsEmptyCredentials(t *testing.T) {
	t.Setenv(EnvGroqKey, "gsk-env")
	t.Setenv(EnvElevenLabsKey, "el-env")
	t.Setenv(EnvEmotionKey, "")
	t.Setenv(EnvTelegramToken, "tg-env")

	cfg := Defaults()
	cfg.STT.APIKey = "gsk-file"
	ApplyEnv(cfg)

	assert.Equal(t, "gsk-file", cfg.STT.APIKey, "file value wins")
	assert.Equal(t, "gsk-env", cfg.Vision.APIKey)
	assert.Equal(t, "el-env", cfg.Speech.Premium.APIKey)
	assert.Empty(t, cfg.Emotion.APIKey)
	assert.Equal(t, "tg-env", cfg.Channels.Telegram.Token)
}

// --- Accessors ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()
	val, err := GetByPath(cfg, "stt.model")
	require.NoError(t, err)
	assert.Equal(t, "whisper-large-v3", val)

	val, err = GetByPath(cfg, "playback.args.0")
	require.NoError(t, err)
	assert.Equal(t, "-nodisp", val)
}

func TestGetByPath_InvalidPath(t *testing.T) {
	_, err := GetByPath(Defaults(), "stt.nonexistent")
	assert.Error(t, err)
}

func TestSetByPath_ValidPath(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, SetByPath(cfg, "vision.model", "llama-3.2-90b-vision-preview"))
	assert.Equal(t, "llama-3.2-90b-vision-preview", cfg.Vision.Model)
}

func TestSetByPath_BoolConversion(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, SetByPath(cfg, "doctor.preliminaryAnalysis", "false"))
	assert.False(t, cfg.Doctor.PreliminaryAnalysis)
}

func TestSetByPath_IntConversion(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, SetByPath(cfg, "session.maxTurns", "8"))
	assert.Equal(t, 8, cfg.Session.MaxTurns)
}

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Vision.APIKey = "gsk_1234567890abcdef"
	cfg.Speech.Premium.APIKey = "short"
	cfg.Channels.Telegram.Token = "123456:ABCDEFGHIJ"

	s := Sanitize(cfg)
	assert.Equal(t, "gsk_****cdef", s.Vision.APIKey)
	assert.Equal(t, "***", s.Speech.Premium.APIKey)
	assert.Equal(t, "1234****GHIJ", s.Channels.Telegram.Token)
	assert.Empty(t, s.Emotion.APIKey)

	// The original is untouched.
	assert.Equal(t, "gsk_1234567890abcdef", cfg.Vision.APIKey)
}

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	paths := ListPaths(Defaults())
	for _, p := range []string{"general.outputDir", "stt.model", "speech.premium.voice", "channels.web.port", "session.maxTurns"} {
		assert.Contains(t, paths, p)
	}
	for p := range paths {
		assert.NotEqual(t, "general", p, "intermediate maps must be flattened")
	}
}

func TestFlexStringList_MixedTypes(t *testing.T) {
	var f FlexStringList
	require.NoError(t, json.Unmarshal([]byte(`["123", 456]`), &f))
	assert.Equal(t, FlexStringList{"123", "456"}, f)
}

func TestFlexStringList_InvalidJSON(t *testing.T) {
	var f FlexStringList
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &f))
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_SimpleSubstitution(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-abc123")
	assert.Equal(t, `{"apiKey": "sk-abc123"}`, ExpandEnvVars(`{"apiKey": "${TEST_API_KEY}"}`))
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	assert.Equal(t, `{"port": "8080"}`, ExpandEnvVars(`{"port": "${NONEXISTENT_VAR_12345:-8080}"}`))
}

func TestExpandEnvVars_EmptyVarUsesDefault(t *testing.T) {
	t.Setenv("EMPTY_VAR", "")
	assert.Equal(t, `"fallback"`, ExpandEnvVars(`"${EMPTY_VAR:-fallback}"`))
}

func TestExpandEnvVars_UnsetVarNoDefault_KeepsOriginal(t *testing.T) {
	assert.Equal(t, `"${TOTALLY_UNSET_VAR_XYZ}"`, ExpandEnvVars(`"${TOTALLY_UNSET_VAR_XYZ}"`))
}

func TestExpandEnvVars_DollarSignWithoutBraces(t *testing.T) {
	assert.Equal(t, `"costs $5"`, ExpandEnvVars(`"costs $5"`))
}

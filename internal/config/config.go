package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"aidoctor/internal/language"
)

// Config is the root configuration for AI Doctor.
type Config struct {
	General     GeneralConfig     `json:"general"`
	STT         STTConfig         `json:"stt"`
	Vision      VisionConfig      `json:"vision"`
	Translation TranslationConfig `json:"translation"`
	Speech      SpeechConfig      `json:"speech"`
	Emotion     EmotionConfig     `json:"emotion"`
	Playback    PlaybackConfig    `json:"playback"`
	Session     SessionConfig     `json:"session"`
	Doctor      DoctorConfig      `json:"doctor"`
	Knowledge   KnowledgeConfig   `json:"knowledge"`
	Channels    ChannelsConfig    `json:"channels"`
	Metrics     MetricsConfig     `json:"metrics"`
}

type GeneralConfig struct {
	OutputDir             string `json:"outputDir"` // synthesized audio is written here
	LogLevel              string `json:"logLevel"`
	LogFile               string `json:"logFile,omitempty"`
	DefaultLanguage       string `json:"defaultLanguage"`
	RequestTimeoutSeconds int    `json:"requestTimeoutSeconds"`
}

// STTConfig configures the speech-to-text backend (Groq Whisper by default).
type STTConfig struct {
	APIBase  string `json:"apiBase"`
	APIKey   string `json:"apiKey,omitempty"`
	Model    string `json:"model"`
	Language string `json:"language"` // "auto" lets the model detect it
}

// VisionConfig configures the vision-capable language model.
type VisionConfig struct {
	APIBase   string `json:"apiBase"`
	APIKey    string `json:"apiKey,omitempty"`
	Model     string `json:"model"`
	MaxTokens int    `json:"maxTokens,omitempty"`
	// RequestsPerMinute throttles model calls across all sessions; 0 disables it.
	RequestsPerMinute float64 `json:"requestsPerMinute,omitempty"`
	Burst             int     `json:"burst,omitempty"`
}

type TranslationConfig struct {
	Enabled bool   `json:"enabled"`
	APIBase string `json:"apiBase"`
}

type SpeechConfig struct {
	Basic   BasicSpeechConfig   `json:"basic"`
	Premium PremiumSpeechConfig `json:"premium"`
}

// BasicSpeechConfig configures the keyless Google Translate TTS backend.
type BasicSpeechConfig struct {
	APIBase string `json:"apiBase"`
}

// PremiumSpeechConfig configures ElevenLabs. It is used only when an API
// key is present.
type PremiumSpeechConfig struct {
	APIBase string `json:"apiBase"`
	APIKey  string `json:"apiKey,omitempty"`
	Voice   string `json:"voice"`
	Model   string `json:"model"`
}

type EmotionConfig struct {
	URL    string `json:"url,omitempty"`
	APIKey string `json:"apiKey,omitempty"`
}

// PlaybackConfig controls local playback of synthesized replies.
type PlaybackConfig struct {
	Enabled bool     `json:"enabled"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

type SessionConfig struct {
	MaxTurns    int `json:"maxTurns"`
	MaxSessions int `json:"maxSessions"` // least recently used sessions are dropped beyond this
	IdleMinutes int `json:"idleMinutes"` // 0 keeps idle sessions until evicted
}

type DoctorConfig struct {
	// PreliminaryAnalysis runs a standalone image analysis before the
	// composed reply.
	PreliminaryAnalysis bool `json:"preliminaryAnalysis"`
}

type KnowledgeConfig struct {
	File string `json:"file,omitempty"` // optional YAML table overlay
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Web      WebConfig      `json:"web"`
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled"`
	Token     string         `json:"token,omitempty"`
	AllowFrom FlexStringList `json:"allowFrom"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

type WebConfig struct {
	Enabled     bool   `json:"enabled"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	MaxUploadMB int    `json:"maxUploadMB"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.aidoctor).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".aidoctor"
	}
	return filepath.Join(home, ".aidoctor")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
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
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.OutputDir = ExpandPath(cfg.General.OutputDir)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Knowledge.File = ExpandPath(cfg.Knowledge.File)

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
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Credential environment variables. ApplyEnv fills empty config fields
// from them.
const (
	EnvGroqKey       = "GROQ_API_KEY"
	EnvElevenLabsKey = "ELEVENLABS_API_KEY"
	EnvEmotionKey    = "EMOTION_API_KEY"
	EnvTelegramToken = "TELEGRAM_BOT_TOKEN"
)

// ApplyEnv fills credentials that are empty in cfg from the process
// environment. It is kept separate from Load so that `config set` never
// writes secrets from the environment back to disk.
func ApplyEnv(cfg *Config) {
	fill := func(dst *string, env string) {
		if *dst == "" {
			*dst = os.Getenv(env)
		}
	}
	fill(&cfg.Vision.APIKey, EnvGroqKey)
	fill(&cfg.STT.APIKey, EnvGroqKey)
	fill(&cfg.Speech.Premium.APIKey, EnvElevenLabsKey)
	fill(&cfg.Emotion.APIKey, EnvEmotionKey)
	fill(&cfg.Channels.Telegram.Token, EnvTelegramToken)
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.OutputDir == "" {
		errs = append(errs, "general.outputDir is required")
	}
	if _, ok := language.Lookup(cfg.General.DefaultLanguage); !ok {
		errs = append(errs, fmt.Sprintf("general.defaultLanguage: unknown language %q", cfg.General.DefaultLanguage))
	}
	if cfg.General.RequestTimeoutSeconds < 1 || cfg.General.RequestTimeoutSeconds > 600 {
		errs = append(errs, "general.requestTimeoutSeconds must be between 1 and 600")
	}

	if cfg.STT.APIBase == "" {
		errs = append(errs, "stt.apiBase is required")
	}
	if cfg.STT.Model == "" {
		errs = append(errs, "stt.model is required")
	}
	if cfg.Vision.APIBase == "" {
		errs = append(errs, "vision.apiBase is required")
	}
	if cfg.Vision.Model == "" {
		errs = append(errs, "vision.model is required")
	}
	if cfg.Vision.RequestsPerMinute < 0 {
		errs = append(errs, "vision.requestsPerMinute must be >= 0")
	}
	if cfg.Translation.Enabled && cfg.Translation.APIBase == "" {
		errs = append(errs, "translation.apiBase is required when translation is enabled")
	}
	if cfg.Speech.Basic.APIBase == "" {
		errs = append(errs, "speech.basic.apiBase is required")
	}
	if cfg.Speech.Premium.APIKey != "" && cfg.Speech.Premium.Voice == "" {
		errs = append(errs, "speech.premium.voice is required when an API key is set")
	}
	if cfg.Emotion.APIKey != "" && cfg.Emotion.URL == "" {
		errs = append(errs, "emotion.url is required when an API key is set")
	}
	if cfg.Playback.Enabled && cfg.Playback.Command == "" {
		errs = append(errs, "playback.command is required when playback is enabled")
	}

	if cfg.Session.MaxTurns < 1 {
		errs = append(errs, "session.maxTurns must be >= 1")
	}
	if cfg.Session.MaxSessions < 1 {
		errs = append(errs, "session.maxSessions must be >= 1")
	}
	if cfg.Session.IdleMinutes < 0 {
		errs = append(errs, "session.idleMinutes must be >= 0")
	}

	if cfg.Channels.Web.Port < 0 || cfg.Channels.Web.Port > 65535 {
		errs = append(errs, "channels.web.port must be between 0 and 65535")
	}
	if cfg.Channels.Web.MaxUploadMB < 1 {
		errs = append(errs, "channels.web.maxUploadMB must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
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

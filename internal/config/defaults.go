package config

// ElevenLabs voice ID for "Aria".
const defaultPremiumVoice = "9BWtsMINqrJLrRacOk9x"

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			OutputDir:             "~/.aidoctor/audio",
			LogLevel:              "info",
			DefaultLanguage:       "en",
			RequestTimeoutSeconds: 120,
		},
		STT: STTConfig{
			APIBase:  "https://api.groq.com/openai/v1",
			Model:    "whisper-large-v3",
			Language: "auto",
		},
		Vision: VisionConfig{
			APIBase: "https://api.groq.com/openai/v1",
			Model:   "llama-3.2-11b-vision-preview",
		},
		Translation: TranslationConfig{
			Enabled: true,
			APIBase: "https://translate.googleapis.com",
		},
		Speech: SpeechConfig{
			Basic: BasicSpeechConfig{
				APIBase: "https://translate.google.com",
			},
			Premium: PremiumSpeechConfig{
				APIBase: "https://api.elevenlabs.io/v1",
				Voice:   defaultPremiumVoice,
				Model:   "eleven_turbo_v2",
			},
		},
		Playback: PlaybackConfig{
			Enabled: true,
			Command: "ffplay",
			Args:    []string{"-nodisp", "-autoexit", "-loglevel", "quiet"},
		},
		Session: SessionConfig{
			MaxTurns:    50,
			MaxSessions: 1000,
			IdleMinutes: 60,
		},
		Doctor: DoctorConfig{
			PreliminaryAnalysis: true,
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled: false,
			},
			Web: WebConfig{
				Enabled:     true,
				Host:        "127.0.0.1",
				Port:        8080,
				MaxUploadMB: 20,
			},
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

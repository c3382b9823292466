package provider

import (
	"log/slog"
	"net/http"
	"time"

	"aidoctor/internal/audio"
	"aidoctor/internal/config"
	"aidoctor/internal/domain"
	"aidoctor/internal/language"
)

// Factory builds the remote service adapters from config. All adapters
// share one pooled HTTP client.
type Factory struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpClient *http.Client
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := time.Duration(cfg.General.RequestTimeoutSeconds) * time.Second
	return &Factory{
		cfg:        cfg,
		logger:     logger,
		httpClient: SharedHTTPClient(timeout),
	}
}

// Vision returns the vision model adapter, or nil without a credential.
func (f *Factory) Vision() domain.VisionModel {
	vc := f.cfg.Vision
	if vc.APIKey == "" {
		return nil
	}
	return NewVision(VisionConfig{
		APIBase:    vc.APIBase,
		APIKey:     vc.APIKey,
		Model:      vc.Model,
		MaxTokens:  vc.MaxTokens,
		HTTPClient: f.httpClient,
		Logger:     f.logger,
	})
}

// Transcriber returns the speech-to-text adapter, falling back to the
// vision credential since both default to Groq. It returns nil when
// neither credential is set.
func (f *Factory) Transcriber() domain.Transcriber {
	sc := f.cfg.STT
	key := sc.APIKey
	if key == "" {
		key = f.cfg.Vision.APIKey
	}
	if key == "" {
		return nil
	}
	return NewWhisper(WhisperConfig{
		APIBase:    sc.APIBase,
		APIKey:     key,
		Model:      sc.Model,
		Language:   sc.Language,
		HTTPClient: f.httpClient,
		Logger:     f.logger,
	})
}

// Translator returns nil when translation is disabled.
func (f *Factory) Translator() domain.Translator {
	if !f.cfg.Translation.Enabled {
		return nil
	}
	return NewTranslator(TranslatorConfig{
		APIBase:    f.cfg.Translation.APIBase,
		HTTPClient: f.httpClient,
		Logger:     f.logger,
	})
}

// Emotion returns nil when no emotion service is configured.
func (f *Factory) Emotion() domain.EmotionDetector {
	e := NewEmotionClient(EmotionConfig{
		URL:        f.cfg.Emotion.URL,
		APIKey:     f.cfg.Emotion.APIKey,
		HTTPClient: f.httpClient,
		Logger:     f.logger,
	})
	if !e.Enabled() {
		return nil
	}
	return e
}

// Speech returns the synthesis router. Premium synthesis is included only
// when its credential is set. player may be nil.
func (f *Factory) Speech(player audio.Player) *SpeechRouter {
	outDir := f.cfg.General.OutputDir
	rc := SpeechRouterConfig{
		Basic: NewBasicTTS(BasicTTSConfig{
			APIBase:    f.cfg.Speech.Basic.APIBase,
			OutputDir:  outDir,
			Player:     player,
			HTTPClient: f.httpClient,
			Logger:     f.logger,
		}),
		DefaultLanguage: language.Resolve(f.cfg.General.DefaultLanguage),
		Logger:          f.logger,
	}
	if pc := f.cfg.Speech.Premium; pc.APIKey != "" {
		rc.Premium = NewPremiumTTS(PremiumTTSConfig{
			APIBase:    pc.APIBase,
			APIKey:     pc.APIKey,
			Voice:      pc.Voice,
			Model:      pc.Model,
			OutputDir:  outDir,
			Player:     player,
			HTTPClient: f.httpClient,
			Logger:     f.logger,
		})
	}
	return NewSpeechRouter(rc)
}

package provider

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"aidoctor/internal/domain"
	"aidoctor/internal/media"

	openai "github.com/sashabaranov/go-openai"
)

// WhisperConfig configures the Whisper speech-to-text provider.
type WhisperConfig struct {
	APIBase    string // e.g., "https://api.groq.com/openai/v1"
	APIKey     string
	Model      string // e.g., "whisper-large-v3"
	Language   string // ISO-639-1 code, or "auto"/empty to let the model detect it
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Whisper transcribes audio files through an OpenAI-compatible
// transcription endpoint.
type Whisper struct {
	client   *openai.Client
	model    string
	language string
	logger   *slog.Logger
}

// NewWhisper creates a new Whisper transcription provider.
func NewWhisper(cfg WhisperConfig) *Whisper {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.groq.com/openai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-large-v3"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.APIBase, "/")
	oc.HTTPClient = clientOrDefault(cfg.HTTPClient, 120*time.Second)

	lang := cfg.Language
	if strings.EqualFold(lang, "auto") {
		lang = ""
	}
	return &Whisper{
		client:   openai.NewClientWithConfig(oc),
		model:    cfg.Model,
		language: lang,
		logger:   cfg.Logger,
	}
}

// Transcribe returns the trimmed transcript of the file at audioPath, or
// one of the transcription sentinel strings on failure.
func (w *Whisper) Transcribe(ctx context.Context, audioPath string) string {
	if !media.Exists(audioPath) {
		w.logger.Error("audio file not found", "path", audioPath)
		return domain.MsgAudioNotFound
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: audioPath,
		Language: w.language,
	})
	if err != nil {
		w.logger.Error("transcription failed", "path", audioPath, "model", w.model, "err", err)
		return domain.MsgTranscriptionFailed
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		w.logger.Warn("transcription returned no text", "path", audioPath)
		return domain.MsgNoTranscription
	}

	w.logger.Info("transcription complete", "text_len", len(text), "model", w.model)
	return text
}

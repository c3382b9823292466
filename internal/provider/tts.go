package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"aidoctor/internal/audio"
	"aidoctor/internal/domain"

	"github.com/google/uuid"
)

// Google Translate TTS rejects queries longer than this many characters.
const basicChunkLimit = 100

var errEmptyText = errors.New("nothing to synthesize")

// BasicTTSConfig configures the keyless Google Translate speech backend.
type BasicTTSConfig struct {
	APIBase    string // default: https://translate.google.com
	OutputDir  string
	Player     audio.Player // nil disables playback
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// BasicTTS synthesizes speech in any supported language via Google
// Translate TTS. Text is sent in short chunks whose MP3 frames are
// concatenated into one file.
type BasicTTS struct {
	apiBase   string
	outputDir string
	player    audio.Player
	client    *http.Client
	logger    *slog.Logger
}

func NewBasicTTS(cfg BasicTTSConfig) *BasicTTS {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://translate.google.com"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &BasicTTS{
		apiBase:   strings.TrimRight(cfg.APIBase, "/"),
		outputDir: cfg.OutputDir,
		player:    cfg.Player,
		client:    clientOrDefault(cfg.HTTPClient, 60*time.Second),
		logger:    cfg.Logger,
	}
}

func (b *BasicTTS) Synthesize(ctx context.Context, text, langCode string) domain.Speech {
	chunks := splitText(text, basicChunkLimit)
	if len(chunks) == 0 {
		return domain.SpeechFailed(domain.SpeechBasic, errEmptyText)
	}
	if langCode == "" {
		langCode = "en"
	}

	path, f, err := createOutput(b.outputDir)
	if err != nil {
		return domain.SpeechFailed(domain.SpeechBasic, err)
	}
	for i, chunk := range chunks {
		if err := b.fetchChunk(ctx, f, chunk, langCode, i, len(chunks)); err != nil {
			discard(f, path)
			b.logger.Error("basic synthesis failed", "lang", langCode, "chunk", i, "err", err)
			return domain.SpeechFailed(domain.SpeechBasic, err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return domain.SpeechFailed(domain.SpeechBasic, fmt.Errorf("close audio file: %w", err))
	}

	b.logger.Info("speech synthesized", "backend", domain.SpeechBasic, "lang", langCode, "path", path, "chunks", len(chunks))
	play(ctx, b.player, path, b.logger)
	return domain.Speech{Path: path, Backend: domain.SpeechBasic}
}

func (b *BasicTTS) fetchChunk(ctx context.Context, w io.Writer, chunk, lang string, idx, total int) error {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", lang)
	q.Set("q", chunk)
	q.Set("idx", strconv.Itoa(idx))
	q.Set("total", strconv.Itoa(total))
	q.Set("textlen", strconv.Itoa(utf8.RuneCountInString(chunk)))

	endpoint := b.apiBase + "/translate_tts?" + q.Encode()
	resp, err := doWithRetry(ctx, b.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "Mozilla/5.0")
		return req, nil
	}, b.logger)
	if err != nil {
		return fmt.Errorf("TTS API request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("TTS API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("TTS API returned no audio")
	}
	return nil
}

// PremiumTTSConfig configures the ElevenLabs speech backend.
type PremiumTTSConfig struct {
	APIBase    string // default: https://api.elevenlabs.io/v1
	APIKey     string
	Voice      string // voice ID
	Model      string // default: eleven_turbo_v2
	OutputDir  string
	Player     audio.Player
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// PremiumTTS streams ElevenLabs speech straight to disk.
type PremiumTTS struct {
	apiBase   string
	apiKey    string
	voice     string
	model     string
	outputDir string
	player    audio.Player
	client    *http.Client
	logger    *slog.Logger
}

func NewPremiumTTS(cfg PremiumTTSConfig) *PremiumTTS {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.elevenlabs.io/v1"
	}
	if cfg.Voice == "" {
		cfg.Voice = "9BWtsMINqrJLrRacOk9x"
	}
	if cfg.Model == "" {
		cfg.Model = "eleven_turbo_v2"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &PremiumTTS{
		apiBase:   strings.TrimRight(cfg.APIBase, "/"),
		apiKey:    cfg.APIKey,
		voice:     cfg.Voice,
		model:     cfg.Model,
		outputDir: cfg.OutputDir,
		player:    cfg.Player,
		client:    clientOrDefault(cfg.HTTPClient, 120*time.Second),
		logger:    cfg.Logger,
	}
}

// Synthesize ignores langCode: the multilingual model infers it from the
// text.
func (p *PremiumTTS) Synthesize(ctx context.Context, text, langCode string) domain.Speech {
	if strings.TrimSpace(text) == "" {
		return domain.SpeechFailed(domain.SpeechPremium, errEmptyText)
	}

	path, err := p.stream(ctx, text)
	if err != nil {
		p.logger.Error("premium synthesis failed", "voice", p.voice, "err", err)
		return domain.SpeechFailed(domain.SpeechPremium, err)
	}

	p.logger.Info("speech synthesized", "backend", domain.SpeechPremium, "path", path)
	play(ctx, p.player, path, p.logger)
	return domain.Speech{Path: path, Backend: domain.SpeechPremium}
}

func (p *PremiumTTS) stream(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"text":     text,
		"model_id": p.model,
	})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s/stream", p.apiBase, url.PathEscape(p.voice))
	resp, err := doWithRetry(ctx, p.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("xi-api-key", p.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/mpeg")
		return req, nil
	}, p.logger)
	if err != nil {
		return "", fmt.Errorf("ElevenLabs API request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ElevenLabs API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	path, f, err := createOutput(p.outputDir)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, resp.Body)
	if err != nil {
		discard(f, path)
		return "", fmt.Errorf("stream audio: %w", err)
	}
	if n == 0 {
		discard(f, path)
		return "", fmt.Errorf("ElevenLabs returned an empty stream")
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close audio file: %w", err)
	}
	return path, nil
}

// SpeechRouterConfig selects between the two synthesis backends.
type SpeechRouterConfig struct {
	Basic           domain.Synthesizer
	Premium         domain.Synthesizer // nil when no premium credential is configured
	DefaultLanguage string             // language code served by Premium
	Logger          *slog.Logger
}

// SpeechRouter sends default-language replies to the premium backend when
// available and everything else to the basic backend.
type SpeechRouter struct {
	basic       domain.Synthesizer
	premium     domain.Synthesizer
	defaultLang string
	logger      *slog.Logger
}

func NewSpeechRouter(cfg SpeechRouterConfig) *SpeechRouter {
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SpeechRouter{
		basic:       cfg.Basic,
		premium:     cfg.Premium,
		defaultLang: cfg.DefaultLanguage,
		logger:      cfg.Logger,
	}
}

func (r *SpeechRouter) Synthesize(ctx context.Context, text, langCode string) domain.Speech {
	if langCode == "" {
		langCode = r.defaultLang
	}
	if langCode == r.defaultLang && r.premium != nil {
		return r.premium.Synthesize(ctx, text, langCode)
	}
	if r.basic == nil {
		return domain.SpeechFailed(domain.SpeechBasic, errors.New("no speech backend configured"))
	}
	return r.basic.Synthesize(ctx, text, langCode)
}

// splitText breaks text into chunks of at most limit runes, cutting on
// whitespace. Words longer than limit are split mid-word.
func splitText(text string, limit int) []string {
	var chunks []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	for _, word := range strings.Fields(text) {
		runes := []rune(word)
		for len(runes) > limit {
			flush()
			chunks = append(chunks, string(runes[:limit]))
			runes = runes[limit:]
		}
		if len(runes) == 0 {
			continue
		}
		need := len(runes)
		if curLen > 0 {
			need++
		}
		if curLen+need > limit {
			flush()
			need = len(runes)
		}
		if curLen > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(string(runes))
		curLen += need
	}
	flush()
	return chunks
}

// createOutput opens a new uniquely named MP3 file in dir.
func createOutput(dir string) (string, *os.File, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create output dir: %w", err)
	}
	name := fmt.Sprintf("reply_%d_%s.mp3", time.Now().Unix(), uuid.NewString()[:8])
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("create audio file: %w", err)
	}
	return path, f, nil
}

func discard(f *os.File, path string) {
	f.Close()
	os.Remove(path)
}

// play blocks until playback finishes. Playback problems never fail the
// synthesis.
func play(ctx context.Context, p audio.Player, path string, logger *slog.Logger) {
	if p == nil {
		return
	}
	if err := p.Play(ctx, path); err != nil {
		logger.Warn("audio playback failed", "path", path, "err", err)
	}
}

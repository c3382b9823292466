package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"aidoctor/internal/domain"
	"aidoctor/internal/knowledge"
	"aidoctor/internal/language"
	"aidoctor/internal/media"
	"aidoctor/internal/metrics"
)

// ErrMissingCredential is returned at startup when a required API key is
// absent.
var ErrMissingCredential = errors.New("missing credential")

// DoctorConfig wires the consultation pipeline to its collaborators. Only
// Vision is required; a nil Transcriber means speech-to-text has no
// credential, and the other nil collaborators disable their stage.
type DoctorConfig struct {
	Vision      domain.VisionModel
	Transcriber domain.Transcriber
	Emotion     domain.EmotionDetector
	Translator  domain.Translator
	Speech      domain.Synthesizer
	Knowledge   *knowledge.Engine
	Limiter     *RateLimiter // throttles vision calls; nil means unlimited

	DefaultLanguage     string // language name or code; default "en"
	PreliminaryAnalysis bool   // run a standalone image analysis before composing the reply
	Logger              *slog.Logger
}

// Doctor runs consultations. It holds no per-conversation state: callers
// pass the session Memory into every call.
type Doctor struct {
	vision      domain.VisionModel
	transcriber domain.Transcriber
	emotion     domain.EmotionDetector
	translator  domain.Translator
	speech      domain.Synthesizer
	kb          *knowledge.Engine
	limiter     *RateLimiter
	defaultLang string
	preliminary bool
	logger      *slog.Logger
}

func NewDoctor(cfg DoctorConfig) (*Doctor, error) {
	if cfg.Vision == nil {
		return nil, fmt.Errorf("vision model: %w", ErrMissingCredential)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Knowledge == nil {
		kb, err := knowledge.NewEngine(knowledge.EngineConfig{Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
		cfg.Knowledge = kb
	}
	return &Doctor{
		vision:      cfg.Vision,
		transcriber: cfg.Transcriber,
		emotion:     cfg.Emotion,
		translator:  cfg.Translator,
		speech:      cfg.Speech,
		kb:          cfg.Knowledge,
		limiter:     cfg.Limiter,
		defaultLang: language.Resolve(cfg.DefaultLanguage),
		preliminary: cfg.PreliminaryAnalysis,
		logger:      cfg.Logger,
	}, nil
}

// Consult runs one request through the pipeline. It never returns an
// error: adapter failures surface as sentinel strings in the reply or as
// an empty audio path.
func (d *Doctor) Consult(ctx context.Context, mem *Memory, req domain.Request) domain.Response {
	if req.Empty() {
		metrics.RejectedTotal.Inc()
		return domain.Response{Input: domain.MsgNoInput, Reply: domain.MsgNoDoctorResponse}
	}

	start := time.Now()
	metrics.ConsultationsTotal.Inc()
	metrics.ActiveConsultations.Inc()
	defer func() {
		metrics.ActiveConsultations.Dec()
		metrics.ConsultLatency.Observe(time.Since(start).Seconds())
	}()

	langCode := d.defaultLang
	if req.Language != "" {
		l, ok := language.Parse(req.Language)
		if ok {
			langCode = l.Code
		} else {
			d.logger.Warn("unrecognized reply language, using default",
				"language", req.Language, "default", d.defaultLang)
		}
	}

	transcript, emotion := "", domain.EmotionNeutral
	if media.Exists(req.AudioPath) {
		if d.transcriber == nil {
			d.logger.Error("speech-to-text credential missing")
			return domain.Response{Input: domain.MsgMissingSTTKey, Reply: domain.MsgNoDoctorResponse}
		}
		transcript = d.transcribe(ctx, req.AudioPath)
		emotion = d.detectEmotion(ctx, req.AudioPath)
	} else if req.AudioPath != "" {
		d.logger.Warn("audio file not found, ignoring", "path", req.AudioPath)
	}

	effective := strings.TrimSpace(req.Text)
	if effective == "" {
		effective = transcript
	}
	mem.Append(domain.RoleUser, effective)

	imageURI := d.encodeImage(req.ImagePath)
	var analysis string
	if imageURI != "" && d.preliminary {
		analysis = d.complete(ctx, personaPrompt, imageURI, nil)
		d.logger.Info("preliminary image analysis", "len", len(analysis))
	}

	if followUp := d.kb.FollowUp(effective); followUp != "" {
		mem.Append(domain.RoleSystem, followUp)
	}
	if fact := d.kb.Fact(effective); fact != "" {
		mem.Append(domain.RoleSystem, fact)
	}

	reply := d.complete(ctx, composeQuery(effective), imageURI, mem.Turns())
	mem.Append(domain.RoleAssistant, reply)

	if langCode != d.defaultLang {
		reply = d.translate(ctx, reply, langCode)
	}

	speech := d.synthesize(ctx, reply, langCode)

	input := effective
	if input == "" {
		input = domain.MsgNoTextInput
	}
	d.logger.Info("consultation complete",
		"lang", langCode,
		"emotion", emotion,
		"image", imageURI != "",
		"audio", speech.Path != "",
		"duration", time.Since(start),
	)
	return domain.Response{
		Input:         input,
		Reply:         reply,
		AudioPath:     speech.Path,
		Emotion:       emotion,
		ImageAnalysis: analysis,
		Language:      langCode,
		Speech:        speech,
	}
}

func (d *Doctor) transcribe(ctx context.Context, path string) string {
	defer observeStage("stt", time.Now())
	text := d.transcriber.Transcribe(ctx, path)
	if isSentinel(text) {
		metrics.StageFailures("stt").Inc()
	}
	return text
}

func (d *Doctor) detectEmotion(ctx context.Context, path string) string {
	if d.emotion == nil {
		return domain.EmotionNeutral
	}
	if label := d.emotion.Detect(ctx, path); label != "" {
		return label
	}
	return domain.EmotionNeutral
}

// encodeImage returns the image as a data URI, or "" when it is absent or
// unreadable.
func (d *Doctor) encodeImage(path string) string {
	if !media.Exists(path) {
		if path != "" {
			d.logger.Warn("image file not found, ignoring", "path", path)
		}
		return ""
	}
	uri, err := media.DataURI(path)
	if err != nil {
		d.logger.Warn("cannot encode image, ignoring", "path", path, "err", err)
		return ""
	}
	return uri
}

func (d *Doctor) complete(ctx context.Context, query, imageURI string, history []domain.Turn) string {
	defer observeStage("vision", time.Now())
	if err := d.limiter.Wait(ctx); err != nil {
		metrics.StageFailures("vision").Inc()
		d.logger.Warn("vision call abandoned while throttled", "err", err)
		return domain.MsgNoModelResponse
	}
	reply := d.vision.Complete(ctx, query, imageURI, history)
	if isSentinel(reply) {
		metrics.StageFailures("vision").Inc()
	}
	return reply
}

func (d *Doctor) translate(ctx context.Context, text, langCode string) string {
	if d.translator == nil {
		return text
	}
	defer observeStage("translate", time.Now())
	out, err := d.translator.Translate(ctx, text, langCode)
	if err != nil {
		metrics.StageFailures("translate").Inc()
		d.logger.Warn("translation failed, replying untranslated", "lang", langCode, "err", err)
		return text
	}
	return out
}

// synthesize never panics past this point; a crashing backend is treated
// like any other synthesis failure.
func (d *Doctor) synthesize(ctx context.Context, text, langCode string) (s domain.Speech) {
	if d.speech == nil {
		return domain.SpeechFailed(domain.SpeechBasic, errors.New("speech synthesis disabled"))
	}
	defer observeStage("speech", time.Now())
	defer func() {
		if r := recover(); r != nil {
			s = domain.SpeechFailed(s.Backend, fmt.Errorf("synthesis panic: %v", r))
		}
		if !s.OK() {
			metrics.StageFailures("speech").Inc()
			d.logger.Warn("speech synthesis failed, replying without audio", "backend", s.Backend, "err", s.Err)
			s.Path = ""
		} else {
			metrics.SpeechFilesTotal.Inc()
		}
	}()
	return d.speech.Synthesize(ctx, text, langCode)
}

func observeStage(stage string, start time.Time) {
	metrics.StageLatency(stage).Observe(time.Since(start).Seconds())
}

func isSentinel(s string) bool {
	return strings.HasPrefix(s, "Error")
}

// Package knowledge provides the keyword-driven symptom follow-ups and
// canned medical facts used to enrich a consultation.
package knowledge

import (
	"log/slog"
	"strings"
)

const (
	followUpFallback = "Can you describe your symptoms in more detail?"
	factFallback     = "I recommend consulting a healthcare professional for more detailed information."
)

// Entry pairs a lower-case keyword with the text it selects.
type Entry struct {
	Keyword string `yaml:"keyword"`
	Text    string `yaml:"text"`
}

// Table is an ordered keyword table. Lookups scan it front to back.
type Table []Entry

// Match returns the first entry whose keyword occurs in text, compared
// case-insensitively.
func (t Table) Match(text string) (Entry, bool) {
	lower := strings.ToLower(text)
	for _, e := range t {
		if e.Keyword != "" && strings.Contains(lower, e.Keyword) {
			return e, true
		}
	}
	return Entry{}, false
}

// Engine answers follow-up and fact lookups. It is immutable after
// construction and safe for concurrent use.
type Engine struct {
	followUps Table
	facts     Table
	logger    *slog.Logger
}

type EngineConfig struct {
	FollowUps Table  // nil = built-in table
	Facts     Table  // nil = built-in table
	File      string // optional YAML overlay, see LoadFile
	Logger    *slog.Logger
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FollowUps == nil {
		cfg.FollowUps = DefaultFollowUps()
	}
	if cfg.Facts == nil {
		cfg.Facts = DefaultFacts()
	}
	if cfg.File != "" {
		overlay, err := LoadFile(cfg.File)
		if err != nil {
			return nil, err
		}
		if overlay.FollowUps != nil {
			cfg.FollowUps = overlay.FollowUps
		}
		if overlay.Facts != nil {
			cfg.Facts = overlay.Facts
		}
		cfg.Logger.Info("knowledge tables loaded",
			"path", cfg.File,
			"follow_ups", len(cfg.FollowUps),
			"facts", len(cfg.Facts),
		)
	}
	return &Engine{
		followUps: normalize(cfg.FollowUps),
		facts:     normalize(cfg.Facts),
		logger:    cfg.Logger,
	}, nil
}

// FollowUp returns a clarifying question for the first symptom mentioned
// in text, or a generic prompt for more detail.
func (e *Engine) FollowUp(text string) string {
	if m, ok := e.followUps.Match(text); ok {
		return "I see you mentioned " + m.Keyword + ". " + m.Text
	}
	return followUpFallback
}

// Fact returns canned medical information for the first symptom mentioned
// in text, or a referral to a professional.
func (e *Engine) Fact(text string) string {
	if m, ok := e.facts.Match(text); ok {
		return "Medical Information: " + m.Text
	}
	return factFallback
}

func normalize(t Table) Table {
	out := make(Table, 0, len(t))
	for _, e := range t {
		out = append(out, Entry{
			Keyword: strings.ToLower(strings.TrimSpace(e.Keyword)),
			Text:    e.Text,
		})
	}
	return out
}

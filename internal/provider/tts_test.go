package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"aidoctor/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var outputName = regexp.MustCompile(`^reply_\d+_[0-9a-f]{8}\.mp3$`)

func TestSplitText_RespectsLimitAndKeepsWords(t *testing.T) {
	text := strings.Repeat("With what I see, I think you have a mild sunburn. ", 7)
	chunks := splitText(text, 100)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 100, c)
		assert.NotEmpty(t, c)
	}
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(chunks, " ")))
}

func TestSplitText_LongWord(t *testing.T) {
	word := strings.Repeat("a", 250)
	chunks := splitText("hi "+word+" bye", 100)
	assert.Equal(t, []string{"hi", strings.Repeat("a", 100), strings.Repeat("a", 100), strings.Repeat("a", 50) + " bye"}, chunks)
}

func TestSplitText_Empty(t *testing.T) {
	assert.Empty(t, splitText("   \n\t", 100))
}

func TestSplitText_Multibyte(t *testing.T) {
	text := strings.Repeat("नमस्ते ", 40)
	for _, c := range splitText(text, 100) {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 100)
		assert.True(t, utf8.ValidString(c))
	}
}

func TestBasicTTS_Synthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/translate_tts", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "tw-ob", q.Get("client"))
		assert.Equal(t, "hi", q.Get("tl"))
		assert.LessOrEqual(t, utf8.RuneCountInString(q.Get("q")), 100)
		rw.Header().Set("Content-Type", "audio/mpeg")
		io.WriteString(rw, "[chunk"+q.Get("idx")+"]")
	}))
	defer srv.Close()

	dir := t.TempDir()
	player := &recordingPlayer{}
	b := NewBasicTTS(BasicTTSConfig{APIBase: srv.URL, OutputDir: dir, Player: player, Logger: testLogger()})

	text := strings.Repeat("word ", 30) // 149 chars -> 2 chunks
	s := b.Synthesize(context.Background(), text, "hi")
	require.True(t, s.OK(), "err: %v", s.Err)
	assert.Equal(t, domain.SpeechBasic, s.Backend)
	assert.Equal(t, dir, filepath.Dir(s.Path))
	assert.Regexp(t, outputName, filepath.Base(s.Path))

	data, err := os.ReadFile(s.Path)
	require.NoError(t, err)
	assert.Equal(t, "[chunk0][chunk1]", string(data))
	assert.Equal(t, []string{s.Path}, player.calls())
}

func TestBasicTTS_FailureRemovesFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dir := t.TempDir()
	player := &recordingPlayer{}
	b := NewBasicTTS(BasicTTSConfig{APIBase: srv.URL, OutputDir: dir, Player: player, Logger: testLogger()})

	s := b.Synthesize(context.Background(), "hello there", "en")
	assert.False(t, s.OK())
	assert.Empty(t, s.Path)
	assert.Error(t, s.Err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, player.calls())
}

func TestBasicTTS_EmptyText(t *testing.T) {
	b := NewBasicTTS(BasicTTSConfig{OutputDir: t.TempDir(), Logger: testLogger()})
	s := b.Synthesize(context.Background(), "  ", "en")
	assert.False(t, s.OK())
}

func TestBasicTTS_UniqueNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		io.WriteString(rw, "mp3")
	}))
	defer srv.Close()

	b := NewBasicTTS(BasicTTSConfig{APIBase: srv.URL, OutputDir: t.TempDir(), Logger: testLogger()})
	a := b.Synthesize(context.Background(), "one", "en")
	c := b.Synthesize(context.Background(), "two", "en")
	require.True(t, a.OK())
	require.True(t, c.OK())
	assert.NotEqual(t, a.Path, c.Path)
}

func TestBasicTTS_PlaybackErrorDoesNotFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		io.WriteString(rw, "mp3")
	}))
	defer srv.Close()

	player := &recordingPlayer{err: errors.New("no audio device")}
	b := NewBasicTTS(BasicTTSConfig{APIBase: srv.URL, OutputDir: t.TempDir(), Player: player, Logger: testLogger()})
	s := b.Synthesize(context.Background(), "hello", "en")
	assert.True(t, s.OK())
	assert.Len(t, player.calls(), 1)
}

func TestPremiumTTS_Synthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/text-to-speech/voice-123/stream", r.URL.Path)
		assert.Equal(t, "el-key", r.Header.Get("xi-api-key"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, `He said "rest".`, body["text"])
		assert.Equal(t, "eleven_turbo_v2", body["model_id"])

		rw.Header().Set("Content-Type", "audio/mpeg")
		flusher := rw.(http.Flusher)
		io.WriteString(rw, "part1-")
		flusher.Flush()
		io.WriteString(rw, "part2")
	}))
	defer srv.Close()

	dir := t.TempDir()
	player := &recordingPlayer{}
	p := NewPremiumTTS(PremiumTTSConfig{
		APIBase:   srv.URL + "/v1",
		APIKey:    "el-key",
		Voice:     "voice-123",
		OutputDir: dir,
		Player:    player,
		Logger:    testLogger(),
	})

	s := p.Synthesize(context.Background(), `He said "rest".`, "en")
	require.True(t, s.OK(), "err: %v", s.Err)
	assert.Equal(t, domain.SpeechPremium, s.Backend)
	assert.Regexp(t, outputName, filepath.Base(s.Path))

	data, err := os.ReadFile(s.Path)
	require.NoError(t, err)
	assert.Equal(t, "part1-part2", string(data))
	assert.Equal(t, []string{s.Path}, player.calls())
}

func TestPremiumTTS_EmptyStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	p := NewPremiumTTS(PremiumTTSConfig{APIBase: srv.URL, APIKey: "k", OutputDir: dir, Logger: testLogger()})
	s := p.Synthesize(context.Background(), "hello", "en")
	assert.False(t, s.OK())
	assert.Equal(t, domain.SpeechPremium, s.Backend)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestPremiumTTS_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusUnauthorized)
		io.WriteString(rw, `{"detail":"invalid key"}`)
	}))
	defer srv.Close()

	p := NewPremiumTTS(PremiumTTSConfig{APIBase: srv.URL, APIKey: "bad", OutputDir: t.TempDir(), Logger: testLogger()})
	s := p.Synthesize(context.Background(), "hello", "en")
	require.Error(t, s.Err)
	assert.Contains(t, s.Err.Error(), "401")
}

type stubSynth struct {
	backend domain.SpeechBackend
	langs   []string
}

func (s *stubSynth) Synthesize(_ context.Context, _ string, lang string) domain.Speech {
	s.langs = append(s.langs, lang)
	return domain.Speech{Path: string(s.backend) + ".mp3", Backend: s.backend}
}

func TestSpeechRouter(t *testing.T) {
	basic := &stubSynth{backend: domain.SpeechBasic}
	premium := &stubSynth{backend: domain.SpeechPremium}
	r := NewSpeechRouter(SpeechRouterConfig{Basic: basic, Premium: premium, DefaultLanguage: "en", Logger: testLogger()})

	assert.Equal(t, domain.SpeechPremium, r.Synthesize(context.Background(), "x", "en").Backend)
	assert.Equal(t, domain.SpeechPremium, r.Synthesize(context.Background(), "x", "").Backend)
	assert.Equal(t, domain.SpeechBasic, r.Synthesize(context.Background(), "x", "hi").Backend)
	assert.Equal(t, []string{"hi"}, basic.langs)
}

func TestSpeechRouter_NoPremium(t *testing.T) {
	basic := &stubSynth{backend: domain.SpeechBasic}
	r := NewSpeechRouter(SpeechRouterConfig{Basic: basic, Logger: testLogger()})

	assert.Equal(t, domain.SpeechBasic, r.Synthesize(context.Background(), "x", "en").Backend)
	assert.Equal(t, []string{"en"}, basic.langs)
}

func TestSpeechRouter_NoBackend(t *testing.T) {
	r := NewSpeechRouter(SpeechRouterConfig{Logger: testLogger()})
	assert.False(t, r.Synthesize(context.Background(), "x", "fr").OK())
}

package channel

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"aidoctor/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegram_AllowFrom(t *testing.T) {
	open := NewTelegram(TelegramConfig{Logger: testLogger()})
	assert.True(t, open.isAllowed(42))

	tg := NewTelegram(TelegramConfig{AllowFrom: []string{"42", " 7 ", "not-a-number"}, Logger: testLogger()})
	assert.Equal(t, []int64{42, 7}, tg.allowFrom)
	assert.True(t, tg.isAllowed(7))
	assert.False(t, tg.isAllowed(8))
}

func TestTelegram_LanguagePerChat(t *testing.T) {
	tg := NewTelegram(TelegramConfig{DefaultLanguage: "English", Logger: testLogger()})
	assert.Equal(t, "en", tg.language(1))

	reply, ok := tg.setLanguage(1, "Hindi")
	assert.True(t, ok)
	assert.Equal(t, "I will reply in Hindi.", reply)
	assert.Equal(t, "hi", tg.language(1))
	assert.Equal(t, "en", tg.language(2))

	_, ok = tg.setLanguage(1, "klingon")
	assert.False(t, ok)
	assert.Equal(t, "hi", tg.language(1))

	reply, ok = tg.setLanguage(1, "")
	assert.False(t, ok)
	assert.Contains(t, reply, "Usage")
}

func TestSplitMessage(t *testing.T) {
	assert.Nil(t, splitMessage("", 10))
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	long := strings.Repeat("a", 25)
	chunks := splitMessage(long, 10)
	assert.Equal(t, []string{"aaaaaaaaaa", "aaaaaaaaaa", "aaaaa"}, chunks)

	withNewline := "aaaaaaa\nbbbbbbbbb"
	chunks = splitMessage(withNewline, 10)
	assert.Equal(t, "aaaaaaa", chunks[0])
	assert.Equal(t, withNewline, strings.Join(chunks, ""))
}

func TestSplitMessage_MultibyteStaysValid(t *testing.T) {
	hindi := strings.Repeat("सिरदर्द ", 800)
	chunks := splitMessage(hindi, telegramMaxMsgLen)

	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.LessOrEqual(t, len(c), telegramMaxMsgLen, "chunk %d", i)
		assert.True(t, utf8.ValidString(c), "chunk %d is not valid UTF-8", i)
	}
	assert.Equal(t, hindi, strings.Join(chunks, ""))
}

func TestSplitMessage_LimitSmallerThanRune(t *testing.T) {
	chunks := splitMessage("दद", 2)
	assert.Equal(t, []string{"द", "द"}, chunks)
}

func TestSaveLimited(t *testing.T) {
	dir := t.TempDir()

	ok := filepath.Join(dir, "ok.ogg")
	require.NoError(t, saveLimited(strings.NewReader("12345"), ok, 5))
	data, err := os.ReadFile(ok)
	require.NoError(t, err)
	assert.Equal(t, "12345", string(data))

	big := filepath.Join(dir, "big.ogg")
	err = saveLimited(strings.NewReader("123456"), big, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 5 bytes")
	assert.NoFileExists(t, big)
}

func TestFormatReply(t *testing.T) {
	assert.Equal(t, "You said: cough\n\nRest.", formatReply(domain.Response{Input: "cough", Reply: "Rest."}))
	assert.Equal(t, "Rest.", formatReply(domain.Response{Input: domain.MsgNoTextInput, Reply: "Rest."}))
}

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "telegram:-100123", sessionKey(-100123))
}

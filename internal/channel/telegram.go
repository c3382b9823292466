package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"aidoctor/internal/agent"
	"aidoctor/internal/domain"
	"aidoctor/internal/language"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
	telegramDownloadLimit  = 20 << 20
	telegramGreeting       = "Hello, I'm your AI doctor. Describe your symptoms, send a voice note, or send a photo of what worries you.\n\n" +
		"Commands:\n/reset - start a new consultation\n/lang <language> - choose the reply language"
)

// Telegram consults over a Telegram bot. Each chat is its own session.
type Telegram struct {
	token       string
	allowFrom   []int64 // empty = allow all
	doctor      Consulter
	sessions    *agent.SessionManager
	defaultLang string
	timeout     time.Duration
	httpClient  *http.Client
	logger      *slog.Logger

	bot *tgbotapi.BotAPI

	langMu sync.RWMutex
	langs  map[int64]string
}

type TelegramConfig struct {
	Token           string
	AllowFrom       []string // user IDs as strings
	Doctor          Consulter
	Sessions        *agent.SessionManager
	DefaultLanguage string
	RequestTimeout  time.Duration
	HTTPClient      *http.Client // used to download voice notes and photos
	Logger          *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sessions == nil {
		cfg.Sessions = agent.NewSessionManager(agent.SessionManagerConfig{Logger: cfg.Logger})
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Telegram{
		token:       cfg.Token,
		allowFrom:   allowed,
		doctor:      cfg.Doctor,
		sessions:    cfg.Sessions,
		defaultLang: language.Resolve(cfg.DefaultLanguage),
		timeout:     cfg.RequestTimeout,
		httpClient:  cfg.HTTPClient,
		logger:      cfg.Logger,
		langs:       make(map[int64]string),
	}
}

// Start connects and long-polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			// Consultations take seconds; chats must not block each other.
			wg.Add(1)
			go func() {
				defer wg.Done()
				t.handleUpdate(ctx, update)
			}()
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if !t.isAllowed(userID) {
		t.logger.Warn("unauthorized telegram user",
			"user_id", userID,
			"username", msg.From.UserName,
		)
		t.sendMessage(chatID, "Unauthorized. Your user ID is not in the allow list.")
		return
	}

	if msg.IsCommand() {
		t.handleCommand(chatID, msg)
		return
	}

	req, cleanup, err := t.buildRequest(ctx, msg)
	defer cleanup()
	if err != nil {
		t.logger.Error("telegram attachment download failed", "chat_id", chatID, "err", err)
		t.sendMessage(chatID, "Sorry, I could not download your attachment. Please try again.")
		return
	}
	if req.Empty() {
		return
	}
	req.Language = t.language(chatID)

	t.logger.Info("telegram consultation",
		"chat_id", chatID,
		"audio", req.AudioPath != "",
		"image", req.ImagePath != "",
		"text_len", len(req.Text),
	)
	_, _ = t.bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

	cctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	resp := t.doctor.Consult(cctx, t.sessions.GetOrCreate(sessionKey(chatID)), req)

	t.sendMessage(chatID, formatReply(resp))
	if resp.AudioPath != "" {
		t.sendAudio(chatID, resp.AudioPath)
	}
}

// buildRequest downloads any voice note, audio file or photo to a temp dir.
// The returned cleanup removes it and is always safe to call.
func (t *Telegram) buildRequest(ctx context.Context, msg *tgbotapi.Message) (domain.Request, func(), error) {
	req := domain.Request{Text: strings.TrimSpace(msg.Text)}
	if req.Text == "" {
		req.Text = strings.TrimSpace(msg.Caption)
	}
	noop := func() {}

	audioID, audioExt := "", ""
	switch {
	case msg.Voice != nil:
		audioID, audioExt = msg.Voice.FileID, ".ogg"
	case msg.Audio != nil:
		audioID, audioExt = msg.Audio.FileID, extOr(msg.Audio.FileName, ".mp3")
	}
	imageID := ""
	if n := len(msg.Photo); n > 0 {
		imageID = msg.Photo[n-1].FileID // sizes are ascending
	}
	if audioID == "" && imageID == "" {
		return req, noop, nil
	}

	dir, err := os.MkdirTemp("", "aidoctor-tg-")
	if err != nil {
		return req, noop, err
	}
	cleanup := func() { os.RemoveAll(dir) }

	if audioID != "" {
		if req.AudioPath, err = t.download(ctx, audioID, filepath.Join(dir, "audio"+audioExt)); err != nil {
			return req, cleanup, err
		}
	}
	if imageID != "" {
		if req.ImagePath, err = t.download(ctx, imageID, filepath.Join(dir, "image.jpg")); err != nil {
			return req, cleanup, err
		}
	}
	return req, cleanup, nil
}

func (t *Telegram) download(ctx context.Context, fileID, dst string) (string, error) {
	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("resolve file: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	if err := saveLimited(resp.Body, dst, telegramDownloadLimit); err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}
	return dst, nil
}

// saveLimited writes r to dst. A body longer than limit is an error and
// leaves no file behind, so a truncated upload never reaches the pipeline.
func saveLimited(r io.Reader, dst string, limit int64) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > limit {
		err = fmt.Errorf("file exceeds %d bytes", limit)
	}
	if err != nil {
		os.Remove(dst)
	}
	return err
}

func (t *Telegram) handleCommand(chatID int64, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		t.sendMessage(chatID, telegramGreeting)
	case "reset", "clear":
		t.sessions.Clear(sessionKey(chatID))
		t.sendMessage(chatID, "Conversation cleared. How can I help you today?")
	case "lang":
		reply, _ := t.setLanguage(chatID, msg.CommandArguments())
		t.sendMessage(chatID, reply)
	default:
		t.sendMessage(chatID, "Unknown command. Type /help for available commands.")
	}
}

// setLanguage records the chat's reply language and returns the message
// to send back.
func (t *Telegram) setLanguage(chatID int64, arg string) (string, bool) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "Usage: /lang <language>, e.g. /lang Hindi or /lang fr", false
	}
	l, ok := language.Parse(arg)
	if !ok {
		return fmt.Sprintf("Unknown language %q.", arg), false
	}
	t.langMu.Lock()
	t.langs[chatID] = l.Code
	t.langMu.Unlock()
	return "I will reply in " + l.Name + ".", true
}

func (t *Telegram) language(chatID int64) string {
	t.langMu.RLock()
	defer t.langMu.RUnlock()
	if code, ok := t.langs[chatID]; ok {
		return code
	}
	return t.defaultLang
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

func (t *Telegram) sendAudio(chatID int64, path string) {
	audio := tgbotapi.NewAudio(chatID, tgbotapi.FilePath(path))
	audio.Title = "Doctor's reply"
	if _, err := t.bot.Send(audio); err != nil {
		t.logger.Warn("telegram audio send failed", "chat_id", chatID, "err", err)
	}
}

func (t *Telegram) sendMessage(chatID int64, text string) {
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		t.sendChunk(chatID, chunk)
	}
}

// sendChunk sends plain text with retry and rate limit handling.
func (t *Telegram) sendChunk(chatID int64, text string) {
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		_, err := t.bot.Send(tgbotapi.NewMessage(chatID, text))
		if err == nil {
			return
		}

		errStr := err.Error()
		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off",
				"retry_after", retryAfter, "attempt", attempt+1,
			)
			time.Sleep(retryAfter)
			continue
		}

		if attempt < telegramMaxSendRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}

		t.logger.Error("telegram send failed after retries", "err", err, "attempts", telegramMaxSendRetries+1)
	}
}

func sessionKey(chatID int64) string {
	return "telegram:" + strconv.FormatInt(chatID, 10)
}

func formatReply(resp domain.Response) string {
	var sb strings.Builder
	if resp.Input != "" && resp.Input != domain.MsgNoTextInput {
		sb.WriteString("You said: ")
		sb.WriteString(resp.Input)
		sb.WriteString("\n\n")
	}
	sb.WriteString(resp.Reply)
	return sb.String()
}

// splitMessage cuts text into chunks of at most limit bytes, preferring
// newline boundaries in the second half of a chunk. Cuts never fall inside
// a UTF-8 sequence.
func splitMessage(text string, limit int) []string {
	var chunks []string
	for len(text) > limit {
		cutAt := strings.LastIndex(text[:limit], "\n")
		if cutAt <= 0 || cutAt < limit/2 {
			cutAt = limit
			for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
				cutAt--
			}
			if cutAt == 0 {
				_, cutAt = utf8.DecodeRuneInString(text)
			}
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func extOr(name, fallback string) string {
	if ext := filepath.Ext(name); ext != "" {
		return strings.ToLower(ext)
	}
	return fallback
}

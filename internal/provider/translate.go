package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const maxTranslateBody = 4 << 20

// TranslatorConfig configures the Google Translate client.
type TranslatorConfig struct {
	APIBase    string // default: https://translate.googleapis.com
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Translator uses the keyless Google Translate "gtx" endpoint with source
// language auto-detection.
type Translator struct {
	apiBase string
	client  *http.Client
	logger  *slog.Logger
}

func NewTranslator(cfg TranslatorConfig) *Translator {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://translate.googleapis.com"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Translator{
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		client:  clientOrDefault(cfg.HTTPClient, 30*time.Second),
		logger:  cfg.Logger,
	}
}

// Translate renders text in the target language code.
func (t *Translator) Translate(ctx context.Context, text, target string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	if target == "" {
		return "", fmt.Errorf("translate: empty target language")
	}

	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", "auto")
	q.Set("tl", target)
	q.Set("dt", "t")
	q.Set("q", text)
	endpoint := t.apiBase + "/translate_a/single?" + q.Encode()

	resp, err := doWithRetry(ctx, t.client, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, t.logger)
	if err != nil {
		return "", fmt.Errorf("translate API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTranslateBody))
	if err != nil {
		return "", fmt.Errorf("read translate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate API error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	out, err := parseTranslation(body)
	if err != nil {
		return "", err
	}
	t.logger.Debug("translation complete", "target", target, "in_len", len(text), "out_len", len(out))
	return out, nil
}

// parseTranslation joins the translated segments of a gtx response. The
// payload is a nested array whose first element lists
// [translated, original, ...] segment tuples.
func parseTranslation(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("translate: malformed response")
	}
	segments := gjson.GetBytes(body, "0")
	if !segments.IsArray() {
		return "", fmt.Errorf("translate: response has no segments")
	}
	var sb strings.Builder
	segments.ForEach(func(_, seg gjson.Result) bool {
		sb.WriteString(seg.Get("0").String())
		return true
	})
	if sb.Len() == 0 {
		return "", fmt.Errorf("translate: empty translation")
	}
	return sb.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aidoctor/internal/domain"
)

// EmotionConfig configures the optional speech emotion classifier.
type EmotionConfig struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// EmotionClient uploads a recording to an emotion classification API and
// returns its coarse label. Without credentials it always reports neutral.
type EmotionClient struct {
	url    string
	apiKey string
	client *http.Client
	logger *slog.Logger
}

func NewEmotionClient(cfg EmotionConfig) *EmotionClient {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &EmotionClient{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		client: clientOrDefault(cfg.HTTPClient, 30*time.Second),
		logger: cfg.Logger,
	}
}

// Enabled reports whether the classifier has an endpoint and credential.
func (e *EmotionClient) Enabled() bool {
	return e.url != "" && e.apiKey != ""
}

func (e *EmotionClient) Detect(ctx context.Context, audioPath string) string {
	if !e.Enabled() {
		return domain.EmotionNeutral
	}
	label, err := e.detect(ctx, audioPath)
	if err != nil {
		e.logger.Warn("emotion detection failed", "path", audioPath, "err", err)
		return domain.EmotionNeutral
	}
	return label
}

func (e *EmotionClient) detect(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("copy audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	resp, err := doWithRetry(ctx, e.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body.Bytes()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
		return req, nil
	}, e.logger)
	if err != nil {
		return "", fmt.Errorf("emotion API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("emotion API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Emotion string `json:"emotion"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode emotion response: %w", err)
	}
	label := strings.ToLower(strings.TrimSpace(result.Emotion))
	if label == "" {
		return domain.EmotionNeutral, nil
	}
	return label, nil
}

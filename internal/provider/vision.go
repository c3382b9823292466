package provider

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"aidoctor/internal/domain"

	openai "github.com/sashabaranov/go-openai"
)

// VisionConfig configures the vision-language model client.
type VisionConfig struct {
	APIBase    string
	APIKey     string
	Model      string
	MaxTokens  int // 0 = provider default
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Vision sends text and image queries to an OpenAI-compatible chat
// completion endpoint that accepts image_url content parts.
type Vision struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *slog.Logger
}

func NewVision(cfg VisionConfig) *Vision {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.groq.com/openai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "llama-3.2-11b-vision-preview"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.APIBase, "/")
	oc.HTTPClient = clientOrDefault(cfg.HTTPClient, 120*time.Second)
	return &Vision{
		client:    openai.NewClientWithConfig(oc),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
	}
}

// Complete sends history followed by one user message holding query and,
// when imageDataURI is set, the image. It returns the model's reply or a
// sentinel string.
func (v *Vision) Complete(ctx context.Context, query, imageDataURI string, history []domain.Turn) string {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, t := range history {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: chatRole(t.Role), Content: t.Content})
	}
	msgs = append(msgs, userMessage(query, imageDataURI))

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     v.model,
		Messages:  msgs,
		MaxTokens: v.maxTokens,
	})
	if err != nil {
		v.logger.Error("vision request failed", "model", v.model, "err", err)
		return domain.MsgImageAnalysisPrefix + err.Error()
	}
	if len(resp.Choices) == 0 {
		v.logger.Warn("vision response had no choices", "model", v.model)
		return domain.MsgNoModelResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return domain.MsgNoModelResponse
	}
	return content
}

func userMessage(query, imageDataURI string) openai.ChatCompletionMessage {
	if imageDataURI == "" {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: query}
	}
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: query},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: imageDataURI}},
		},
	}
}

func chatRole(r domain.Role) string {
	switch r {
	case domain.RoleSystem:
		return openai.ChatMessageRoleSystem
	case domain.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

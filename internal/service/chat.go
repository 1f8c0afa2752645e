package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"xivi-server/internal/client"
	"xivi-server/internal/config"
)

var (
	// ErrChatDisabled is returned when no chat API key is configured.
	ErrChatDisabled = errors.New("chat completion API key is not configured")
	// ErrNoMessages is returned for a chat request without messages.
	ErrNoMessages = errors.New("messages must not be empty")
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body accepted by /api/chat.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

type completionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

// JSONPoster posts a JSON document and returns the raw response. *client.APIClient implements it.
type JSONPoster interface {
	PostJSON(ctx context.Context, url string, header http.Header, in any) ([]byte, error)
}

// ChatService forwards conversations to an OpenAI-compatible completion API
// using the server-held credential.
type ChatService struct {
	api      JSONPoster
	endpoint string
	apiKey   string
	model    string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewChatService creates a ChatService.
func NewChatService(api *client.APIClient, cfg *config.Config, logger *slog.Logger) *ChatService {
	return newChatService(api, cfg, logger)
}

func newChatService(api JSONPoster, cfg *config.Config, logger *slog.Logger) *ChatService {
	return &ChatService{
		api:      api,
		endpoint: strings.TrimRight(cfg.Chat.BaseURL, "/") + "/chat/completions",
		apiKey:   cfg.Chat.APIKey,
		model:    cfg.Chat.Model,
		timeout:  time.Duration(cfg.Chat.TimeoutSeconds) * time.Second,
		logger:   logger.With("component", "chat_service"),
	}
}

// Complete sends req upstream and returns the completion response verbatim.
func (s *ChatService) Complete(ctx context.Context, req *ChatRequest) ([]byte, error) {
	if s.apiKey == "" {
		return nil, ErrChatDisabled
	}
	if req == nil || len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.apiKey)

	body, err := s.api.PostJSON(ctx, s.endpoint, header, completionRequest{
		Model:    s.model,
		Messages: req.Messages,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	s.logger.Debug("chat completion", "messages", len(req.Messages), "bytes", len(body))
	return body, nil
}

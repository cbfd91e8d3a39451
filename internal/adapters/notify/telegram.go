package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultTelegramBaseURL = "https://api.telegram.org"
	defaultTimeout         = 10 * time.Second

	// Telegram rejects messages above 4096 characters.
	telegramMaxLen = 4096
)

// TelegramSender delivers notifications via the Telegram Bot API.
type TelegramSender struct {
	token   string
	chatID  string
	silent  bool
	baseURL string
	client  *http.Client
}

// TelegramConfig holds configuration for the Telegram channel.
type TelegramConfig struct {
	Token   string
	ChatID  string
	Silent  bool          // Deliver without the notification sound
	Timeout time.Duration // HTTP timeout, defaults to 10s
	BaseURL string        // Override for tests
}

// NewTelegramSender creates a TelegramSender for the given bot token and
// chat ID.
func NewTelegramSender(cfg TelegramConfig) (*TelegramSender, error) {
	if cfg.Token == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("telegram token and chat ID are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultTelegramBaseURL
	}
	return &TelegramSender{
		token:   cfg.Token,
		chatID:  cfg.ChatID,
		silent:  cfg.Silent,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Send posts a message to the configured chat using the sendMessage API.
// The subject is rendered in bold Markdown.
func (t *TelegramSender) Send(ctx context.Context, subject, body string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)

	text := truncate(fmt.Sprintf("*%s*\n%s", subject, body), telegramMaxLen)

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	if t.silent {
		payload["disable_notification"] = true
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name returns the channel identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	const marker = "\n[truncated]"
	return string(runes[:max-len(marker)]) + marker
}

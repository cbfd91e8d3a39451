package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct {
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

type fakeSender struct {
	name     string
	err      error
	subjects []string
}

func (f *fakeSender) Send(ctx context.Context, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func TestDispatcher_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("all channels receive the message", func(t *testing.T) {
		first := &fakeSender{name: "telegram"}
		second := &fakeSender{name: "email"}
		d, err := NewDispatcher(&mockLogger{}, first, second)
		require.NoError(t, err)

		err = d.Send(ctx, "Daily report", "body")

		require.NoError(t, err)
		assert.Equal(t, []string{"Daily report"}, first.subjects)
		assert.Equal(t, []string{"Daily report"}, second.subjects)
	})

	t.Run("one failing channel does not block the rest", func(t *testing.T) {
		logger := &mockLogger{}
		broken := &fakeSender{name: "telegram", err: errors.New("bot token revoked")}
		working := &fakeSender{name: "email"}
		d, err := NewDispatcher(logger, broken, working)
		require.NoError(t, err)

		err = d.Send(ctx, "Alert", "body")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "telegram")
		assert.Contains(t, err.Error(), "1 of 2")
		assert.Equal(t, []string{"Alert"}, working.subjects)
		assert.NotEmpty(t, logger.errorMsgs)
	})

	t.Run("no channels is a no-op", func(t *testing.T) {
		d, err := NewDispatcher(&mockLogger{})
		require.NoError(t, err)

		assert.NoError(t, d.Send(ctx, "Alert", "body"))
	})

	t.Run("nil logger rejected", func(t *testing.T) {
		_, err := NewDispatcher(nil)
		assert.Error(t, err)
	})
}

func TestTelegramSender_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("posts markdown message", func(t *testing.T) {
		var gotPath string
		var gotPayload map[string]string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		sender, err := NewTelegramSender(TelegramConfig{Token: "test-token", ChatID: "42", BaseURL: server.URL})
		require.NoError(t, err)

		require.NoError(t, sender.Send(ctx, "Daily report", "gross +80.30"))

		assert.Equal(t, "/bottest-token/sendMessage", gotPath)
		assert.Equal(t, "42", gotPayload["chat_id"])
		assert.Equal(t, "Markdown", gotPayload["parse_mode"])
		assert.Equal(t, "*Daily report*\ngross +80.30", gotPayload["text"])
		assert.NotContains(t, gotPayload, "disable_notification")
	})

	t.Run("silent delivery sets disable_notification", func(t *testing.T) {
		var gotPayload map[string]interface{}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		sender, err := NewTelegramSender(TelegramConfig{Token: "t", ChatID: "42", Silent: true, BaseURL: server.URL})
		require.NoError(t, err)

		require.NoError(t, sender.Send(ctx, "Daily report", "body"))

		assert.Equal(t, true, gotPayload["disable_notification"])
	})

	t.Run("server error surfaces", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"ok":false}`, http.StatusBadRequest)
		}))
		defer server.Close()

		sender, err := NewTelegramSender(TelegramConfig{Token: "t", ChatID: "42", BaseURL: server.URL})
		require.NoError(t, err)

		err = sender.Send(ctx, "Alert", "body")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 400")
	})

	t.Run("long messages truncated to the API limit", func(t *testing.T) {
		var gotText string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var payload map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			gotText = payload["text"]
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		sender, err := NewTelegramSender(TelegramConfig{Token: "t", ChatID: "42", BaseURL: server.URL})
		require.NoError(t, err)

		require.NoError(t, sender.Send(ctx, "Report", strings.Repeat("x", 5000)))

		assert.LessOrEqual(t, len([]rune(gotText)), telegramMaxLen)
		assert.True(t, strings.HasSuffix(gotText, "[truncated]"))
	})

	t.Run("missing credentials rejected", func(t *testing.T) {
		_, err := NewTelegramSender(TelegramConfig{Token: "", ChatID: "42"})
		assert.Error(t, err)
	})
}

func TestEmailSender_Config(t *testing.T) {
	valid := EmailConfig{
		Host: "smtp.example.com", Port: 587,
		Username: "bot", Password: "secret",
		From: "bot@example.com", To: []string{"ops@example.com"},
	}

	t.Run("valid", func(t *testing.T) {
		sender, err := NewEmailSender(valid)
		require.NoError(t, err)
		assert.Equal(t, "email", sender.Name())
	})

	t.Run("missing host", func(t *testing.T) {
		cfg := valid
		cfg.Host = ""
		_, err := NewEmailSender(cfg)
		assert.Error(t, err)
	})

	t.Run("no recipients", func(t *testing.T) {
		cfg := valid
		cfg.To = nil
		_, err := NewEmailSender(cfg)
		assert.Error(t, err)
	})
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("bot@example.com", []string{"a@example.com", "b@example.com"}, "Daily report", "gross +80.30"))

	assert.Contains(t, msg, "From: bot@example.com\r\n")
	assert.Contains(t, msg, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, msg, "Subject: Daily report\r\n")
	assert.Contains(t, msg, "Content-Type: text/plain")

	headerEnd := strings.Index(msg, "\r\n\r\n")
	require.Positive(t, headerEnd)
	assert.Equal(t, "gross +80.30\r\n", msg[headerEnd+4:])
}

package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailSender delivers notifications over SMTP with STARTTLS.
type EmailSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
}

// EmailConfig holds configuration for the email channel.
type EmailConfig struct {
	Host     string // e.g., smtp.gmail.com
	Port     int    // e.g., 587
	Username string
	Password string
	From     string
	To       []string
}

// NewEmailSender creates an EmailSender for the given SMTP account.
func NewEmailSender(cfg EmailConfig) (*EmailSender, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, fmt.Errorf("SMTP host and port are required")
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("sender and at least one recipient are required")
	}
	return &EmailSender{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		to:       cfg.To,
	}, nil
}

// Send delivers the message to every configured recipient. smtp.SendMail
// upgrades the connection with STARTTLS when the server offers it, which
// port 587 servers do.
func (e *EmailSender) Send(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("email: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	var auth smtp.Auth
	if e.username != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.host)
	}

	msg := buildMessage(e.from, e.to, subject, body)
	if err := smtp.SendMail(addr, auth, e.from, e.to, msg); err != nil {
		return fmt.Errorf("email: send via %s: %w", addr, err)
	}
	return nil
}

// Name returns the channel identifier.
func (e *EmailSender) Name() string {
	return "email"
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
